package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joshuapare/guestkit/emulator"
	"github.com/joshuapare/guestkit/vfs"
	"github.com/joshuapare/guestkit/vfs/devices"
)

var lsRecursive bool

func init() {
	cmd := newLsCmd()
	cmd.Flags().BoolVarP(&lsRecursive, "recursive", "r", false, "List all entries below the path")
	rootCmd.AddCommand(cmd)
}

func newLsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ls <source> [path]",
		Short: "List entries of a mounted directory or content package",
		Long: `The ls command mounts a host directory or a zip content package as a
read-only guest device linked to "d:" and lists the entries at a guest path.

Example:
  guestctl ls ./game
  guestctl ls dlc.zip media --recursive
  guestctl ls ./game "media\movies" --json`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLs(args)
		},
	}
	return cmd
}

type lsEntry struct {
	Path      string `json:"path"`
	Size      int64  `json:"size"`
	Directory bool   `json:"directory"`
	ReadOnly  bool   `json:"read_only"`
}

func runLs(args []string) error {
	inst, err := emulator.New(emulator.Config{})
	if err != nil {
		return err
	}
	defer inst.Close()

	printVerbose("Mounting %s at %s\n", args[0], sourceMount)
	if _, err := mountSource(inst, args[0], devices.ContainerOptions{}); err != nil {
		return fmt.Errorf("failed to mount %s: %w", args[0], err)
	}

	guestPath := `d:\`
	if len(args) > 1 {
		guestPath = vfs.JoinPath("d:", args[1])
	}
	dir, err := inst.FileSystem().ResolvePath(guestPath)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", guestPath, err)
	}

	var entries []lsEntry
	queue := dir.Children()
	for len(queue) > 0 {
		e := queue[0]
		queue = queue[1:]
		entries = append(entries, lsEntry{
			Path:      e.Path(),
			Size:      e.Size(),
			Directory: e.IsDirectory(),
			ReadOnly:  e.IsReadOnly(),
		})
		if lsRecursive {
			queue = append(queue, e.Children()...)
		}
	}

	if jsonOut {
		return printJSON(map[string]any{
			"source":  args[0],
			"path":    guestPath,
			"entries": entries,
			"count":   len(entries),
		})
	}
	for _, e := range entries {
		if e.Directory {
			printInfo("  %12s  %s\\\n", "<dir>", e.Path)
		} else {
			printInfo("  %12d  %s\n", e.Size, e.Path)
		}
	}
	printVerbose("%d entries\n", len(entries))
	return nil
}
