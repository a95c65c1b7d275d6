package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/joshuapare/guestkit/vfs/xcontent"
)

func init() {
	rootCmd.AddCommand(newHeaderCmd())
}

func newHeaderCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "header <file.header>",
		Short: "Decode a content package header written by extract",
		Long: `The header command decodes the content descriptor and license mask of a
.header file.

Example:
  guestctl header ./content/DLC01.header
  guestctl header ./content/DLC01.header --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHeader(args)
		},
	}
	return cmd
}

func runHeader(args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	data, mask, err := xcontent.ReadHeader(f)
	if err != nil {
		return fmt.Errorf("failed to read header: %w", err)
	}

	if jsonOut {
		return printJSON(map[string]any{
			"content":      data,
			"license_mask": mask,
		})
	}
	printInfo("Content header: %s\n", args[0])
	printInfo("  Display name: %s\n", data.DisplayName)
	printInfo("  File name:    %s\n", data.FileName)
	printInfo("  Content type: %s\n", data.ContentType)
	printInfo("  Title ID:     %08X\n", data.TitleID)
	printInfo("  Device ID:    %d\n", data.DeviceID)
	printInfo("  XUID:         %016X\n", data.XUID)
	printInfo("  License mask: 0x%08X\n", mask)
	return nil
}
