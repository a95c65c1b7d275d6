package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"

	"github.com/spf13/cobra"

	"github.com/joshuapare/guestkit/emulator"
	"github.com/joshuapare/guestkit/vfs"
	"github.com/joshuapare/guestkit/vfs/devices"
	"github.com/joshuapare/guestkit/vfs/xcontent"
)

var (
	extractTitleID     string
	extractContentType string
	extractDisplayName string
	extractLicenses    []string
	extractNoHeader    bool
)

func init() {
	cmd := newExtractCmd()
	cmd.Flags().StringVar(&extractTitleID, "title-id", "", "Override the title ID of the package header")
	cmd.Flags().StringVar(&extractContentType, "content-type", "", "Override the content type of the package header")
	cmd.Flags().StringVar(&extractDisplayName, "display-name", "", "Override the display name of the package header")
	cmd.Flags().StringSliceVar(&extractLicenses, "license", nil, "Replace the package licenses with these active bits (repeatable)")
	cmd.Flags().BoolVar(&extractNoHeader, "no-header", false, "Do not write the .header file")
	rootCmd.AddCommand(cmd)
}

func newExtractCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "extract <source> <dest>",
		Short: "Install a content package to a host directory",
		Long: `The extract command copies every entry of a zip content package (or a
host directory) below dest, breadth-first. For zip packages it also writes
"<dest>.header" holding the content descriptor and license mask read from
the package header. Flags override individual header fields.

Example:
  guestctl extract dlc.zip ./content/4D5307E6/00000002/DLC01
  guestctl extract dlc.zip ./out --license 0x1 --license 0x4 -v`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return runExtract(ctx, args)
		},
	}
	return cmd
}

// extractLicenseOptions turns --license flags into a license table
// override, or nil when none were given.
func extractLicenseOptions() (devices.ContainerOptions, error) {
	var opts devices.ContainerOptions
	for _, l := range extractLicenses {
		bits, err := parseUint32(l)
		if err != nil {
			return devices.ContainerOptions{}, fmt.Errorf("invalid --license %q: %w", l, err)
		}
		opts.Licenses = append(opts.Licenses, xcontent.License{Bits: bits, Flags: 1})
	}
	return opts, nil
}

// overriddenHeader is a content source whose descriptor has flag overrides
// applied.
type overriddenHeader struct {
	vfs.ContentSource
	data xcontent.AggregateData
}

func (o overriddenHeader) ContentHeader() xcontent.AggregateData { return o.data }

// applyHeaderFlags patches the fields named by --title-id, --content-type
// and --display-name into src's descriptor.
func applyHeaderFlags(src vfs.ContentSource) (vfs.ContentSource, error) {
	data := src.ContentHeader()
	changed := false
	if extractTitleID != "" {
		v, err := parseUint32(extractTitleID)
		if err != nil {
			return nil, fmt.Errorf("invalid --title-id: %w", err)
		}
		data.TitleID, changed = v, true
	}
	if extractContentType != "" {
		v, err := parseUint32(extractContentType)
		if err != nil {
			return nil, fmt.Errorf("invalid --content-type: %w", err)
		}
		data.ContentType, changed = xcontent.ContentType(v), true
	}
	if extractDisplayName != "" {
		data.DisplayName, changed = extractDisplayName, true
	}
	if !changed {
		return src, nil
	}
	return overriddenHeader{ContentSource: src, data: data}, nil
}

func runExtract(ctx context.Context, args []string) error {
	source, dest := args[0], args[1]
	opts, err := extractLicenseOptions()
	if err != nil {
		return err
	}

	inst, err := emulator.New(emulator.Config{})
	if err != nil {
		return err
	}
	defer inst.Close()

	device, err := mountSource(inst, source, opts)
	if err != nil {
		return fmt.Errorf("failed to mount %s: %w", source, err)
	}

	src, isPackage := device.(vfs.ContentSource)
	if isPackage {
		if src, err = applyHeaderFlags(src); err != nil {
			return err
		}
	}

	var progress atomic.Uint64
	printVerbose("Extracting %s to %s\n", source, dest)
	if err := inst.FileSystem().ExtractContentFiles(ctx, device, dest, &progress); err != nil {
		return fmt.Errorf("extraction incomplete after %d bytes: %w", progress.Load(), err)
	}

	header := ""
	if isPackage && !extractNoHeader {
		if err := vfs.ExtractContentHeader(src, dest); err != nil {
			return fmt.Errorf("failed to write header: %w", err)
		}
		header = dest + ".header"
	}

	if jsonOut {
		return printJSON(map[string]any{
			"source": source,
			"dest":   dest,
			"bytes":  progress.Load(),
			"header": header,
		})
	}
	printInfo("Extracted %d bytes to %s\n", progress.Load(), dest)
	if header != "" {
		printInfo("Wrote %s\n", header)
	}
	return nil
}
