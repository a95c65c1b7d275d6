package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/joshuapare/guestkit/emulator"
	"github.com/joshuapare/guestkit/kernel/xboxkrnl"
	"github.com/joshuapare/guestkit/memory"
	"github.com/joshuapare/guestkit/pkg/types"
)

var (
	heapsDump   bool
	heapsStats  bool
	heapsAllocs []string
)

func init() {
	cmd := newHeapsCmd()
	cmd.Flags().BoolVar(&heapsDump, "dump", false, "Print each heap's region map")
	cmd.Flags().BoolVar(&heapsStats, "stats", false, "Print the kernel memory statistics")
	cmd.Flags().StringSliceVar(&heapsAllocs, "alloc", nil, "Allocate and commit regions of these sizes first (decimal or 0x hex)")
	rootCmd.AddCommand(cmd)
}

func newHeapsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "heaps",
		Short: "Show the guest heap layout and page statistics",
		Long: `The heaps command creates a fresh guest address space and prints its
heaps: base, size, page size and page counts.

Example:
  guestctl heaps
  guestctl heaps --alloc 0x10000,0x200000 --dump
  guestctl heaps --stats --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHeaps()
		},
	}
	return cmd
}

type heapReport struct {
	Name     string           `json:"name"`
	Type     string           `json:"type"`
	Base     uint32           `json:"base"`
	Size     uint32           `json:"size"`
	PageSize uint32           `json:"page_size"`
	Pages    memory.PageStats `json:"pages"`
}

type heapsReport struct {
	Heaps       []heapReport            `json:"heaps"`
	Allocations []uint32                `json:"allocations,omitempty"`
	Summary     memory.PageStatsSummary `json:"summary"`
	Statistics  *xboxkrnl.Statistics    `json:"statistics,omitempty"`
}

func runHeaps() error {
	inst, err := emulator.New(emulator.Config{})
	if err != nil {
		return fmt.Errorf("failed to create guest memory: %w", err)
	}
	defer inst.Close()

	var report heapsReport
	for _, arg := range heapsAllocs {
		size, err := parseUint32(arg)
		if err != nil {
			return fmt.Errorf("invalid --alloc size %q: %w", arg, err)
		}
		base, _, st := inst.Kernel().NtAllocateVirtualMemory(0, size,
			types.X_MEM_RESERVE|types.X_MEM_COMMIT, types.X_PAGE_READWRITE)
		if st.Failed() {
			return fmt.Errorf("failed to allocate 0x%X bytes: %s", size, st)
		}
		printVerbose("Allocated 0x%X bytes at 0x%08X\n", size, base)
		report.Allocations = append(report.Allocations, base)
	}

	heaps := inst.Memory().Heaps()
	for _, h := range heaps {
		report.Heaps = append(report.Heaps, heapReport{
			Name:     h.Name(),
			Type:     h.Type().String(),
			Base:     h.Base(),
			Size:     h.Size(),
			PageSize: h.PageSize(),
			Pages:    h.PageStats(),
		})
	}
	report.Summary = inst.Memory().HeapsPageStatsSummary(heaps...)
	if heapsStats {
		stats, st := inst.Kernel().MmQueryStatistics(xboxkrnl.StatisticsSize)
		if st.Failed() {
			return fmt.Errorf("failed to query statistics: %s", st)
		}
		report.Statistics = &stats
	}

	if jsonOut {
		return printJSON(report)
	}

	printInfo("%-10s %-16s %-10s %-10s %-7s %8s %8s %8s\n",
		"HEAP", "TYPE", "BASE", "SIZE", "PAGE", "TOTAL", "FREE", "COMMIT")
	for _, h := range report.Heaps {
		printInfo("%-10s %-16s 0x%08X 0x%08X 0x%-5X %8d %8d %8d\n",
			h.Name, h.Type, h.Base, h.Size, h.PageSize, h.Pages.Total, h.Pages.Unreserved, h.Pages.Committed)
	}
	printInfo("\nSummary: %d unreserved, %d reserved, %d used (4 KiB), 0x%X bytes reserved\n",
		report.Summary.Unreserved, report.Summary.Reserved, report.Summary.Used, report.Summary.ReservedBytes)

	if s := report.Statistics; s != nil {
		printInfo("\nKernel statistics:\n")
		printInfo("  Total physical pages:     %d\n", s.TotalPhysicalPages)
		printInfo("  Kernel pages:             %d\n", s.KernelPages)
		printInfo("  Highest physical page:    0x%X\n", s.HighestPhysicalPage)
		printInfo("  Title available pages:    %d\n", s.Title.AvailablePages)
		printInfo("  Title reserved bytes:     0x%X\n", s.Title.ReservedVirtualMemoryBytes)
	}

	if heapsDump && !quiet {
		for _, h := range heaps {
			fmt.Fprintln(os.Stdout)
			if err := h.Dump(os.Stdout); err != nil {
				return err
			}
		}
	}
	return nil
}

// parseUint32 accepts decimal and 0x-prefixed hexadecimal values.
func parseUint32(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 0, 32)
	return uint32(v), err
}
