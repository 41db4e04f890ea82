package utils

import (
	"fmt"
	"io"
	"os"
	"time"
)

// Verbose controls whether pass statistics are printed.
// Set to false to suppress output.
var Verbose = true

// Output is the writer where pass statistics are printed.
// Defaults to os.Stdout.
var Output io.Writer = os.Stdout

// PassStats holds timing information for the phases of the parametrization
// pass.
type PassStats struct {
	TotalTime       time.Duration
	MaterializeTime time.Duration
	ResolveTime     time.Duration
	RewriteTime     time.Duration

	ConversionsInserted int
	PartitionBoundaries int
}

// PrintPassStats prints a per-phase timing breakdown.
// Respects the Verbose flag - does nothing if Verbose is false.
func PrintPassStats(stats *PassStats) {
	if !Verbose {
		return
	}
	pct := func(d time.Duration) float64 {
		if stats.TotalTime == 0 {
			return 0
		}
		return float64(d) / float64(stats.TotalTime) * 100
	}
	fmt.Fprintln(Output, "\n=== PARAMETRIZATION STATISTICS ===")
	fmt.Fprintf(Output, "Total pass time: %v\n", stats.TotalTime)
	fmt.Fprintln(Output, "\nBreakdown by phase:")
	fmt.Fprintf(Output, "  Partition materialization: %v (%.1f%%)\n", stats.MaterializeTime, pct(stats.MaterializeTime))
	fmt.Fprintf(Output, "  Type resolution: %v (%.1f%%)\n", stats.ResolveTime, pct(stats.ResolveTime))
	fmt.Fprintf(Output, "  Conflict rewriting: %v (%.1f%%)\n", stats.RewriteTime, pct(stats.RewriteTime))
	fmt.Fprintln(Output, "\nWork done:")
	fmt.Fprintf(Output, "  Partition boundaries materialized: %d\n", stats.PartitionBoundaries)
	fmt.Fprintf(Output, "  Conversions inserted: %d\n", stats.ConversionsInserted)
}
