package rewrite

import (
	"fmt"
	"time"

	"github.com/RafLaf/concrete/infer"
	"github.com/RafLaf/concrete/optimizer"
	"github.com/RafLaf/concrete/tfhe"
	"github.com/RafLaf/concrete/utils"
)

// MaxSweeps bounds the resolver fixpoint; 0 derives the bound from the
// circuit size.
var MaxSweeps int

// Parametrize runs the full parametrization pass over one circuit:
// partition boundaries are materialized, every value's type is resolved
// against the circuit solution, and key conflicts are rewritten into
// explicit conversions.
//
// The pass either completes, leaving the circuit fully parametrized, or
// returns an error, in which case the circuit must be discarded: partially
// rewritten state is never usable by later stages. The solution may be nil
// when all types are determined by local constraints alone.
func Parametrize(c *tfhe.Circuit, solution *optimizer.CircuitSolution) error {
	return ParametrizeWithStats(c, solution, nil)
}

// ParametrizeWithStats is Parametrize with per-phase timing collection.
func ParametrizeWithStats(c *tfhe.Circuit, solution *optimizer.CircuitSolution, stats *utils.PassStats) error {
	if stats == nil {
		stats = &utils.PassStats{}
	}
	start := time.Now()

	var view *optimizer.SolutionView
	if solution != nil {
		view = optimizer.NewSolutionView(solution)
	}

	if view != nil {
		t := time.Now()
		n, err := MaterializePartitionBoundaries(c, view)
		if err != nil {
			return fmt.Errorf("materializing partition boundaries of %s: %w", c.Name, err)
		}
		stats.PartitionBoundaries = n
		stats.MaterializeTime = time.Since(t)
	}

	res := infer.NewResolver(view)
	res.MaxSweeps = MaxSweeps
	t := time.Now()
	state, err := res.Resolve(c)
	if err != nil {
		return fmt.Errorf("resolving types of %s: %w", c.Name, err)
	}
	if err := infer.CheckResolved(c, state); err != nil {
		return fmt.Errorf("after resolving %s: %w", c.Name, err)
	}
	stats.ResolveTime = time.Since(t)

	t = time.Now()
	rw := &Rewriter{Circuit: c, View: view, Resolver: res, State: state}
	if err := rw.Run(); err != nil {
		return fmt.Errorf("rewriting %s: %w", c.Name, err)
	}
	stats.RewriteTime = time.Since(t)
	stats.ConversionsInserted = rw.Conversions
	stats.TotalTime = time.Since(start)
	return nil
}
