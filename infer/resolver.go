package infer

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/RafLaf/concrete/optimizer"
	"github.com/RafLaf/concrete/tfhe"
)

// ErrNoConvergence is returned when the fixpoint does not settle within the
// iteration bound. The type lattice has finite height, so this indicates an
// internal bug rather than bad input.
var ErrNoConvergence = errors.New("type resolution did not converge")

// Resolver runs the dataflow type analysis for one circuit.
type Resolver struct {
	// View is the read-only circuit solution, or nil when every type is
	// determined by local constraints alone.
	View *optimizer.SolutionView

	// MaxSweeps bounds the fixpoint; 0 selects a bound derived from the
	// circuit size.
	MaxSweeps int
}

// NewResolver returns a resolver over the given solution view.
func NewResolver(view *optimizer.SolutionView) *Resolver {
	return &Resolver{View: view}
}

// blockOrder returns the operations of b in a stable topological order:
// def-use edges are respected and ties are broken by creation id, so the
// traversal is reproducible across runs.
func blockOrder(b *tfhe.Block) ([]*tfhe.Operation, error) {
	g := simple.NewDirectedGraph()
	members := make(map[*tfhe.Operation]bool, len(b.Ops))
	for _, op := range b.Ops {
		g.AddNode(op)
		members[op] = true
	}
	for _, op := range b.Ops {
		for _, v := range op.Operands {
			if def := v.DefiningOp(); def != nil && def != op && members[def] {
				g.SetEdge(g.NewEdge(def, op))
			}
		}
	}
	nodes, err := topo.SortStabilized(g, nil)
	if err != nil {
		return nil, fmt.Errorf("operation graph is not a DAG: %w", err)
	}
	out := make([]*tfhe.Operation, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.(*tfhe.Operation))
	}
	return out, nil
}

// circuitOrder flattens the circuit into a stable traversal order, each
// loop's body following the loop operation itself.
func circuitOrder(c *tfhe.Circuit) ([]*tfhe.Operation, error) {
	var expand func(b *tfhe.Block) ([]*tfhe.Operation, error)
	expand = func(b *tfhe.Block) ([]*tfhe.Operation, error) {
		ordered, err := blockOrder(b)
		if err != nil {
			return nil, err
		}
		var out []*tfhe.Operation
		for _, op := range ordered {
			out = append(out, op)
			if op.Body != nil {
				nested, err := expand(op.Body)
				if err != nil {
					return nil, err
				}
				out = append(out, nested...)
			}
		}
		return out, nil
	}
	return expand(c.Body)
}

// Resolve computes the converged type assignment for every value of c.
// Resolution is monotone: a field moves at most once from unresolved to a
// concrete value, and two neighboring operations pinned to different keys by
// the solver simply keep their disagreement (the rewriter resolves it with a
// conversion).
func (r *Resolver) Resolve(c *tfhe.Circuit) (State, error) {
	order, err := circuitOrder(c)
	if err != nil {
		return nil, err
	}

	// Validate the kind table up front so an unsupported kind fails even if
	// its constraints would never fire.
	for _, op := range order {
		if _, err := opConstraints(op); err != nil {
			return nil, err
		}
	}

	state := State{}
	if err := pinArguments(state, r.View, c); err != nil {
		return nil, err
	}

	// Solver pins are authoritative. Apply them all before any structural
	// propagation, so a neighboring operation's unification cannot claim a
	// slot the solver fixes to a different key.
	for _, op := range order {
		if _, err := pinOperation(state, r.View, op); err != nil {
			return nil, err
		}
	}

	maxSweeps := r.MaxSweeps
	if maxSweeps == 0 {
		maxSweeps = 2*len(order) + 16
	}

	for sweep := 0; ; sweep++ {
		if sweep >= maxSweeps {
			return nil, fmt.Errorf("%w after %d sweeps over %s", ErrNoConvergence, sweep, c.Name)
		}
		changed := false
		for _, op := range order {
			pairs, _ := opConstraints(op)
			for _, p := range pairs {
				if unify(state, p.a, p.b) {
					changed = true
				}
			}
		}
		if !changed {
			return state, nil
		}
	}
}

// RequiredOperandTypes recomputes, from the converged state, the operand
// types the operation itself demands: operand slots start with their key
// identity erased and are re-derived from the operation's solver pins and
// structural constraints. A slot that stays unresolved has no requirement of
// its own and falls back to the producer's resolved type. The rewriter turns
// any difference between requirement and producer type into a conversion.
func (r *Resolver) RequiredOperandTypes(op *tfhe.Operation, state State) ([]tfhe.Type, error) {
	local := State{}
	for _, v := range op.Operands {
		local[v] = eraseElemKey(state.TypeOf(v))
	}
	seed := func(vs []*tfhe.Value) {
		for _, v := range vs {
			if _, ok := local[v]; !ok {
				local[v] = state.TypeOf(v)
			}
		}
	}
	seed(op.Results())
	if op.Body != nil {
		seed(op.Body.Args)
		if term := op.Body.Terminator(); term != nil {
			seed(term.Operands)
		}
	}

	pairs, err := opConstraints(op)
	if err != nil {
		return nil, err
	}
	// Yield operands are tied to the enclosing loop's results.
	if op.Kind == tfhe.KindYield && op.Parent() != nil {
		parent := op.Parent()
		seed(parent.Results())
		for i, v := range op.Operands {
			if i < len(parent.Results()) {
				pairs = append(pairs, pair{v, parent.Result(i)})
			}
		}
	}

	// Local fixpoint: pin first, then the structural pairs, until stable.
	for i := 0; ; i++ {
		if i > len(pairs)+8 {
			return nil, fmt.Errorf("%w: local constraints of %s", ErrNoConvergence, op)
		}
		changed := false
		pinned, err := pinOperation(local, r.View, op)
		if err != nil {
			return nil, err
		}
		if pinned {
			changed = true
		}
		for _, p := range pairs {
			if unify(local, p.a, p.b) {
				changed = true
			}
		}
		if !changed {
			break
		}
	}

	out := make([]tfhe.Type, len(op.Operands))
	for i, v := range op.Operands {
		t := local.TypeOf(v)
		if tfhe.IsUnresolved(t) {
			t = state.TypeOf(v)
		}
		out[i] = t
	}
	return out, nil
}

// CheckResolved verifies that no value of the circuit retains an unresolved
// ciphertext type under the given state.
func CheckResolved(c *tfhe.Circuit, state State) error {
	check := func(v *tfhe.Value, where string) error {
		if tfhe.IsUnresolved(state.TypeOf(v)) {
			return fmt.Errorf("%s: %s still has unresolved type %s", where, v, state.TypeOf(v))
		}
		return nil
	}
	for _, arg := range c.Body.Args {
		if err := check(arg, "argument of "+c.Name); err != nil {
			return err
		}
	}
	return c.Walk(func(_ *tfhe.Block, op *tfhe.Operation) error {
		for _, v := range op.Results() {
			if err := check(v, op.String()); err != nil {
				return err
			}
		}
		if op.Body != nil {
			for _, v := range op.Body.Args {
				if err := check(v, op.String()); err != nil {
					return err
				}
			}
		}
		return nil
	})
}
