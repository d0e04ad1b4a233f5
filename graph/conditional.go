package graph

import (
	"context"
	"errors"
	"fmt"
)

// SwitchState is the per-execution state of a control-flow node.
//
//	Unevaluated -> Evaluating -> BranchFalseTaken | BranchTrueTaken
//
// The taken states are terminal for the node in that execution.
type SwitchState int

const (
	Unevaluated SwitchState = iota
	Evaluating
	BranchFalseTaken
	BranchTrueTaken
)

func (s SwitchState) String() string {
	switch s {
	case Unevaluated:
		return "unevaluated"
	case Evaluating:
		return "evaluating"
	case BranchFalseTaken:
		return "branch_false_taken"
	case BranchTrueTaken:
		return "branch_true_taken"
	default:
		return fmt.Sprintf("SwitchState(%d)", int(s))
	}
}

func takenState(branch int) SwitchState {
	if branch == 1 {
		return BranchTrueTaken
	}
	return BranchFalseTaken
}

// switchForm is the input shape of a Switch, resolved once per evaluation.
//
// In the scoped form input 0 is a scope whose terminal result is the
// predicate and input 1 is the payload. In the flat form input 0 is the
// payload and input 1 the predicate.
type switchForm struct {
	scoped    bool
	scope     int
	payload   Input
	predicate Input
}

func resolveSwitchForm(g *Graph, n *Node) (switchForm, error) {
	if len(n.Inputs) < 2 {
		return switchForm{}, fmt.Errorf("%w: switch %d needs 2 inputs, has %d", ErrTypeMismatch, n.ID, len(n.Inputs))
	}
	first, second := n.Inputs[0], n.Inputs[1]
	if second.IsScope() {
		return switchForm{}, fmt.Errorf("%w: switch %d input 1 is %s", ErrTypeMismatch, n.ID, second)
	}
	if first.IsScope() {
		if !g.HasScope(first.Scope) {
			return switchForm{}, fmt.Errorf("%w %d", ErrUnresolvedScope, first.Scope)
		}
		return switchForm{scoped: true, scope: first.Scope, payload: second}, nil
	}
	return switchForm{payload: first, predicate: second}, nil
}

// evalSwitch routes the payload to output slot 0 when the predicate is
// false and to slot 1 when it is true. Both slots are registered as pinned
// placeholders first; only the taken one is ever populated.
func (r *run) evalSwitch(ctx context.Context, n *Node) error {
	if b, marked := r.flow.BranchOf(n.ID); marked {
		return fmt.Errorf("%w %d (branch %d)", ErrReentrantMark, n.ID, b)
	}
	form, err := resolveSwitchForm(r.g, n)
	if err != nil {
		return err
	}

	r.setState(n.ID, Evaluating)
	r.space.Placeholder(VarID{Node: n.ID, Slot: 0})
	r.space.Placeholder(VarID{Node: n.ID, Slot: 1})

	var pred Value
	if form.scoped {
		s, err := r.runScope(ctx, form.scope)
		if err != nil {
			return err
		}
		pred, err = r.scopeResult(s)
		if errors.Is(err, errDeadResult) {
			return err
		}
		if err != nil {
			return fmt.Errorf("%w: scope %d has no result: %v", ErrTypeMismatch, s.ID, err)
		}
		r.e.logger.Debug().Int("node", n.ID).Int("scope", s.ID).Msg("switch in scoped mode")
	} else {
		pred, err = r.space.Value(form.predicate.VarID())
		if err != nil {
			return fmt.Errorf("%w: predicate missing: %v", ErrTypeMismatch, err)
		}
		r.e.logger.Debug().Int("node", n.ID).Msg("switch in flat mode")
	}

	taken, err := predicate(pred)
	if err != nil {
		return err
	}
	branch := 0
	if taken {
		branch = 1
	}

	src, err := r.space.Get(form.payload.VarID())
	if err != nil {
		return err
	}
	payload := src.Value()
	if payload == nil {
		return fmt.Errorf("%w: payload %s is a placeholder", ErrLookup, form.payload)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := r.flow.MarkBranch(n.ID, branch); err != nil {
		return err
	}
	if _, err := r.space.Put(VarID{Node: n.ID, Slot: branch}, payload, Pinned()); err != nil {
		return err
	}
	src.MarkRemovable(false)

	r.setState(n.ID, takenState(branch))
	r.branchTaken(n, branch)
	return nil
}

// evalMerge forwards the first live, populated input to output slot 0 and
// records its index as the node's branch.
func (r *run) evalMerge(ctx context.Context, n *Node) error {
	if b, marked := r.flow.BranchOf(n.ID); marked {
		return fmt.Errorf("%w %d (branch %d)", ErrReentrantMark, n.ID, b)
	}

	for i, in := range n.Inputs {
		if in.IsScope() {
			return fmt.Errorf("%w: merge %d input %d is %s", ErrTypeMismatch, n.ID, i, in)
		}
		if r.inputDead(n, in) {
			continue
		}
		src, err := r.space.Get(in.VarID())
		if err != nil || !src.HasValue() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := r.flow.MarkBranch(n.ID, i); err != nil {
			return err
		}
		if _, err := r.space.Put(VarID{Node: n.ID}, src.Value(), Pinned()); err != nil {
			return err
		}
		src.MarkRemovable(false)
		r.branchTaken(n, i)
		return nil
	}
	return fmt.Errorf("%w: merge %d has no live input", ErrLookup, n.ID)
}

// evalConditional is the structured if/else: input 0 is the condition
// scope, input 1 the body run when it is true and input 2 the body run when
// it is false. Only the chosen body executes; its result becomes output
// slot 0. If the chosen body's result was pruned, so is the Conditional;
// its branch mark stays recorded.
func (r *run) evalConditional(ctx context.Context, n *Node) error {
	if b, marked := r.flow.BranchOf(n.ID); marked {
		return fmt.Errorf("%w %d (branch %d)", ErrReentrantMark, n.ID, b)
	}
	if len(n.Inputs) != 3 {
		return fmt.Errorf("%w: conditional %d needs 3 scope inputs, has %d", ErrTypeMismatch, n.ID, len(n.Inputs))
	}
	for i, in := range n.Inputs {
		if !in.IsScope() {
			return fmt.Errorf("%w: conditional %d input %d is %s", ErrTypeMismatch, n.ID, i, in)
		}
		if !r.g.HasScope(in.Scope) {
			return fmt.Errorf("%w %d", ErrUnresolvedScope, in.Scope)
		}
	}

	r.setState(n.ID, Evaluating)
	r.space.Placeholder(VarID{Node: n.ID})

	cond, err := r.runScope(ctx, n.Inputs[0].Scope)
	if err != nil {
		return err
	}
	pred, err := r.scopeResult(cond)
	if errors.Is(err, errDeadResult) {
		return err
	}
	if err != nil {
		return fmt.Errorf("%w: scope %d has no result: %v", ErrTypeMismatch, cond.ID, err)
	}
	taken, err := predicate(pred)
	if err != nil {
		return err
	}
	branch := 0
	if taken {
		branch = 1
	}

	if err := r.flow.MarkBranch(n.ID, branch); err != nil {
		return err
	}
	r.setState(n.ID, takenState(branch))
	r.branchTaken(n, branch)

	body, err := r.runScope(ctx, n.Inputs[2-branch].Scope)
	if err != nil {
		return err
	}
	if !r.flow.IsActive(body.Terminal()) {
		return fmt.Errorf("%w: scope %d", errDeadResult, body.ID)
	}
	src, err := r.space.Get(VarID{Node: body.Terminal()})
	if err != nil {
		return err
	}
	result := src.Value()
	if result == nil {
		return fmt.Errorf("%w: scope %d has no result", ErrLookup, body.ID)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := r.space.Put(VarID{Node: n.ID}, result, Pinned()); err != nil {
		return err
	}
	src.MarkRemovable(false)
	return nil
}
