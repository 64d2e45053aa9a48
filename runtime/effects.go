package runtime

import (
	"context"

	"go.uber.org/multierr"
)

type effectsKey struct{}

type hook struct {
	do   func(context.Context) error
	undo func(context.Context) error
}

// effects collects work that must only happen once the transaction's account
// writes have been persisted.
type effects struct {
	hooks []hook
}

func withEffects(ctx context.Context) (context.Context, *effects) {
	e := &effects{}
	return context.WithValue(ctx, effectsKey{}, e), e
}

// AfterCommit runs fn once the current transaction's writes are persisted.
// It is dropped if the transaction fails. Outside a transaction fn runs
// immediately.
//
// If fn fails the transaction's writes are reverted, so fn must not leave
// partial results behind.
func AfterCommit(ctx context.Context, fn func(context.Context) error) error {
	return AfterCommitWithUndo(ctx, fn, nil)
}

// AfterCommitWithUndo is AfterCommit with an undo step. undo runs when a hook
// registered later in the same transaction fails.
func AfterCommitWithUndo(ctx context.Context, fn, undo func(context.Context) error) error {
	if e, ok := ctx.Value(effectsKey{}).(*effects); ok {
		e.hooks = append(e.hooks, hook{do: fn, undo: undo})
		return nil
	}
	return fn(ctx)
}

// run executes the hooks in order. On failure the hooks that already ran are
// undone, newest first.
func (e *effects) run(ctx context.Context) error {
	for i, h := range e.hooks {
		err := h.do(ctx)
		if err == nil {
			continue
		}
		for j := i - 1; j >= 0; j-- {
			if undo := e.hooks[j].undo; undo != nil {
				err = multierr.Append(err, undo(ctx))
			}
		}
		return err
	}
	return nil
}
