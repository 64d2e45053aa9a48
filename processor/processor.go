// Package processor is the counter program: it decodes instructions and
// dispatches them to the counter logic or the delegation controller.
package processor

import (
	"context"
	"time"

	"github.com/rollkit/ephemeral-counter/bridge"
	"github.com/rollkit/ephemeral-counter/delegation"
	"github.com/rollkit/ephemeral-counter/instruction"
	"github.com/rollkit/ephemeral-counter/log"
	"github.com/rollkit/ephemeral-counter/system"
	"github.com/rollkit/ephemeral-counter/types"
)

// Processor executes counter program instructions.
type Processor struct {
	controller *delegation.Controller
	rent       system.Rent
	logger     log.Logger
	metrics    *Metrics
}

// Option configures a Processor.
type Option func(*Processor)

// WithRent overrides the default rent parameters.
func WithRent(r system.Rent) Option {
	return func(p *Processor) { p.rent = r }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *Metrics) Option {
	return func(p *Processor) { p.metrics = m }
}

// NewProcessor creates a Processor that delegates through b.
func NewProcessor(b bridge.Bridge, logger log.Logger, opts ...Option) *Processor {
	p := &Processor{
		controller: delegation.NewController(b, logger),
		rent:       system.DefaultRent(),
		logger:     logger,
		metrics:    NopMetrics(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process decodes data and runs the resulting command against accounts.
// On error the caller must discard every change made to accounts.
func (p *Processor) Process(ctx context.Context, program types.Pubkey, accounts []*types.Account, data []byte) (err error) {
	p.logger.Debug("process_instruction", "program", program, "accounts", len(accounts), "data", data)

	cmd, err := instruction.Decode(data)
	if err != nil {
		p.metrics.Instructions.With("instruction", "unknown", "result", resultLabel(err)).Add(1)
		return err
	}

	start := time.Now()
	defer func() {
		p.metrics.Instructions.With("instruction", cmd.Name(), "result", resultLabel(err)).Add(1)
		p.metrics.ProcessingTime.With("instruction", cmd.Name()).Observe(time.Since(start).Seconds())
	}()

	p.logger.Info("Instruction: " + cmd.Name())
	switch c := cmd.(type) {
	case instruction.InitializeCounter:
		return p.initializeCounter(program, accounts)
	case instruction.IncreaseCounter:
		return p.increaseCounter(program, accounts, c.IncreaseBy)
	case instruction.Delegate:
		return p.controller.Delegate(ctx, program, accounts)
	case instruction.CommitAndUndelegate:
		return p.controller.CommitAndUndelegate(ctx, program, accounts)
	case instruction.Commit:
		return p.controller.Commit(ctx, program, accounts)
	case instruction.Undelegate:
		return p.controller.Undelegate(ctx, program, accounts, c.PDASeeds)
	default:
		return types.ErrInvalidInstructionData
	}
}
