package fusion

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/dataflow/internal/dominance"
	"github.com/roach88/dataflow/internal/ir"
	"github.com/roach88/dataflow/internal/rewrite"
)

// PhaseFiring is a rewrite firing tagged with the phase that produced it
// and the number of task nodes right after it.
type PhaseFiring struct {
	Phase int
	rewrite.Firing
	Tasks int
}

// PhaseReport is the driver result of one phase.
type PhaseReport struct {
	Phase      int  `json:"phase"`
	Converged  bool `json:"converged"`
	Iterations int  `json:"iterations"`
	Rewrites   int  `json:"rewrites"`
	Erased     int  `json:"erased"`
}

// Report describes one run of the pass over a function.
type Report struct {
	Func              string        `json:"func"`
	FingerprintBefore string        `json:"fingerprint_before"`
	FingerprintAfter  string        `json:"fingerprint_after"`
	Phases            []PhaseReport `json:"phases"`
	Stats             Stats         `json:"stats"`
}

// Converged reports whether every phase reached a fixpoint.
func (r *Report) Converged() bool {
	for _, ph := range r.Phases {
		if !ph.Converged {
			return false
		}
	}
	return true
}

type options struct {
	cfg      Config
	logger   *slog.Logger
	onFiring func(PhaseFiring)
	seq      rewrite.SeqSource
	oracle   dominance.Oracle
}

// Option configures Run.
type Option func(*options)

// WithConfig replaces DefaultConfig.
func WithConfig(cfg Config) Option {
	return func(o *options) { o.cfg = cfg }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithFiringListener is called after every firing of every phase.
func WithFiringListener(fn func(PhaseFiring)) Option {
	return func(o *options) { o.onFiring = fn }
}

// WithSeqSource sets the clock stamping firings. One clock is shared by
// all phases.
func WithSeqSource(s rewrite.SeqSource) Option {
	return func(o *options) { o.seq = s }
}

// WithOracle overrides the dominance oracle built from the function.
func WithOracle(d dominance.Oracle) Option {
	return func(o *options) { o.oracle = d }
}

// Run converts the body of fn into a dataflow graph: it clusters compute
// operations into task nodes phase by phase and wraps the result in a
// schedule.
//
// Run returns an error only for an invalid configuration, a cancelled
// context or a runaway rewrite. A phase that does not converge is logged
// and reported but does not stop the pass.
func Run(ctx context.Context, fn *ir.Func, opts ...Option) (*Report, error) {
	o := options{cfg: DefaultConfig()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.seq == nil {
		o.seq = rewrite.NewClock()
	}
	if o.oracle == nil {
		o.oracle = dominance.New(fn)
	}
	if err := o.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid fusion config: %w", err)
	}

	before, err := ir.Fingerprint(fn)
	if err != nil {
		return nil, fmt.Errorf("fingerprint %s: %w", fn.Name, err)
	}
	report := &Report{Func: fn.Name, FingerprintBefore: before}

	o.logger.Info("dataflow pass starting", "func", fn.Name, "phases", len(o.cfg.Phases))

	for i := range o.cfg.Phases {
		phase := i + 1
		driverOpts := []rewrite.Option{
			rewrite.WithDeadOpErasure(true),
			rewrite.WithSeqSource(o.seq),
			rewrite.WithLogger(o.logger.With("phase", phase)),
		}
		if o.cfg.MaxIterations > 0 {
			driverOpts = append(driverOpts, rewrite.WithMaxIterations(o.cfg.MaxIterations))
		}
		if o.onFiring != nil {
			driverOpts = append(driverOpts, rewrite.WithListener(func(f rewrite.Firing) {
				o.onFiring(PhaseFiring{Phase: phase, Firing: f, Tasks: countTasks(fn)})
			}))
		}

		res, err := rewrite.ApplyGreedily(ctx, fn, o.cfg.patterns(i, o.oracle), driverOpts...)
		if err != nil {
			return nil, fmt.Errorf("phase %d: %w", phase, err)
		}
		if !res.Converged {
			o.logger.Warn("phase did not converge",
				"func", fn.Name,
				"phase", phase,
				"iterations", res.Iterations,
			)
		}
		report.Phases = append(report.Phases, PhaseReport{
			Phase:      phase,
			Converged:  res.Converged,
			Iterations: res.Iterations,
			Rewrites:   res.Rewrites,
			Erased:     res.Erased,
		})
	}

	WrapWithSchedule(fn.Entry())

	after, err := ir.Fingerprint(fn)
	if err != nil {
		return nil, fmt.Errorf("fingerprint %s: %w", fn.Name, err)
	}
	report.FingerprintAfter = after
	report.Stats = CollectStats(fn)

	o.logger.Info("dataflow pass finished",
		"func", fn.Name,
		"tasks", report.Stats.Tasks,
		"unclustered", report.Stats.Unclustered,
		"converged", report.Converged(),
	)
	return report, nil
}
