package rewrite

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/dataflow/internal/ir"
)

// Default driver limits.
const (
	DefaultMaxIterations = 10
	DefaultMaxRewrites   = 100000
)

// ErrRewriteLimit is returned when a single ApplyGreedily call performs more
// rewrites than allowed, which indicates patterns that undo each other.
var ErrRewriteLimit = errors.New("rewrite limit exceeded")

// Firing records one successful pattern application.
type Firing struct {
	Seq      int64
	Pattern  string
	RootKind string
}

// Result summarises an ApplyGreedily run.
type Result struct {
	Converged  bool
	Iterations int
	Rewrites   int
	Erased     int
}

type config struct {
	maxIterations int
	maxRewrites   int
	eraseDead     bool
	onFiring      func(Firing)
	seq           SeqSource
	logger        *slog.Logger
}

// Option configures ApplyGreedily.
type Option func(*config)

// WithMaxIterations bounds the number of full worklist iterations.
func WithMaxIterations(n int) Option {
	return func(c *config) { c.maxIterations = n }
}

// WithMaxRewrites bounds the total number of pattern firings.
func WithMaxRewrites(n int) Option {
	return func(c *config) { c.maxRewrites = n }
}

// WithDeadOpErasure erases unused constants as they are encountered.
func WithDeadOpErasure(enabled bool) Option {
	return func(c *config) { c.eraseDead = enabled }
}

// WithListener registers a callback invoked after every firing.
func WithListener(fn func(Firing)) Option {
	return func(c *config) { c.onFiring = fn }
}

// WithSeqSource sets the source of firing sequence numbers.
// Share one source across runs to keep sequence numbers monotonic.
func WithSeqSource(s SeqSource) Option {
	return func(c *config) { c.seq = s }
}

// WithLogger sets the logger; firings are logged at debug level.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// driver holds the worklist for one ApplyGreedily call.
type driver struct {
	cfg      config
	set      *PatternSet
	queue    []*ir.Operation
	queued   map[*ir.Operation]bool
	erased   map[*ir.Operation]bool
	rewriter *Rewriter
	result   Result
}

// ApplyGreedily applies the patterns of set to fn until no pattern fires
// anywhere, or until the iteration limit is reached.
//
// The returned error is non-nil only when ctx is cancelled or the rewrite
// limit is hit; failing to converge within MaxIterations is reported
// through Result.Converged.
func ApplyGreedily(ctx context.Context, fn *ir.Func, set *PatternSet, opts ...Option) (Result, error) {
	cfg := config{
		maxIterations: DefaultMaxIterations,
		maxRewrites:   DefaultMaxRewrites,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.seq == nil {
		cfg.seq = NewClock()
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}

	d := &driver{
		cfg:    cfg,
		set:    set,
		erased: make(map[*ir.Operation]bool),
	}
	d.rewriter = &Rewriter{listener: d}

	for d.result.Iterations < cfg.maxIterations {
		d.result.Iterations++
		changed, err := d.iterate(ctx, fn)
		if err != nil {
			return d.result, err
		}
		if !changed {
			d.result.Converged = true
			break
		}
	}

	cfg.logger.Debug("greedy rewrite finished",
		"func", fn.Name,
		"converged", d.result.Converged,
		"iterations", d.result.Iterations,
		"rewrites", d.result.Rewrites,
		"erased", d.result.Erased,
	)
	return d.result, nil
}

// iterate seeds the worklist with every live operation and drains it.
func (d *driver) iterate(ctx context.Context, fn *ir.Func) (bool, error) {
	d.queue = d.queue[:0]
	d.queued = make(map[*ir.Operation]bool)
	fn.Walk(d.push)

	changed := false
	for len(d.queue) > 0 {
		if err := ctx.Err(); err != nil {
			return changed, fmt.Errorf("greedy rewrite of %s: %w", fn.Name, err)
		}

		op := d.queue[0]
		d.queue[0] = nil
		d.queue = d.queue[1:]
		delete(d.queued, op)

		if d.erased[op] || op.Block() == nil {
			continue
		}

		if d.cfg.eraseDead && ir.IsTriviallyDead(op) {
			d.rewriter.Erase(op)
			d.result.Erased++
			changed = true
			continue
		}

		for _, p := range d.set.forKind(op.Kind()) {
			kind := op.Kind()
			if !p.MatchAndRewrite(op, d.rewriter) {
				continue
			}
			changed = true
			d.result.Rewrites++
			firing := Firing{Seq: d.cfg.seq.Next(), Pattern: p.Name(), RootKind: kind}
			d.cfg.logger.Debug("pattern applied",
				"pattern", firing.Pattern,
				"root", firing.RootKind,
				"seq", firing.Seq,
			)
			if d.cfg.onFiring != nil {
				d.cfg.onFiring(firing)
			}
			if d.result.Rewrites > d.cfg.maxRewrites {
				return changed, fmt.Errorf("greedy rewrite of %s: %w (%d)", fn.Name, ErrRewriteLimit, d.cfg.maxRewrites)
			}
			break
		}
	}
	return changed, nil
}

func (d *driver) push(op *ir.Operation) {
	if op == nil || d.queued[op] || d.erased[op] {
		return
	}
	d.queued[op] = true
	d.queue = append(d.queue, op)
}

// pushNeighbours enqueues op, the producers of its operands and the users
// of its results.
func (d *driver) pushNeighbours(op *ir.Operation) {
	d.push(op)
	for _, v := range op.OperandValues() {
		if v != nil {
			d.push(v.DefiningOp())
		}
	}
	for _, user := range op.Users() {
		d.push(user)
	}
}

func (d *driver) notifyCreated(op *ir.Operation) {
	d.pushNeighbours(op)
}

func (d *driver) notifyModified(op *ir.Operation) {
	d.pushNeighbours(op)
}

func (d *driver) notifyErased(op *ir.Operation) {
	d.erased[op] = true
}
