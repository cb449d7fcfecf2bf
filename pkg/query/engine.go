// Package query answers "first block in [from, to] holding an event" over a
// chain index, either block by block or by jumping over skip ladder windows
// whose filters rule the event out.
package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/0xmhha/skipindex-go/internal/logger"
	"github.com/0xmhha/skipindex-go/pkg/event"
	"github.com/0xmhha/skipindex-go/pkg/skip"
	"github.com/0xmhha/skipindex-go/pkg/storage"
)

// DefaultSaturationThreshold is the fill ratio at which a merged filter is
// not trusted for jumping.
const DefaultSaturationThreshold = 0.5

// Config tunes the jump search
type Config struct {
	// SaturationThreshold disables levels above 0 whose filter has this
	// fraction of bits set, or more. Must be in (0, 1].
	SaturationThreshold float64 `yaml:"saturation_threshold"`

	// MaxLevel caps the ladder level used for jumps. 0 means no cap.
	MaxLevel int `yaml:"max_level"`
}

// DefaultConfig returns the default search configuration
func DefaultConfig() Config {
	return Config{SaturationThreshold: DefaultSaturationThreshold}
}

// Validate validates the configuration
func (c Config) Validate() error {
	if c.SaturationThreshold <= 0 || c.SaturationThreshold > 1 {
		return fmt.Errorf("saturation threshold must be in (0, 1], got %v", c.SaturationThreshold)
	}
	if c.MaxLevel < 0 {
		return fmt.Errorf("max level cannot be negative, got %d", c.MaxLevel)
	}
	return nil
}

// Engine runs searches over an index and its event storage. It keeps no
// per-query state and is safe for concurrent use.
type Engine struct {
	index   IndexReader
	events  EventReader
	cfg     Config
	logger  *zap.Logger
	metrics *Metrics
}

// Option configures an Engine
type Option func(*Engine)

// WithLogger sets the engine logger
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMetrics records every query in m
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// NewEngine creates a search engine
func NewEngine(index IndexReader, events EventReader, cfg Config, opts ...Option) (*Engine, error) {
	if index == nil || events == nil {
		return nil, fmt.Errorf("index and event storage are required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid query config: %w", err)
	}

	e := &Engine{
		index:  index,
		events: events,
		cfg:    cfg,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = logger.WithComponent(e.logger, logger.ComponentQuery)
	return e, nil
}

// Config returns the engine configuration
func (e *Engine) Config() Config {
	return e.cfg
}

// FindFirst returns the first block in [from, to] holding ev. Each visited
// block tests the widest usable ladder level: a miss skips the whole
// window, a hit narrows to the next level down until a single block is
// confirmed against storage. IO errors are returned with the partial Result.
func (e *Engine) FindFirst(ctx context.Context, from, to uint64, ev event.Event, m Membership) (res Result, err error) {
	start := time.Now()
	res = Result{ID: NotFound}
	defer func() { e.finish(StrategySkip, from, to, res, err, time.Since(start)) }()

	n, err := e.checkRange(ctx, from, to)
	if err != nil || n == 0 {
		return res, err
	}

	cursor := from
	for cursor <= to {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		rec, err := e.index.Get(ctx, cursor)
		if err != nil {
			return res, fmt.Errorf("failed to read index block %d: %w", cursor, err)
		}
		res.Count++

		level := MaxJump(rec, cursor, to, e.cfg)
		for {
			if !m.Test(rec.Skip.Entry(level), ev) {
				if level > 0 {
					res.Jumps++
				}
				cursor += skip.Window(level)
				break
			}
			if level > 0 {
				level--
				continue
			}

			found, err := e.confirm(ctx, cursor, ev, &res)
			if err != nil {
				return res, err
			}
			if found {
				res.ID = cursor
				return res, nil
			}
			res.FalsePositives++
			cursor++
			break
		}
	}
	return res, nil
}

// LinearSearch returns the first block in [from, to] holding ev by testing
// every block filter in turn.
func (e *Engine) LinearSearch(ctx context.Context, from, to uint64, ev event.Event, m Membership) (res Result, err error) {
	start := time.Now()
	res = Result{ID: NotFound}
	defer func() { e.finish(StrategyLinear, from, to, res, err, time.Since(start)) }()

	n, err := e.checkRange(ctx, from, to)
	if err != nil || n == 0 {
		return res, err
	}

	for block := from; block <= to; block++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		rec, err := e.index.Get(ctx, block)
		if err != nil {
			return res, fmt.Errorf("failed to read index block %d: %w", block, err)
		}
		res.Count++

		if !m.Test(rec.Filter, ev) {
			continue
		}
		found, err := e.confirm(ctx, block, ev, &res)
		if err != nil {
			return res, err
		}
		if found {
			res.ID = block
			return res, nil
		}
		res.FalsePositives++
	}
	return res, nil
}

// Compare runs both strategies on the same query
func (e *Engine) Compare(ctx context.Context, from, to uint64, ev event.Event, m Membership) (Comparison, error) {
	var (
		cmp Comparison
		err error
	)

	start := time.Now()
	cmp.Linear, err = e.LinearSearch(ctx, from, to, ev, m)
	cmp.LinearTime = time.Since(start)
	if err != nil {
		return cmp, fmt.Errorf("linear search: %w", err)
	}

	start = time.Now()
	cmp.Skip, err = e.FindFirst(ctx, from, to, ev, m)
	cmp.SkipTime = time.Since(start)
	if err != nil {
		return cmp, fmt.Errorf("skip search: %w", err)
	}

	if !cmp.Agree() {
		e.logger.Error("search strategies disagree",
			zap.Uint64("from", from),
			zap.Uint64("to", to),
			zap.Stringer("event", ev),
			zap.Uint64("linear", cmp.Linear.ID),
			zap.Uint64("skip", cmp.Skip.ID),
		)
	}
	return cmp, nil
}

// MaxJump returns the highest ladder level of rec usable at cursor: its
// window must end at or before to, its filter must be below the saturation
// threshold and it must not exceed cfg.MaxLevel. Level 0 is always usable.
func MaxJump(rec *skip.BlockIndex, cursor, to uint64, cfg Config) int {
	top := rec.Skip.NumEntries() - 1
	if cfg.MaxLevel > 0 && cfg.MaxLevel < top {
		top = cfg.MaxLevel
	}
	for level := top; level > 0; level-- {
		if skip.Window(level)-1 > to-cursor {
			continue
		}
		if rec.Skip.Entry(level).Saturation() >= cfg.SaturationThreshold {
			continue
		}
		return level
	}
	return 0
}

// checkRange validates [from, to] and returns the number of indexed blocks
func (e *Engine) checkRange(ctx context.Context, from, to uint64) (uint64, error) {
	if from > to {
		return 0, fmt.Errorf("%w: from %d is after to %d", ErrInvalidRange, from, to)
	}
	n, err := e.index.Len(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read index length: %w", err)
	}
	if n == 0 {
		return 0, nil
	}
	if to >= n {
		return 0, fmt.Errorf("%w: to %d, index holds %d blocks: %w", ErrInvalidRange, to, n, storage.ErrOutOfRange)
	}
	return n, nil
}

// confirm checks the exact event set of a block
func (e *Engine) confirm(ctx context.Context, block uint64, ev event.Event, res *Result) (bool, error) {
	set, err := e.events.Get(ctx, block)
	if err != nil {
		return false, fmt.Errorf("failed to read events of block %d: %w", block, err)
	}
	res.StorageReads++
	return set.Contains(ev), nil
}

func (e *Engine) finish(strategy string, from, to uint64, res Result, err error, elapsed time.Duration) {
	e.metrics.observe(strategy, res, err, elapsed)

	if err != nil && !errors.Is(err, ErrInvalidRange) && !errors.Is(err, context.Canceled) {
		e.logger.Warn("query failed",
			zap.String("strategy", strategy),
			zap.Uint64("from", from),
			zap.Uint64("to", to),
			zap.Int("count", res.Count),
			zap.Error(err),
		)
		return
	}
	e.logger.Debug("query finished",
		zap.String("strategy", strategy),
		zap.Uint64("from", from),
		zap.Uint64("to", to),
		zap.Uint64("id", res.ID),
		zap.Int("count", res.Count),
		zap.Int("storageReads", res.StorageReads),
		zap.Int("falsePositives", res.FalsePositives),
		zap.Int("jumps", res.Jumps),
		zap.Duration("elapsed", elapsed),
	)
}
