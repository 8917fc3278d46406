package txn

import (
	"context"
	"fmt"
	"time"

	"github.com/ValentinKolb/dRec/lib/store"
	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("txn")

const (
	opCreate = "create"
	opDelete = "delete"
)

// DefaultMaxAttempts is the number of commit attempts before giving up
const DefaultMaxAttempts = 3

// Options configures the engine
type Options struct {
	// MaxAttempts bounds the number of commit attempts of one call (0 = DefaultMaxAttempts)
	MaxAttempts int
	// Timeout bounds the whole retry loop of one call (0 = only the caller's context)
	Timeout time.Duration
}

// DefaultOptions returns the default engine options
func DefaultOptions() *Options {
	return &Options{
		MaxAttempts: DefaultMaxAttempts,
	}
}

func (o *Options) String() string {
	return fmt.Sprintf("max attempts: %d, timeout: %s", o.MaxAttempts, o.Timeout)
}

// Engine performs conditional writes with optimistic concurrency control
type Engine struct {
	watcher Watcher
	opts    Options
}

// NewEngine creates an engine on top of the watch primitive of a store.
// If opts is nil, DefaultOptions is used.
func NewEngine(w Watcher, opts *Options) *Engine {
	if opts == nil {
		opts = DefaultOptions()
	}
	o := *opts
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	return &Engine{watcher: w, opts: o}
}

// CreateIfAbsent stores fields under key if the key does not exist.
//
// Returns:
//   - true, nil if the hash was created
//   - false, nil if every attempt was refused because of concurrent writers
//   - false, ErrAlreadyExists if the key exists
//   - false, ErrTransactionFailure on any other failure (including an expired context)
func (e *Engine) CreateIfAbsent(ctx context.Context, key string, fields map[string]string) (bool, error) {
	if len(fields) == 0 {
		return false, store.NewError(store.RetCInvalidOperation, "cannot create an empty hash")
	}
	s := newSession(opCreate, key, false, store.HSetAllCommand(key, fields), e.opts.MaxAttempts)
	return e.execute(ctx, s)
}

// DeleteIfPresent deletes key if it exists.
//
// Returns:
//   - true, nil if the key was deleted
//   - false, nil if every attempt was refused because of concurrent writers
//   - false, ErrNotFound if the key does not exist
//   - false, ErrTransactionFailure on any other failure (including an expired context)
func (e *Engine) DeleteIfPresent(ctx context.Context, key string) (bool, error) {
	s := newSession(opDelete, key, true, store.DelCommand(key), e.opts.MaxAttempts)
	return e.execute(ctx, s)
}

func (e *Engine) execute(ctx context.Context, s *session) (bool, error) {
	if e.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.Timeout)
		defer cancel()
	}

	start := time.Now()
	ok, err := run(ctx, e.watcher, s)
	observe(s, ok, err, start)
	return ok, err
}

// --------------------------------------------------------------------------
// Metrics
// --------------------------------------------------------------------------

// outcome names the result of a session for the metrics
func outcome(ok bool, err error) string {
	switch {
	case ok:
		return "done"
	case err == nil:
		return "exhausted"
	default:
		switch store.CodeOf(err) {
		case store.RetCAlreadyExists:
			return "already_exists"
		case store.RetCNotFound:
			return "not_found"
		case store.RetCInvalidOperation:
			return "invalid"
		default:
			return "failed"
		}
	}
}

func observe(s *session, ok bool, err error, start time.Time) {
	metrics.GetOrCreateCounter(fmt.Sprintf(`drec_tx_total{op=%q,outcome=%q}`, s.op, outcome(ok, err))).Inc()
	if s.conflicts > 0 {
		metrics.GetOrCreateCounter(fmt.Sprintf(`drec_tx_conflicts_total{op=%q}`, s.op)).Add(s.conflicts)
	}
	metrics.GetOrCreateHistogram(fmt.Sprintf(`drec_tx_duration_seconds{op=%q}`, s.op)).UpdateDuration(start)

	if err != nil {
		log.Debugf("tx %s: %s %s failed after %d attempt(s): %v", s.id, s.op, s.key, s.attempts, err)
	}
}
