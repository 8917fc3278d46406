package txn

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValentinKolb/dRec/lib/store"
	"github.com/ValentinKolb/dRec/lib/store/lstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --------------------------------------------------------------------------
// Scripted store
// --------------------------------------------------------------------------

// scriptedWatcher wraps a real store and lets tests inject behavior into the
// watched window of every attempt.
type scriptedWatcher struct {
	store.IStore

	refuse      int   // number of commits to refuse with a watch conflict
	commitErr   error // returned by every commit if set
	existsErr   error // returned by every exists if set
	beforeCheck func(ctx context.Context) error

	watches atomic.Int32
	commits atomic.Int32
}

func (w *scriptedWatcher) Watch(ctx context.Context, fn func(tx store.ITx) error, keys ...string) error {
	w.watches.Add(1)
	return w.IStore.Watch(ctx, func(tx store.ITx) error {
		return fn(&scriptedTx{ITx: tx, w: w})
	}, keys...)
}

type scriptedTx struct {
	store.ITx
	w *scriptedWatcher
}

func (tx *scriptedTx) Exists(ctx context.Context, key string) (bool, error) {
	if tx.w.beforeCheck != nil {
		if err := tx.w.beforeCheck(ctx); err != nil {
			return false, err
		}
	}
	if tx.w.existsErr != nil {
		return false, tx.w.existsErr
	}
	return tx.ITx.Exists(ctx, key)
}

func (tx *scriptedTx) Commit(ctx context.Context, cmds []store.Command) (int, error) {
	n := tx.w.commits.Add(1)
	if tx.w.commitErr != nil {
		return 0, tx.w.commitErr
	}
	if int(n) <= tx.w.refuse {
		return 0, store.ErrWatchConflict
	}
	return tx.ITx.Commit(ctx, cmds)
}

var fields = map[string]string{"name": "Alice", "category": "eng", "measure": "50000"}

// --------------------------------------------------------------------------
// Tests
// --------------------------------------------------------------------------

func TestCreateIfAbsent(t *testing.T) {
	s := lstore.NewLocalStore()
	e := NewEngine(s, nil)
	ctx := context.Background()

	ok, err := e.CreateIfAbsent(ctx, "record:1", fields)
	require.NoError(t, err)
	assert.True(t, ok)

	stored, err := s.HGetAll(ctx, "record:1")
	require.NoError(t, err)
	assert.Equal(t, fields, stored)
}

func TestCreateIfAbsentAlreadyExists(t *testing.T) {
	s := lstore.NewLocalStore()
	e := NewEngine(s, nil)
	ctx := context.Background()

	_, err := e.CreateIfAbsent(ctx, "record:1", fields)
	require.NoError(t, err)

	ok, err := e.CreateIfAbsent(ctx, "record:1", map[string]string{"name": "Mallory", "category": "x", "measure": "1"})
	assert.False(t, ok)
	assert.ErrorIs(t, err, store.ErrAlreadyExists)

	stored, err := s.HGetAll(ctx, "record:1")
	require.NoError(t, err)
	assert.Equal(t, fields, stored, "failed create must not change the record")
}

func TestCreateIfAbsentEmptyFields(t *testing.T) {
	e := NewEngine(lstore.NewLocalStore(), nil)
	_, err := e.CreateIfAbsent(context.Background(), "record:1", nil)
	assert.ErrorIs(t, err, store.ErrInvalidOperation)
}

func TestDeleteIfPresent(t *testing.T) {
	s := lstore.NewLocalStore()
	e := NewEngine(s, nil)
	ctx := context.Background()

	ok, err := e.DeleteIfPresent(ctx, "record:1")
	assert.False(t, ok)
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.HSetAll(ctx, "record:1", fields))

	ok, err = e.DeleteIfPresent(ctx, "record:1")
	require.NoError(t, err)
	assert.True(t, ok)

	exists, err := s.Exists(ctx, "record:1")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRetryBoundExhausted(t *testing.T) {
	w := &scriptedWatcher{IStore: lstore.NewLocalStore(), refuse: 3}
	e := NewEngine(w, nil)

	ok, err := e.CreateIfAbsent(context.Background(), "record:1", fields)
	assert.NoError(t, err, "exhaustion is not an error")
	assert.False(t, ok)
	assert.Equal(t, int32(3), w.commits.Load())
	assert.Equal(t, int32(3), w.watches.Load(), "every attempt needs a fresh watch")

	exists, _ := w.Exists(context.Background(), "record:1")
	assert.False(t, exists)
}

func TestRetryBoundExhaustedDelete(t *testing.T) {
	s := lstore.NewLocalStore()
	require.NoError(t, s.HSetAll(context.Background(), "record:1", fields))

	w := &scriptedWatcher{IStore: s, refuse: 5}
	e := NewEngine(w, &Options{MaxAttempts: 2})

	ok, err := e.DeleteIfPresent(context.Background(), "record:1")
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, int32(2), w.commits.Load())
}

func TestRetrySucceedsWithinBound(t *testing.T) {
	w := &scriptedWatcher{IStore: lstore.NewLocalStore(), refuse: 2}
	e := NewEngine(w, nil)

	ok, err := e.CreateIfAbsent(context.Background(), "record:1", fields)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int32(3), w.commits.Load())
}

func TestCommitFaultIsNotRetried(t *testing.T) {
	w := &scriptedWatcher{IStore: lstore.NewLocalStore(), commitErr: errors.New("connection reset")}
	e := NewEngine(w, nil)

	ok, err := e.CreateIfAbsent(context.Background(), "record:1", fields)
	assert.False(t, ok)
	assert.ErrorIs(t, err, store.ErrTransactionFailure)
	assert.Equal(t, int32(1), w.commits.Load())
	assert.Equal(t, int32(1), w.watches.Load())
}

func TestExistsFault(t *testing.T) {
	w := &scriptedWatcher{IStore: lstore.NewLocalStore(), existsErr: errors.New("broken pipe")}
	e := NewEngine(w, nil)

	ok, err := e.DeleteIfPresent(context.Background(), "record:1")
	assert.False(t, ok)
	assert.ErrorIs(t, err, store.ErrTransactionFailure)
	assert.Equal(t, int32(0), w.commits.Load())
}

func TestCanceledContext(t *testing.T) {
	w := &scriptedWatcher{IStore: lstore.NewLocalStore()}
	e := NewEngine(w, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ok, err := e.CreateIfAbsent(ctx, "record:1", fields)
	assert.False(t, ok)
	assert.ErrorIs(t, err, store.ErrTransactionFailure)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(0), w.watches.Load())
}

func TestTimeoutBoundsTheLoop(t *testing.T) {
	w := &scriptedWatcher{
		IStore: lstore.NewLocalStore(),
		// a store that hangs until the deadline
		beforeCheck: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	}
	e := NewEngine(w, &Options{Timeout: 20 * time.Millisecond})

	start := time.Now()
	ok, err := e.CreateIfAbsent(context.Background(), "record:1", fields)
	assert.False(t, ok)
	assert.ErrorIs(t, err, store.ErrTransactionFailure)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}

// TestInterleavedWriterWins lets another writer create the key inside the
// watched window of the first attempt. The refused commit is retried and the
// second attempt sees the key, so the other writer's data survives.
func TestInterleavedWriterWins(t *testing.T) {
	s := lstore.NewLocalStore()
	ctx := context.Background()

	w := &lateWriterWatcher{IStore: s}
	e := NewEngine(w, nil)

	ok, err := e.CreateIfAbsent(ctx, "record:1", fields)
	assert.False(t, ok)
	assert.ErrorIs(t, err, store.ErrAlreadyExists)
	assert.Equal(t, 2, w.attempts)

	stored, _ := s.HGetAll(ctx, "record:1")
	assert.Equal(t, "other", stored["name"])
}

// lateWriterWatcher writes the watched key after EXISTS and before COMMIT of
// the first attempt.
type lateWriterWatcher struct {
	store.IStore
	attempts int
}

func (w *lateWriterWatcher) Watch(ctx context.Context, fn func(tx store.ITx) error, keys ...string) error {
	w.attempts++
	first := w.attempts == 1
	return w.IStore.Watch(ctx, func(tx store.ITx) error {
		return fn(&lateWriterTx{ITx: tx, s: w.IStore, key: keys[0], write: first})
	}, keys...)
}

type lateWriterTx struct {
	store.ITx
	s     store.IStore
	key   string
	write bool
}

func (tx *lateWriterTx) Commit(ctx context.Context, cmds []store.Command) (int, error) {
	if tx.write {
		if err := tx.s.HSetAll(ctx, tx.key, map[string]string{"name": "other"}); err != nil {
			return 0, err
		}
	}
	return tx.ITx.Commit(ctx, cmds)
}

func TestRacingCreates(t *testing.T) {
	s := lstore.NewLocalStore()
	e := NewEngine(s, nil)

	const workers = 32
	var (
		wg        sync.WaitGroup
		successes atomic.Int32
		start     = make(chan struct{})
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			ok, err := e.CreateIfAbsent(context.Background(), "record:1", fields)
			if ok {
				successes.Add(1)
			}
			if err != nil && !errors.Is(err, store.ErrAlreadyExists) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), successes.Load())
}

func TestRacingDeletes(t *testing.T) {
	s := lstore.NewLocalStore()
	require.NoError(t, s.HSetAll(context.Background(), "record:1", fields))
	e := NewEngine(s, nil)

	const workers = 32
	var (
		wg        sync.WaitGroup
		successes atomic.Int32
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := e.DeleteIfPresent(context.Background(), "record:1")
			if ok {
				successes.Add(1)
			}
			if err != nil && !errors.Is(err, store.ErrNotFound) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), successes.Load())
}

func TestSessionHistory(t *testing.T) {
	ctx := context.Background()

	s := newSession(opCreate, "record:1", false, store.HSetAllCommand("record:1", fields), 3)
	ok, err := run(ctx, &scriptedWatcher{IStore: lstore.NewLocalStore(), refuse: 1}, s)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []State{
		StateInit, StateWatching, StateChecked, StateBuffering, StateCommitting, StateRetry,
		StateInit, StateWatching, StateChecked, StateBuffering, StateCommitting, StateDone,
	}, s.history)
	assert.Equal(t, 2, s.attempts)
	assert.Equal(t, 1, s.conflicts)

	s = newSession(opDelete, "record:1", true, store.DelCommand("record:1"), 3)
	_, err = run(ctx, lstore.NewLocalStore(), s)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Equal(t, []State{StateInit, StateWatching, StateChecked, StateAborted}, s.history)
}

func TestIllegalTransitionPanics(t *testing.T) {
	s := newSession(opCreate, "k", false, store.DelCommand("k"), 1)
	assert.Panics(t, func() { s.transition(StateDone) })
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, "done", outcome(true, nil))
	assert.Equal(t, "exhausted", outcome(false, nil))
	assert.Equal(t, "already_exists", outcome(false, store.ErrAlreadyExists))
	assert.Equal(t, "not_found", outcome(false, store.ErrNotFound))
	assert.Equal(t, "failed", outcome(false, store.ErrTransactionFailure))
}
