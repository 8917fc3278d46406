package txn

import (
	"context"
	"errors"
	"fmt"

	"github.com/ValentinKolb/dRec/lib/store"
	"github.com/google/uuid"
)

// State is a state of a transaction session
type State int

const (
	StateInit State = iota
	StateWatching
	StateChecked
	StateBuffering
	StateCommitting
	StateDone
	StateRetry
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateWatching:
		return "WATCHING"
	case StateChecked:
		return "CHECKED"
	case StateBuffering:
		return "BUFFERING"
	case StateCommitting:
		return "COMMITTING"
	case StateDone:
		return "DONE"
	case StateRetry:
		return "RETRY"
	case StateAborted:
		return "ABORTED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Terminal reports whether no further transition is possible
func (s State) Terminal() bool {
	return s == StateDone || s == StateAborted
}

var transitions = map[State][]State{
	StateInit:       {StateWatching, StateAborted},
	StateWatching:   {StateChecked, StateAborted},
	StateChecked:    {StateBuffering, StateAborted},
	StateBuffering:  {StateCommitting, StateAborted},
	StateCommitting: {StateDone, StateRetry, StateAborted},
	StateRetry:      {StateInit, StateAborted},
}

// Watcher is the store primitive driving the state machine. The watch is
// installed on keys before fn runs and released when fn returns.
type Watcher interface {
	Watch(ctx context.Context, fn func(tx store.ITx) error, keys ...string) error
}

// session is the unit of work of a single create or delete call. It is owned
// by exactly one goroutine and discarded when the call returns.
type session struct {
	id          uuid.UUID
	op          string
	key         string
	wantExists  bool          // precondition checked inside the watched window
	command     store.Command // the single command to commit
	maxAttempts int

	state     State
	attempts  int
	conflicts int
	buffer    []store.Command
	err       error   // set when the session aborts with an error
	history   []State // every state entered, in order
}

func newSession(op, key string, wantExists bool, cmd store.Command, maxAttempts int) *session {
	return &session{
		id:          uuid.New(),
		op:          op,
		key:         key,
		wantExists:  wantExists,
		command:     cmd,
		maxAttempts: maxAttempts,
		state:       StateInit,
		history:     []State{StateInit},
	}
}

// transition moves the session to the next state. An illegal transition is a bug.
func (s *session) transition(to State) {
	for _, allowed := range transitions[s.state] {
		if allowed == to {
			log.Debugf("tx %s: %s %s %s -> %s (attempt %d)", s.id, s.op, s.key, s.state, to, s.attempts)
			s.state = to
			s.history = append(s.history, to)
			return
		}
	}
	panic(fmt.Sprintf("txn: illegal transition %s -> %s", s.state, to))
}

// abort discards the buffer and ends the session with err (nil for bound exhaustion)
func (s *session) abort(err error) {
	s.buffer = nil
	s.err = err
	s.transition(StateAborted)
}

// fault aborts the session with a transaction failure wrapping cause
func (s *session) fault(cause error) {
	s.abort(store.WrapError(store.RetCTransactionFailure,
		fmt.Sprintf("%s of %s failed in state %s", s.op, s.key, s.state), cause))
}

func (s *session) preconditionError() error {
	if s.wantExists {
		return store.NewError(store.RetCNotFound, "key `"+s.key+"` does not exist")
	}
	return store.NewError(store.RetCAlreadyExists, "key `"+s.key+"` already exists")
}

// run drives the session until it reaches DONE or ABORTED.
//
// Every attempt installs a fresh watch, checks the precondition inside the
// watched window and commits the buffered command. A refused commit is retried
// until maxAttempts is reached, every other failure ends the session.
func run(ctx context.Context, w Watcher, s *session) (bool, error) {
	for !s.state.Terminal() {
		switch s.state {
		case StateInit:
			if err := ctx.Err(); err != nil {
				s.fault(err)
				continue
			}
			s.attempts++
			s.transition(StateWatching)

			err := w.Watch(ctx, func(tx store.ITx) error {
				return s.attempt(ctx, tx)
			}, s.key)
			if err != nil && !s.state.Terminal() {
				// the watch itself failed (e.g. connection fault)
				s.fault(err)
			}

		case StateRetry:
			s.conflicts++
			if s.attempts >= s.maxAttempts {
				log.Debugf("tx %s: %s %s gave up after %d attempts", s.id, s.op, s.key, s.attempts)
				s.abort(nil)
				continue
			}
			s.transition(StateInit)

		default:
			// attempt always leaves the session in RETRY or a terminal state
			s.fault(store.NewError(store.RetCInternalError, "session stuck in state "+s.state.String()))
		}
	}

	if s.err != nil {
		return false, s.err
	}
	return s.state == StateDone, nil
}

// attempt runs one watched window: WATCHING -> CHECKED -> BUFFERING -> COMMITTING.
// The returned error only tells the store to release the watch, the outcome is
// recorded in the session.
func (s *session) attempt(ctx context.Context, tx store.ITx) error {
	exists, err := tx.Exists(ctx, s.key)
	if err != nil {
		s.fault(err)
		return err
	}
	s.transition(StateChecked)

	if exists != s.wantExists {
		if err := tx.Unwatch(ctx); err != nil {
			log.Debugf("tx %s: unwatch failed: %v", s.id, err)
		}
		s.abort(s.preconditionError())
		return nil
	}

	s.transition(StateBuffering)
	s.buffer = append(s.buffer[:0], s.command)

	s.transition(StateCommitting)
	applied, err := tx.Commit(ctx, s.buffer)
	s.buffer = nil

	switch {
	case errors.Is(err, store.ErrWatchConflict):
		s.transition(StateRetry)
	case err != nil:
		s.fault(err)
		return err
	case applied == 0:
		// an empty result means the commit was refused
		s.transition(StateRetry)
	default:
		s.transition(StateDone)
	}
	return nil
}
