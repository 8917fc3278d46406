package lstore

import (
	"context"
	"errors"
	"testing"

	"github.com/ValentinKolb/dRec/lib/store"
	storetesting "github.com/ValentinKolb/dRec/lib/store/testing"
)

func Test(t *testing.T) {
	factory := func(t testing.TB) store.IStore {
		return NewLocalStore()
	}
	storetesting.RunStoreTests(t, "LocalStore", factory)
	storetesting.RunSearchTests(t, "LocalStore", factory)
}

func TestDeleteRecreateIsConflict(t *testing.T) {
	s := NewLocalStore()
	ctx := context.Background()

	if err := s.HSetAll(ctx, "k", map[string]string{"v": "1"}); err != nil {
		t.Fatal(err)
	}

	err := s.Watch(ctx, func(tx store.ITx) error {
		// delete and recreate with the same content between watch and commit
		if _, err := s.Del(ctx, "k"); err != nil {
			return err
		}
		if err := s.HSetAll(ctx, "k", map[string]string{"v": "1"}); err != nil {
			return err
		}
		_, err := tx.Commit(ctx, []store.Command{store.DelCommand("k")})
		return err
	}, "k")
	if !errors.Is(err, store.ErrWatchConflict) {
		t.Errorf("Expected ErrWatchConflict, got %v", err)
	}
}

func TestTxClosedAfterWatch(t *testing.T) {
	s := NewLocalStore()
	ctx := context.Background()

	var leaked store.ITx
	_ = s.Watch(ctx, func(tx store.ITx) error {
		leaked = tx
		return nil
	}, "k")

	if _, err := leaked.Commit(ctx, nil); !errors.Is(err, store.ErrInvalidOperation) {
		t.Errorf("Expected ErrInvalidOperation for a commit outside the watch scope, got %v", err)
	}
}

func TestClosedStore(t *testing.T) {
	s := NewLocalStore()
	_ = s.Close()

	if _, err := s.Exists(context.Background(), "k"); err == nil {
		t.Errorf("Expected an error from a closed store")
	}
}

func TestCanceledContext(t *testing.T) {
	s := NewLocalStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.HSetAll(ctx, "k", map[string]string{"v": "1"})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected the context error to be wrapped, got %v", err)
	}
}

func TestDeletedKeysArePruned(t *testing.T) {
	s := NewLocalStore().(*storeImpl)
	ctx := context.Background()

	for _, key := range []string{"a", "b", "c"} {
		if err := s.HSetAll(ctx, key, map[string]string{"v": "1"}); err != nil {
			t.Fatal(err)
		}
		if _, err := s.Del(ctx, key); err != nil {
			t.Fatal(err)
		}
	}
	if n := s.versions.Size(); n != 0 {
		t.Errorf("Expected no versions for deleted keys, got %d", n)
	}

	// a delete inside a watch scope is kept until the scope ends
	if err := s.HSetAll(ctx, "k", map[string]string{"v": "1"}); err != nil {
		t.Fatal(err)
	}
	err := s.Watch(ctx, func(tx store.ITx) error {
		if _, err := tx.Commit(ctx, []store.Command{store.DelCommand("k")}); err != nil {
			return err
		}
		if s.version("k") == 0 {
			t.Errorf("Expected a tombstone version while the watch is open")
		}
		return nil
	}, "k")
	if err != nil {
		t.Fatal(err)
	}
	if n := s.versions.Size(); n != 0 {
		t.Errorf("Expected tombstones to be pruned after the watch, got %d versions", n)
	}
	if n := s.tombstones.Size(); n != 0 {
		t.Errorf("Expected no tombstones after the watch, got %d", n)
	}
}

func TestDeleteCreateDuringWatchOfAbsentKey(t *testing.T) {
	s := NewLocalStore()
	ctx := context.Background()

	// create and delete a key after it was watched as absent
	err := s.Watch(ctx, func(tx store.ITx) error {
		if err := s.HSetAll(ctx, "k", map[string]string{"v": "1"}); err != nil {
			return err
		}
		if _, err := s.Del(ctx, "k"); err != nil {
			return err
		}
		_, err := tx.Commit(ctx, []store.Command{store.HSetAllCommand("k", map[string]string{"v": "2"})})
		return err
	}, "k")
	if !errors.Is(err, store.ErrWatchConflict) {
		t.Errorf("Expected ErrWatchConflict, got %v", err)
	}
}
