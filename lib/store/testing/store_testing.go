package testing

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ValentinKolb/dRec/lib/store"
)

// StoreFactory is a function that creates a new, empty instance of an IStore implementation
type StoreFactory func(t testing.TB) store.IStore

// RunStoreTests runs the hash and transaction tests for an IStore implementation.
func RunStoreTests(t *testing.T, name string, factory StoreFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("HSetAll&HGetAll", func(t *testing.T) {
			testHSetAllHGetAll(t, factory(t))
		})

		t.Run("ExistsDel", func(t *testing.T) {
			testExistsDel(t, factory(t))
		})

		t.Run("WatchCommit", func(t *testing.T) {
			testWatchCommit(t, factory(t))
		})

		t.Run("WatchConflictOnWrite", func(t *testing.T) {
			testWatchConflictOnWrite(t, factory(t))
		})

		t.Run("WatchConflictOnDelete", func(t *testing.T) {
			testWatchConflictOnDelete(t, factory(t))
		})

		t.Run("WatchUnrelatedKey", func(t *testing.T) {
			testWatchUnrelatedKey(t, factory(t))
		})

		t.Run("Unwatch", func(t *testing.T) {
			testUnwatch(t, factory(t))
		})

		t.Run("CommitAtomic", func(t *testing.T) {
			testCommitAtomic(t, factory(t))
		})

		t.Run("ConcurrentWatchers", func(t *testing.T) {
			testConcurrentWatchers(t, factory(t))
		})
	})
}

// RunSearchTests runs the index tests for an IStore implementation.
func RunSearchTests(t *testing.T, name string, factory StoreFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("CreateIndex", func(t *testing.T) {
			testCreateIndex(t, factory(t))
		})

		t.Run("SearchPredicates", func(t *testing.T) {
			testSearchPredicates(t, factory(t))
		})

		t.Run("SearchPrefix", func(t *testing.T) {
			testSearchPrefix(t, factory(t))
		})

		t.Run("SearchPaging", func(t *testing.T) {
			testSearchPaging(t, factory(t))
		})

		t.Run("SearchErrors", func(t *testing.T) {
			testSearchErrors(t, factory(t))
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// Checks if the store supports the specified feature
// Skip the test if it is not supported
func requireFeature(t testing.TB, s store.IStore, feature store.Feature) {
	if !s.SupportsFeature(feature) {
		t.Skipf("feature %s not supported", feature)
	}
}

func mustHSetAll(t testing.TB, s store.IStore, key string, fields map[string]string) {
	t.Helper()
	if err := s.HSetAll(context.Background(), key, fields); err != nil {
		t.Fatalf("HSetAll(%s) failed: %v", key, err)
	}
}

func mustHGetAll(t testing.TB, s store.IStore, key string) map[string]string {
	t.Helper()
	fields, err := s.HGetAll(context.Background(), key)
	if err != nil {
		t.Fatalf("HGetAll(%s) failed: %v", key, err)
	}
	return fields
}

// testIndex is the index used by all search tests
var testIndex = store.IndexDefinition{
	Name:   "idx:test",
	Prefix: "test:",
	Fields: []store.FieldSchema{
		{Name: "name", Kind: store.FieldText, Weight: 1},
		{Name: "category", Kind: store.FieldTag},
		{Name: "measure", Kind: store.FieldNumeric, Sortable: true},
	},
}

func createTestIndex(t testing.TB, s store.IStore) {
	t.Helper()
	if err := s.CreateIndex(context.Background(), testIndex); err != nil {
		t.Fatalf("CreateIndex failed: %v", err)
	}
}

func searchIDs(t testing.TB, s store.IStore, query string) []string {
	t.Helper()
	res, err := s.Search(context.Background(), testIndex.Name, query, store.SearchOptions{Limit: 100})
	if err != nil {
		t.Fatalf("Search(%q) failed: %v", query, err)
	}
	ids := make([]string, 0, len(res.Docs))
	for _, d := range res.Docs {
		ids = append(ids, d.ID)
	}
	return ids
}

func sameIDs(got []string, want ...string) bool {
	if len(got) != len(want) {
		return false
	}
	seen := make(map[string]bool, len(got))
	for _, g := range got {
		seen[g] = true
	}
	for _, w := range want {
		if !seen[w] {
			return false
		}
	}
	return true
}

// --------------------------------------------------------------------------
// Test functions (hash + transactions)
// --------------------------------------------------------------------------

func testHSetAllHGetAll(t *testing.T, s store.IStore) {
	defer s.Close()
	requireFeature(t, s, store.FeatureHash)

	key := "hash:1"
	mustHSetAll(t, s, key, map[string]string{"a": "1", "b": "2"})

	got := mustHGetAll(t, s, key)
	if !reflect.DeepEqual(got, map[string]string{"a": "1", "b": "2"}) {
		t.Errorf("Expected fields a=1,b=2, got %v", got)
	}

	// HSetAll merges into the existing hash
	mustHSetAll(t, s, key, map[string]string{"b": "3", "c": "4"})
	got = mustHGetAll(t, s, key)
	if !reflect.DeepEqual(got, map[string]string{"a": "1", "b": "3", "c": "4"}) {
		t.Errorf("Expected merged fields a=1,b=3,c=4, got %v", got)
	}

	// mutating the returned map must not change the store
	got["a"] = "changed"
	if v := mustHGetAll(t, s, key)["a"]; v != "1" {
		t.Errorf("HGetAll should return a copy, field a is now %q", v)
	}

	missing := mustHGetAll(t, s, "hash:missing")
	if missing == nil || len(missing) != 0 {
		t.Errorf("Expected empty map for missing key, got %v", missing)
	}
}

func testExistsDel(t *testing.T, s store.IStore) {
	defer s.Close()
	requireFeature(t, s, store.FeatureHash)
	ctx := context.Background()

	key := "hash:del"
	if ok, err := s.Exists(ctx, key); err != nil || ok {
		t.Errorf("Expected key to not exist, got ok=%v err=%v", ok, err)
	}

	mustHSetAll(t, s, key, map[string]string{"a": "1"})
	if ok, err := s.Exists(ctx, key); err != nil || !ok {
		t.Errorf("Expected key to exist, got ok=%v err=%v", ok, err)
	}

	if ok, err := s.Del(ctx, key); err != nil || !ok {
		t.Errorf("Expected Del to report an existing key, got ok=%v err=%v", ok, err)
	}
	if ok, err := s.Exists(ctx, key); err != nil || ok {
		t.Errorf("Expected key to be deleted, got ok=%v err=%v", ok, err)
	}
	if ok, err := s.Del(ctx, key); err != nil || ok {
		t.Errorf("Expected Del of missing key to return false, got ok=%v err=%v", ok, err)
	}
}

func testWatchCommit(t *testing.T, s store.IStore) {
	defer s.Close()
	requireFeature(t, s, store.FeatureWatch|store.FeatureHash)
	ctx := context.Background()

	key := "tx:commit"
	err := s.Watch(ctx, func(tx store.ITx) error {
		exists, err := tx.Exists(ctx, key)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("key should not exist yet")
		}
		n, err := tx.Commit(ctx, []store.Command{store.HSetAllCommand(key, map[string]string{"v": "1"})})
		if err != nil {
			return err
		}
		if n != 1 {
			return fmt.Errorf("expected 1 applied command, got %d", n)
		}
		return nil
	}, key)
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}

	if v := mustHGetAll(t, s, key)["v"]; v != "1" {
		t.Errorf("Expected v=1 after commit, got %q", v)
	}
}

func testWatchConflictOnWrite(t *testing.T, s store.IStore) {
	defer s.Close()
	requireFeature(t, s, store.FeatureWatch|store.FeatureHash)
	ctx := context.Background()

	key := "tx:conflict"
	err := s.Watch(ctx, func(tx store.ITx) error {
		// interleaving writer
		mustHSetAll(t, s, key, map[string]string{"v": "other"})

		_, err := tx.Commit(ctx, []store.Command{store.HSetAllCommand(key, map[string]string{"v": "mine"})})
		return err
	}, key)
	if !errors.Is(err, store.ErrWatchConflict) {
		t.Fatalf("Expected ErrWatchConflict, got %v", err)
	}

	if v := mustHGetAll(t, s, key)["v"]; v != "other" {
		t.Errorf("Refused commit must not apply, expected v=other, got %q", v)
	}
}

func testWatchConflictOnDelete(t *testing.T, s store.IStore) {
	defer s.Close()
	requireFeature(t, s, store.FeatureWatch|store.FeatureHash)
	ctx := context.Background()

	key := "tx:conflict-del"
	mustHSetAll(t, s, key, map[string]string{"v": "1"})

	err := s.Watch(ctx, func(tx store.ITx) error {
		if _, err := s.Del(ctx, key); err != nil {
			return err
		}
		_, err := tx.Commit(ctx, []store.Command{store.HSetAllCommand(key, map[string]string{"v": "2"})})
		return err
	}, key)
	if !errors.Is(err, store.ErrWatchConflict) {
		t.Fatalf("Expected ErrWatchConflict, got %v", err)
	}

	if ok, _ := s.Exists(ctx, key); ok {
		t.Errorf("Refused commit must not recreate the deleted key")
	}
}

func testWatchUnrelatedKey(t *testing.T, s store.IStore) {
	defer s.Close()
	requireFeature(t, s, store.FeatureWatch|store.FeatureHash)
	ctx := context.Background()

	key := "tx:watched"
	err := s.Watch(ctx, func(tx store.ITx) error {
		mustHSetAll(t, s, "tx:unrelated", map[string]string{"v": "1"})
		_, err := tx.Commit(ctx, []store.Command{store.HSetAllCommand(key, map[string]string{"v": "1"})})
		return err
	}, key)
	if err != nil {
		t.Fatalf("Writes to other keys must not refuse the commit: %v", err)
	}
}

func testUnwatch(t *testing.T, s store.IStore) {
	defer s.Close()
	requireFeature(t, s, store.FeatureWatch|store.FeatureHash)
	ctx := context.Background()

	key := "tx:unwatch"
	err := s.Watch(ctx, func(tx store.ITx) error {
		if err := tx.Unwatch(ctx); err != nil {
			return err
		}
		mustHSetAll(t, s, key, map[string]string{"v": "other"})
		_, err := tx.Commit(ctx, []store.Command{store.HSetAllCommand(key, map[string]string{"v": "mine"})})
		return err
	}, key)
	if err != nil {
		t.Fatalf("Commit after Unwatch should not be refused: %v", err)
	}
	if v := mustHGetAll(t, s, key)["v"]; v != "mine" {
		t.Errorf("Expected v=mine, got %q", v)
	}
}

func testCommitAtomic(t *testing.T, s store.IStore) {
	defer s.Close()
	requireFeature(t, s, store.FeatureWatch|store.FeatureHash)
	ctx := context.Background()

	mustHSetAll(t, s, "tx:b", map[string]string{"v": "1"})

	err := s.Watch(ctx, func(tx store.ITx) error {
		n, err := tx.Commit(ctx, []store.Command{
			store.HSetAllCommand("tx:a", map[string]string{"v": "1"}),
			store.DelCommand("tx:b"),
			store.HSetAllCommand("tx:c", map[string]string{"v": "1"}),
		})
		if err == nil && n != 3 {
			return fmt.Errorf("expected 3 applied commands, got %d", n)
		}
		return err
	}, "tx:a", "tx:b")
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}

	for key, want := range map[string]bool{"tx:a": true, "tx:b": false, "tx:c": true} {
		if ok, _ := s.Exists(ctx, key); ok != want {
			t.Errorf("Expected exists(%s)=%v, got %v", key, want, ok)
		}
	}
}

// testConcurrentWatchers lets many sessions race to create the same key.
// Exactly one of them may observe success.
func testConcurrentWatchers(t *testing.T, s store.IStore) {
	defer s.Close()
	requireFeature(t, s, store.FeatureWatch|store.FeatureHash)
	ctx := context.Background()

	const workers = 16
	key := "tx:race"

	var (
		wg        sync.WaitGroup
		successes atomic.Int32
		start     = make(chan struct{})
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			err := s.Watch(ctx, func(tx store.ITx) error {
				exists, err := tx.Exists(ctx, key)
				if err != nil || exists {
					return err
				}
				_, err = tx.Commit(ctx, []store.Command{
					store.HSetAllCommand(key, map[string]string{"owner": fmt.Sprint(i)}),
				})
				if err == nil {
					successes.Add(1)
				}
				return err
			}, key)
			if err != nil && !errors.Is(err, store.ErrWatchConflict) {
				t.Errorf("worker %d: unexpected error %v", i, err)
			}
		}(i)
	}
	close(start)
	wg.Wait()

	if n := successes.Load(); n != 1 {
		t.Errorf("Expected exactly one successful create, got %d", n)
	}
	if owner := mustHGetAll(t, s, key)["owner"]; owner == "" {
		t.Errorf("Expected the key to be created")
	}
}

// --------------------------------------------------------------------------
// Test functions (search)
// --------------------------------------------------------------------------

func testCreateIndex(t *testing.T, s store.IStore) {
	defer s.Close()
	requireFeature(t, s, store.FeatureSearch)

	createTestIndex(t, s)

	err := s.CreateIndex(context.Background(), testIndex)
	if !errors.Is(err, store.ErrIndexExists) {
		t.Errorf("Expected ErrIndexExists for a second CreateIndex, got %v", err)
	}
}

func seedSearchData(t testing.TB, s store.IStore) {
	mustHSetAll(t, s, "test:1", map[string]string{"name": "Alice Smith", "category": "eng", "measure": "50000"})
	mustHSetAll(t, s, "test:2", map[string]string{"name": "Bob Stone", "category": "sales", "measure": "42000"})
	mustHSetAll(t, s, "test:3", map[string]string{"name": "Carol Smith", "category": "eng,mgmt", "measure": "91000.5"})
	mustHSetAll(t, s, "test:4", map[string]string{"name": "Dan Ray", "category": "ops"})
}

func testSearchPredicates(t *testing.T, s store.IStore) {
	defer s.Close()
	requireFeature(t, s, store.FeatureSearch|store.FeatureHash)

	createTestIndex(t, s)
	seedSearchData(t, s)

	cases := []struct {
		query string
		want  []string
	}{
		{"*", []string{"test:1", "test:2", "test:3", "test:4"}},
		{"@category:{eng}", []string{"test:1", "test:3"}},
		{"@category:{sales|ops}", []string{"test:2", "test:4"}},
		{"@category:{hr}", []string{}},
		{"@measure:[50000 50000]", []string{"test:1"}},
		{"@measure:[(42000 +inf]", []string{"test:1", "test:3"}},
		{"@measure:[-inf 50000]", []string{"test:1", "test:2"}},
		{"@name:smith", []string{"test:1", "test:3"}},
		{"@name:(carol smith)", []string{"test:3"}},
		{"smith", []string{"test:1", "test:3"}},
		{"@category:{eng} -@name:carol", []string{"test:1"}},
		{"@category:{eng} @measure:[0 60000]", []string{"test:1"}},
	}

	for _, c := range cases {
		got := searchIDs(t, s, c.query)
		if !sameIDs(got, c.want...) {
			t.Errorf("Search(%q) = %v, want %v", c.query, got, c.want)
		}
	}
}

func testSearchPrefix(t *testing.T, s store.IStore) {
	defer s.Close()
	requireFeature(t, s, store.FeatureSearch|store.FeatureHash)

	createTestIndex(t, s)
	mustHSetAll(t, s, "test:1", map[string]string{"name": "Alice", "category": "eng", "measure": "1"})
	mustHSetAll(t, s, "other:1", map[string]string{"name": "Alice", "category": "eng", "measure": "1"})

	if got := searchIDs(t, s, "@category:{eng}"); !sameIDs(got, "test:1") {
		t.Errorf("Only keys with the index prefix should be found, got %v", got)
	}

	// documents carry the hash fields
	res, err := s.Search(context.Background(), testIndex.Name, "@category:{eng}", store.SearchOptions{})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(res.Docs) != 1 || res.Docs[0].Fields["name"] != "Alice" {
		t.Errorf("Expected document fields to be returned, got %+v", res.Docs)
	}
}

func testSearchPaging(t *testing.T, s store.IStore) {
	defer s.Close()
	requireFeature(t, s, store.FeatureSearch|store.FeatureHash)

	createTestIndex(t, s)
	for i := 0; i < 25; i++ {
		mustHSetAll(t, s, fmt.Sprintf("test:%d", i), map[string]string{"name": "n", "category": "bulk", "measure": fmt.Sprint(i)})
	}

	res, err := s.Search(context.Background(), testIndex.Name, "@category:{bulk}", store.SearchOptions{Offset: 20, Limit: 10})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if res.Total != 25 {
		t.Errorf("Expected total 25, got %d", res.Total)
	}
	if len(res.Docs) != 5 {
		t.Errorf("Expected 5 documents on the last page, got %d", len(res.Docs))
	}
}

func testSearchErrors(t *testing.T, s store.IStore) {
	defer s.Close()
	requireFeature(t, s, store.FeatureSearch)
	ctx := context.Background()

	_, err := s.Search(ctx, "idx:missing", "*", store.SearchOptions{})
	if !errors.Is(err, store.ErrIndexMissing) {
		t.Errorf("Expected ErrIndexMissing, got %v", err)
	}

	createTestIndex(t, s)
	for _, q := range []string{"@category:{eng", "@measure:[1", "@:x"} {
		_, err = s.Search(ctx, testIndex.Name, q, store.SearchOptions{})
		if !errors.Is(err, store.ErrInvalidQuery) {
			t.Errorf("Search(%q): expected ErrInvalidQuery, got %v", q, err)
		}
	}
}
