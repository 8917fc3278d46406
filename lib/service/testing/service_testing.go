package testing

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ValentinKolb/dRec/lib/record"
	"github.com/ValentinKolb/dRec/lib/search"
	"github.com/ValentinKolb/dRec/lib/service"
	"github.com/ValentinKolb/dRec/lib/store"
)

// ServiceFactory creates a record service on an empty store with the record index in place
type ServiceFactory func(t testing.TB) service.IRecordService

// RunRecordServiceTests runs all standard tests for an IRecordService implementation
func RunRecordServiceTests(t *testing.T, name string, factory ServiceFactory) {
	RunWriteTests(t, name, factory)
	RunSearchTests(t, name, factory)
}

// RunWriteTests runs the create / get / delete tests
func RunWriteTests(t *testing.T, name string, factory ServiceFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("CreateGet", func(t *testing.T) {
			testCreateGet(t, factory(t))
		})

		t.Run("CreateExisting", func(t *testing.T) {
			testCreateExisting(t, factory(t))
		})

		t.Run("GetMissing", func(t *testing.T) {
			testGetMissing(t, factory(t))
		})

		t.Run("Delete", func(t *testing.T) {
			testDelete(t, factory(t))
		})

		t.Run("RacingCreates", func(t *testing.T) {
			testRacingCreates(t, factory(t))
		})

		t.Run("CreateNonFinite", func(t *testing.T) {
			testCreateNonFinite(t, factory(t))
		})
	})
}

// RunSearchTests runs the search tests, the factory must provide a store with search support
func RunSearchTests(t *testing.T, name string, factory ServiceFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("SearchRoundTrip", func(t *testing.T) {
			testSearchRoundTrip(t, factory(t))
		})

		t.Run("SearchInvalid", func(t *testing.T) {
			testSearchInvalid(t, factory(t))
		})
	})
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func mustCreate(t testing.TB, s service.IRecordService, rec record.Record) {
	t.Helper()
	ok, err := s.Create(context.Background(), rec)
	if err != nil || !ok {
		t.Fatalf("Create(%d) failed: ok=%v err=%v", rec.ID, ok, err)
	}
}

func mustGet(t testing.TB, s service.IRecordService, id uint64) (*record.Record, bool) {
	t.Helper()
	rec, found, err := s.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get(%d) failed: %v", id, err)
	}
	return rec, found
}

func testCreateGet(t *testing.T, s service.IRecordService) {
	recs := []record.Record{
		{ID: 1, Name: "Alice Smith", Category: "eng", Measure: 50000},
		{ID: 2, Name: "", Category: "", Measure: -0.5},
		{ID: math.MaxUint64, Name: "Max", Category: "edge", Measure: 1e300},
	}
	for _, want := range recs {
		mustCreate(t, s, want)

		got, found := mustGet(t, s, want.ID)
		if !found {
			t.Errorf("Expected record %d to be found", want.ID)
			continue
		}
		if *got != want {
			t.Errorf("Expected %+v, got %+v", want, *got)
		}
	}
}

func testCreateExisting(t *testing.T, s service.IRecordService) {
	original := record.Record{ID: 7, Name: "Original", Category: "eng", Measure: 1}
	mustCreate(t, s, original)
	before, _ := mustGet(t, s, 7)

	ok, err := s.Create(context.Background(), record.Record{ID: 7, Name: "Overwrite", Category: "ops", Measure: 2})
	if ok {
		t.Errorf("Second create must not succeed")
	}
	if !errors.Is(err, store.ErrAlreadyExists) {
		t.Errorf("Expected ErrAlreadyExists, got %v", err)
	}

	after, _ := mustGet(t, s, 7)
	if *before != *after {
		t.Errorf("Record changed by a failed create: before %+v, after %+v", *before, *after)
	}
}

func testCreateNonFinite(t *testing.T, s service.IRecordService) {
	for i, measure := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		id := uint64(100 + i)
		ok, err := s.Create(context.Background(), record.Record{ID: id, Name: "bad", Category: "eng", Measure: measure})
		if ok {
			t.Errorf("Create with measure %v must not succeed", measure)
		}
		if !errors.Is(err, store.ErrInvalidOperation) {
			t.Errorf("Expected ErrInvalidOperation for measure %v, got %v", measure, err)
		}
		if _, found := mustGet(t, s, id); found {
			t.Errorf("Record with measure %v was stored", measure)
		}
	}
}

func testGetMissing(t *testing.T, s service.IRecordService) {
	rec, found := mustGet(t, s, 404)
	if found || rec != nil {
		t.Errorf("Expected no record, got found=%v rec=%v", found, rec)
	}
}

func testDelete(t *testing.T, s service.IRecordService) {
	ctx := context.Background()

	ok, err := s.Delete(ctx, 3)
	if ok || !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for a missing record, got ok=%v err=%v", ok, err)
	}

	mustCreate(t, s, record.Record{ID: 3, Name: "Temp", Category: "tmp", Measure: 3})
	ok, err = s.Delete(ctx, 3)
	if err != nil || !ok {
		t.Errorf("Expected delete to succeed, got ok=%v err=%v", ok, err)
	}
	if _, found := mustGet(t, s, 3); found {
		t.Errorf("Record should be gone after delete")
	}

	// the id can be reused
	mustCreate(t, s, record.Record{ID: 3, Name: "Again", Category: "tmp", Measure: 4})
}

func testRacingCreates(t *testing.T, s service.IRecordService) {
	const workers = 8
	var (
		wg        sync.WaitGroup
		successes atomic.Int32
		winner    atomic.Value
		start     = make(chan struct{})
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			rec := record.Record{ID: 99, Name: fmt.Sprintf("writer %d", i), Category: "race", Measure: float64(i)}
			ok, err := s.Create(context.Background(), rec)
			if ok {
				successes.Add(1)
				winner.Store(rec)
			}
			if err != nil && !errors.Is(err, store.ErrAlreadyExists) {
				t.Errorf("writer %d: unexpected error %v", i, err)
			}
		}(i)
	}
	close(start)
	wg.Wait()

	if n := successes.Load(); n > 1 {
		t.Fatalf("Expected at most one successful create, got %d", n)
	}
	got, found := mustGet(t, s, 99)
	if !found {
		t.Fatalf("Expected the record to exist")
	}
	if w, ok := winner.Load().(record.Record); ok && w != *got {
		t.Errorf("Stored record %+v is not the winner %+v", *got, w)
	}
}

func testSearchRoundTrip(t *testing.T, s service.IRecordService) {
	ctx := context.Background()
	alice := record.Record{ID: 10, Name: "Alice", Category: "eng", Measure: 50000}
	mustCreate(t, s, alice)
	mustCreate(t, s, record.Record{ID: 11, Name: "Bob", Category: "ops", Measure: 30000})

	check := func(q search.Query, want ...record.Record) {
		t.Helper()
		got, err := s.Search(ctx, q)
		if err != nil {
			t.Errorf("Search(%+v) failed: %v", q, err)
			return
		}
		if got == nil {
			t.Errorf("Search(%+v) returned nil", q)
			return
		}
		if len(got) != len(want) {
			t.Errorf("Search(%+v) returned %v, want %v", q, got, want)
			return
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("Search(%+v) returned %v, want %v", q, got, want)
				return
			}
		}
	}

	check(search.Query{Predicates: []search.Predicate{search.Tag(record.FieldCategory, "eng")}}, alice)
	check(search.Query{Predicates: []search.Predicate{search.Range(record.FieldMeasure, 40000, 60000)}}, alice)
	check(search.Query{Predicates: []search.Predicate{search.Tag(record.FieldCategory, "sales")}})
}

func testSearchInvalid(t *testing.T, s service.IRecordService) {
	_, err := s.Search(context.Background(), search.Query{
		Predicates: []search.Predicate{search.Tag("salary", "x")},
	})
	if !errors.Is(err, store.ErrInvalidQuery) {
		t.Errorf("Expected ErrInvalidQuery, got %v", err)
	}
}
