package service_test

import (
	"context"
	"testing"

	"github.com/ValentinKolb/dRec/lib/index"
	"github.com/ValentinKolb/dRec/lib/service"
	servicetesting "github.com/ValentinKolb/dRec/lib/service/testing"
	"github.com/ValentinKolb/dRec/lib/store"
	"github.com/ValentinKolb/dRec/lib/store/lstore"
	"github.com/ValentinKolb/dRec/lib/store/rstore"
	"github.com/alicebob/miniredis/v2"
)

func TestLocalService(t *testing.T) {
	servicetesting.RunRecordServiceTests(t, "LocalStore", func(t testing.TB) service.IRecordService {
		return newService(t, lstore.NewLocalStore())
	})
}

// miniredis has no search module, only the write path is covered here
func TestRedisService(t *testing.T) {
	servicetesting.RunWriteTests(t, "RedisStore", func(t testing.TB) service.IRecordService {
		srv := miniredis.RunT(t)
		return newService(t, rstore.NewRedisStore(&rstore.Options{Addr: srv.Addr(), DisableSearch: true}))
	})
}

func newService(t testing.TB, s store.IStore) service.IRecordService {
	t.Cleanup(func() { _ = s.Close() })
	cfg := service.Config{}
	if s.SupportsFeature(store.FeatureSearch) {
		if err := index.NewManager(s).EnsureIndex(context.Background(), service.Index(cfg)); err != nil {
			t.Fatalf("EnsureIndex failed: %v", err)
		}
	}
	return service.NewRecordService(s, cfg)
}
