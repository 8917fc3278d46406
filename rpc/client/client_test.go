package client_test

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/ValentinKolb/dRec/lib/record"
	"github.com/ValentinKolb/dRec/lib/service"
	servicetesting "github.com/ValentinKolb/dRec/lib/service/testing"
	"github.com/ValentinKolb/dRec/lib/store"
	"github.com/ValentinKolb/dRec/rpc/client"
	"github.com/ValentinKolb/dRec/rpc/common"
	"github.com/ValentinKolb/dRec/rpc/serializer"
	"github.com/ValentinKolb/dRec/rpc/server"
	"github.com/ValentinKolb/dRec/rpc/transport"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// loopback connects a client directly to the handler of a server in the same process
type loopback struct {
	handler transport.ServerHandleFunc
	ready   chan struct{}
}

func newLoopback() *loopback {
	return &loopback{ready: make(chan struct{})}
}

func (l *loopback) RegisterHandler(handler transport.ServerHandleFunc) { l.handler = handler }

func (l *loopback) RegisterHealthCheck(transport.HealthCheckFunc) {}

func (l *loopback) Listen(ctx context.Context, _ common.ServerConfig) error {
	close(l.ready)
	<-ctx.Done()
	return nil
}

func (l *loopback) Connect(common.ClientConfig) error { return nil }

func (l *loopback) Send(ctx context.Context, shardId uint64, req []byte, _ bool) ([]byte, error) {
	return l.handler(ctx, shardId, req), nil
}

func (l *loopback) Close() error { return nil }

func defaultShards() []common.ServerShard {
	return []common.ServerShard{
		{ShardID: 1, Namespace: record.DefaultNamespace, IndexName: "idx:record"},
		{ShardID: 2, Namespace: "archive", IndexName: "idx:archive"},
	}
}

// startServer serves cfg over a loopback transport until the test ends
func startServer(t testing.TB, cfg common.ServerConfig, ser serializer.IRPCSerializer) *loopback {
	l := newLoopback()
	s := server.NewRPCServer(cfg, l, ser)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	select {
	case <-l.ready:
	case err := <-done:
		t.Fatalf("server failed to start: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not start")
	}
	return l
}

func newClient(t testing.TB, l *loopback, shardId uint64, ser serializer.IRPCSerializer) client.IRecordClient {
	c, err := client.NewRPCRecordService(shardId, common.ClientConfig{Endpoints: []string{"loopback"}}, l, ser)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func localConfig() common.ServerConfig {
	return common.ServerConfig{
		Shards:   defaultShards(),
		Store:    common.StoreTypeLocal,
		LogLevel: "error",
	}
}

func TestRPCRecordServiceJSON(t *testing.T) {
	ser := serializer.NewJSONSerializer()
	servicetesting.RunRecordServiceTests(t, "JSON", func(t testing.TB) service.IRecordService {
		return newClient(t, startServer(t, localConfig(), ser), 1, ser)
	})
}

func TestRPCRecordServiceGOB(t *testing.T) {
	ser := serializer.NewGOBSerializer()
	servicetesting.RunRecordServiceTests(t, "GOB", func(t testing.TB) service.IRecordService {
		return newClient(t, startServer(t, localConfig(), ser), 1, ser)
	})
}

// miniredis has no search module, only the write path is covered here
func TestRPCRecordServiceRedis(t *testing.T) {
	ser := serializer.NewJSONSerializer()
	servicetesting.RunWriteTests(t, "Redis", func(t testing.TB) service.IRecordService {
		mini := miniredis.RunT(t)
		cfg := localConfig()
		cfg.Store = common.StoreTypeRedis
		cfg.Redis = common.RedisConfig{Addr: mini.Addr(), DisableSearch: true}
		return newClient(t, startServer(t, cfg, ser), 1, ser)
	})
}

func TestShardsAreSeparateCollections(t *testing.T) {
	ser := serializer.NewJSONSerializer()
	l := startServer(t, localConfig(), ser)
	records := newClient(t, l, 1, ser)
	archive := newClient(t, l, 2, ser)
	ctx := context.Background()

	ok, err := records.Create(ctx, record.Record{ID: 1, Name: "Ada", Category: "eng", Measure: 1})
	require.NoError(t, err)
	require.True(t, ok)

	_, found, err := archive.Get(ctx, 1)
	require.NoError(t, err)
	assert.False(t, found, "record leaked into other shard")

	ok, err = archive.Create(ctx, record.Record{ID: 1, Name: "Bob", Category: "ops", Measure: 2})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestErrorCodesSurviveTheWire(t *testing.T) {
	ser := serializer.NewJSONSerializer()
	c := newClient(t, startServer(t, localConfig(), ser), 1, ser)
	ctx := context.Background()

	rec := record.Record{ID: 9, Name: "Ada", Category: "eng", Measure: 1}
	_, err := c.Create(ctx, rec)
	require.NoError(t, err)

	_, err = c.Create(ctx, rec)
	assert.True(t, errors.Is(err, store.ErrAlreadyExists), "got %v", err)

	_, err = c.Delete(ctx, 10)
	assert.True(t, errors.Is(err, store.ErrNotFound), "got %v", err)
}

func TestUnknownShard(t *testing.T) {
	ser := serializer.NewJSONSerializer()
	c := newClient(t, startServer(t, localConfig(), ser), 99, ser)

	_, _, err := c.Get(context.Background(), 1)
	require.Error(t, err)
	assert.Equal(t, store.RetCInvalidOperation, store.CodeOf(err))
}

func TestServeRejectsDuplicateShards(t *testing.T) {
	cfg := localConfig()
	cfg.Shards = append(cfg.Shards, common.ServerShard{ShardID: 1, Namespace: "other"})

	s := server.NewRPCServer(cfg, newLoopback(), serializer.NewJSONSerializer())
	assert.Error(t, s.Serve(context.Background()))
}

func TestServeRejectsUnknownStore(t *testing.T) {
	cfg := localConfig()
	cfg.Store = "etcd"

	s := server.NewRPCServer(cfg, newLoopback(), serializer.NewJSONSerializer())
	assert.Error(t, s.Serve(context.Background()))
}

// the server validates records that arrive without passing a client
func TestServerRejectsNonFiniteMeasure(t *testing.T) {
	ser := serializer.NewGOBSerializer()
	l := startServer(t, localConfig(), ser)
	ctx := context.Background()

	req, err := ser.Serialize(*common.NewCreateRequest(record.Record{ID: 5, Name: "nan", Category: "eng", Measure: math.NaN()}))
	require.NoError(t, err)
	raw, err := l.Send(ctx, 1, req, false)
	require.NoError(t, err)

	var resp common.Message
	require.NoError(t, ser.Deserialize(raw, &resp))
	assert.False(t, resp.Ok)
	assert.ErrorIs(t, resp.Error(), store.ErrInvalidOperation)

	c := newClient(t, l, 1, ser)
	_, found, err := c.Get(ctx, 5)
	require.NoError(t, err)
	assert.False(t, found, "record with NaN measure was stored")
}
