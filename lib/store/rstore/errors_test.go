package rstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"testing"

	"github.com/ValentinKolb/dRec/lib/store"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
)

// replyError is an error reply of the server as go-redis reports it
type replyError string

func (e replyError) Error() string { return string(e) }

func (replyError) RedisError() {}

func TestClassifySearchError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want *store.Error
	}{
		{"missing index", replyError("idx:record: no such index"), store.ErrIndexMissing},
		{"unknown index name", replyError("Unknown Index name"), store.ErrIndexMissing},
		{"syntax error", replyError("Syntax error at offset 7 near category"), store.ErrInvalidQuery},
		{"unknown field", replyError("Unknown field at offset 0 near color"), store.ErrInvalidQuery},
		{"bad upper range", replyError("Bad upper range: x"), store.ErrInvalidQuery},
		{"bad lower range", replyError("Bad lower range: x"), store.ErrInvalidQuery},
		{"other reply", replyError("ERR unknown command 'FT.SEARCH'"), store.ErrInternal},
		{"unexpected eof", io.ErrUnexpectedEOF, store.ErrInternal},
		{"eof", io.EOF, store.ErrInternal},
		{"wrapped eof", fmt.Errorf("read: %w", io.ErrUnexpectedEOF), store.ErrInternal},
		{"network", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, store.ErrInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classifySearchError(tt.err)
			assert.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

// without a search module the server reply is not a query error
func TestSearchWithoutModule(t *testing.T) {
	srv := miniredis.RunT(t)
	s := NewRedisStore(&Options{Addr: srv.Addr()})
	defer s.Close()

	_, err := s.Search(context.Background(), "idx:record", "@category:{eng}", store.SearchOptions{})
	assert.ErrorIs(t, err, store.ErrInternal)
	assert.NotErrorIs(t, err, store.ErrInvalidQuery)
}

func TestSearchConnectionLost(t *testing.T) {
	srv := miniredis.RunT(t)
	s := NewRedisStore(&Options{Addr: srv.Addr()})
	defer s.Close()
	srv.Close()

	_, err := s.Search(context.Background(), "idx:record", "@category:{eng}", store.SearchOptions{})
	assert.ErrorIs(t, err, store.ErrInternal)
	assert.NotErrorIs(t, err, store.ErrInvalidQuery)
}
