// Package rstore implements store.IStore on top of a redis server using go-redis.
//
// Watch sessions map directly to WATCH / MULTI / EXEC: every session checks out a
// dedicated connection from the pool, runs EXISTS on it and commits the buffered
// commands with a transactional pipeline. A nil EXEC reply (redis.TxFailedErr) is
// reported as store.ErrWatchConflict.
//
// Indexes use the search module (FT.CREATE ... ON HASH PREFIX 1 <prefix>) and queries
// are sent unchanged to FT.SEARCH. Servers without the module can be used for record
// storage by setting Options.DisableSearch, in which case CreateIndex and Search
// return RetCUnsupportedOperation.
package rstore
