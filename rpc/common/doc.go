// Package common provides the data structures shared by the RPC client and
// server: the message protocol, the configuration structs and the logger
// factory plugged into dragonboat's logger package.
//
// Key Components:
//
//   - Message: the single structure used for all requests and responses.
//     Errors travel as a store.RetCode plus a message, Message.Error rebuilds
//     a *store.Error on the client so errors.Is(err, store.ErrNotFound) and
//     friends behave the same locally and remotely.
//
//   - MessageType: create, get, search, delete plus the generic success and
//     error types.
//
//   - ServerConfig / ClientConfig: configuration with a printable summary.
//
//   - Logger: every package obtains its logger with logger.GetLogger(name).
//     InitLoggers installs CreateLogger as the factory and sets the level of
//     all package loggers.
package common
