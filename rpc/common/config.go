package common

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// --------------------------------------------------------------------------
// RPC server configuration struct
// --------------------------------------------------------------------------

type StoreType string

const (
	StoreTypeRedis StoreType = "redis"
	StoreTypeLocal StoreType = "local"
)

// ServerShard is a record collection served under its own shard id
type ServerShard struct {
	// ShardID is the ID of the shard
	ShardID uint64
	// Namespace is the key namespace of the records (e.g. "record" -> record:<id>)
	Namespace string
	// IndexName is the name of the secondary index over the namespace
	IndexName string
}

// RedisConfig holds the connection parameters of the redis store
type RedisConfig struct {
	Addr     string
	Username string
	Password string
	DB       int
	PoolSize int
	// DisableSearch is set for servers without the search module
	DisableSearch bool
}

// ServerConfig holds all configuration parameters of the RPC server.
type ServerConfig struct {
	// The collections served by this server
	Shards []ServerShard

	// Backing store
	Store StoreType
	Redis RedisConfig

	// Transaction engine
	MaxAttempts int
	TxTimeout   time.Duration

	// remote store parameters
	TimeoutSecond int64

	// HTTP api settings
	Endpoint string

	// Logging configuration
	LogLevel string
}

// String returns a formatted string representation of the configuration
func (c *ServerConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	// RPC settings
	addSection("RPC Server")
	addField("Endpoint", c.Endpoint)
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))

	// Logging configuration
	addSection("Logging")
	addField("Log Level", c.LogLevel)

	// Store
	addSection("Store")
	addField("Type", string(c.Store))
	if c.Store == StoreTypeRedis {
		addField("Address", c.Redis.Addr)
		addField("Database", strconv.Itoa(c.Redis.DB))
		addField("Pool Size", strconv.Itoa(c.Redis.PoolSize))
		addField("Search", strconv.FormatBool(!c.Redis.DisableSearch))
		if c.Redis.Password != "" {
			addField("Password", "********")
		}
	}

	// Transactions
	addSection("Transactions")
	addField("Max Attempts", strconv.Itoa(c.MaxAttempts))
	addField("Timeout", c.TxTimeout.String())

	// Shards (sorted for consistent output)
	addSection("Shards")
	shards := append([]ServerShard(nil), c.Shards...)
	sort.Slice(shards, func(i, j int) bool { return shards[i].ShardID < shards[j].ShardID })
	for _, shard := range shards {
		addField(strconv.FormatUint(shard.ShardID, 10), fmt.Sprintf("%s:* (index %s)", shard.Namespace, shard.IndexName))
	}

	return sb.String()
}

// --------------------------------------------------------------------------
// RPC client configuration struct
// --------------------------------------------------------------------------

type ClientConfig struct {
	Endpoints     []string
	TimeoutSecond int
	RetryCount    int
}

// String returns a formatted string representation of the client configuration
func (c *ClientConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	// General Client Settings
	addSection("Client Configuration")
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	addField("Retry Count", strconv.Itoa(c.RetryCount))

	// Endpoints
	addSection("Endpoints")
	for i, endpoint := range c.Endpoints {
		addField(strconv.Itoa(i), endpoint)
	}

	return sb.String()
}
