package serve

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	cmdUtil "github.com/ValentinKolb/dRec/cmd/util"
	"github.com/ValentinKolb/dRec/lib/index"
	"github.com/ValentinKolb/dRec/lib/record"
	"github.com/ValentinKolb/dRec/rpc/common"
	"github.com/ValentinKolb/dRec/rpc/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	serveCmdConfig = &common.ServerConfig{}
	ServeCmd       = &cobra.Command{
		Use:     "serve",
		Short:   "Start the dRec server",
		Long:    `Start the dRec server with the specified configuration. The configuration can be set via command line flags or environment variables. The format of the environment variables is DREC_<flag> (e.g. DREC_REDIS_ADDR=redis:6379)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	// add flags
	key := "shards"
	ServeCmd.PersistentFlags().String(key, fmt.Sprintf("1=%s@%s", record.DefaultNamespace, index.DefaultName), cmdUtil.WrapString("Comma-separated list of record collections to serve. Format: ID=NAMESPACE[@INDEX], the index defaults to idx:NAMESPACE"))

	key = "store"
	ServeCmd.PersistentFlags().String(key, string(common.StoreTypeRedis), cmdUtil.WrapString("The backing store (redis, local). The local store keeps all records in memory"))

	key = "redis-addr"
	ServeCmd.PersistentFlags().String(key, "localhost:6379", cmdUtil.WrapString("Address (host:port) of the redis server"))

	key = "redis-username"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Username for redis ACL authentication"))

	key = "redis-password"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Password of the redis server"))

	key = "redis-db"
	ServeCmd.PersistentFlags().Int(key, 0, cmdUtil.WrapString("Logical redis database (search indexes only work on database 0)"))

	key = "redis-pool-size"
	ServeCmd.PersistentFlags().Int(key, 0, cmdUtil.WrapString("Maximum number of redis connections (0 = 10 per CPU)"))

	key = "redis-disable-search"
	ServeCmd.PersistentFlags().Bool(key, false, cmdUtil.WrapString("Set if the redis server has no search module, searches then return no results"))

	key = "max-attempts"
	ServeCmd.PersistentFlags().Int(key, 3, cmdUtil.WrapString("How often a conditional write is attempted before it is reported as not applied"))

	key = "tx-timeout"
	ServeCmd.PersistentFlags().Duration(key, 0, cmdUtil.WrapString("Upper bound for all attempts of one conditional write (0 = only the request timeout)"))

	key = "timeout"
	ServeCmd.PersistentFlags().Int64(key, 5, cmdUtil.WrapString("Timeout in seconds for a single request"))

	key = "endpoint"
	ServeCmd.PersistentFlags().String(key, "0.0.0.0:8080", cmdUtil.WrapString("The address on which the API will listen"))

	key = "log-level"
	ServeCmd.PersistentFlags().String(key, "info", cmdUtil.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
}

// parseShards parses the shard list ID=NAMESPACE[@INDEX],...
func parseShards(shardsConfig string) ([]common.ServerShard, error) {
	shards := []common.ServerShard{}
	for _, shardConfig := range strings.Split(shardsConfig, ",") {
		if strings.TrimSpace(shardConfig) == "" {
			continue
		}
		parts := strings.SplitN(shardConfig, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid shard format: %s (expected ID=NAMESPACE[@INDEX])", shardConfig)
		}

		// Parse shard ID
		shardID, err := strconv.ParseUint(strings.TrimSpace(parts[0]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid shard ID %s: %v", parts[0], err)
		}

		// Parse namespace and index
		namespace, indexName, _ := strings.Cut(strings.TrimSpace(parts[1]), "@")
		if namespace == "" || strings.ContainsAny(namespace, ":{}* ") {
			return nil, fmt.Errorf("invalid namespace %q for shard %d", namespace, shardID)
		}
		if indexName == "" {
			indexName = "idx:" + namespace
		}

		shards = append(shards, common.ServerShard{
			ShardID:   shardID,
			Namespace: namespace,
			IndexName: indexName,
		})
	}
	if len(shards) == 0 {
		return nil, fmt.Errorf("no shards configured")
	}
	return shards, nil
}

// processConfig reads the configuration from the command line flags and environment variables and converts them to the server configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	// bind the flags to viper
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	shards, err := parseShards(viper.GetString("shards"))
	if err != nil {
		return err
	}
	serveCmdConfig.Shards = shards

	// read the configuration from the command line flags and environment variables
	serveCmdConfig.Store = common.StoreType(viper.GetString("store"))
	serveCmdConfig.Redis = common.RedisConfig{
		Addr:          viper.GetString("redis-addr"),
		Username:      viper.GetString("redis-username"),
		Password:      viper.GetString("redis-password"),
		DB:            viper.GetInt("redis-db"),
		PoolSize:      viper.GetInt("redis-pool-size"),
		DisableSearch: viper.GetBool("redis-disable-search"),
	}
	serveCmdConfig.MaxAttempts = viper.GetInt("max-attempts")
	serveCmdConfig.TxTimeout = viper.GetDuration("tx-timeout")
	serveCmdConfig.TimeoutSecond = viper.GetInt64("timeout")
	serveCmdConfig.Endpoint = viper.GetString("endpoint")
	serveCmdConfig.LogLevel = viper.GetString("log-level")

	switch serveCmdConfig.Store {
	case common.StoreTypeRedis, common.StoreTypeLocal:
	default:
		return fmt.Errorf("invalid store %s (expected one of: redis, local)", serveCmdConfig.Store)
	}
	if serveCmdConfig.MaxAttempts < 1 {
		return fmt.Errorf("max-attempts must be at least 1")
	}

	return common.InitLoggers(serveCmdConfig.LogLevel)
}

// run starts the dRec server and blocks until SIGINT or SIGTERM
func run(_ *cobra.Command, _ []string) error {
	s, err := cmdUtil.GetSerializer()
	if err != nil {
		return err
	}

	t, err := cmdUtil.GetServerTransport()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serv := server.NewRPCServer(
		*serveCmdConfig,
		t,
		s,
	)

	return serv.Serve(ctx)
}
