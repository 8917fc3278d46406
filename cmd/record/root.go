package record

import (
	"github.com/ValentinKolb/dRec/cmd/util"
	"github.com/ValentinKolb/dRec/rpc/client"
	"github.com/ValentinKolb/dRec/rpc/common"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	records client.IRecordClient

	// RecordCommands represents the record command group
	RecordCommands = &cobra.Command{
		Use:                "record",
		Short:              "Create, read, search and delete records",
		PersistentPreRunE:  setupRecordClient,
		PersistentPostRunE: closeRecordClient,
	}
)

func init() {
	// Add common RPC flags to the record command
	util.SetupRPCClientFlags(RecordCommands)

	RecordCommands.PersistentFlags().Uint64("shard", 1, util.WrapString("ID of the shard (record collection) to connect to"))

	// Add subcommands
	RecordCommands.AddCommand(createCmd)
	RecordCommands.AddCommand(getCmd)
	RecordCommands.AddCommand(deleteCmd)
	RecordCommands.AddCommand(searchCmd)
	RecordCommands.AddCommand(perfTestCmd)
}

// setupRecordClient initializes the RPC record client
func setupRecordClient(cmd *cobra.Command, _ []string) error {
	// Bind command flags to viper
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	if err := common.InitLoggers(viper.GetString("log-level")); err != nil {
		return err
	}

	// Get client configuration components
	config := util.GetClientConfig()
	shardId := util.GetShardID()

	// Get serializer and transport
	s, err := util.GetSerializer()
	if err != nil {
		return err
	}

	t, err := util.GetTransport()
	if err != nil {
		return err
	}

	// Create the record client
	records, err = client.NewRPCRecordService(
		shardId,
		*config,
		t,
		s,
	)

	return err
}

func closeRecordClient(*cobra.Command, []string) error {
	if records == nil {
		return nil
	}
	return records.Close()
}
