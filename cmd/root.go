package cmd

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/dRec/cmd/record"
	"github.com/ValentinKolb/dRec/cmd/serve"
	"github.com/ValentinKolb/dRec/cmd/util"
	"github.com/spf13/cobra"
)

const (
	Version = "0.3.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "drec",
		Short: "record store with optimistic transactions and search",
		Long: fmt.Sprintf(`dRec (v%s)

A record store written in Go. Records are stored as hashes in redis,
writes are conditional (create if absent, delete if present) and run in
optimistic WATCH/MULTI/EXEC transactions, reads and searches go through
a secondary search index.`, Version),
		SilenceUsage: true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of dRec",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("dRec v%s\n", Version)
		},
	}
)

func init() {
	// Initialize viper (flags, env variables and .env files)
	cobra.OnInitialize(util.InitConfig)

	// Add Commands
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(record.RecordCommands)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	key := "serializer"
	RootCmd.PersistentFlags().String(key, "json", util.WrapString("serializer to use (json, gob)"))
	key = "transport"
	RootCmd.PersistentFlags().String(key, "http", util.WrapString("transport to use (http)"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
