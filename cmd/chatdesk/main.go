package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/chatdesk/chatdesk/internal/version"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "chatdesk",
	Short: "Chatdesk is a chat-event admission and routing engine",
	Long:  "Chatdesk ingests inbound chat events, materializes contacts and tickets, and routes conversations into service queues with business-hours admission.",
	Run: func(cmd *cobra.Command, args []string) {
		runServe()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: config.toml or $CONFIG_PATH)")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(versionCmd())
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("chatdesk %s\n", version.GetInfo())
		},
	}
}

func resolveConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return os.Getenv("CONFIG_PATH")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
