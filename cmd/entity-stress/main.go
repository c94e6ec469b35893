package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	Version = "0.1.0"
)

var (
	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "entity-stress",
		Short: "stress tests the generational entity allocator",
		Long: fmt.Sprintf(`entity-stress (v%s)

Drives an entity allocator through frames of concurrent reservations,
flushes and frees, and checks that no entity is ever handed out twice.`, Version),
		SilenceUsage: true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of entity-stress",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("entity-stress v%s\n", Version)
		},
	}
)

func init() {
	cobra.OnInitialize(initEnv)

	RootCmd.AddCommand(runCmd)
	RootCmd.AddCommand(versionCmd)

	RootCmd.PersistentFlags().String("config", "", "path to a TOML config file")
	RootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	RootCmd.PersistentFlags().String("log-format", "", "log format (console, json)")
}

// initEnv loads .env files and lets ENTSTRESS_* variables override flags.
func initEnv() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	viper.SetEnvPrefix("entstress")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func main() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
