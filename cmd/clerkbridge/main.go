package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/clerkai/clerkbridge/cmd/clerkbridge/configcmd"
	"github.com/clerkai/clerkbridge/cmd/clerkbridge/contextcmd"
	"github.com/clerkai/clerkbridge/cmd/clerkbridge/servecmd"
)

var cfgFile string

func main() {
	rootCmd := &cobra.Command{
		Use:           "clerkbridge",
		Short:         "Slack-event-driven automation bridge for Jira ticket creation",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./clerkbridge.yaml)")
	cobra.OnInitialize(initConfig)

	rootCmd.AddCommand(
		servecmd.NewCommand(),
		contextcmd.NewCommand(),
		configcmd.NewCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	if strings.TrimSpace(cfgFile) != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("clerkbridge")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(home + "/.clerkbridge")
		}
	}
	viper.SetEnvPrefix("CLERKBRIDGE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			fmt.Fprintln(os.Stderr, "error: reading config:", err)
			os.Exit(1)
		}
	}
}
