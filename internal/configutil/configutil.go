// Package configutil resolves settings from command flags with viper fallback:
// an explicitly-set flag wins over the config file / environment.
package configutil

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func FlagOrViperString(cmd *cobra.Command, flagName, viperKey string) string {
	if cmd != nil && cmd.Flags().Changed(flagName) {
		value, err := cmd.Flags().GetString(flagName)
		if err == nil {
			return value
		}
	}
	return viper.GetString(viperKey)
}

func FlagOrViperBool(cmd *cobra.Command, flagName, viperKey string) bool {
	if cmd != nil && cmd.Flags().Changed(flagName) {
		value, err := cmd.Flags().GetBool(flagName)
		if err == nil {
			return value
		}
	}
	return viper.GetBool(viperKey)
}
