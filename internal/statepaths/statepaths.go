// Package statepaths resolves where the bridge keeps its on-disk state.
package statepaths

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const dirName = ".clerkbridge"

// BaseDir is the state directory: state.dir when configured, otherwise
// ~/.clerkbridge (falling back to the working directory when the home
// directory cannot be resolved).
func BaseDir() string {
	if configured := strings.TrimSpace(viper.GetString("state.dir")); configured != "" {
		return configured
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return dirName
	}
	return filepath.Join(home, dirName)
}

// ContextFile is the JSON file holding the persisted conversation context.
func ContextFile() string {
	return filepath.Join(BaseDir(), "context.json")
}
