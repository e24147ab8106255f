// Package configcmd manages the clerkbridge config file.
package configcmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const defaultConfig = `# clerkbridge configuration.
# Every key can also be set via environment variables with the CLERKBRIDGE_
# prefix and dots replaced by underscores, e.g. CLERKBRIDGE_SLACK_BOT_TOKEN.

log:
  format: text # text | json
  level: info  # debug | info | warn | error

http:
  listen: ":3000"
  # auth_token guards GET /context and POST /context/refresh when set.
  auth_token: ""

# direct: call Slack/Jira vendor APIs; broker: relay through a tool broker.
services:
  backend: direct

slack:
  bot_token: ""
  signing_secret: ""
  default_channel_id: ""
  # Socket Mode replaces the events webhook; requires the app token.
  socket_mode: false
  app_token: ""

jira:
  base_url: ""
  email: ""
  api_token: ""
  project_key: ""
  issue_type: Task

broker:
  base_url: ""
  api_key: ""
  user_id: ""
  authz_wait: 2m

state:
  dir: "" # default: ~/.clerkbridge
`

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the clerkbridge configuration file",
	}
	cmd.AddCommand(newInitCmd())
	return cmd
}

func newInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write a commented default config file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "clerkbridge.yaml"
			if len(args) == 1 && strings.TrimSpace(args[0]) != "" {
				path = strings.TrimSpace(args[0])
			}
			if !force {
				if _, err := os.Stat(path); err == nil {
					return fmt.Errorf("%s already exists (use --force to overwrite)", path)
				}
			}
			// Guard against template drift before writing anything.
			var parsed map[string]any
			if err := yaml.Unmarshal([]byte(defaultConfig), &parsed); err != nil {
				return fmt.Errorf("default config template is invalid: %w", err)
			}
			if err := os.WriteFile(path, []byte(defaultConfig), 0o600); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}
