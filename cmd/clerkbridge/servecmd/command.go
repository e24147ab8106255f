// Package servecmd runs the bridge: it wires the selected service backend,
// the context store and the dispatcher, then serves the webhook (and
// optionally a Socket Mode connection) until interrupted.
package servecmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/clerkai/clerkbridge/agent"
	"github.com/clerkai/clerkbridge/contextstore"
	"github.com/clerkai/clerkbridge/internal/configutil"
	"github.com/clerkai/clerkbridge/internal/logging"
	"github.com/clerkai/clerkbridge/internal/statepaths"
	"github.com/clerkai/clerkbridge/internal/webhookd"
	"github.com/clerkai/clerkbridge/services"
	"github.com/clerkai/clerkbridge/services/broker"
	"github.com/clerkai/clerkbridge/services/direct"
)

const (
	backendDirect = "direct"
	backendBroker = "broker"
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the Slack events webhook and context endpoints",
		RunE:  runServe,
	}
	cmd.Flags().String("listen", ":3000", "HTTP listen address")
	cmd.Flags().Bool("socket-mode", false, "ingest Slack events over Socket Mode instead of the webhook")
	cmd.Flags().String("backend", "", "service backend: direct or broker")
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	logger, err := logging.FromViper()
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	socketMode := configutil.FlagOrViperBool(cmd, "socket-mode", "slack.socket_mode")
	listen := strings.TrimSpace(configutil.FlagOrViperString(cmd, "listen", "http.listen"))
	if listen == "" {
		listen = ":3000"
	}

	defaultChannel := strings.TrimSpace(viper.GetString("slack.default_channel_id"))
	if defaultChannel == "" {
		return &services.ConfigurationError{Key: "slack.default_channel_id"}
	}
	projectKey := strings.TrimSpace(viper.GetString("jira.project_key"))
	if projectKey == "" {
		return &services.ConfigurationError{Key: "jira.project_key"}
	}
	signingSecret := strings.TrimSpace(viper.GetString("slack.signing_secret"))
	if !socketMode && signingSecret == "" {
		return &services.ConfigurationError{Key: "slack.signing_secret"}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := buildServiceClient(ctx, cmd, logger)
	if err != nil {
		return err
	}

	store, err := contextstore.New(contextstore.Options{
		Fetcher:        client,
		DefaultChannel: defaultChannel,
		StatePath:      statepaths.ContextFile(),
		Logger:         logger,
	})
	if err != nil {
		return err
	}
	store.Load()
	if err := store.Refresh(ctx, ""); err != nil {
		// Stale (or empty) context is usable; startup continues.
		logger.Warn("startup_context_refresh_failed", "error", err.Error())
	}

	dispatcher, err := agent.NewDispatcher(agent.DispatcherOptions{
		Client:         client,
		DefaultChannel: defaultChannel,
		ProjectKey:     projectKey,
		IssueType:      viper.GetString("jira.issue_type"),
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	if _, err := webhookd.StartServer(ctx, logger, webhookd.ServerOptions{
		Listen: listen,
		Routes: webhookd.RoutesOptions{
			SigningSecret: signingSecret,
			AuthToken:     viper.GetString("http.auth_token"),
			Store:         store,
			Dispatcher:    dispatcher,
			Logger:        logger,
		},
	}); err != nil {
		return err
	}

	if socketMode {
		if err := runSocketMode(ctx, logger, store, dispatcher); err != nil {
			return err
		}
		return nil
	}

	<-ctx.Done()
	logger.Info("serve_shutdown")
	return nil
}

func buildServiceClient(ctx context.Context, cmd *cobra.Command, logger *slog.Logger) (services.Client, error) {
	backend := strings.TrimSpace(strings.ToLower(configutil.FlagOrViperString(cmd, "backend", "services.backend")))
	if backend == "" {
		backend = backendDirect
	}

	switch backend {
	case backendDirect:
		return direct.New(direct.Options{
			SlackBotToken: viper.GetString("slack.bot_token"),
			JiraBaseURL:   viper.GetString("jira.base_url"),
			JiraEmail:     viper.GetString("jira.email"),
			JiraAPIToken:  viper.GetString("jira.api_token"),
		})

	case backendBroker:
		client, err := broker.New(broker.Options{
			BaseURL:   viper.GetString("broker.base_url"),
			APIKey:    viper.GetString("broker.api_key"),
			UserID:    viper.GetString("broker.user_id"),
			AuthzWait: viper.GetDuration("broker.authz_wait"),
			AuthzURLNotify: func(tool, url string) {
				logger.Warn("broker_authorization_pending", "tool", tool, "url", url)
			},
		})
		if err != nil {
			return nil, err
		}
		// Without grants the bridge cannot serve traffic; fail startup.
		if err := client.EnsureAuthorized(ctx); err != nil {
			return nil, err
		}
		return client, nil

	default:
		return nil, fmt.Errorf("unknown services.backend %q (want direct or broker)", backend)
	}
}
