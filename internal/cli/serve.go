package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"mcqq/internal/app"
	"mcqq/pkg/logger"
)

const shutdownTimeout = 30 * time.Second

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	var noWatch bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the chat router",
		Long: `Start the chat router.

This command connects every enabled connector, starts the managed Minecraft
server (when host.command is set) and relays chat until interrupted.`,
		Example: `  # Start with the default configuration
  mcqq serve

  # Start with a specific configuration file
  mcqq serve -c /srv/minecraft/mcqq.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, !noWatch)
		},
	}

	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "do not reload when the config file changes")

	return cmd
}

func runServe(cmd *cobra.Command, watch bool) error {
	cliCtx := GetCLIContext(cmd)
	if cliCtx == nil {
		return errNoContext
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info().Str("config", cliCtx.ConfigPath).Msg("Starting mcqq...")

	a, err := app.New(ctx, app.Options{Config: cliCtx.Config, Watch: watch})
	if err != nil {
		return err
	}
	if err := a.Start(ctx); err != nil {
		_ = a.Stop(context.Background())
		return err
	}

	<-ctx.Done()
	logger.Info().Msg("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.Stop(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Error during shutdown")
		return err
	}
	return nil
}
