package coachrag

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mwiater/coachrag/internal/metrics"
	"github.com/mwiater/coachrag/internal/server"
	"github.com/spf13/cobra"
)

// serveCmd exposes the assistant over HTTP.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the assistant as a JSON HTTP API",
	Long: `Serve loads the index once and answers POST /api/ask requests until interrupted.
Routes: GET /health, GET /api/index, GET /api/examples, GET /api/metrics, POST /api/ask, POST /api/preview.
When metricsFile is set, request statistics are saved there every minute and on shutdown.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := requireConfig()
		if err != nil {
			return err
		}
		parent := cmd.Context()
		if parent == nil {
			parent = context.Background()
		}
		ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
		defer stop()

		addr := cfg.Listen()
		if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
			addr = listen
		}

		assistant, err := newAssistant(ctx, cfg)
		if err != nil {
			return err
		}

		agg := metrics.NewAggregator(cfg.MetricsFile)
		runCtx, cancelRun := context.WithCancel(ctx)
		saved := make(chan struct{})
		go func() {
			agg.Run(runCtx, time.Minute)
			close(saved)
		}()

		err = server.New(assistant, server.Options{Metrics: agg}).Listen(ctx, addr)
		cancelRun()
		<-saved
		return err
	},
}

func init() {
	serveCmd.Flags().String("listen", "", "address to listen on, e.g. :8080")
	rootCmd.AddCommand(serveCmd)
}
