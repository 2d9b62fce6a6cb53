package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"soup/internal/api"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the phrase collection over HTTP",
	Long: `Start the HTTP API:

  POST   /phrases        {"text": "..."}  add a phrase
  GET    /phrases                         list phrases
  DELETE /phrases/{id}                    remove a phrase
  POST   /search         {"text": "..."}  closest phrases with match percent
  GET    /healthz

Phrases left pending by an earlier run are embedded on start-up.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	if serveAddr != "" {
		GetConfig().Server.Addr = serveAddr
	}

	a, err := openApp(appOptions{})
	if err != nil {
		return err
	}
	defer a.Abort()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := api.NewServer(a.cfg.Server.Addr, a.svc, a.log)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return srv.Start()
	})

	g.Go(func() error {
		handled, err := a.svc.EmbedPending(gctx, nil)
		if handled > 0 {
			a.log.Info("recovered pending phrases", "count", handled)
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			// pending phrases stay pending; not fatal for serving
			a.log.Warn("pending recovery incomplete", "error", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Stop(shutdownCtx)
	})

	return g.Wait()
}
