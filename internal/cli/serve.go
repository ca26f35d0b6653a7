package cli

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/predictgate-dev/predictgate"
	"github.com/predictgate-dev/predictgate/internal/observability"
	pkgobs "github.com/predictgate-dev/predictgate/pkg/observability"
)

// Version is set via ldflags.
var Version = "dev"

func init() {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the prediction gateway",
		Run:   runServe,
	}

	RootCmd.AddCommand(cmd)
}

func runServe(cmd *cobra.Command, args []string) {
	log.Printf("Starting predictgate v%s", Version)

	cfg, err := loadConfig()
	if err != nil {
		exitErr("load config", err)
	}

	if err := observability.InitFromEnv(); err != nil {
		log.Printf("tracing disabled: %v", err)
	}

	gateway, err := predictgate.New(cfg)
	if err != nil {
		exitErr("start gateway", err)
	}

	if err := gateway.StartReconciler(); err != nil {
		exitErr("start reconciler", err)
	}

	obsServer := pkgobs.NewServer(cfg.Observability.MetricsPort, gateway.HealthChecker())

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Printf("observability server listening on :%d", cfg.Observability.MetricsPort)
		if err := obsServer.Start(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		log.Println("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := obsServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("observability server shutdown: %v", err)
		}
		if err := observability.Shutdown(shutdownCtx); err != nil {
			log.Printf("tracing shutdown: %v", err)
		}
		return gateway.Close()
	})

	if err := g.Wait(); err != nil {
		exitErr("serve", err)
	}

	log.Println("gateway stopped")
}
