package cli

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"live-quiz-service/internal/config"
	transport "live-quiz-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.Auth.JWTSecret == "" {
		return errors.New("auth.jwtSecret (or JWT_SECRET) is required")
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	b, err := connectBackends(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.Close()

	loader, source, err := b.quizLoader()
	if err != nil {
		return err
	}
	store, storeName := b.sessionStore()
	events, eventsName := b.broadcaster()
	service, err := b.gameService(b.quizRepository(loader), store, events)
	if err != nil {
		return err
	}
	log.Printf("quizzes from %s, sessions in %s, events via %s", source, storeName, eventsName)

	server := &http.Server{
		Addr:        ":" + finalPort,
		Handler:     transport.NewRouter(service, transport.NewIdentityProvider(cfg.Auth.JWTSecret)),
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: it would cut long-lived WebSocket connections.
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("starting quiz service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Println("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
