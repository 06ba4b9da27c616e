// Command relay runs the webhook relay: the HTTP ingress/management server,
// the delivery worker, and a seed helper for local development.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Mindburn-Labs/relay/pkg/api"
	"github.com/Mindburn-Labs/relay/pkg/config"
	"github.com/Mindburn-Labs/relay/pkg/observability"
	"github.com/Mindburn-Labs/relay/pkg/worker"
)

func main() {
	cmd := "server"
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}

	cfg := config.Load()
	setupLogging(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch cmd {
	case "server":
		err = runServer(ctx, cfg)
	case "worker":
		err = runWorker(ctx, cfg)
	case "seed":
		err = runSeed(ctx, cfg, os.Args[2:])
	case "health":
		err = runHealth(cfg)
	case "help", "-h", "--help":
		usage()
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("[relay] %s: %v", cmd, err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: relay [command]

Commands:
  server   run the HTTP server (default)
  worker   run the delivery workers
  seed     provision a demo tenant and print its credentials
  health   probe a running server's /health endpoint
  help     show this help`)
}

func setupLogging(level string) {
	var lvl slog.Level
	switch strings.ToUpper(level) {
	case "DEBUG":
		lvl = slog.LevelDebug
	case "WARN", "WARNING":
		lvl = slog.LevelWarn
	case "ERROR":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})))
}

func runHealth(cfg *config.Config) error {
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get("http://localhost:" + cfg.Port + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	fmt.Println("ok")
	return nil
}

func runServer(ctx context.Context, cfg *config.Config) error {
	rt, err := openRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	srv := api.NewServer(cfg, api.Deps{
		Tenants:    rt.Tenants,
		Keys:       rt.Keys,
		Targets:    rt.Targets,
		Events:     rt.Events,
		Deliveries: rt.Deliveries,
		Blobs:      rt.Blobs,
		Queue:      rt.Queue,
		Limiter:    rt.Limiter,
		Metrics:    observability.New(),
		Logger:     slog.Default(),
	})

	httpSrv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}()

	log.Printf("[relay] listening on :%s", cfg.Port)
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	log.Printf("[relay] server stopped")
	return nil
}

func runWorker(ctx context.Context, cfg *config.Config) error {
	rt, err := openRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	fwd := worker.NewForwarder(rt.Events, rt.Targets, rt.Deliveries, rt.Queue,
		observability.New(), slog.Default())
	pool := worker.NewPool(rt.Queue, fwd, 4, slog.Default())
	pool.Run(ctx)
	return nil
}
