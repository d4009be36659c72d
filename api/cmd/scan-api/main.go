package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"guild-roster/api/internal/app"
	"guild-roster/api/internal/config"
	"guild-roster/api/internal/handle"
	"guild-roster/api/internal/httpserver"
)

func main() {
	cfgPath := flag.String("config", "", "config file (default ./config.yaml when present)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cm, err := config.NewManager(*cfgPath, nil)
	if err != nil {
		slog.Error("config", "err", err)
		os.Exit(1)
	}
	cfg := cm.Get()
	log := config.NewLogger(cfg.Log, os.Stderr)
	slog.SetDefault(log)

	deps, err := app.Build(ctx, cfg, log)
	if err != nil {
		log.Error("startup failed", "err", err)
		os.Exit(1)
	}
	defer deps.Close()
	cm.OnChange(deps.Reload)
	cm.Watch()

	opts := []handle.Option{handle.WithStore(deps.Store), handle.WithLogger(log)}
	if deps.DB != nil {
		opts = append(opts, handle.WithPing(deps.DB.PingContext))
	}
	h := handle.New(deps.Sessions, deps.Service, deps.Engines, opts...)

	mux := http.NewServeMux()
	h.Register(mux)

	go deps.RunJanitor(ctx, time.Hour, cfg.Scan.SessionTTL, cfg.Scan.CacheTTL)

	if err := httpserver.Serve(ctx, ":"+cfg.Port, mux, log); err != nil {
		log.Error("scan-api stopped", "err", err)
		os.Exit(1)
	}
}
