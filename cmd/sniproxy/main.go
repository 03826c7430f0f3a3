package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"sniproxy/internal/config"
	"sniproxy/internal/metrics"
	"sniproxy/internal/server"
	"sniproxy/internal/ui"

	"github.com/joho/godotenv"
)

func main() {
	// Load .env file if it exists; production deployments may rely on
	// system env vars instead, so a missing file is not an error.
	_ = godotenv.Load()

	ui.PrintBanner()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		ui.LogStatus("error", err.Error())
		os.Exit(1)
	}
	ui.LogStatus("info", cfg.String())

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	metricsSrv := metrics.NewServer(cfg.MetricsListen)
	metricsSrv.Start(func(err error) {
		ui.LogStatus("error", "Metrics server failed: "+err.Error())
	})
	go func() {
		<-ctx.Done()
		ui.LogStatus("warn", "Shutting down metrics server...")
		metricsSrv.Shutdown(context.Background())
	}()

	// SIGHUP reloads the allowlist and timeouts from disk without
	// dropping in-flight connections. Unlike the teacher, this proxy
	// never terminates TLS, so there is no certificate to reload.
	srv := server.New(cfg)
	sighup := make(chan os.Signal, 1)
	signal.Notify(sighup, syscall.SIGHUP)
	go func() {
		for {
			select {
			case <-sighup:
				ui.LogStatus("info", "SIGHUP received, reloading configuration...")
				reloaded := config.Load()
				if err := reloaded.Validate(); err != nil {
					ui.LogStatus("error", "Reload failed: "+err.Error())
					continue
				}
				srv.Reload(reloaded)
				ui.LogStatus("success", "Configuration reloaded")
			case <-ctx.Done():
				return
			}
		}
	}()

	if err := srv.Start(ctx); err != nil {
		ui.LogStatus("error", "Server failed: "+err.Error())
		log.Fatal(err)
	}
}
