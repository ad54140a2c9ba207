// Package main is the entry point for the quote-engine HTTP server.
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"

	"go.uber.org/zap"

	"quote-engine/api"
	"quote-engine/core/engine"
	"quote-engine/internal/config"
	"quote-engine/internal/logging"
)

const version = "0.1.0"

func main() {
	cfgFile := flag.String("config", "", "application config file (JSON or HCL)")
	addr := flag.String("addr", "", "listen address (overrides config)")
	flag.Parse()

	cfg := config.Get()
	if *cfgFile != "" {
		loaded, err := config.Load(*cfgFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}
		config.Set(loaded)
		cfg = loaded
	}
	if err := logging.Initialize(cfg.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logging: %v\n", err)
	}
	defer logging.Sync()

	eng, err := engine.New(engine.Config{
		Currency:       cfg.Currency,
		ModelCacheSize: cfg.ModelCacheSize,
	})
	if err != nil {
		logging.Fatal("engine initialization failed", zap.Error(err))
	}
	defer eng.Close()

	listen := cfg.Server.Addr
	if *addr != "" {
		listen = *addr
	}

	server := api.NewServer(eng, version)
	logging.Info("quote-engine listening", zap.String("addr", listen))
	if err := http.ListenAndServe(listen, server); err != nil {
		logging.Fatal("server failed", zap.Error(err))
	}
}
