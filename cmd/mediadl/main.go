// Package main wires together the mediadl service binary.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/mediadl/mediadl/internal/config"
	"github.com/mediadl/mediadl/internal/logging"
	"github.com/mediadl/mediadl/internal/server"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}

	app, err := server.Build(cfg, logger)
	if err != nil {
		logger.Sugar().Fatalf("build application: %v", err)
	}
	if err := app.Run(context.Background()); err != nil {
		logger.Sugar().Fatalf("run application: %v", err)
	}
}
