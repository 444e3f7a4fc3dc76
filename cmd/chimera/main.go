// Package main runs the Chimera provider-orchestration service: a plugin
// registry over heterogeneous LLM backends, a router for chat/vision
// requests, and a lifecycle manager for browser-backed chat heads driven by
// computer-use tools.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ruslanmv/chimera/pkg/browser"
	"github.com/ruslanmv/chimera/pkg/config"
	"github.com/ruslanmv/chimera/pkg/logging"
	"github.com/ruslanmv/chimera/pkg/registry"
	"github.com/ruslanmv/chimera/pkg/router"
	"github.com/ruslanmv/chimera/pkg/server"
	"github.com/ruslanmv/chimera/pkg/status"
)

const version = "0.1.0"

func main() {
	configPath := flag.String("config", "", "path to config file (default ~/.chimera/config.yaml)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("Chimera v%s\n", version)
		return
	}

	if err := run(*configPath); err != nil {
		log.Fatalf("chimera: %v", err)
	}
}

func run(configPath string) error {
	settings, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger, err := logging.NewLogger("chimera")
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer logger.Close()

	logger.Infof("Chimera v%s starting, run %s", version, logger.RunID())

	reg, providers, err := registry.BuildCatalog(settings, logger)
	if err != nil {
		return fmt.Errorf("building provider catalog: %w", err)
	}
	logger.Infof("registered providers: %v", reg.Names())

	launcher := browser.NewPlaywrightLauncher(settings.Browser.UserDataDir, settings.Browser.Headless)
	manager := browser.NewManager(launcher, reg, browser.ManagerOptions{
		StartupTimeout:     time.Duration(settings.Browser.StartupTimeoutSec) * time.Second,
		ToolTimeout:        time.Duration(settings.Browser.ToolTimeoutSec) * time.Second,
		ScreenshotInterval: time.Duration(settings.Browser.ScreenshotIntervalSec) * time.Second,
		HealthInterval:     time.Duration(settings.Browser.HealthIntervalSec) * time.Second,
		ScreenshotDir:      settings.Browser.ScreenshotDir,
	}, logger)
	defer manager.Shutdown()

	dispatcher := browser.NewDispatcher(manager, settings.Browser.AllowedDomainList(), logger)

	rt := router.New(reg, manager, providers, router.Options{
		DefaultProvider: settings.DefaultProvider,
		ChatTurnTimeout: time.Duration(settings.Browser.ChatTurnTimeoutSec) * time.Second,
	}, logger)

	aggregator := status.New(reg, manager)

	srv := server.New(rt, manager, dispatcher, aggregator, server.Options{
		AuthToken:       settings.Server.AuthToken,
		ScreenshotDir:   settings.Browser.ScreenshotDir,
		Version:         version,
		DefaultProvider: settings.DefaultProvider,
	}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Infof("shutdown signal received")
		cancel()
	}()

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return manager.Run(ctx)
	})
	group.Go(func() error {
		return srv.ListenAndServe(ctx, settings.Server.Addr())
	})

	if err := group.Wait(); err != nil && ctx.Err() == nil {
		return err
	}

	logger.Infof("Chimera stopped")
	return nil
}
