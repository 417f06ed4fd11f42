// -----------------------------------------------------------------------
// Last Modified: Tuesday, 28th April 2026 9:30:15 am
// Modified By: Bob McAllan
// -----------------------------------------------------------------------

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/orbital/internal/app"
	"github.com/ternarybob/orbital/internal/common"
	"github.com/ternarybob/orbital/internal/server"
)

// configPaths is a custom flag type that allows multiple -config flags
type configPaths []string

func (c *configPaths) String() string {
	return fmt.Sprintf("%v", *c)
}

func (c *configPaths) Set(value string) error {
	*c = append(*c, value)
	return nil
}

var (
	configFiles  configPaths
	serverPort   = flag.Int("port", 0, "Server port (overrides config)")
	serverHost   = flag.String("host", "", "Server host (overrides config)")
	showVersion  = flag.Bool("version", false, "Print version information")
	showVersionV = flag.Bool("v", false, "Print version information (shorthand)")

	config *common.Config
	logger arbor.ILogger
)

func init() {
	flag.Var(&configFiles, "config", "Configuration file path (can be specified multiple times, later files override earlier ones)")
	flag.Var(&configFiles, "c", "Configuration file path (shorthand)")
}

func main() {
	flag.Parse()

	if *showVersion || *showVersionV {
		fmt.Printf("Orbital version %s\n", common.GetVersion())
		os.Exit(0)
	}

	// Startup sequence:
	// 1. Load config (defaults -> files -> env)
	// 2. Apply CLI overrides
	// 3. Initialize logger
	// 4. Print banner
	var err error

	if len(configFiles) == 0 {
		if _, err := os.Stat("orbital.toml"); err == nil {
			configFiles = append(configFiles, "orbital.toml")
		} else if _, err := os.Stat("deployments/local/orbital.toml"); err == nil {
			configFiles = append(configFiles, "deployments/local/orbital.toml")
		}
	}

	config, err = common.LoadFromFiles(configFiles...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if *serverPort != 0 {
		config.Server.Port = *serverPort
	}
	if *serverHost != "" {
		config.Server.Host = *serverHost
	}

	common.LoadVersionFromFile()
	logger = common.SetupLogger(config)
	common.PrintBanner(config, logger)

	application, err := app.New(config, logger)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to initialize application")
		common.Stop()
		os.Exit(1)
	}

	if err := application.Start(); err != nil {
		logger.Error().Err(err).Msg("Failed to start application")
		common.Stop()
		os.Exit(1)
	}

	httpServer := server.New(application)

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("HTTP server failed")
		}
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	}

	common.PrintShutdownBanner(logger)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("HTTP shutdown incomplete")
	}
	if err := application.Close(); err != nil {
		logger.Warn().Err(err).Msg("Application shutdown incomplete")
	}
	common.Stop()
}
