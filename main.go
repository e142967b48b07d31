// ABOUTME: Entry point for the Soundrift console
// ABOUTME: Parses flags, loads config, and starts the playback console
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/Soundrift/soundrift-go/internal/app"
	"github.com/Soundrift/soundrift-go/internal/config"
	"github.com/Soundrift/soundrift-go/internal/discovery"
	"github.com/Soundrift/soundrift-go/internal/ui"
	"github.com/Soundrift/soundrift-go/internal/version"
)

var (
	serverAddr  = flag.String("server", "", "Generation service address (skip mDNS discovery)")
	modelID     = flag.String("model", "", "Generation model id")
	metricsAddr = flag.String("metrics-addr", "", "Prometheus listen address (empty disables)")
	logFile     = flag.String("log-file", "", "Log file path")
	noTUI       = flag.Bool("no-tui", false, "Disable TUI, run headless with streaming logs")
)

func main() {
	flag.Parse()

	cfg := config.Load()
	if *serverAddr != "" {
		cfg.ServerAddr = *serverAddr
	}
	if *modelID != "" {
		cfg.ModelID = *modelID
	}
	if *metricsAddr != "" {
		cfg.MetricsAddr = *metricsAddr
	}
	if *logFile != "" {
		cfg.LogFile = *logFile
	}

	logger, err := buildLogger(cfg.LogFile, *noTUI)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error setting up logging: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting soundrift console",
		zap.String("version", version.Version),
		zap.String("model", cfg.ModelID))

	// Discover a local generation gateway when no server is configured.
	if cfg.ServerAddr == "" {
		browser := discovery.NewBrowser(logger)
		browser.Browse()

		select {
		case gw := <-browser.Gateways():
			cfg.ServerAddr = fmt.Sprintf("%s:%d", gw.Host, gw.Port)
			logger.Info("using discovered gateway", zap.String("addr", cfg.ServerAddr))
		case <-time.After(10 * time.Second):
			logger.Error("no generation gateway found after 10s; use -server")
			os.Exit(1)
		}
		browser.Stop()
	}

	controls := ui.NewControls()

	var prog *tea.Program
	var progSend func(tea.Msg)
	if !*noTUI {
		prog = ui.Run(controls)
		progSend = prog.Send
	}

	console, err := app.New(cfg, controls, progSend, logger)
	if err != nil {
		logger.Error("failed to start console", zap.Error(err))
		os.Exit(1)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- console.Run() }()

	if prog != nil {
		go func() {
			if _, err := prog.Run(); err != nil {
				logger.Error("tui stopped", zap.Error(err))
			}
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error("console stopped", zap.Error(err))
		}
	}

	console.Stop()
	if prog != nil {
		prog.Quit()
	}
	logger.Info("console stopped")
}

// buildLogger logs to file in TUI mode (the terminal belongs to the TUI)
// and to both stdout and file when headless.
func buildLogger(path string, headless bool) (*zap.Logger, error) {
	zcfg := zap.NewDevelopmentConfig()
	if headless {
		zcfg.OutputPaths = []string{"stdout", path}
	} else {
		zcfg.OutputPaths = []string{path}
	}
	zcfg.ErrorOutputPaths = zcfg.OutputPaths
	return zcfg.Build()
}
