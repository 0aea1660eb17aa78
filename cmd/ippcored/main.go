// Command ippcored is the IPP Everywhere printer-core daemon: it loads
// config.toml, opens the persisted System, and serves IPP plus the web
// admin UI on the configured listeners until signaled to stop. It also
// installs as a platform service (spec.md §6 "start-server"/"shutdown-server"
// CLI hooks), following the teacher's server/main.go + server/service.go
// kardianos/service wiring.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kardianos/service"

	"github.com/michaelrsweet/pappl-sub004/internal/config"
	"github.com/michaelrsweet/pappl-sub004/internal/core"
	"github.com/michaelrsweet/pappl-sub004/internal/corelog"
	"github.com/michaelrsweet/pappl-sub004/internal/httpserver"
)

const configFilename = "config.toml"

func main() {
	configPath := flag.String("config", "", "Configuration file path (searches platform default locations if unset)")
	generateConfig := flag.Bool("generate-config", false, "Write a default config.toml at --config and exit")
	svcCommand := flag.String("service", "", "Service command: install, uninstall, start, stop, restart, run")
	flag.Parse()

	if *generateConfig {
		path := *configPath
		if path == "" {
			path = configFilename
		}
		if err := config.Save(path, config.Defaults()); err != nil {
			fmt.Fprintf(os.Stderr, "ippcored: generate config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("ippcored: wrote default configuration to %s\n", path)
		return
	}

	if *svcCommand != "" {
		handleServiceCommand(*svcCommand, *configPath)
		return
	}

	if !service.Interactive() {
		prg := &program{configPath: *configPath}
		s, err := service.New(prg, serviceConfig())
		if err != nil {
			fmt.Fprintf(os.Stderr, "ippcored: create service: %v\n", err)
			os.Exit(1)
		}
		if err := s.Run(); err != nil {
			fmt.Fprintf(os.Stderr, "ippcored: service run: %v\n", err)
			os.Exit(1)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := runServer(ctx, *configPath); err != nil {
		fmt.Fprintf(os.Stderr, "ippcored: %v\n", err)
		os.Exit(1)
	}
}

// runServer implements the "start-server" CLI hook of spec.md §6: load
// config, assemble the System and HTTP listeners, and block until ctx is
// canceled (Ctrl-C, SIGTERM, or a service Stop).
func runServer(ctx context.Context, configFlag string) error {
	filename := configFlag
	if filename == "" {
		filename = configFilename
	}
	cfg, err := config.Load(filename)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := corelog.New(corelog.LevelFromString(cfg.LogLevel), cfg.SpoolDir, "ippcored", 1000)
	defer log.Close()

	sys, err := core.New(cfg, log)
	if err != nil {
		return fmt.Errorf("initialize system: %w", err)
	}

	specs := make([]httpserver.ListenerSpec, 0, len(cfg.Listeners))
	for _, raw := range cfg.Listeners {
		spec, err := httpserver.ParseListener(raw)
		if err != nil {
			log.Warn("ippcored: skipping listener", "err", err.Error())
			continue
		}
		if spec.Scheme == "https" {
			tlsCfg, err := loadTLSConfig(cfg)
			if err != nil {
				log.Warn("ippcored: skipping https listener", "err", err.Error())
				continue
			}
			spec.TLS = tlsCfg
		}
		specs = append(specs, spec)
	}

	admin := httpserver.NewAdminMux(sys, log)
	srv := httpserver.New(sys, log, admin)

	log.Info("ippcored: starting", "hostname", cfg.Hostname, "uuid", sys.UUID)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ctx, specs) }()

	// Serve blocks until ctx is canceled (or fails outright setting up
	// listeners), so waiting on errCh alone covers both the Ctrl-C/SIGTERM
	// path and an early listener error.
	if err := <-errCh; err != nil {
		log.Error("ippcored: listener setup failed", "err", err.Error())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := sys.Shutdown(shutdownCtx); err != nil {
		log.Warn("ippcored: shutdown error", "err", err.Error())
	}
	return nil
}
