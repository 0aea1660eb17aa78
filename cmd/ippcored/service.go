package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/kardianos/service"

	"github.com/michaelrsweet/pappl-sub004/internal/config"
)

// program implements service.Interface, following the teacher's
// server/service.go program type: Start launches runServer in a goroutine,
// Stop cancels its context and waits (bounded) for it to return.
type program struct {
	configPath string

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	svcLog service.Logger
}

func (p *program) Start(s service.Service) error {
	p.svcLog, _ = s.Logger(nil)
	p.ctx, p.cancel = context.WithCancel(context.Background())
	p.done = make(chan struct{})
	go p.run()
	return nil
}

func (p *program) run() {
	defer close(p.done)
	if err := runServer(p.ctx, p.configPath); err != nil && p.svcLog != nil {
		p.svcLog.Error(err)
	}
}

func (p *program) Stop(s service.Service) error {
	if p.cancel != nil {
		p.cancel()
	}
	select {
	case <-p.done:
	case <-time.After(30 * time.Second):
		if p.svcLog != nil {
			p.svcLog.Warning("ippcored: service stop timed out waiting for shutdown")
		}
	}
	return nil
}

func serviceConfig() *service.Config {
	var workingDir string
	switch runtime.GOOS {
	case "windows":
		workingDir = filepath.Join(os.Getenv("ProgramData"), "ippcore")
	case "darwin":
		workingDir = "/Library/Application Support/ippcore"
	default:
		workingDir = "/var/lib/ippcore"
	}

	return &service.Config{
		Name:             "ippcored",
		DisplayName:      "IPP Everywhere Printer Core",
		Description:      "Serves IPP Everywhere printers and the web admin UI.",
		WorkingDirectory: workingDir,
		Arguments:        []string{"--service", "run"},
		Option: service.KeyValue{
			"Restart":           "on-failure",
			"RestartSec":        5,
			"SuccessExitStatus": "0 SIGTERM",
			"KillMode":          "mixed",
			"KillSignal":        "SIGTERM",
		},
	}
}

// handleServiceCommand implements install/uninstall/start/stop/restart/run
// against the OS service manager (spec.md §6 "start-server"/"shutdown-server"
// running as an installable service), following the teacher's
// server/main.go handleServiceCommand switch over the same service.Service
// methods.
func handleServiceCommand(cmd, configPath string) {
	prg := &program{configPath: configPath}
	s, err := service.New(prg, serviceConfig())
	if err != nil {
		fmt.Fprintf(os.Stderr, "ippcored: create service: %v\n", err)
		os.Exit(1)
	}

	switch cmd {
	case "install":
		err = s.Install()
	case "uninstall":
		err = s.Uninstall()
	case "start":
		err = s.Start()
	case "stop":
		err = s.Stop()
	case "restart":
		err = s.Restart()
	case "run":
		err = s.Run()
	default:
		fmt.Fprintf(os.Stderr, "ippcored: unknown service command %q\n", cmd)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "ippcored: service %s: %v\n", cmd, err)
		os.Exit(1)
	}
	if cmd != "run" {
		fmt.Printf("ippcored: service %s succeeded\n", cmd)
	}
}

// loadTLSConfig loads the configured certificate/key pair for an "https"
// listener (spec.md §6 "/tls-install", "/tls-new-crt").
func loadTLSConfig(cfg config.Config) (*tls.Config, error) {
	if cfg.TLSCertPath == "" || cfg.TLSKeyPath == "" {
		return nil, fmt.Errorf("tls listener configured without tls_cert_path/tls_key_path")
	}
	cert, err := tls.LoadX509KeyPair(cfg.TLSCertPath, cfg.TLSKeyPath)
	if err != nil {
		return nil, fmt.Errorf("load tls keypair: %w", err)
	}
	return &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12}, nil
}
