// ABOUTME: Entry point for the Pepper bridge host
// ABOUTME: Parses CLI flags and plays remote plugin audio on a local driver
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Resonate-Protocol/pepperaudio/internal/config"
	"github.com/Resonate-Protocol/pepperaudio/internal/hostbridge"
	"github.com/Resonate-Protocol/pepperaudio/internal/ui"
	"github.com/Resonate-Protocol/pepperaudio/pkg/audio/driver"
	"github.com/Resonate-Protocol/pepperaudio/pkg/audio/driver/disk"
	"github.com/Resonate-Protocol/pepperaudio/pkg/audio/driver/dummy"
	"github.com/Resonate-Protocol/pepperaudio/pkg/audio/driver/malgoaudio"
	"github.com/Resonate-Protocol/pepperaudio/pkg/audio/driver/otoaudio"
)

var (
	configFile = flag.String("config", "", "Path to a YAML config file")
	port       = flag.Int("port", 0, "Bridge port (overrides bridge.port)")
	name       = flag.String("name", "", "Host friendly name (default: hostname-pepper-host)")
	driverName = flag.String("driver", "", "Local output driver (overrides driver / AUDIODRIVER)")
	noMDNS     = flag.Bool("no-mdns", false, "Disable mDNS advertisement")
	noTUI      = flag.Bool("no-tui", false, "Disable TUI, log to stdout instead")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.BridgePort = *port
	}
	if *driverName != "" {
		cfg.Driver = *driverName
	}
	if *noMDNS {
		cfg.BridgeMDNS = false
	}

	// The TUI owns the terminal, so logs go to a file
	logFile := cfg.LogFile
	if !*noTUI && logFile == "" {
		logFile = "pepper-host.log"
	}
	f, err := config.ConfigureLogger(cfg.LogLevel, logFile, slog.HandlerOptions{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		os.Exit(1)
	}
	if f != nil {
		defer f.Close()
	}

	hostName := *name
	if hostName == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		hostName = fmt.Sprintf("%s-pepper-host", hostname)
	}

	registry := driver.NewRegistry(
		otoaudio.New(),
		malgoaudio.New(),
		disk.New(disk.Options{Path: cfg.DiskPath}),
		dummy.New(dummy.Options{}),
	)

	srv := hostbridge.NewServer(hostbridge.ServerConfig{
		Port:       cfg.BridgePort,
		Name:       hostName,
		EnableMDNS: cfg.BridgeMDNS,
		Driver:     cfg.Driver,
		Registry:   registry,
	})

	slog.Info("starting pepper bridge host", "name", hostName, "port", cfg.BridgePort)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if *noTUI {
		go func() {
			sig := <-sigChan
			slog.Info("shutting down", "signal", sig.String())
			srv.Stop()
		}()
	} else {
		tui := ui.NewHostTUI()
		go func() {
			select {
			case <-sigChan:
			case <-tui.QuitChan():
			}
			srv.Stop()
			tui.Stop()
		}()
		go statsLoop(srv, tui, hostName, cfg.BridgePort)
		go func() {
			if err := tui.Start(hostName, cfg.BridgePort); err != nil {
				slog.Error("tui error", "err", err)
			}
		}()
	}

	if err := srv.Start(); err != nil {
		slog.Error("bridge host error", "err", err)
		os.Exit(1)
	}
}

// statsLoop periodically pushes server stats to the TUI
func statsLoop(srv *hostbridge.Server, tui *ui.HostTUI, name string, port int) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for range ticker.C {
		stats := srv.Stats()
		tui.Update(ui.HostStatus{
			Name:           name,
			Port:           port,
			Sessions:       stats.Sessions,
			ActiveSessions: stats.ActiveSessions,
			BuffersPlayed:  stats.BuffersPlayed,
			Driver:         stats.Driver,
			Spec:           stats.Spec,
		})
	}
}
