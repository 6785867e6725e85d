// ABOUTME: Entry point for the pepperaudio player
// ABOUTME: Parses CLI flags, loads config and plays a file through the selected driver
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Resonate-Protocol/pepperaudio/internal/app"
	"github.com/Resonate-Protocol/pepperaudio/internal/config"
	"github.com/Resonate-Protocol/pepperaudio/internal/ui"
	"github.com/Resonate-Protocol/pepperaudio/internal/version"
	"github.com/Resonate-Protocol/pepperaudio/pkg/audio/driver"
	tea "github.com/charmbracelet/bubbletea"
)

var (
	configFile  = flag.String("config", "", "Path to a YAML config file")
	audioFile   = flag.String("file", "", "Audio file to play (MP3, FLAC, WAV, PCM). If not specified, plays test tone")
	bridgeAddr  = flag.String("bridge", "", "Bridge host address (overrides bridge.addr)")
	driverName  = flag.String("driver", "", "Output driver (overrides driver / AUDIODRIVER)")
	name        = flag.String("name", "", "Player friendly name (default: hostname-pepperaudio)")
	listDrivers = flag.Bool("list-drivers", false, "List drivers and exit")
	noTUI       = flag.Bool("no-tui", false, "Disable TUI, use streaming logs instead")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	if *bridgeAddr != "" {
		cfg.BridgeAddr = *bridgeAddr
	}
	if *driverName != "" {
		cfg.Driver = *driverName
	}

	useTUI := !*noTUI && !*listDrivers

	// TUI mode: log only to file
	logFile := cfg.LogFile
	if useTUI && logFile == "" {
		logFile = "pepperaudio.log"
	}
	f, err := config.ConfigureLogger(cfg.LogLevel, logFile, slog.HandlerOptions{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		os.Exit(1)
	}
	if f != nil {
		defer f.Close()
	}

	playerName := *name
	if playerName == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		playerName = fmt.Sprintf("%s-pepperaudio", hostname)
	}

	var tuiProg *tea.Program
	var controls *ui.Controls
	if useTUI {
		controls = ui.NewControls()
		tuiProg = ui.Run(controls)
		go func() {
			if _, err := tuiProg.Run(); err != nil {
				slog.Error("tui error", "err", err)
			}
		}()
	}

	updateTUI := func(msg ui.StatusMsg) {
		if tuiProg != nil {
			tuiProg.Send(msg)
		}
	}

	player, err := app.New(app.Config{
		Settings: cfg,
		Source:   *audioFile,
		Name:     playerName,
		Status:   updateTUI,
	})
	if err != nil {
		slog.Error("failed to create player", "err", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigChan:
			slog.Info("shutdown signal received")
		case <-quitChan(controls):
			slog.Info("received quit signal from TUI")
		}
		player.Stop()
		cancel()
	}()

	if controls != nil {
		go handleVolumeControl(ctx, player, controls)
	}

	if err := player.Connect(ctx); err != nil {
		exit(tuiProg, "bridge connection failed", err)
	}

	if *listDrivers {
		printDrivers(player.Registry())
		player.Stop()
		return
	}

	slog.Info("starting playback", "player", playerName, "source", *audioFile, "driver", cfg.Driver)
	if err := player.Play(ctx); err != nil {
		exit(tuiProg, "playback failed", err)
	}

	player.Stop()
	if tuiProg != nil {
		tuiProg.Quit()
		tuiProg.Wait()
	}
	slog.Info("player stopped")
}

func quitChan(controls *ui.Controls) <-chan struct{} {
	if controls == nil {
		return nil
	}
	return controls.Quit
}

// handleVolumeControl processes volume changes from TUI
func handleVolumeControl(ctx context.Context, player *app.Player, controls *ui.Controls) {
	for {
		select {
		case vol := <-controls.Changes:
			slog.Debug("volume change", "volume", vol.Volume, "muted", vol.Muted)
			player.SetVolume(vol.Volume)
			player.SetMuted(vol.Muted)
		case <-ctx.Done():
			return
		}
	}
}

func printDrivers(registry *driver.Registry) {
	for _, d := range registry.Drivers() {
		status := "unavailable"
		if d.Available(os.Getenv) {
			status = "available"
		}
		fmt.Printf("%-8s %-12s %s\n", d.Name(), status, d.Description())
	}
}

func exit(tuiProg *tea.Program, msg string, err error) {
	if tuiProg != nil {
		tuiProg.Quit()
		tuiProg.Wait()
	}
	slog.Error(msg, "err", err)
	fmt.Fprintf(os.Stderr, "%s: %v\n", msg, err)
	if errors.Is(err, driver.ErrNoDriver) {
		fmt.Fprintln(os.Stderr, "run with -list-drivers to see what is available")
	}
	os.Exit(1)
}
