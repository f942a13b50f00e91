// agentlink - headless game client agent
//
// agentlink holds a session with a voxel game server over its reliable UDP
// protocol, journals chat and sessions to SQLite, exposes a REST and
// websocket API for remote control, and bridges events to MQTT.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/voxel-agent/agentlink/internal/api"
	"github.com/voxel-agent/agentlink/internal/cli"
	"github.com/voxel-agent/agentlink/internal/config"
	"github.com/voxel-agent/agentlink/internal/connector"
	"github.com/voxel-agent/agentlink/internal/db"
	"github.com/voxel-agent/agentlink/internal/events"
	"github.com/voxel-agent/agentlink/internal/health"
	"github.com/voxel-agent/agentlink/internal/scheduler"
	"github.com/voxel-agent/agentlink/internal/telemetry"
	"github.com/voxel-agent/agentlink/internal/util"
)

const (
	AppName    = "agentlink"
	AppVersion = api.Version
	Banner     = `
                        _   _ _       _
   __ _  __ _  ___ _ __ | |_| (_)_ __ | | __
  / _' |/ _' |/ _ \ '_ \| __| | | '_ \| |/ /
 | (_| | (_| |  __/ | | | |_| | | | | |   <
  \__,_|\__, |\___|_| |_|\__|_|_|_| |_|_|\_\
        |___/  v%s
 Headless voxel game client agent
`
)

func main() {
	configDir := flag.String("config", config.DefaultConfigDir, "configuration directory")
	setup := flag.Bool("setup", false, "run the setup wizard before starting")
	noConsole := flag.Bool("no-console", false, "disable the interactive console")
	flag.Parse()

	fmt.Printf(Banner, AppVersion)
	fmt.Println()

	// Default logger until the config is loaded.
	bootLog, err := util.InitLogger(util.DefaultLogConfig())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	log.Info().
		Str("version", AppVersion).
		Str("platform", runtime.GOOS).
		Str("arch", runtime.GOARCH).
		Int("cpus", runtime.NumCPU()).
		Msg("starting agentlink")

	cfg, err := config.Load(*configDir)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	if *setup || cfg.IsFirstRun() {
		log.Info().Msg("launching setup wizard")
		if err := config.RunSetupWizard(cfg); err != nil {
			log.Fatal().Err(err).Msg("setup wizard failed")
		}
	}

	logCloser := reconfigureLogger(cfg, bootLog)
	defer logCloser.Close()

	validation := config.Validate(cfg)
	for _, w := range validation.Warnings {
		log.Warn().Str("field", w.Field).Msg(w.Message)
	}
	if !validation.IsValid() {
		for _, e := range validation.Errors {
			log.Error().Str("field", e.Field).Msg(e.Message)
		}
		log.Fatal().Msg("configuration validation failed, please fix the errors above")
	}

	sysInfo := util.GetSystemInfo()
	log.Info().
		Str("hostname", sysInfo.Hostname).
		Str("os", sysInfo.OS).
		Str("cpu", sysInfo.CPUModel).
		Int("cores", sysInfo.CPUCores).
		Uint64("memory_mb", sysInfo.TotalMemory).
		Msg("system information")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	eventBus := events.NewEventBus()

	// Console quit and API-side shutdown requests end the process.
	eventBus.Subscribe(events.EventShutdown, "main.shutdown", func(_ context.Context, ev events.Event) error {
		if ev.Source != "main" {
			log.Info().Str("source", ev.Source).Msg("shutdown requested")
			cancel()
		}
		return nil
	})

	var journal *db.Journal
	jcfg := cfg.Journal
	if jcfg.Enabled {
		journal, err = db.NewJournal(jcfg.Path)
		if err != nil {
			log.Warn().Err(err).Msg("failed to open journal, history disabled")
			journal = nil
		} else {
			journal.Attach(eventBus)
			defer journal.Close()
		}
	}

	server := cfg.GetServer()
	conn := cfg.GetConnection()
	supervisor := connector.NewSupervisor(connector.Config{
		Host:        server.Host,
		Port:        server.Port,
		Credentials: connector.NewStaticCredentials(server.Username, server.Password),
		Lang:        conn.Lang,
		LocalPort:   conn.LocalPort,
	}, eventBus, connector.SupervisorOptions{
		Connect: connector.ConnectOptions{
			HandshakeTimeout:     conn.HandshakeTimeout(),
			AllowUnauthenticated: conn.AllowUnauthenticated,
		},
		ReconnectDelay: conn.ReconnectDelay(),
	})

	var wg sync.WaitGroup

	// Task 1: game server session
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info().Str("server", supervisor.Status().Server).Msg("starting session supervisor")
		err := supervisor.Run(ctx)
		switch {
		case err == nil:
		case errors.Is(err, connector.ErrDisconnected):
			log.Info().Msg("session ended, reconnect disabled")
		default:
			log.Error().Err(err).Msg("session supervisor stopped")
		}
		cancel()
	}()

	// Task 2: REST API
	var apiServer *api.Server
	if cfg.API.Enabled {
		var history api.ChatHistory
		if journal != nil {
			history = journal
		}
		apiServer = api.NewServer(cfg, eventBus, supervisor, history)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := apiServer.Start(ctx); err != nil {
				log.Warn().Err(err).Msg("API server failed (non-fatal)")
			}
		}()
	}

	// Task 3: MQTT bridge
	if cfg.MQTT.Enabled {
		mqttHandler, err := telemetry.NewMQTTHandler(cfg.MQTT, eventBus, supervisor)
		if err != nil {
			log.Warn().Err(err).Msg("failed to initialize MQTT, telemetry disabled")
		} else {
			wg.Add(1)
			go func() {
				defer wg.Done()
				log.Info().Msg("starting MQTT telemetry")
				if err := mqttHandler.Start(ctx); err != nil {
					log.Warn().Err(err).Msg("MQTT telemetry failed")
				}
			}()
		}
	}

	// Task 4: health checks
	healthMgr := health.NewManager(supervisor, eventBus, health.DefaultIntervals())
	wg.Add(1)
	go func() {
		defer wg.Done()
		healthMgr.Start(ctx)
	}()

	// Task 5: journal retention
	if journal != nil {
		sched := scheduler.NewScheduler(journal, jcfg.RetentionDays, scheduler.DefaultPruneTime)
		wg.Add(1)
		go func() {
			defer wg.Done()
			sched.Start(ctx)
		}()
	}

	// Task 6: interactive console. It blocks on stdin, so it is not waited on.
	if !*noConsole {
		var cj cli.Journal
		if journal != nil {
			cj = journal
		}
		console := cli.NewCLI(supervisor, cj, eventBus, os.Stdout)
		go console.Start(ctx, os.Stdin)
	}

	<-ctx.Done()
	log.Info().Msg("initiating graceful shutdown...")

	if err := supervisor.Disconnect(); err != nil && !errors.Is(err, connector.ErrNotConnected) {
		log.Warn().Err(err).Msg("disconnect failed")
	}

	eventBus.Emit(context.Background(), events.Event{
		Type:    events.EventShutdown,
		Source:  "main",
		Payload: events.ShutdownPayload{Reason: "process exit"},
	})

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("all tasks stopped gracefully")
	case <-time.After(15 * time.Second):
		log.Warn().Msg("shutdown timed out after 15 seconds, forcing exit")
	}

	eventBus.Stop()
	log.Info().Msg("agentlink stopped")
}

// reconfigureLogger applies the configured logging settings, closing the
// boot logger on success.
func reconfigureLogger(cfg *config.Config, boot io.Closer) io.Closer {
	l := cfg.Logging
	closer, err := util.InitLogger(util.LogConfig{
		Level:      l.Level,
		Directory:  l.Directory,
		MaxSizeMB:  l.MaxSizeMB,
		MaxBackups: l.MaxBackups,
		MaxAgeDays: l.MaxAgeDays,
		Console:    l.Console,
	})
	if err != nil {
		log.Warn().Err(err).Msg("failed to reconfigure logger, using defaults")
		return boot
	}
	boot.Close()
	return closer
}
