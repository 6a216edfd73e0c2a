package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"fleetd/internal/config"
	"fleetd/internal/fleet"
	"fleetd/internal/gpu"
	"fleetd/internal/httpapi"
	"fleetd/internal/vram"
)

func main() {
	// Flags with environment variable defaults
	defaultAddr := ":8090"
	if v := os.Getenv("FLEETD_ADDR"); v != "" {
		defaultAddr = v
	}
	defaultConfig := os.Getenv("FLEETD_CONFIG")
	addr := flag.String("addr", defaultAddr, "HTTP listen address, e.g. :8090")
	configPath := flag.String("config", defaultConfig, "Path to fleet config file (yaml/json/toml)")
	logLevel := flag.String("log-level", "info", "Log level: debug|info|warn|error")
	gpuLimit := flag.Int("gpu-limit", 0, "Max concurrent gpu_intensive services (0=config/default)")
	idleTimeout := flag.Int("idle-timeout", 0, "Idle timeout in seconds before a gpu service is stopped (0=config/default)")
	modelHost := flag.String("model-host", "", "Ollama-compatible model host URL (empty=config/default)")
	flag.Parse()

	logger := newLogger(*logLevel)

	if *configPath == "" {
		logger.Fatal().Msg("no config file given (use -config or FLEETD_CONFIG)")
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Str("path", *configPath).Msg("failed to load config")
	}
	if cfg.Addr != "" && *addr == defaultAddr {
		*addr = cfg.Addr
	}
	if *gpuLimit > 0 {
		cfg.GPUConcurrencyLimit = *gpuLimit
	}
	if *idleTimeout > 0 {
		cfg.IdleTimeoutSeconds = *idleTimeout
	}
	if *modelHost != "" {
		cfg.ModelHostURL = *modelHost
	}
	if cfg.LogLevel != "" && *logLevel == "info" {
		logger = newLogger(cfg.LogLevel)
	}

	broadcaster := fleet.NewBroadcaster()
	adapters := fleet.NewAdapterRegistry(fleet.NewProcAdapter())
	orch := fleet.New(fleet.Config{
		Services:         cfg.Services,
		GPULimit:         cfg.GPUConcurrencyLimit,
		IdleTimeout:      time.Duration(cfg.IdleTimeoutSeconds) * time.Second,
		SweepInterval:    time.Duration(cfg.SweepIntervalSeconds) * time.Second,
		HealthInterval:   time.Duration(cfg.HealthIntervalSeconds) * time.Second,
		HealthTimeout:    time.Duration(cfg.HealthTimeoutSeconds) * time.Second,
		FailureThreshold: cfg.FailureThreshold,
		StartTimeout:     time.Duration(cfg.StartTimeoutSeconds) * time.Second,
		StopTimeout:      time.Duration(cfg.StopTimeoutSeconds) * time.Second,
	}, adapters,
		fleet.WithPublisher(broadcaster),
		fleet.WithLogger(logger.With().Str("component", "fleet").Logger()),
	)

	deps := httpapi.Deps{Fleet: orch, Events: broadcaster}
	if cfg.ModelHostURL != "" {
		deps.VRAM = vram.NewManager(
			vram.NewOllamaClient(cfg.ModelHostURL),
			cfg.PreserveEmbeddingModels,
			vram.WithLogger(logger.With().Str("component", "vram").Logger()),
			vram.WithPublisher(broadcaster),
		)
	}
	smi := gpu.NewSMISource(cfg.NvidiaSMIPath)
	probeCtx, probeCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if smi.Available(probeCtx) {
		deps.GPU = smi
	} else {
		logger.Warn().Msg("nvidia-smi unavailable, gpu telemetry disabled")
	}
	probeCancel()

	baseCtx, baseCancel := context.WithCancel(context.Background())
	defer baseCancel()
	httpapi.SetBaseContext(baseCtx)
	httpapi.SetLogger(logger.With().Str("component", "http").Logger())

	// Align in-memory defaults with reality before serving commands.
	orch.Reconcile(baseCtx)
	orch.Run(baseCtx)

	srv := &http.Server{Addr: *addr, Handler: httpapi.NewMux(deps)}
	go func() {
		logger.Info().Str("addr", *addr).Int("services", len(cfg.Services)).Msg("fleetd listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	// Graceful shutdown (Ctrl+C / SIGTERM)
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	baseCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown error")
	}
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Logger()
}
