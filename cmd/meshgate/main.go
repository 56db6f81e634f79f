package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/meshgate/meshgate/comm"
	"github.com/meshgate/meshgate/gateway"
	"github.com/meshgate/meshgate/gateway/capability"
	"github.com/meshgate/meshgate/memory"
	"github.com/meshgate/meshgate/shared/config"
	"github.com/meshgate/meshgate/transport"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const EnvConfigYAML = "MESHGATE_CONFIG_YAML"

func main() {
	loggerConfig := zap.NewProductionConfig()
	loggerConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, err := loggerConfig.Build()
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	port := flag.Int("port", 0, "Port to run the server on (overrides config)")
	configPath := flag.String("config", "", "Path to YAML configuration file")
	flag.Parse()

	yamlPath := os.Getenv(EnvConfigYAML)
	if *configPath != "" {
		yamlPath = *configPath
	}
	if yamlPath == "" {
		yamlPath = "config.yaml"
	}

	cfg, err := config.NewYamlConfig(yamlPath, logger)
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.String("path", yamlPath), zap.Error(err))
	}
	defer cfg.Close()
	if err := cfg.StartWatcher(); err != nil {
		logger.Warn("Config hot reload disabled", zap.Error(err))
	}

	// Rebuild the logger at the configured level.
	if logLevel, err := cfg.LogLevel(); err == nil && logLevel != "" {
		var level zapcore.Level
		if err := level.UnmarshalText([]byte(logLevel)); err != nil {
			logger.Warn("Invalid log level in config, keeping default", zap.String("level", logLevel))
		} else {
			loggerConfig.Level = zap.NewAtomicLevelAt(level)
			if newLogger, err := loggerConfig.Build(); err == nil {
				logger = newLogger
			}
		}
	}

	overrideListenAddr := ""
	if *port != 0 {
		overrideListenAddr = fmt.Sprintf(":%d", *port)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-signalCh
		logger.Info("Received shutdown signal, stopping server...")
		cancel()
	}()

	clock := comm.SystemClock()

	var monitor comm.Sink = comm.NewZapSink(logger)
	var pgSink *comm.PostgresSink
	if dsn, err := cfg.MonitoringDSN(); err == nil && dsn != "" {
		pgSink, err = comm.NewPostgresSink(dsn, logger)
		if err != nil {
			logger.Warn("Monitoring database unavailable, logging events only", zap.Error(err))
		} else {
			monitor = comm.MultiSink{monitor, pgSink}
			defer pgSink.Close()
		}
	}

	ceiling, err := cfg.RateLimitCeiling()
	if err != nil {
		ceiling = config.DefaultRateLimitCeiling
	}
	window, err := cfg.RateLimitWindow()
	if err != nil {
		window = config.DefaultRateLimitWindow
	}

	registry := comm.NewRegistry(clock, logger, monitor)
	discovery := comm.NewDiscovery(registry, logger, monitor)
	limiter := comm.NewRateLimiter(ceiling, window, logger)
	sessions := comm.NewSessionStore(registry, clock, logger, monitor)
	engine := comm.NewEngine(sessions, registry, limiter, clock, logger, monitor)

	manager, err := gateway.NewManager(logger, cfg, clock)
	if err != nil {
		logger.Fatal("Failed to create gateway manager", zap.Error(err))
	}

	tools := capability.NewTools(logger)

	var memClient *memory.Client
	if memURL, err := cfg.MemoryServiceURL(); err == nil && memURL != "" {
		memClient, err = memory.NewClient(memURL, logger)
		if err != nil {
			logger.Fatal("Failed to create memory client", zap.Error(err))
		}
		if err := memory.RegisterTools(tools, memClient); err != nil {
			logger.Fatal("Failed to register memory tools", zap.Error(err))
		}
		logger.Info("Memory tools registered", zap.String("url", memURL))
	}

	manager.AddCapability(
		capability.NewBase(logger, manager),
		tools,
		capability.NewComm(logger, registry, discovery, sessions, engine),
	)

	transportOptions := []transport.TransportOption{}
	if memClient != nil {
		transportOptions = append(transportOptions, transport.WithMemoryClient(memClient))
	}
	httpTransport, err := transport.New(manager, logger, cfg, transportOptions...)
	if err != nil {
		logger.Fatal("Failed to create transport", zap.Error(err))
	}

	mux := http.NewServeMux()
	httpTransport.RegisterHandlers(mux)

	server, listenerErrChan, err := transport.StartHTTPServer(ctx, logger, cfg, mux, overrideListenAddr)
	if err != nil {
		logger.Fatal("Failed to start HTTP server", zap.Error(err))
	}

	select {
	case listenErr := <-listenerErrChan:
		if listenErr != nil {
			logger.Fatal("HTTP server failed", zap.Error(listenErr))
		}
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	transport.ShutdownHTTPServer(shutdownCtx, logger, server)

	logger.Info("Server stopped")
}
