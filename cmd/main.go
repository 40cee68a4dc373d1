package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"autotheme/internal/api"
	"autotheme/internal/autoswitch"
	"autotheme/internal/config"
	"autotheme/internal/ha"
	"autotheme/internal/location"
	"autotheme/internal/thememode"

	"go.uber.org/zap"
)

// locationSource is a LocationSource that can be shut down
type locationSource interface {
	autoswitch.LocationSource
	Close()
}

func main() {
	dotenvErr := config.LoadDotEnv()

	env, err := config.ProcessEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid environment: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := env.Logger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if dotenvErr != nil {
		logger.Warn("No .env file found, using environment variables")
	}

	cfg, err := config.NewLoader(env.ConfigDir, logger).Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	logger.Info("Starting autotheme",
		zap.String("url", env.HAURL),
		zap.Bool("read_only", env.ReadOnly))

	client := ha.NewClient(env.HAURL, env.HAToken, logger)
	if err := client.Connect(); err != nil {
		logger.Fatal("Failed to connect to Home Assistant", zap.Error(err))
	}
	logger.Info("Connected to Home Assistant")

	store := thememode.NewStore(client, thememode.Entities{
		AutoSwitch: cfg.Theme.AutoSwitchEntity,
		IsDark:     cfg.Theme.IsDarkEntity,
	}, env.ReadOnly, logger)
	if err := store.Start(); err != nil {
		client.Disconnect()
		logger.Fatal("Failed to subscribe to theme mode helpers", zap.Error(err))
	}

	source, observerID, err := newLocationSource(cfg.Location, client, logger)
	if err != nil {
		store.Close()
		client.Disconnect()
		logger.Fatal("Failed to create location source", zap.Error(err))
	}

	status := autoswitch.NewStatus()

	var server *api.Server
	if cfg.API.Enabled {
		server = api.NewServer(status, client, cfg.API.Prefix, env.APIPort, logger)
		if err := server.Start(); err != nil {
			logger.Error("Failed to start HTTP API server", zap.Error(err))
			server = nil
		}
	}

	loop := autoswitch.New(autoswitch.Options{
		Config:     store,
		Commands:   store.Changes(),
		Locations:  source,
		ObserverID: observerID,
		Status:     status,
	}, logger)

	// Setup signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if env.ReadOnly {
		logger.Info("Running in READ-ONLY mode - theme mode will not be changed in Home Assistant")
	}
	logger.Info("Application running. Press Ctrl+C to exit.")

	runErr := loop.Run(ctx)

	logger.Info("Shutting down gracefully...")
	if server != nil {
		if err := server.Stop(); err != nil {
			logger.Warn("Failed to stop HTTP API server", zap.Error(err))
		}
	}
	source.Close()
	store.Close()
	if err := client.Disconnect(); err != nil {
		logger.Warn("Failed to disconnect from Home Assistant", zap.Error(err))
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		logger.Fatal("Auto-switch loop failed", zap.Error(runErr))
	}
}

// newLocationSource picks the static source when coordinates are configured
// and the Home Assistant entity source otherwise.
func newLocationSource(cfg config.LocationConfig, client ha.HAClient, logger *zap.Logger) (locationSource, string, error) {
	if cfg.Static != nil {
		src, err := location.NewStaticSource(location.Coordinates{
			Latitude:  cfg.Static.Latitude,
			Longitude: cfg.Static.Longitude,
		})
		if err != nil {
			return nil, "", err
		}
		logger.Info("Using static location",
			zap.Float64("latitude", cfg.Static.Latitude),
			zap.Float64("longitude", cfg.Static.Longitude))
		return src, "static", nil
	}

	logger.Info("Following Home Assistant location", zap.String("observer", cfg.Observer))
	return location.NewHASource(client, logger), cfg.Observer, nil
}
