package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/Zacy-Sokach/RoboDash/internal/api"
	"github.com/Zacy-Sokach/RoboDash/internal/config"
	"github.com/Zacy-Sokach/RoboDash/internal/events"
	"github.com/Zacy-Sokach/RoboDash/internal/logging"
	"github.com/Zacy-Sokach/RoboDash/internal/robot"
	"github.com/Zacy-Sokach/RoboDash/internal/session"
	"go.uber.org/zap"
)

// app 各子命令共用的依赖
type app struct {
	cfg        *config.Config
	configPath string
	logger     *zap.Logger
	bus        *events.MemoryBus
	engine     *robot.Engine
	client     *api.Client
	tracker    *session.Tracker
}

func newApp(configPath string) (*app, error) {
	if configPath == "" {
		p, err := config.GetConfigPath()
		if err != nil {
			return nil, fmt.Errorf("获取配置路径失败: %w", err)
		}
		configPath = p
	}
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return nil, fmt.Errorf("创建配置目录失败: %w", err)
	}

	cfg, err := config.LoadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("加载配置失败: %w", err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}

	bus := events.NewMemoryBus()
	bus.Subscribe(events.Wildcard, logging.NewEventHandler(logger.Named("session")))

	engine := robot.NewEngine(
		robot.WithTimings(cfg.Robot.Timings()),
		robot.WithLogger(logger.Named("robot")),
	)
	client := api.NewClient(cfg.BaseURL, cfg.APIKey, api.WithRetryConfig(cfg.Retry.RetryPolicy()))
	tracker := session.NewTracker(client, engine,
		session.WithBus(bus),
		session.WithLogger(logger.Named("session")),
	)

	logger.Info("robodash started",
		zap.String("version", version),
		zap.String("config", configPath),
		zap.String("base_url", cfg.BaseURL),
		zap.Strings("models", cfg.Models))

	return &app{
		cfg:        cfg,
		configPath: configPath,
		logger:     logger,
		bus:        bus,
		engine:     engine,
		client:     client,
		tracker:    tracker,
	}, nil
}

func (a *app) Close() {
	a.engine.Close()
	a.bus.Clear()
	_ = a.logger.Sync()
}
