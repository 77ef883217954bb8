package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/ChenBigdata421/jxt-replay/sdk/config"
	"github.com/ChenBigdata421/jxt-replay/sdk/pkg/logger"
	_ "github.com/ChenBigdata421/jxt-replay/sdk/pkg/processor/druid"
	"github.com/ChenBigdata421/jxt-replay/sdk/runtime"
)

func main() {
	configFile := flag.String("config", "config/settings.yml", "Path to configuration file")
	flag.Parse()

	if err := config.Setup(*configFile); err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(config.AppConfig.Logger)
	defer logger.Logger.Sync()

	app, err := runtime.New(config.AppConfig)
	if err != nil {
		logger.Logger.Error("failed to initialize traffic replay", zap.Error(err))
		os.Exit(1)
	}

	stop := app.GetShutdown().NotifyOnSignals()
	defer stop()

	logger.Logger.Info("traffic replay starting",
		zap.String("application", config.AppConfig.Application.Name),
		zap.String("config", *configFile))

	if err := app.Run(context.Background()); err != nil {
		logger.Logger.Error("traffic replay terminated", zap.Error(err))
		logger.Logger.Sync()
		os.Exit(1)
	}
	logger.Logger.Info("traffic replay exited")
}
