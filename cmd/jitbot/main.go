package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/betbot/jitbot/internal/metrics"
	"github.com/betbot/jitbot/pkg/config"
	"github.com/betbot/jitbot/pkg/logger"
	"github.com/betbot/jitbot/pkg/shutdown"
)

const gracefulShutdownPeriod = 10 * time.Second

func main() {
	configPath := flag.String("config", "yml/jitbot.yaml", "配置文件路径（支持 .yaml, .yml, .json）")
	envFile := flag.String("env", ".env", "环境变量文件（不存在则忽略）")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "加载 %s 失败: %v\n", *envFile, err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(logger.Config{
		Level:      cfg.LogLevel,
		OutputFile: cfg.LogFile,
		MaxSize:    100,
		MaxBackups: 3,
		MaxAge:     7,
		Compress:   true,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	logrus.Infof("使用配置文件: %s (strategy=%s dry_run=%v)", *configPath, cfg.Strategy, cfg.DryRun)

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	shutdowns := shutdown.NewManager()
	app, err := build(cfg, shutdowns)
	if err != nil {
		logrus.Errorf("初始化失败: %v", err)
		shutdowns.Shutdown(context.Background())
		os.Exit(1)
	}

	if cfg.MetricsAddr != "" {
		metrics.SetInFlightSource(app.registry.Len)
		if _, err := metrics.StartAsync(rootCtx, cfg.MetricsAddr); err != nil {
			logrus.Errorf("metrics/pprof 启动失败: %v", err)
		}
	}

	if err := app.start(rootCtx, shutdowns); err != nil {
		logrus.Errorf("启动失败: %v", err)
		rootCancel()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), gracefulShutdownPeriod)
		shutdowns.Shutdown(shutdownCtx)
		cancel()
		os.Exit(1)
	}

	logrus.Info("✅ jitbot 已启动，按 Ctrl+C 停止")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	logrus.Info("收到停止信号，正在关闭...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), gracefulShutdownPeriod)
	defer shutdownCancel()
	shutdowns.Shutdown(shutdownCtx)
	rootCancel()

	logrus.Info("✅ jitbot 已停止")
	_ = logger.Close()
}
