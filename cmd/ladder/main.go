package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"ladder-maker-go/config"
	"ladder-maker-go/infrastructure/logger"
	"ladder-maker-go/internal/container"
)

func main() {
	cfgPath := flag.String("config", "configs/config.yaml", "配置文件路径")
	envFile := flag.String("env", ".env", "环境变量文件，不存在时忽略")
	flag.Parse()

	// .env 可选
	_ = godotenv.Load(*envFile)

	cfg, err := config.LoadWithEnvOverrides(*cfgPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	lg, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("初始化日志失败: %v", err)
	}
	lg = lg.ForWallet(cfg.Env, cfg.WalletID)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, cfg, lg)
	stop()
	_ = lg.Close()
	os.Exit(code)
}

func run(ctx context.Context, cfg config.AppConfig, lg *logger.Logger) int {
	c := container.New(cfg, lg, nil)
	if err := c.Build(ctx); err != nil {
		lg.LogError(err, map[string]interface{}{"stage": "build"})
		return 1
	}
	if err := c.Start(ctx); err != nil {
		lg.LogError(err, map[string]interface{}{"stage": "start"})
		_ = c.Stop()
		return 1
	}

	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		lg.Debug("sd_notify ready failed", zap.Error(err))
	}
	lg.Info("Ladder maker running")

	runErr := c.Run(ctx)
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	if runErr != nil {
		lg.LogError(runErr, map[string]interface{}{"stage": "run"})
	}
	if err := c.Stop(); err != nil {
		return 1
	}
	if runErr != nil {
		return 1
	}
	lg.Info("Ladder maker stopped")
	return 0
}
