package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/evdist-next/internal/config"
	"github.com/evdist-next/internal/logger"
	"github.com/evdist-next/internal/models"
	"github.com/evdist-next/internal/provider"
	"github.com/evdist-next/internal/service"
)

func main() {
	var (
		task        string
		dryRun      bool
		userID      uint
		concurrency int
	)
	flag.StringVar(&task, "task", "all", "任务: all, "+strings.Join(service.ReconcileTasks(), ", "))
	flag.BoolVar(&dryRun, "dry-run", true, "仅预览，不写入")
	flag.UintVar(&userID, "user", 0, "仅处理指定会员（0 为全部）")
	flag.IntVar(&concurrency, "concurrency", 0, "并发数（默认取 binary.batch_match_concurrency）")
	flag.Parse()

	cfg := config.Load()
	logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	defer logger.Sync()
	stdLog := logger.StdLogger()

	if err := models.InitDB(cfg.Database.Driver, cfg.Database.DSN, models.DBPoolConfig{
		MaxOpenConns:           cfg.Database.Pool.MaxOpenConns,
		MaxIdleConns:           cfg.Database.Pool.MaxIdleConns,
		ConnMaxLifetimeSeconds: cfg.Database.Pool.ConnMaxLifetimeSeconds,
		ConnMaxIdleTimeSeconds: cfg.Database.Pool.ConnMaxIdleTimeSeconds,
	}); err != nil {
		stdLog.Fatalf("数据库初始化失败: %v", err)
	}
	if err := models.AutoMigrate(); err != nil {
		stdLog.Fatalf("数据库迁移失败: %v", err)
	}

	container, err := provider.NewContainer(cfg)
	if err != nil {
		stdLog.Fatalf("容器初始化失败: %v", err)
	}
	defer container.Close()

	if concurrency <= 0 {
		concurrency = cfg.Binary.BatchMatchConcurrency
	}
	opts := service.ReconcileOptions{DryRun: dryRun, UserID: userID, Concurrency: concurrency}

	tasks := []string{task}
	if strings.EqualFold(strings.TrimSpace(task), "all") {
		tasks = service.ReconcileTasks()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	failed := false
	for _, name := range tasks {
		report, err := container.ReconcileService.Run(ctx, name, opts)
		if err != nil {
			logger.Errorw("reconcile_task_failed", "task", name, "error", err)
			failed = true
			continue
		}
		logger.Infow("reconcile_task_done", "task", name, "dry_run", dryRun, "scanned", report.Scanned)
		_ = encoder.Encode(map[string]interface{}{"task": name, "dry_run": dryRun, "report": report})
	}
	if failed {
		os.Exit(1)
	}
}
