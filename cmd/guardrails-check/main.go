// 版权所有 2026 FineTuneLab Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

// guardrails-check 从标准输入读取内容,执行检查管线并以 JSON 输出结果。
// 内容被阻断时进程以退出码 1 结束,供 shell 管道与 CI 钩子消费。
//
//	echo "some prompt" | guardrails-check -type input -config guardrails.yaml
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/finetunelab/guardrails/config"
	"github.com/finetunelab/guardrails/guardrails"
	"github.com/finetunelab/guardrails/internal/metrics"
	"github.com/finetunelab/guardrails/persistence"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath = flag.String("config", "", "配置文件路径(可选,默认配置 + 环境变量)")
		checkType  = flag.String("type", "input", "检查管线: input 或 output")
		userID     = flag.String("user", "", "审计用的用户标识")
		sessionID  = flag.String("session", "", "审计用的会话标识")
		timeout    = flag.Duration("timeout", 10*time.Second, "单次检查超时")
	)
	flag.Parse()

	cfg, err := config.NewLoader().WithConfigPath(*configPath).Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		return 2
	}

	logger, err := cfg.Log.BuildLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "build logger: %v\n", err)
		return 2
	}
	defer func() { _ = logger.Sync() }()

	content, err := io.ReadAll(os.Stdin)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read stdin: %v\n", err)
		return 2
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	opts, err := buildSinkOptions(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init audit sinks: %v\n", err)
		return 2
	}

	svc := guardrails.NewService(cfg.Pipeline, logger, opts...)
	defer svc.Close()

	checkOpts := guardrails.CheckOptions{UserID: *userID, SessionID: *sessionID}

	var result *guardrails.CheckResult
	switch *checkType {
	case "input":
		result = svc.CheckInput(ctx, string(content), checkOpts)
	case "output":
		result = svc.CheckOutput(ctx, string(content), checkOpts)
	default:
		fmt.Fprintf(os.Stderr, "unknown check type %q (want input or output)\n", *checkType)
		return 2
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(result); err != nil {
		fmt.Fprintf(os.Stderr, "encode result: %v\n", err)
		return 2
	}

	if result.Blocked {
		return 1
	}
	return 0
}

// buildSinkOptions 按配置装配审计落盘目标
func buildSinkOptions(ctx context.Context, cfg *config.Config, logger *zap.Logger) ([]guardrails.Option, error) {
	var opts []guardrails.Option

	if cfg.Telemetry.Enabled {
		opts = append(opts, guardrails.WithCollector(metrics.NewCollector("guardrails", logger)))
	}

	if cfg.Audit.MemoryEnabled {
		opts = append(opts, guardrails.WithAuditSink(guardrails.NewMemorySink(cfg.Audit.MemoryCapacity)))
	}

	if cfg.Audit.RedisEnabled {
		store, err := persistence.NewRedisAuditStore(ctx, cfg.Redis, logger)
		if err != nil {
			return nil, fmt.Errorf("redis audit sink: %w", err)
		}
		opts = append(opts, guardrails.WithAuditSink(store))
	}

	if cfg.Audit.DatabaseEnabled {
		if cfg.Database.Driver != "sqlite" {
			return nil, fmt.Errorf("unsupported database driver %q in this build", cfg.Database.Driver)
		}
		db, err := gorm.Open(sqlite.Open(cfg.Database.DSN()), &gorm.Config{
			Logger: gormlogger.Default.LogMode(gormlogger.Silent),
		})
		if err != nil {
			return nil, fmt.Errorf("open audit database: %w", err)
		}
		store, err := persistence.NewGormAuditStore(db, logger)
		if err != nil {
			return nil, err
		}
		opts = append(opts, guardrails.WithAuditSink(store))
	}

	return opts, nil
}
