package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"CouncilChain/internal/api"
	"CouncilChain/internal/auth"
	"CouncilChain/internal/config"
	"CouncilChain/internal/council"
	"CouncilChain/internal/guidelines"
	"CouncilChain/internal/llm"
	"CouncilChain/internal/llm/anthropic"
	"CouncilChain/internal/llm/localbridge"
	"CouncilChain/internal/llm/openai"
	"CouncilChain/internal/observability/metrics"
	"CouncilChain/internal/registry"
	"CouncilChain/internal/review"
	"CouncilChain/internal/security"
	"CouncilChain/internal/storage/mysql"
	"CouncilChain/internal/web3"
	"CouncilChain/internal/web3/provider"
	"CouncilChain/pkg/logger"
)

// main 是议会守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("councild 运行失败: %v", err)
	}
}

func run(ctx context.Context) error {
	configPath := os.Getenv("COUNCIL_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("configs", "council.json")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		OutputPaths: cfg.Log.OutputPaths,
		Audit: logger.AuditConfig{
			Enabled: cfg.Log.AuditPath != "",
			Path:    cfg.Log.AuditPath,
		},
	}); err != nil {
		return err
	}
	defer logger.Sync()

	dataDir := cfg.Runtime.DataDir
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return err
	}

	// 初始化模型后端。
	backends, err := createBackends(cfg)
	if err != nil {
		return err
	}

	reg, err := registry.Load(cfg.Council.RegistryPath)
	if err != nil {
		return err
	}

	gateway := security.NewGateway(
		security.WithAllowedHosts(cfg.Council.AllowedHosts),
		security.WithAuditLogger(logger.Audit()),
	)

	councilOpts := []council.Option{
		council.WithApprovalThreshold(cfg.Council.ApprovalThreshold),
		council.WithCallTimeout(time.Duration(cfg.Council.CallTimeoutSeconds) * time.Second),
		council.WithSessionTimeout(time.Duration(cfg.Council.SessionTimeoutSeconds) * time.Second),
		council.WithLogger(logger.Named("council")),
	}
	if cfg.Council.GuidelinesPath != "" {
		provider, err := guidelines.LoadStaticProvider(cfg.Council.GuidelinesPath, 0)
		if err != nil {
			return err
		}
		councilOpts = append(councilOpts, council.WithGuidelines(provider))
	}

	orchestrator := council.New(reg, gateway, backends, councilOpts...)

	reviewStore, err := createReviewStore(cfg)
	if err != nil {
		return err
	}
	defer reviewStore.Close()

	reviewQueue, err := createReviewQueue(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := reviewQueue.Close(); err != nil {
			logger.L().Warn("关闭评审队列失败", slog.Any("error", err))
		}
	}()

	ledgerRepo, err := createLedgerRepository(ctx, cfg, dataDir)
	if err != nil {
		return err
	}
	defer ledgerRepo.Close()

	processorOpts := []review.ProcessorOption{
		review.WithWorkerCount(cfg.Council.Workers),
		review.WithProcessorLogger(logger.Named("processor")),
		review.WithVerdictSink(mysql.NewLedger(ledgerRepo)),
	}

	if cfg.Web3.Enabled {
		chainRegistry, err := provider.NewRegistry(ctx, cfg.Web3)
		if err != nil {
			return err
		}
		defer chainRegistry.Close()

		chainClient, err := chainRegistry.DefaultClient()
		if err != nil {
			return err
		}
		processorOpts = append(processorOpts, review.WithChainStamper(web3.NewStamper(chainClient)))
	}

	reviewService := review.NewService(reviewStore, reviewQueue, cfg.Council.MaxRetries)
	processor := review.NewProcessor(orchestrator, reviewStore, reviewQueue, reviewQueue, processorOpts...)

	processorCtx, processorCancel := context.WithCancel(ctx)
	defer processorCancel()

	go func() {
		if err := processor.Start(processorCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.L().Error("评审处理器异常退出", slog.Any("error", err))
		}
	}()

	if cfg.Server.MetricsAddress != "" {
		go func() {
			if err := metrics.StartServer(ctx, cfg.Server.MetricsAddress); err != nil && !errors.Is(err, context.Canceled) {
				logger.L().Error("指标服务异常退出", slog.Any("error", err))
			}
		}()
	}

	serverOpts := []api.ServerOption{
		api.WithEvaluator(orchestrator),
		api.WithVerdictRepository(ledgerRepo),
	}
	if cfg.Auth.Enabled {
		authSvc, err := auth.NewService(auth.Config{
			Enabled: true,
			APIKeys: cfg.Auth.APIKeys,
		}, auth.WithAuditLogger(logger.Audit()))
		if err != nil {
			return err
		}
		serverOpts = append(serverOpts, api.WithAuthService(authSvc))
	}

	server := api.NewServer(cfg.Server.Address, reviewService, serverOpts...)
	return server.Start(ctx)
}

// createBackends 根据配置组装模型后端，键名与评审员目录中的 backend 字段对应。
func createBackends(cfg *config.Config) (map[string]llm.Client, error) {
	backends := make(map[string]llm.Client)

	if strings.TrimSpace(cfg.Backends.OpenAI.APIKey) != "" {
		client, err := openai.NewClient(openai.Config{
			APIKey:  cfg.Backends.OpenAI.APIKey,
			BaseURL: cfg.Backends.OpenAI.BaseURL,
			Model:   cfg.Backends.OpenAI.Model,
			Timeout: time.Duration(cfg.Backends.OpenAI.TimeoutSeconds) * time.Second,
		})
		if err != nil {
			return nil, err
		}
		backends["openai"] = client
	}

	if strings.TrimSpace(cfg.Backends.Anthropic.APIKey) != "" {
		client, err := anthropic.NewClient(anthropic.Config{
			APIKey:  cfg.Backends.Anthropic.APIKey,
			BaseURL: cfg.Backends.Anthropic.BaseURL,
			Model:   cfg.Backends.Anthropic.Model,
			Timeout: time.Duration(cfg.Backends.Anthropic.TimeoutSeconds) * time.Second,
		})
		if err != nil {
			return nil, err
		}
		backends["anthropic"] = client
	}

	if cfg.Backends.LocalBridge.Enabled {
		client, err := localbridge.NewClient(
			cfg.Backends.LocalBridge.Executable,
			cfg.Backends.LocalBridge.ScriptPath,
			cfg.Backends.LocalBridge.WorkingDir,
		)
		if err != nil {
			return nil, err
		}
		backends["localbridge"] = client
	}

	if len(backends) == 0 {
		return nil, errors.New("至少需要配置一个模型后端")
	}
	return backends, nil
}

func createReviewStore(cfg *config.Config) (review.Store, error) {
	switch cfg.Storage.ReviewStore.Driver {
	case "", "memory":
		return review.NewMemoryStore(), nil
	case "mysql":
		return review.NewMySQLStore(cfg.Storage.ReviewStore.DSN)
	default:
		return nil, fmt.Errorf("未知的工单存储驱动: %s", cfg.Storage.ReviewStore.Driver)
	}
}

func createReviewQueue(cfg *config.Config) (review.Queue, error) {
	switch cfg.Queue.Driver {
	case "", "memory":
		return review.NewMemoryQueue(cfg.Queue.Size), nil
	case "redis":
		return review.NewRedisQueue(review.RedisQueueConfig{
			Address:  cfg.Queue.Redis.Address,
			Password: cfg.Queue.Redis.Password,
			DB:       cfg.Queue.Redis.DB,
			Queue:    cfg.Queue.Redis.Queue,
		})
	case "rabbitmq":
		return review.NewRabbitMQQueue(review.RabbitMQConfig{
			URL:      cfg.Queue.RabbitMQ.URL,
			Queue:    cfg.Queue.RabbitMQ.Queue,
			Prefetch: cfg.Queue.RabbitMQ.Prefetch,
			Durable:  cfg.Queue.RabbitMQ.Durable,
		})
	default:
		return nil, fmt.Errorf("未知的队列驱动: %s", cfg.Queue.Driver)
	}
}

func createLedgerRepository(ctx context.Context, cfg *config.Config, dataDir string) (mysql.VerdictRepository, error) {
	switch cfg.Storage.Ledger.Driver {
	case "", "memory":
		return mysql.NewMemoryVerdictRepository(dataDir)
	case "mysql":
		return mysql.NewSQLVerdictRepository(ctx, mysql.Config{DSN: cfg.Storage.Ledger.DSN})
	default:
		return nil, fmt.Errorf("未知的台账驱动: %s", cfg.Storage.Ledger.Driver)
	}
}
