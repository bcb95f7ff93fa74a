package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"OpenAgent-Loop/internal/api"
	"OpenAgent-Loop/internal/config"
	"OpenAgent-Loop/internal/guardrail"
	"OpenAgent-Loop/internal/memory"
	"OpenAgent-Loop/internal/observability/alerting"
	"OpenAgent-Loop/internal/observability/metrics"
	"OpenAgent-Loop/internal/orchestrator"
	"OpenAgent-Loop/internal/reasoning"
	"OpenAgent-Loop/internal/reasoning/openai"
	"OpenAgent-Loop/internal/run"
	"OpenAgent-Loop/internal/storage"
	storagemysql "OpenAgent-Loop/internal/storage/mysql"
	"OpenAgent-Loop/internal/tools"
	"OpenAgent-Loop/pkg/logger"
)

// main 是 OpenAgent 守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx); err != nil {
		log.Fatalf("openagentd 运行失败: %v", err)
	}
}

func serve(ctx context.Context) error {
	configPath := os.Getenv(config.EnvConfigPath)
	if configPath == "" {
		configPath = filepath.Join("configs", "openagent.json")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: cfg.Logging.OutputPaths,
		Audit: logger.AuditConfig{
			Enabled:    cfg.Logging.Audit.Enabled,
			Path:       cfg.Logging.Audit.Path,
			MaxSizeMB:  cfg.Logging.Audit.MaxSizeMB,
			MaxBackups: cfg.Logging.Audit.MaxBackups,
			MaxAgeDays: cfg.Logging.Audit.MaxAgeDays,
		},
	}); err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	if err := os.MkdirAll(cfg.Runtime.DataDir, 0o755); err != nil {
		return err
	}

	reasoner, err := createReasoner(cfg)
	if err != nil {
		return err
	}

	gateway, err := createGateway(cfg)
	if err != nil {
		return err
	}

	store, err := createMemoryStore(cfg)
	if err != nil {
		return err
	}

	sessionRepo, err := createSessionRepository(ctx, cfg)
	if err != nil {
		return err
	}
	if closer, ok := sessionRepo.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	policy := guardrail.Policy{}
	if cfg.Guardrail.PolicyPath != "" {
		policy, err = guardrail.LoadPolicy(cfg.Guardrail.PolicyPath)
		if err != nil {
			return err
		}
	}
	gate := guardrail.NewGate(policy)

	engine, err := orchestrator.NewEngine(reasoner, gateway, gate, store,
		orchestrator.WithMaxIterations(cfg.Orchestrator.MaxIterations),
		orchestrator.WithSessionRecorder(sessionRepo),
	)
	if err != nil {
		return err
	}

	runStore, err := createRunStore(cfg)
	if err != nil {
		return err
	}

	runQueue, err := createRunQueue(cfg)
	if err != nil {
		return err
	}

	runService := run.NewService(runStore, runQueue, cfg.RunQueue.MaxRetries)
	defer func() {
		if err := runService.Close(); err != nil {
			log.Printf("关闭运行服务失败: %v", err)
		}
	}()

	processorOpts := []run.ProcessorOption{
		run.WithWorkerCount(cfg.RunQueue.Workers),
		run.WithProcessorLogger(logger.Named("processor")),
	}
	if cfg.Alerting.WebhookURL != "" {
		sender, err := alerting.NewHTTPWebhookSender(cfg.Alerting.WebhookURL, nil)
		if err != nil {
			return err
		}
		dispatcher := alerting.NewFanout(&alerting.WebhookNotifier{Sender: sender})
		processorOpts = append(processorOpts, run.WithAlertDispatcher(dispatcher))
	}
	processor := run.NewProcessor(engine, runStore, runQueue, runQueue, processorOpts...)

	processorCtx, processorCancel := context.WithCancel(ctx)
	defer processorCancel()
	go func() {
		if err := processor.Start(processorCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("运行处理器异常退出: %v", err)
		}
	}()

	if cfg.Server.MetricsAddress != "" {
		go func() {
			if err := metrics.StartServer(ctx, cfg.Server.MetricsAddress); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("指标服务异常退出: %v", err)
			}
		}()
	}

	server := api.NewServer(cfg.Server.Address, engine,
		api.WithAuthToken(cfg.Server.AuthToken),
		api.WithRunService(runService),
		api.WithSessionRepository(sessionRepo),
		api.WithMemoryStore(store),
	)

	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func createReasoner(cfg *config.Config) (reasoning.Client, error) {
	switch cfg.LLM.Provider {
	case "", "openai":
		apiKey := strings.TrimSpace(cfg.LLM.OpenAI.APIKey)
		if apiKey == "" {
			apiKey = strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
		}
		if apiKey == "" {
			return nil, errors.New("OpenAI provider 需要配置 api_key 或 OPENAI_API_KEY 环境变量")
		}
		return openai.NewClient(openai.Config{
			APIKey:  apiKey,
			BaseURL: cfg.LLM.OpenAI.BaseURL,
			Model:   cfg.LLM.OpenAI.Model,
			Timeout: cfg.LLM.OpenAI.OpenAITimeout(),
		})
	default:
		return nil, fmt.Errorf("未知的推理 provider: %s", cfg.LLM.Provider)
	}
}

func createGateway(cfg *config.Config) (tools.Gateway, error) {
	switch cfg.Tools.Mode {
	case "", "local":
		gateway := tools.NewLocalGateway()
		if cfg.Tools.ManifestDir != "" {
			manifest, err := tools.LoadManifestDir(cfg.Tools.ManifestDir)
			if err != nil {
				return nil, err
			}
			if err := tools.RegisterManifest(gateway, manifest); err != nil {
				return nil, err
			}
			return gateway, nil
		}
		if err := tools.RegisterBuiltins(gateway); err != nil {
			return nil, err
		}
		return gateway, nil
	case "remote":
		if cfg.Tools.Remote.BaseURL == "" {
			return nil, errors.New("remote 工具网关需要配置 base_url")
		}
		opts := []tools.HTTPGatewayOption{}
		if cfg.Tools.Remote.Token != "" {
			opts = append(opts, tools.WithToken(cfg.Tools.Remote.Token))
		}
		if cfg.Tools.Remote.TimeoutSeconds > 0 {
			opts = append(opts, tools.WithHTTPClient(&http.Client{
				Timeout: time.Duration(cfg.Tools.Remote.TimeoutSeconds) * time.Second,
			}))
		}
		return tools.NewHTTPGateway(cfg.Tools.Remote.BaseURL, opts...), nil
	default:
		return nil, fmt.Errorf("未知的工具网关模式: %s", cfg.Tools.Mode)
	}
}

func createMemoryStore(cfg *config.Config) (memory.Store, error) {
	switch cfg.Storage.Memory.Driver {
	case "", "memory":
		return memory.NewMemoryStore(), nil
	case "redis":
		return memory.NewRedisStore(memory.RedisStoreConfig{
			Address:  cfg.Storage.Memory.Redis.Addr,
			Password: cfg.Storage.Memory.Redis.Password,
			DB:       cfg.Storage.Memory.Redis.DB,
			TTL:      time.Duration(cfg.Storage.Memory.Redis.TTLSeconds) * time.Second,
		})
	case "mysql":
		return memory.NewMySQLStore(cfg.Storage.Memory.MySQL.DSN)
	default:
		return nil, fmt.Errorf("未知的会话历史存储驱动: %s", cfg.Storage.Memory.Driver)
	}
}

func createSessionRepository(ctx context.Context, cfg *config.Config) (storage.SessionRepository, error) {
	switch cfg.Storage.Sessions.Driver {
	case "", "memory":
		return storage.NewMemorySessionRepository(), nil
	case "mysql":
		return storagemysql.NewSessionRepository(ctx, storagemysql.Config{
			DSN:          cfg.Storage.Sessions.MySQL.DSN,
			MaxOpenConns: cfg.Storage.Sessions.MySQL.MaxOpenConns,
			MaxIdleConns: cfg.Storage.Sessions.MySQL.MaxIdleConns,
		})
	default:
		return nil, fmt.Errorf("未知的会话归档驱动: %s", cfg.Storage.Sessions.Driver)
	}
}

func createRunStore(cfg *config.Config) (run.Store, error) {
	switch cfg.RunQueue.Store.Driver {
	case "", "memory":
		return run.NewMemoryStore(), nil
	case "mysql":
		return run.NewMySQLStore(cfg.RunQueue.Store.MySQL.DSN)
	default:
		return nil, fmt.Errorf("未知的运行存储驱动: %s", cfg.RunQueue.Store.Driver)
	}
}

func createRunQueue(cfg *config.Config) (run.Queue, error) {
	switch cfg.RunQueue.Driver {
	case "", "memory":
		return run.NewMemoryQueue(1024), nil
	case "redis":
		return run.NewRedisQueue(run.RedisQueueConfig{
			Address:  cfg.RunQueue.Redis.Addr,
			Password: cfg.RunQueue.Redis.Password,
			DB:       cfg.RunQueue.Redis.DB,
		})
	case "rabbitmq":
		return run.NewRabbitMQQueue(run.RabbitMQConfig{
			URL:     cfg.RunQueue.RabbitMQ.URL,
			Durable: true,
		})
	default:
		return nil, fmt.Errorf("未知的队列驱动: %s", cfg.RunQueue.Driver)
	}
}
