package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"Sovereign-Mint/internal/api"
	"Sovereign-Mint/internal/ascension"
	"Sovereign-Mint/internal/auth"
	"Sovereign-Mint/internal/chains"
	"Sovereign-Mint/internal/compliance"
	"Sovereign-Mint/internal/config"
	"Sovereign-Mint/internal/observability/alerting"
	"Sovereign-Mint/internal/observability/metrics"
	"Sovereign-Mint/internal/storage/mysql"
	"Sovereign-Mint/internal/treasury"
	"Sovereign-Mint/internal/vault"
	"Sovereign-Mint/internal/wallet"
	"Sovereign-Mint/pkg/logger"
)

// main 是主权结算守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("sovereignd 运行失败: %v", err)
	}
}

func run(ctx context.Context) error {
	configPath := os.Getenv("SOVEREIGN_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("configs", "sovereign.json")
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
			Enabled:    cfg.Logging.AuditLogPath != "",
			Path:       cfg.Logging.AuditLogPath,
			MaxSizeMB:  cfg.Logging.AuditMaxSizeMB,
			MaxBackups: cfg.Logging.AuditMaxBackups,
			MaxAgeDays: cfg.Logging.AuditMaxAgeDays,
		},
	}); err != nil {
		return err
	}
	defer logger.Sync()

	if err := os.MkdirAll(cfg.Runtime.DataDir, 0o755); err != nil {
		return err
	}

	// 收税链注册表。
	chainsPath := cfg.Chains.ConfigPath
	if chainsPath == "" {
		chainsPath = filepath.Join(filepath.Dir(configPath), "chains.yaml")
	}
	defs, err := chains.LoadDefinitions(chainsPath)
	if err != nil {
		return err
	}
	registry, err := chains.NewRegistry(defs, cfg.Chains.DefaultChain)
	if err != nil {
		return err
	}

	// 身份与金库。
	identities := auth.NewStaticRegistry(auth.CustodianSeeds()...)
	unsealer, err := vault.NewPassphraseUnsealerFromEnv(cfg.Vault.PassphraseEnv)
	if err != nil {
		return err
	}
	seed := make(map[string]vault.Entry)
	for name, def := range registry.AddressBook() {
		seed[name] = vault.Entry{Address: def.Address, Memo: def.Memo, Network: def.Network}
	}
	payoutVault, err := vault.New(cfg.Vault.SealedFile, unsealer, identities, seed)
	if err != nil {
		return err
	}
	if err := payoutVault.Initialize(ctx); err != nil {
		return err
	}

	// 存储后端。
	var (
		wallets     wallet.Store
		ledger      treasury.Ledger
		templeStore ascension.Store
	)
	switch cfg.Storage.Driver {
	case "", "memory":
		memWallets := wallet.NewMemoryStore()
		wallets = memWallets
		ledger = treasury.NewMemoryLedger(memWallets)
		templeStore = ascension.NewMemoryStore()
	case "mysql":
		db, err := mysql.Open(ctx, mysql.Config{
			DSN:             cfg.Storage.DSN,
			MaxOpenConns:    cfg.Storage.MaxOpenConns,
			MaxIdleConns:    cfg.Storage.MaxIdleConns,
			ConnMaxLifetime: time.Duration(cfg.Storage.ConnMaxLifetimeSeconds) * time.Second,
			ConnMaxIdleTime: time.Duration(cfg.Storage.ConnMaxIdleTimeSeconds) * time.Second,
		})
		if err != nil {
			return err
		}
		defer db.Close()
		wallets = wallet.NewSQLStore(db)
		ledger = treasury.NewSQLLedger(db)
		templeStore = ascension.NewSQLStore(db)
	default:
		return fmt.Errorf("未知的存储驱动: %s", cfg.Storage.Driver)
	}

	temple := ascension.NewEngine(templeStore)
	engine := treasury.NewEngine(wallets, ledger, payoutVault, registry, temple, cfg.Treasury.MintingRatio)
	if err := ledger.EnsureInitialized(ctx, cfg.Treasury.MintingRatio); err != nil {
		return err
	}

	auditor := compliance.NewAuditor(wallets, temple)

	// 审计作业队列。
	var auditQueue compliance.Queue
	switch cfg.Audit.QueueDriver {
	case "", "memory":
		auditQueue = compliance.NewMemoryQueue(1024)
	case "redis":
		queue, err := compliance.NewRedisQueue(compliance.RedisQueueConfig{
			Address:  cfg.Audit.Redis.Address,
			Password: cfg.Audit.Redis.Password,
			DB:       cfg.Audit.Redis.DB,
			Queue:    cfg.Audit.Redis.Queue,
		})
		if err != nil {
			return err
		}
		auditQueue = queue
	case "rabbitmq":
		queue, err := compliance.NewRabbitMQQueue(compliance.RabbitMQConfig{
			URL:      cfg.Audit.RabbitMQ.URL,
			Queue:    cfg.Audit.RabbitMQ.Queue,
			Prefetch: cfg.Audit.RabbitMQ.Prefetch,
			Durable:  cfg.Audit.RabbitMQ.Durable,
		})
		if err != nil {
			return err
		}
		auditQueue = queue
	default:
		return fmt.Errorf("未知的队列驱动: %s", cfg.Audit.QueueDriver)
	}
	defer func() {
		if err := auditQueue.Close(); err != nil {
			log.Printf("关闭审计队列失败: %v", err)
		}
	}()

	alerter := buildAlertDispatcher(cfg.Alerting)

	worker := compliance.NewWorker(auditor, auditQueue,
		compliance.WithWorkerCount(cfg.Audit.Workers),
		compliance.WithWorkerLogger(logger.L()),
		compliance.WithAlertDispatcher(alerter),
	)

	workerCtx, workerCancel := context.WithCancel(ctx)
	defer workerCancel()
	go func() {
		if err := worker.Start(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("审计处理器异常退出: %v", err)
		}
	}()

	if cfg.Server.MetricsAddress != "" {
		go func() {
			if err := metrics.StartServer(ctx, cfg.Server.MetricsAddress); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("指标服务异常退出: %v", err)
			}
		}()
	}

	server := api.NewServer(cfg.Server.Address, engine, auditor, auditQueue, temple, wallets, payoutVault, identities,
		api.WithAlertDispatcher(alerter))
	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// buildAlertDispatcher 按配置装配通知渠道。金库完整性告警与存储
// 故障都会经由它广播；没有配置任何渠道时返回空分发器。
func buildAlertDispatcher(cfg config.AlertingConfig) *alerting.FanoutDispatcher {
	var notifiers []alerting.Notifier
	if cfg.Email.Host != "" && len(cfg.Email.To) > 0 {
		notifiers = append(notifiers, alerting.NewEmailNotifier(alerting.EmailConfig{
			Host:          cfg.Email.Host,
			Port:          cfg.Email.Port,
			Username:      cfg.Email.Username,
			Password:      cfg.Email.Password,
			From:          cfg.Email.From,
			To:            cfg.Email.To,
			SubjectPrefix: cfg.Email.SubjectPrefix,
		}))
	}
	if cfg.DingTalk.WebhookURL != "" {
		notifiers = append(notifiers, alerting.NewDingTalkNotifier(cfg.DingTalk.WebhookURL))
	}
	if cfg.Slack.WebhookURL != "" {
		notifiers = append(notifiers, alerting.NewSlackNotifier(cfg.Slack.WebhookURL, cfg.Slack.Channel))
	}
	return alerting.NewFanout(notifiers...)
}
