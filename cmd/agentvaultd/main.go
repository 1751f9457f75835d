package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"AgentVault/internal/access"
	"AgentVault/internal/api"
	"AgentVault/internal/auth"
	"AgentVault/internal/config"
	"AgentVault/internal/directory"
	"AgentVault/internal/events"
	"AgentVault/internal/ledger"
	"AgentVault/internal/observability/metrics"
	"AgentVault/internal/storage/sqlstore"
	"AgentVault/pkg/logger"
)

// main 是 AgentVault 守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("agentvaultd 运行失败: %v", err)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load(config.PathFromEnv())
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: cfg.Logging.Outputs,
		AddSource:   cfg.Logging.AddSource,
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
	defer logger.Sync()
	appLog := logger.Named("agentvaultd")

	if err := os.MkdirAll(cfg.Runtime.DataDir, 0o755); err != nil {
		return err
	}

	stores, err := openStores(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer func() {
		if err := stores.close(); err != nil {
			appLog.Warn("关闭存储失败", slog.Any("error", err))
		}
	}()

	sink, err := buildSink(ctx, cfg.Events)
	if err != nil {
		return err
	}
	publisher := events.NewPublisher(sink)
	defer func() {
		if err := publisher.Close(); err != nil {
			appLog.Warn("关闭事件投递失败", slog.Any("error", err))
		}
	}()
	metrics.RegisterGauge(metrics.Gauge{
		Name:  "agentvault_event_publish_failures",
		Help:  "Events that could not be delivered to any configured sink.",
		Value: func() float64 { return float64(publisher.Failed()) },
	})

	l, err := buildLedger(ctx, cfg, stores.ledger, publisher)
	if err != nil {
		return err
	}

	policy, err := access.ParseReportingPolicy(cfg.Directory.ReputationReporting)
	if err != nil {
		return err
	}
	dir, err := directory.New(ctx, stores.directory,
		directory.WithAdmin(cfg.AdminAddress()),
		directory.WithReporter(access.Reporter{Policy: policy, Authority: l.Executions, Role: access.RoleController}),
		directory.WithEmitter(publisher),
		directory.WithObserver(metrics.ObserveOperation),
	)
	if err != nil {
		return err
	}

	mode, err := auth.ParseMode(cfg.Auth.Mode)
	if err != nil {
		return err
	}
	verifier, err := auth.NewVerifier(auth.Config{
		Mode:    mode,
		MaxSkew: time.Duration(cfg.Auth.MaxSkewSeconds) * time.Second,
	})
	if err != nil {
		return err
	}

	if cfg.MetricsEnabled() && cfg.Metrics.Address != "" {
		go func() {
			if err := metrics.StartServer(ctx, cfg.Metrics.Address); err != nil && !errors.Is(err, context.Canceled) {
				appLog.Error("指标服务异常退出", slog.Any("error", err))
			}
		}()
	}

	server, err := api.NewServer(api.Options{
		Address:         cfg.Server.Address,
		Ledger:          l,
		Directory:       dir,
		Verifier:        verifier,
		Health:          stores.health,
		ExposeMetrics:   cfg.MetricsEnabled() && cfg.Metrics.Address == "",
		ReadTimeout:     time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second,
		WriteTimeout:    time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second,
		ShutdownTimeout: time.Duration(cfg.Server.ShutdownTimeoutSeconds) * time.Second,
	})
	if err != nil {
		return err
	}

	appLog.Info("agentvaultd 已启动",
		slog.String("address", cfg.Server.Address),
		slog.String("storage", cfg.Storage.Driver),
		slog.String("auth", string(mode)),
		slog.Any("sinks", cfg.Events.Sinks))

	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

type storeSet struct {
	ledger    ledger.Store
	directory directory.Store
	health    func(ctx context.Context) error
	close     func() error
}

func openStores(ctx context.Context, cfg config.StorageConfig) (storeSet, error) {
	switch strings.ToLower(cfg.Driver) {
	case "", "memory":
		ls := ledger.NewMemoryStore()
		ds := directory.NewMemoryStore()
		return storeSet{
			ledger:    ls,
			directory: ds,
			close:     func() error { return errors.Join(ls.Close(), ds.Close()) },
		}, nil
	case "sqlite", "mysql":
		db, err := sqlstore.Open(ctx, sqlstore.Config{
			Driver:          cfg.Driver,
			DSN:             cfg.DSN,
			MaxOpenConns:    cfg.MaxOpenConns,
			MaxIdleConns:    cfg.MaxIdleConns,
			ConnMaxLifetime: time.Duration(cfg.ConnMaxLifetimeSeconds) * time.Second,
			SkipMigrations:  cfg.SkipMigrations,
		})
		if err != nil {
			return storeSet{}, err
		}
		return storeSet{
			ledger:    db.Ledger(),
			directory: db.Directory(),
			health:    db.Ping,
			close:     db.Close,
		}, nil
	default:
		return storeSet{}, fmt.Errorf("未知的存储驱动: %s", cfg.Driver)
	}
}

// sinkFactory 根据配置创建一个事件 Sink。
type sinkFactory func(ctx context.Context, cfg config.EventsConfig) (events.Sink, error)

var sinkFactories = map[string]sinkFactory{
	"log": func(context.Context, config.EventsConfig) (events.Sink, error) {
		return events.LogSink{}, nil
	},
	"redis": func(ctx context.Context, cfg config.EventsConfig) (events.Sink, error) {
		return events.NewRedisSink(ctx, events.RedisConfig{
			Address:  cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			List:     cfg.Redis.List,
			MaxLen:   cfg.Redis.MaxLen,
		})
	},
	"rabbitmq": func(_ context.Context, cfg config.EventsConfig) (events.Sink, error) {
		return events.NewRabbitMQSink(events.RabbitMQConfig{
			URL:      cfg.RabbitMQ.URL,
			Exchange: cfg.RabbitMQ.Exchange,
			Queue:    cfg.RabbitMQ.Queue,
			Durable:  cfg.RabbitMQ.Durable == nil || *cfg.RabbitMQ.Durable,
		})
	},
}

// buildSink 按配置顺序创建 Sink，任一失败时关闭已创建的 Sink。
func buildSink(ctx context.Context, cfg config.EventsConfig) (_ events.Sink, err error) {
	named := make([]events.Named, 0, len(cfg.Sinks))
	defer func() {
		if err != nil {
			err = errors.Join(err, events.NewFanout(named...).Close())
		}
	}()

	for _, raw := range cfg.Sinks {
		name := strings.ToLower(strings.TrimSpace(raw))
		if name == "none" {
			continue
		}
		factory, ok := sinkFactories[name]
		if !ok {
			return nil, fmt.Errorf("未知的事件 sink: %s", raw)
		}
		sink, err := factory(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("创建事件 sink %s 失败: %w", name, err)
		}
		named = append(named, events.Named{Name: name, Sink: sink})
	}
	if len(named) == 0 {
		return nil, nil
	}
	return events.NewFanout(named...), nil
}

func buildLedger(ctx context.Context, cfg *config.Config, store ledger.Store, emitter events.Emitter) (*ledger.Ledger, error) {
	nativeLimit, err := cfg.Ledger.NativeLimit()
	if err != nil {
		return nil, err
	}
	tokens, err := cfg.Ledger.Tokens()
	if err != nil {
		return nil, err
	}
	deposit, err := cfg.Ledger.Deposit()
	if err != nil {
		return nil, err
	}

	opts := []ledger.Option{
		ledger.WithController(cfg.Ledger.ControllerAddress()),
		ledger.WithNativeLimit(nativeLimit),
		ledger.WithInitialDeposit(deposit),
		ledger.WithEmitter(emitter),
		ledger.WithObserver(metrics.ObserveOperation),
	}
	for _, token := range tokens {
		opts = append(opts, ledger.WithTokenLimit(token.Asset, token.Limit))
	}
	return ledger.New(ctx, store, opts...)
}
