package svc

import (
	"context"
	"errors"
	"fmt"
	"time"

	natsgo "github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	redisclient "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"mdfeed/internal/application/port"
	"mdfeed/internal/application/service"
	"mdfeed/internal/application/usecase/feed"
	natsbroker "mdfeed/internal/infrastructure/broker/nats"
	"mdfeed/internal/infrastructure/config"
	"mdfeed/internal/infrastructure/metrics"
	"mdfeed/internal/infrastructure/storage"
	"mdfeed/internal/infrastructure/storage/composite"
	pgrepo "mdfeed/internal/infrastructure/storage/postgres"
	redisrepo "mdfeed/internal/infrastructure/storage/redis"
	sqliterepo "mdfeed/internal/infrastructure/storage/sqlite"
	"mdfeed/internal/infrastructure/transport/ws"
	"mdfeed/internal/interfaces/console"
)

type ServiceContext struct {
	Ctx    context.Context
	Config *config.Config

	// 基础设施层（第一层初始化）
	Transport  *ws.Client
	redisRepo  *redisrepo.Repo
	sqliteRepo *sqliterepo.Repo
	pgRepo     *pgrepo.Repo
	publisher  *natsbroker.Publisher
	memRepo    *storage.MemoryRepository
	Repo       *composite.Repo

	// 输出端口
	Sink port.Sink

	// 应用组件
	Feed     *feed.Feed
	Recorder *service.TickRecorder
	Reporter *service.StatsReporter
	Registry *prometheus.Registry
	Metrics  *metrics.Collector

	// 资源管理
	closerChain []func() error
}

// New 创建并初始化 ServiceContext
// 这是应用启动的唯一入口点，所有依赖初始化都在这里完成
func New(ctx context.Context, cfg *config.Config) (*ServiceContext, error) {
	sc := &ServiceContext{
		Ctx:         ctx,
		Config:      cfg,
		Sink:        console.NewSink(),
		closerChain: make([]func() error, 0),
	}

	if err := sc.initializeComponents(); err != nil {
		// 清理已初始化的资源
		_ = sc.Close()
		return nil, err
	}
	return sc, nil
}

// initializeComponents 按依赖顺序初始化：存储 -> 传输 -> feed -> 监听器
func (sc *ServiceContext) initializeComponents() error {
	if err := sc.initializeStorage(); err != nil {
		if errors.Is(err, ErrNoSinksEnabled) {
			log.Warn().Msg("no storage or broker enabled, ticks are kept in memory only")
		} else {
			return fmt.Errorf("%w: %v", ErrStorageInitFailed, err)
		}
	}

	cfg := sc.Config
	sc.Transport = ws.New(ws.Options{
		URL:              cfg.Transport.WsURL,
		Mode:             cfg.Transport.Mode,
		HandshakeTimeout: cfg.HandshakeTimeout(),
		WriteTimeout:     cfg.WriteTimeout(),
		PingInterval:     cfg.PingInterval(),
		ReadTimeout:      cfg.ReadTimeout(),
	})
	sc.closerChain = append(sc.closerChain, func() error {
		log.Info().Msg("closing websocket transport")
		return sc.Transport.Close()
	})

	sc.Feed = feed.New(sc.Transport, feed.Config{
		BufferSize:           cfg.Feed.BufferSize,
		ReconnectInterval:    cfg.ReconnectInterval(),
		MaxReconnectAttempts: *cfg.Feed.MaxReconnectAttempts,
		StopTimeout:          cfg.StopTimeout(),
	})

	sc.Recorder = service.NewTickRecorder(sc.Repo, cfg.Storage.QueueSize, 2*time.Second)
	sc.Reporter = service.NewStatsReporter(sc.Feed, sc.Sink, sc.Repo, cfg.StatsEvery())

	sc.Registry = prometheus.NewRegistry()
	sc.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	sc.Metrics = metrics.New(sc.Registry, sc.Feed.Stats)
	sc.Metrics.TrackDropped("recorder", sc.Recorder.Dropped)

	sc.Feed.Register(feed.ConnectFunc(func() {
		log.Info().Str("session", sc.Transport.SessionID()).Msg("feed session established")
	}))
	sc.Feed.Register(sc.Recorder)
	sc.Feed.Register(sc.Metrics)
	sc.Feed.Register(service.NewAutoSubscriber(sc.Feed, cfg.Feed.Instruments))

	log.Info().
		Int("buffer_size", cfg.Feed.BufferSize).
		Int("instruments", len(cfg.Feed.Instruments)).
		Int("repositories", sc.Repo.Len()).
		Msg("✓ All components initialized")
	return nil
}

// initializeStorage 初始化存储层 (SQLite / Redis / Postgres / NATS)，统一挂到 composite 后面
func (sc *ServiceContext) initializeStorage() error {
	var repos []port.TickRepository

	if sc.Config.Storage.SQLite.Enabled {
		if err := sc.initSQLite(); err != nil {
			return fmt.Errorf("sqlite initialization failed: %w", err)
		}
		repos = append(repos, sc.sqliteRepo)
	}

	if sc.Config.Storage.Redis.Enabled {
		if err := sc.initRedis(); err != nil {
			return fmt.Errorf("redis initialization failed: %w", err)
		}
		repos = append(repos, sc.redisRepo)
	}

	if sc.Config.Storage.Postgres.Enabled {
		if err := sc.initPostgres(); err != nil {
			return fmt.Errorf("postgres initialization failed: %w", err)
		}
		repos = append(repos, sc.pgRepo)
	}

	if sc.Config.NATS.Enabled {
		if err := sc.initNATS(); err != nil {
			return fmt.Errorf("nats initialization failed: %w", err)
		}
		repos = append(repos, sc.publisher)
	}

	if len(repos) == 0 {
		sc.memRepo = storage.NewMemoryRepository(sc.Config.Feed.BufferSize)
		sc.Repo = composite.New(sc.memRepo)
		return ErrNoSinksEnabled
	}
	sc.Repo = composite.New(repos...)
	return nil
}

// initRedis 初始化 Redis 连接
func (sc *ServiceContext) initRedis() error {
	rc := sc.Config.Storage.Redis
	rdb := redisclient.NewClient(&redisclient.Options{
		Addr:     rc.Addr,
		Password: rc.Password,
		DB:       rc.DB,
	})

	// 测试连接
	ctx, cancel := context.WithTimeout(sc.Ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return fmt.Errorf("redis ping failed: %w", err)
	}

	ttl := time.Duration(rc.TTLSeconds) * time.Second
	sc.redisRepo = redisrepo.New(rdb, rc.Prefix, ttl, rc.StreamMaxLen)

	// 注册关闭回调
	sc.closerChain = append(sc.closerChain, func() error {
		log.Info().Msg("closing redis connection")
		return rdb.Close()
	})

	log.Info().
		Str("addr", rc.Addr).
		Int("db", rc.DB).
		Msg("✓ Redis initialized")
	return nil
}

// initSQLite 初始化 SQLite 数据库
func (sc *ServiceContext) initSQLite() error {
	repo, err := sqliterepo.New(sc.Config.Storage.SQLite.Path)
	if err != nil {
		return fmt.Errorf("sqlite repo creation failed: %w", err)
	}
	sc.sqliteRepo = repo

	sc.closerChain = append(sc.closerChain, func() error {
		log.Info().Msg("closing sqlite connection")
		return repo.Close()
	})

	log.Info().
		Str("path", sc.Config.Storage.SQLite.Path).
		Msg("✓ SQLite initialized")
	return nil
}

func (sc *ServiceContext) initPostgres() error {
	repo, err := pgrepo.New(sc.Config.Storage.Postgres.DSN)
	if err != nil {
		return fmt.Errorf("postgres repo creation failed: %w", err)
	}
	sc.pgRepo = repo

	sc.closerChain = append(sc.closerChain, func() error {
		log.Info().Msg("closing postgres connection")
		return repo.Close()
	})

	log.Info().Msg("✓ Postgres initialized")
	return nil
}

func (sc *ServiceContext) initNATS() error {
	nc := sc.Config.NATS
	pub, err := natsbroker.Connect(nc.URL, nc.SubjectPrefix,
		natsgo.Name("mdfeed"),
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return fmt.Errorf("nats connect failed: %w", err)
	}
	sc.publisher = pub

	sc.closerChain = append(sc.closerChain, func() error {
		log.Info().Msg("draining nats connection")
		return pub.Close()
	})

	log.Info().
		Str("url", nc.URL).
		Str("subject", pub.TickSubject(0)).
		Msg("✓ NATS initialized")
	return nil
}

// GetSQLiteRepo 获取 SQLite 仓储
func (sc *ServiceContext) GetSQLiteRepo() *sqliterepo.Repo {
	return sc.sqliteRepo
}

// GetMemoryRepo returns the fallback repository used when nothing else is enabled.
func (sc *ServiceContext) GetMemoryRepo() *storage.MemoryRepository {
	return sc.memRepo
}

// Close 关闭 ServiceContext 中的所有资源
// 应该在 feed.Disconnect 之后、应用退出时调用
func (sc *ServiceContext) Close() error {
	// 按照相反的顺序关闭所有资源
	for i := len(sc.closerChain) - 1; i >= 0; i-- {
		if err := sc.closerChain[i](); err != nil {
			log.Error().Err(err).Msg("error closing resource")
		}
	}
	sc.closerChain = nil
	return nil
}
