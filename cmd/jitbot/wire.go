package main

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/betbot/jitbot/internal/controlplane/server"
	"github.com/betbot/jitbot/internal/crossing"
	"github.com/betbot/jitbot/internal/execution"
	"github.com/betbot/jitbot/internal/infrastructure/feed"
	"github.com/betbot/jitbot/internal/infrastructure/relay"
	"github.com/betbot/jitbot/internal/jitter"
	"github.com/betbot/jitbot/internal/journal"
	"github.com/betbot/jitbot/internal/marketstate"
	"github.com/betbot/jitbot/internal/ports"
	"github.com/betbot/jitbot/internal/risk"
	"github.com/betbot/jitbot/internal/slotclock"
	"github.com/betbot/jitbot/pkg/config"
	"github.com/betbot/jitbot/pkg/shutdown"
)

type app struct {
	cfg      *config.Config
	clock    *slotclock.Clock
	oracle   *marketstate.OracleBook
	registry *execution.Registry
	breaker  *risk.CircuitBreaker
	journal  *journal.MultiSink
	feed     *feed.Client
	jitter   *jitter.Jitter
	cp       *server.Server
}

// build 组装所有组件；注册的关闭回调按逆序执行
func build(cfg *config.Config, shutdowns *shutdown.Manager) (*app, error) {
	a := &app{
		cfg:     cfg,
		clock:   slotclock.New(),
		oracle:  marketstate.NewOracleBook(cfg.Feed.OracleMaxAge),
		breaker: risk.NewCircuitBreaker(risk.CircuitBreakerConfig{MaxConsecutiveErrors: cfg.CircuitBreaker.MaxConsecutiveErrors, AutoResumeAfter: cfg.CircuitBreaker.AutoResume}),
	}

	quotes := marketstate.NewQuoteBook()
	markets := marketstate.NewMarketInfo()
	for _, m := range cfg.Markets {
		markets.SetMinOrderSize(m.Market, m.MinOrderSize)
	}

	sinks, err := openJournal(cfg.Journal)
	if err != nil {
		return nil, err
	}
	a.journal = journal.NewMultiSink(sinks...)
	shutdowns.OnShutdown("journal", func(context.Context) error { return a.journal.Close() })

	// 成交提交：dry_run 使用纸交易；查询类接口在配置了 relay 时仍走真实中继
	var (
		fills     ports.FillClient
		referrers ports.ReferrerResolver
		positions ports.PositionSource
		accounts  ports.AccountResolver
	)
	if cfg.Relay.URL != "" {
		rc := relay.NewClient(relay.Config{
			URL:          cfg.Relay.URL,
			APIKey:       cfg.Relay.APIKey,
			Timeout:      cfg.Relay.Timeout,
			RateLimit:    cfg.Relay.RateLimitPerSec,
			SubAccountID: cfg.Relay.SubAccountID,
		})
		shutdowns.OnShutdown("relay", func(context.Context) error { rc.Close(); return nil })
		fills, referrers, positions, accounts = rc, rc, rc, rc
	}
	if cfg.DryRun {
		fills = relay.NewPaperClient()
	}

	guard := risk.NewPositionGuard(positions)
	filler := execution.NewFiller(execution.FillerConfig{
		ComputeUnits:     cfg.ComputeUnits,
		ComputeUnitPrice: cfg.ComputeUnitPrice,
	}, execution.FillerDeps{
		Client:    fills,
		Quotes:    quotes,
		Referrers: referrers,
		Guard:     guard,
		Breaker:   a.breaker,
		Slots:     a.clock,
		Journal:   a.journal,
	})

	var strategy jitter.Strategy
	switch cfg.Strategy {
	case config.StrategyShotgun:
		a.registry = execution.NewRegistry(cfg.Shotgun.SeenRetention, 0)
		strategy = jitter.NewShotgun(jitter.ShotgunConfig{
			Cooldown:    cfg.Shotgun.Cooldown,
			RetryDelay:  cfg.Shotgun.RetryDelay,
			PostOnly:    cfg.Shotgun.PostOnly,
			RecheckRisk: cfg.Shotgun.RecheckRisk,
		}, quotes, filler)
	default:
		a.registry = execution.NewRegistry(0, 0)
		strategy = jitter.NewSniper(jitter.SniperConfig{
			MaxAttempts:        cfg.Sniper.MaxAttempts,
			RetryDelay:         cfg.Sniper.RetryDelay,
			Cooldown:           cfg.Sniper.Cooldown,
			ReevaluateInterval: cfg.Sniper.ReevaluateInterval,
			RecheckRisk:        cfg.Sniper.RecheckRisk,
		}, crossing.NewPredictor(quotes, a.oracle), filler, guard, a.clock)
	}

	a.feed = feed.New(feed.Config{URL: cfg.Feed.URL, PingInterval: cfg.Feed.PingInterval}, a.clock, a.oracle)

	a.jitter = jitter.New(jitter.Config{StatusInterval: cfg.StatusInterval}, jitter.Deps{
		Registry:   a.registry,
		Quotes:     quotes,
		Slots:      a.clock,
		Markets:    markets,
		Oracle:     a.oracle,
		Auctions:   a.feed,
		SignedMsgs: a.feed,
		Accounts:   accounts,
	}, strategy)

	for _, m := range cfg.Markets {
		if err := a.jitter.RegisterMarketQuote(m.Market, m.Quote); err != nil {
			return nil, err
		}
	}

	if cfg.ControlPlaneAddr != "" {
		a.cp, err = server.New(server.Config{Addr: cfg.ControlPlaneAddr, DryRun: cfg.DryRun}, server.Deps{
			Scheduler: a.jitter,
			Breaker:   a.breaker,
			Journal:   a.journal,
			Slots:     a.clock,
			Oracle:    a.oracle,
		})
		if err != nil {
			return nil, err
		}
	}
	return a, nil
}

// start 启动顺序：调度器（注册回调）-> feed -> 控制面。关闭时逆序。
func (a *app) start(ctx context.Context, shutdowns *shutdown.Manager) error {
	if err := a.jitter.Start(ctx); err != nil {
		return err
	}
	shutdowns.OnShutdown("jitter", a.jitter.Stop)

	if err := a.feed.Start(ctx); err != nil {
		return fmt.Errorf("连接 feed 失败: %w", err)
	}
	shutdowns.OnShutdown("feed", func(context.Context) error { return a.feed.Close() })

	if a.cp != nil {
		cpCtx, cancel := context.WithCancel(ctx)
		if _, err := a.cp.StartAsync(cpCtx); err != nil {
			cancel()
			return fmt.Errorf("启动控制面失败: %w", err)
		}
		shutdowns.OnShutdown("controlplane", func(context.Context) error { cancel(); return nil })
	}
	return nil
}

func openJournal(cfg config.JournalConfig) ([]journal.Sink, error) {
	var sinks []journal.Sink
	closeAll := func() {
		for _, s := range sinks {
			_ = s.Close()
		}
	}
	// 支持回读的 sink 放在前面（控制面 /api/fills 读取第一个）
	if cfg.SQLitePath != "" {
		s, err := journal.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("打开 sqlite 成交日志失败: %w", err)
		}
		sinks = append(sinks, s)
	}
	if cfg.BadgerDir != "" {
		s, err := journal.OpenBadger(cfg.BadgerDir)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("打开 badger 成交日志失败: %w", err)
		}
		sinks = append(sinks, s)
	}
	if len(cfg.KafkaBrokers) > 0 {
		s, err := journal.NewKafkaSink(journal.KafkaConfig{Brokers: cfg.KafkaBrokers, Topic: cfg.KafkaTopic})
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("创建 kafka 成交日志失败: %w", err)
		}
		sinks = append(sinks, s)
	}
	logrus.WithField("sinks", len(sinks)).Info("成交日志已初始化")
	return sinks, nil
}
