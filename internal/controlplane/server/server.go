// Package server 运行时控制面：查看状态/进行中的拍卖/成交记录，热更新报价，人工熔断。
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/betbot/jitbot/internal/domain"
	"github.com/betbot/jitbot/internal/jitter"
	"github.com/betbot/jitbot/internal/journal"
	"github.com/betbot/jitbot/internal/marketstate"
	"github.com/betbot/jitbot/internal/ports"
	"github.com/betbot/jitbot/internal/risk"
)

var log = logrus.WithField("component", "controlplane")

// Scheduler 控制面依赖的调度器能力（*jitter.Jitter 实现）
type Scheduler interface {
	Running() bool
	StrategyName() string
	Accepted() int64
	Ongoing() []jitter.AuctionInfo
	Quotes() []marketstate.MarketQuote
	RegisterMarketQuote(market domain.MarketID, q domain.QuoteParams) error
	RemoveMarketQuote(market domain.MarketID)
}

type Config struct {
	Addr   string
	DryRun bool
}

// Deps Scheduler 必填；Breaker / Journal / Slots / Oracle 可为 nil
type Deps struct {
	Scheduler Scheduler
	Breaker   *risk.CircuitBreaker
	Journal   journal.Reader
	Slots     ports.SlotSource
	Oracle    *marketstate.OracleBook
}

type Server struct {
	cfg     Config
	deps    Deps
	started time.Time
}

func New(cfg Config, deps Deps) (*Server, error) {
	if deps.Scheduler == nil {
		return nil, errors.New("scheduler is required")
	}
	return &Server{cfg: cfg, deps: deps, started: time.Now()}, nil
}

func (s *Server) Router() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", s.handleHealthz)

	api := r.Group("/api")
	api.GET("/status", s.handleStatus)
	api.GET("/auctions", s.handleAuctions)
	api.GET("/fills", s.handleFills)

	quotes := api.Group("/quotes")
	quotes.GET("", s.handleQuotesList)
	quotes.PUT("/:market_type/:market_index", s.handleQuotePut)
	quotes.DELETE("/:market_type/:market_index", s.handleQuoteDelete)

	breaker := api.Group("/breaker")
	breaker.POST("/halt", s.handleBreakerHalt)
	breaker.POST("/resume", s.handleBreakerResume)

	return r
}

// StartAsync 非阻塞启动，ctx 结束时优雅关闭
func (s *Server) StartAsync(ctx context.Context) (*http.Server, error) {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return nil, err
	}
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("控制面服务异常退出")
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	log.Infof("控制面已启动: http://%s", ln.Addr().String())
	return srv, nil
}

func writeError(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"error": msg})
}

var _ Scheduler = (*jitter.Jitter)(nil)
