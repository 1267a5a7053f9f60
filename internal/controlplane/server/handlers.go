package server

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/betbot/jitbot/internal/domain"
	"github.com/betbot/jitbot/internal/events"
	"github.com/betbot/jitbot/internal/jitter"
)

const (
	defaultFillsLimit = 50
	maxFillsLimit     = 500
)

func (s *Server) handleHealthz(c *gin.Context) {
	if !s.deps.Scheduler.Running() {
		writeError(c, http.StatusServiceUnavailable, "scheduler not running")
		return
	}
	c.Status(http.StatusOK)
}

func (s *Server) handleStatus(c *gin.Context) {
	sch := s.deps.Scheduler
	st := Status{
		Running:           sch.Running(),
		Strategy:          sch.StrategyName(),
		DryRun:            s.cfg.DryRun,
		InFlight:          len(sch.Ongoing()),
		Accepted:          sch.Accepted(),
		Markets:           len(sch.Quotes()),
		BreakerHalted:     s.deps.Breaker.Halted(),
		ConsecutiveErrors: s.deps.Breaker.ConsecutiveErrors(),
		Uptime:            time.Since(s.started),
		StartedAt:         s.started,
	}
	if s.deps.Slots != nil {
		st.Slot = s.deps.Slots.CurrentSlot()
	}
	if s.deps.Oracle != nil {
		for m, snap := range s.deps.Oracle.Snapshot() {
			st.Oracles = append(st.Oracles, OracleView{
				Market:    m.String(),
				Price:     domain.FormatPrice(snap.Price),
				Slot:      snap.Slot,
				UpdatedAt: snap.UpdatedAt,
			})
		}
		sort.Slice(st.Oracles, func(i, j int) bool { return st.Oracles[i].Market < st.Oracles[j].Market })
	}
	c.JSON(http.StatusOK, st)
}

func (s *Server) handleAuctions(c *gin.Context) {
	auctions := s.deps.Scheduler.Ongoing()
	if auctions == nil {
		auctions = []jitter.AuctionInfo{}
	}
	c.JSON(http.StatusOK, AuctionsResponse{Auctions: auctions})
}

func (s *Server) handleFills(c *gin.Context) {
	if s.deps.Journal == nil {
		writeError(c, http.StatusNotFound, "fill journal not configured")
		return
	}
	limit := defaultFillsLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(c, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = min(n, maxFillsLimit)
	}
	fills, err := s.deps.Journal.Recent(c.Request.Context(), limit)
	if err != nil {
		writeError(c, http.StatusInternalServerError, fmt.Sprintf("read journal: %v", err))
		return
	}
	if fills == nil {
		fills = []events.FillAttemptEvent{}
	}
	c.JSON(http.StatusOK, gin.H{"fills": fills})
}

func (s *Server) handleQuotesList(c *gin.Context) {
	quotes := s.deps.Scheduler.Quotes()
	out := make([]QuoteView, 0, len(quotes))
	for _, mq := range quotes {
		out = append(out, newQuoteView(mq))
	}
	c.JSON(http.StatusOK, gin.H{"quotes": out})
}

func marketParam(c *gin.Context) (domain.MarketID, error) {
	t, err := domain.ParseMarketType(c.Param("market_type"))
	if err != nil {
		return domain.MarketID{}, err
	}
	idx, err := strconv.ParseUint(c.Param("market_index"), 10, 16)
	if err != nil {
		return domain.MarketID{}, fmt.Errorf("invalid market_index %q", c.Param("market_index"))
	}
	return domain.MarketID{Type: t, Index: uint16(idx)}, nil
}

func (s *Server) handleQuotePut(c *gin.Context) {
	market, err := marketParam(c)
	if err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	var req QuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json body")
		return
	}
	q, err := req.toQuoteParams()
	if err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.deps.Scheduler.RegisterMarketQuote(market, q); err != nil {
		if errors.Is(err, jitter.ErrInvalidQuote) {
			writeError(c, http.StatusBadRequest, err.Error())
			return
		}
		writeError(c, http.StatusInternalServerError, err.Error())
		return
	}
	log.WithFields(logrus.Fields{"market": market.String(), "remote": c.ClientIP()}).Info("控制面更新报价")
	c.JSON(http.StatusOK, newQuoteViewFor(market, q))
}

func (s *Server) handleQuoteDelete(c *gin.Context) {
	market, err := marketParam(c)
	if err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	s.deps.Scheduler.RemoveMarketQuote(market)
	log.WithFields(logrus.Fields{"market": market.String(), "remote": c.ClientIP()}).Info("控制面移除报价")
	c.Status(http.StatusNoContent)
}

func (s *Server) handleBreakerHalt(c *gin.Context) {
	if s.deps.Breaker == nil {
		writeError(c, http.StatusNotFound, "circuit breaker not configured")
		return
	}
	s.deps.Breaker.Halt()
	log.WithField("remote", c.ClientIP()).Warn("⛔ 控制面人工熔断")
	c.JSON(http.StatusOK, gin.H{"halted": true})
}

func (s *Server) handleBreakerResume(c *gin.Context) {
	if s.deps.Breaker == nil {
		writeError(c, http.StatusNotFound, "circuit breaker not configured")
		return
	}
	s.deps.Breaker.Resume()
	log.WithField("remote", c.ClientIP()).Info("✅ 控制面恢复交易")
	c.JSON(http.StatusOK, gin.H{"halted": false})
}
