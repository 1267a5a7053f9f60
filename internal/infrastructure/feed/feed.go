// Package feed 单条 websocket 连接上的 slot / 预言机 / 账户 / 预确认订单推送。
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/betbot/jitbot/internal/common"
	"github.com/betbot/jitbot/internal/domain"
	"github.com/betbot/jitbot/internal/ports"
	"github.com/betbot/jitbot/pkg/syncgroup"
)

var log = logrus.WithField("component", "feed")

const (
	ChannelSlot      = "slot"
	ChannelOracle    = "oracle"
	ChannelAccount   = "account"
	ChannelSignedMsg = "signed_msg"
)

// SlotSink 接收 slot 推进（slotclock.Clock）
type SlotSink interface {
	SetSlot(slot uint64) bool
}

// OracleSink 接收预言机价格（marketstate.OracleBook）
type OracleSink interface {
	Update(market domain.MarketID, price int64, slot uint64) bool
}

type Config struct {
	URL               string
	PingInterval      time.Duration // <= 0 时默认 15s
	ReconnectDelay    time.Duration // 初始重连延迟，默认 1s，指数退避
	MaxReconnectDelay time.Duration // 默认 30s
	Header            http.Header
}

func (c Config) withDefaults() Config {
	if c.PingInterval <= 0 {
		c.PingInterval = 15 * time.Second
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = time.Second
	}
	if c.MaxReconnectDelay <= 0 {
		c.MaxReconnectDelay = 30 * time.Second
	}
	return c
}

// Client 实现 ports.AuctionSource 与 ports.SignedMsgSource。
// 断线后按指数退避自动重连；读超时为 3 个 ping 周期。
type Client struct {
	cfg    Config
	slots  SlotSink
	oracle OracleSink

	accounts accountHandlers
	signed   signedMsgHandlers

	mu      sync.RWMutex
	conn    *websocket.Conn
	writeMu sync.Mutex
	cancel  context.CancelFunc
	sg      *syncgroup.SyncGroup

	connected chan struct{}
	once      sync.Once
}

func New(cfg Config, slots SlotSink, oracle OracleSink) *Client {
	return &Client{
		cfg:       cfg.withDefaults(),
		slots:     slots,
		oracle:    oracle,
		sg:        syncgroup.NewSyncGroup(),
		connected: make(chan struct{}),
	}
}

func (c *Client) OnAccountUpdate(handler ports.AccountUpdateHandler) { c.accounts.Add(handler) }

func (c *Client) OnSignedMsgOrder(handler ports.SignedMsgHandler) { c.signed.Add(handler) }

// Start 首次连接失败直接返回错误；之后的断线由后台重连
func (c *Client) Start(ctx context.Context) error {
	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	c.sg.Add("connection", func() { c.connectionLoop(runCtx, conn) })
	c.sg.Add("ping", func() { c.pingLoop(runCtx) })
	c.sg.Run()
	return nil
}

// Connected 首次连接成功后关闭
func (c *Client) Connected() <-chan struct{} { return c.connected }

// Close 停止重连并关闭连接，等待后台 goroutine 退出
func (c *Client) Close() error {
	c.mu.Lock()
	cancel := c.cancel
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	var err error
	if conn != nil {
		c.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = conn.Close()
	}
	c.sg.WaitAndClear()
	return err
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second, Proxy: http.ProxyFromEnvironment}
	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, c.cfg.Header)
	if err != nil {
		return nil, fmt.Errorf("连接 feed 失败 %s: %w", c.cfg.URL, err)
	}
	readTimeout := 3 * c.cfg.PingInterval
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.once.Do(func() { close(c.connected) })
	log.WithField("url", c.cfg.URL).Info("✅ feed 已连接")
	return conn, nil
}

// connectionLoop 读消息直到出错，然后退避重连
func (c *Client) connectionLoop(ctx context.Context, conn *websocket.Conn) {
	delay := c.cfg.ReconnectDelay
	for {
		c.readLoop(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return
		}

		for {
			log.Warnf("feed 连接断开，%v 后重连", delay)
			if !common.Sleep(ctx, delay) {
				return
			}
			next, err := c.dial(ctx)
			if err == nil {
				conn = next
				delay = c.cfg.ReconnectDelay
				break
			}
			log.WithError(err).Warn("feed 重连失败")
			delay *= 2
			if delay > c.cfg.MaxReconnectDelay {
				delay = c.cfg.MaxReconnectDelay
			}
		}
	}
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) {
	readTimeout := 3 * c.cfg.PingInterval
	dropWarn := common.NewDebouncer(5 * time.Second)
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				log.WithError(err).Warn("feed 读取错误")
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		if err := c.Dispatch(ctx, message); err != nil {
			if ok, suppressed := dropWarn.AllowNow(); ok {
				log.WithError(err).WithField("suppressed", suppressed).Warn("丢弃无法解析的 feed 消息")
			}
		}
	}
}

func (c *Client) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.RLock()
			conn := c.conn
			c.mu.RUnlock()
			if conn == nil {
				continue
			}
			c.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			c.writeMu.Unlock()
			if err != nil && ctx.Err() == nil {
				// 读循环会因读超时/断开而触发重连
				log.WithError(err).Debug("发送 ping 失败")
			}
		}
	}
}

type header struct {
	Channel string `json:"channel"`
}

type slotMessage struct {
	Slot uint64 `json:"slot"`
}

type oracleMessage struct {
	MarketType  string `json:"market_type"`
	MarketIndex uint16 `json:"market_index"`
	Price       string `json:"price"`
	Slot        uint64 `json:"slot"`
}

type accountMessage struct {
	TakerKey string             `json:"taker_key"`
	Slot     uint64             `json:"slot"`
	Account  domain.UserAccount `json:"account"`
}

// Dispatch 解析一条 feed 消息并分发
func (c *Client) Dispatch(ctx context.Context, raw []byte) error {
	var h header
	if err := json.Unmarshal(raw, &h); err != nil {
		return fmt.Errorf("解析消息头失败: %w", err)
	}

	switch h.Channel {
	case ChannelSlot:
		var m slotMessage
		if err := json.Unmarshal(raw, &m); err != nil {
			return fmt.Errorf("解析 slot 消息失败: %w", err)
		}
		if c.slots != nil {
			c.slots.SetSlot(m.Slot)
		}
	case ChannelOracle:
		var m oracleMessage
		if err := json.Unmarshal(raw, &m); err != nil {
			return fmt.Errorf("解析预言机消息失败: %w", err)
		}
		mt, err := domain.ParseMarketType(m.MarketType)
		if err != nil {
			return err
		}
		price, err := domain.ParsePrice(m.Price)
		if err != nil {
			return fmt.Errorf("解析预言机价格失败: %w", err)
		}
		if c.oracle != nil {
			c.oracle.Update(domain.MarketID{Type: mt, Index: m.MarketIndex}, price, m.Slot)
		}
	case ChannelAccount:
		var m accountMessage
		if err := json.Unmarshal(raw, &m); err != nil {
			return fmt.Errorf("解析账户消息失败: %w", err)
		}
		if m.TakerKey == "" {
			return fmt.Errorf("账户消息缺少 taker_key")
		}
		c.accounts.Emit(ctx, ports.AccountUpdate{Taker: m.Account, TakerKey: m.TakerKey, Slot: m.Slot})
	case ChannelSignedMsg:
		var m domain.SignedMsgOrder
		if err := json.Unmarshal(raw, &m); err != nil {
			return fmt.Errorf("解析预确认订单失败: %w", err)
		}
		if m.UUID == "" {
			return fmt.Errorf("预确认订单缺少 uuid")
		}
		// 解析 taker 账户可能需要一次 HTTP 请求，不阻塞读循环
		go c.signed.Emit(ctx, m)
	default:
		return fmt.Errorf("未知 channel: %q", h.Channel)
	}
	return nil
}
