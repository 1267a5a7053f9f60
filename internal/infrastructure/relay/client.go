// Package relay 通过 HTTP 访问交易中继：提交 jit 成交、查询推荐人、持仓与 taker 账户。
package relay

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/betbot/jitbot/internal/domain"
	"github.com/betbot/jitbot/internal/ports"
	"github.com/betbot/jitbot/pkg/cache"
	"github.com/betbot/jitbot/pkg/ratelimit"
)

var log = logrus.WithField("component", "relay")

// ErrAccountNotFound 中继查不到该 taker 账户
var ErrAccountNotFound = errors.New("taker account not found")

type Config struct {
	URL     string
	APIKey  string
	Timeout time.Duration
	// RateLimit 每秒请求数，<= 0 不限速
	RateLimit int
	Burst     int
	// CacheTTL 推荐人与账户解析结果的缓存时间
	CacheTTL time.Duration
	// SubAccountID maker 子账户，nil 表示默认账户
	SubAccountID *uint16
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	if c.Burst <= 0 {
		c.Burst = 10
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = 10 * time.Minute
	}
	return c
}

// Client 实现 ports.FillClient / ReferrerResolver / PositionSource / AccountResolver
type Client struct {
	cfg     Config
	client  *resty.Client
	limiter ratelimit.RateLimiter

	referrers *cache.InMemoryCache[string, referrerEntry]
	accounts  *cache.InMemoryCache[string, accountEntry]
}

type referrerEntry struct {
	info *domain.ReferrerInfo
}

type accountEntry struct {
	key     string
	account domain.UserAccount
}

var (
	_ ports.FillClient       = (*Client)(nil)
	_ ports.ReferrerResolver = (*Client)(nil)
	_ ports.PositionSource   = (*Client)(nil)
	_ ports.AccountResolver  = (*Client)(nil)
)

func NewClient(cfg Config) *Client {
	cfg = cfg.withDefaults()
	host := strings.TrimSuffix(cfg.URL, "/")

	// 查询接口可重试；成交提交不可重试（重复提交可能重复成交）
	client := resty.New().
		SetBaseURL(host).
		SetTimeout(cfg.Timeout).
		SetRetryCount(2).
		SetRetryWaitTime(100 * time.Millisecond).
		SetRetryMaxWaitTime(time.Second).
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			if resp == nil || resp.Request == nil || resp.Request.Method != http.MethodGet {
				return false
			}
			return err != nil || resp.StatusCode() == http.StatusTooManyRequests || resp.StatusCode() >= 500
		})
	if cfg.APIKey != "" {
		client.SetHeader("X-API-Key", cfg.APIKey)
	}

	return &Client{
		cfg:       cfg,
		client:    client,
		limiter:   ratelimit.NewTokenBucket(cfg.Burst, cfg.RateLimit),
		referrers: cache.NewInMemoryCache[string, referrerEntry](cfg.CacheTTL, time.Minute),
		accounts:  cache.NewInMemoryCache[string, accountEntry](cfg.CacheTTL, time.Minute),
	}
}

// Close 停止缓存清理
func (c *Client) Close() {
	c.referrers.Close()
	c.accounts.Close()
}

func (c *Client) newRequest(ctx context.Context) (*resty.Request, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, errors.Wrap(err, "rate limit")
	}
	r := c.client.R().SetContext(ctx)
	r.SetHeader("Accept", "application/json")
	r.SetHeader("User-Agent", "jitbot")
	return r, nil
}

type fillResponse struct {
	TxSig string `json:"tx_sig"`
}

// errorResponse 中继错误体；code 非 0 时为程序自定义错误码
type errorResponse struct {
	Error string `json:"error"`
	Code  uint32 `json:"code"`
}

func (c *Client) SubmitFill(ctx context.Context, req ports.FillRequest) (string, error) {
	return c.postFill(ctx, "/v1/fill", req)
}

func (c *Client) SubmitSignedMsgFill(ctx context.Context, req ports.SignedMsgFillRequest) (string, error) {
	return c.postFill(ctx, "/v1/fill/signed-msg", req)
}

func (c *Client) postFill(ctx context.Context, path string, body any) (string, error) {
	r, err := c.newRequest(ctx)
	if err != nil {
		return "", err
	}
	var out fillResponse
	var apiErr errorResponse
	resp, err := r.
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		SetResult(&out).
		SetError(&apiErr).
		Post(path)
	if err := ParseHTTPError(resp, err, &apiErr); err != nil {
		return "", err
	}
	if out.TxSig == "" {
		return "", errors.Errorf("relay %s: empty tx_sig", path)
	}
	return out.TxSig, nil
}

// ParseHTTPError 把传输错误与非 2xx 响应统一成 error；带错误码的响应映射为 *domain.ProgramError
func ParseHTTPError(resp *resty.Response, err error, apiErr *errorResponse) error {
	if err != nil {
		return errors.Wrap(err, "relay request")
	}
	if resp == nil {
		return errors.New("relay request: nil response")
	}
	if resp.IsSuccess() {
		return nil
	}
	if apiErr != nil && apiErr.Code != 0 {
		return &domain.ProgramError{Code: domain.ProgramErrorCode(apiErr.Code), Message: apiErr.Error}
	}
	if apiErr != nil && apiErr.Error != "" {
		return errors.Errorf("relay http %d: %s", resp.StatusCode(), apiErr.Error)
	}
	return errors.Errorf("relay http %d: %s", resp.StatusCode(), strings.TrimSpace(string(resp.Body())))
}

// ReferrerInfo 结果（包括“无推荐人”）按 authority 缓存
func (c *Client) ReferrerInfo(ctx context.Context, authority string) (*domain.ReferrerInfo, error) {
	e, err := c.referrers.GetOrLoad(ctx, authority, c.loadReferrer)
	if err != nil {
		return nil, err
	}
	return e.info, nil
}

func (c *Client) loadReferrer(ctx context.Context, authority string) (referrerEntry, error) {
	r, err := c.newRequest(ctx)
	if err != nil {
		return referrerEntry{}, err
	}
	var out domain.ReferrerInfo
	var apiErr errorResponse
	resp, err := r.SetPathParam("authority", authority).SetResult(&out).SetError(&apiErr).Get("/v1/referrer/{authority}")
	if err == nil && resp.StatusCode() == http.StatusNotFound {
		return referrerEntry{}, nil
	}
	if err := ParseHTTPError(resp, err, &apiErr); err != nil {
		return referrerEntry{}, err
	}
	if out.Referrer == "" {
		return referrerEntry{}, nil
	}
	return referrerEntry{info: &out}, nil
}

type positionResponse struct {
	BaseAssetAmount int64 `json:"base_asset_amount"`
}

// Position subAccountID 为 nil 时使用配置中的 maker 子账户
func (c *Client) Position(ctx context.Context, market domain.MarketID, subAccountID *uint16) (int64, error) {
	r, err := c.newRequest(ctx)
	if err != nil {
		return 0, err
	}
	if subAccountID == nil {
		subAccountID = c.cfg.SubAccountID
	}
	r.SetQueryParam("market_type", market.Type.String()).
		SetQueryParam("market_index", strconv.Itoa(int(market.Index)))
	if subAccountID != nil {
		r.SetQueryParam("sub_account_id", strconv.Itoa(int(*subAccountID)))
	}
	var out positionResponse
	var apiErr errorResponse
	resp, err := r.SetResult(&out).SetError(&apiErr).Get("/v1/position")
	if err := ParseHTTPError(resp, err, &apiErr); err != nil {
		return 0, err
	}
	return out.BaseAssetAmount, nil
}

type userResponse struct {
	UserKey string             `json:"user_key"`
	Account domain.UserAccount `json:"account"`
}

// TakerAccount 解析签名者对应的 taker 账户；结果按 authority+子账户缓存
func (c *Client) TakerAccount(ctx context.Context, authority string, subAccountID uint16) (string, domain.UserAccount, error) {
	key := fmt.Sprintf("%s/%d", authority, subAccountID)
	e, err := c.accounts.GetOrLoad(ctx, key, func(ctx context.Context, _ string) (accountEntry, error) {
		return c.loadAccount(ctx, authority, subAccountID)
	})
	if err != nil {
		return "", domain.UserAccount{}, err
	}
	return e.key, e.account, nil
}

func (c *Client) loadAccount(ctx context.Context, authority string, subAccountID uint16) (accountEntry, error) {
	r, err := c.newRequest(ctx)
	if err != nil {
		return accountEntry{}, err
	}
	var out userResponse
	var apiErr errorResponse
	resp, err := r.SetPathParams(map[string]string{
		"authority": authority,
		"sub":       strconv.Itoa(int(subAccountID)),
	}).SetResult(&out).SetError(&apiErr).Get("/v1/user/{authority}/{sub}")
	if err == nil && resp.StatusCode() == http.StatusNotFound {
		return accountEntry{}, errors.Wrapf(ErrAccountNotFound, "%s/%d", authority, subAccountID)
	}
	if err := ParseHTTPError(resp, err, &apiErr); err != nil {
		return accountEntry{}, err
	}
	if out.UserKey == "" {
		return accountEntry{}, errors.Wrapf(ErrAccountNotFound, "%s/%d: empty user_key", authority, subAccountID)
	}
	log.WithFields(logrus.Fields{"authority": authority, "sub_account": subAccountID, "user": out.UserKey}).Debug("已解析 taker 账户")
	return accountEntry{key: out.UserKey, account: out.Account}, nil
}
