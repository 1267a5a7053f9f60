package relay

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/betbot/jitbot/internal/domain"
	"github.com/betbot/jitbot/internal/ports"
)

// PaperClient dry_run 模式下的 FillClient：只记录请求，不发送交易
type PaperClient struct {
	mu       sync.Mutex
	requests []ports.FillRequest
}

var _ ports.FillClient = (*PaperClient)(nil)

func NewPaperClient() *PaperClient { return &PaperClient{} }

func (p *PaperClient) SubmitFill(ctx context.Context, req ports.FillRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return p.record(req, "")
}

func (p *PaperClient) SubmitSignedMsgFill(ctx context.Context, req ports.SignedMsgFillRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return p.record(req.FillRequest, req.SignedMsg.UUID)
}

func (p *PaperClient) record(req ports.FillRequest, signedUUID string) (string, error) {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	p.mu.Unlock()

	sig := "paper-" + uuid.NewString()
	log.WithFields(logrus.Fields{
		"taker":       req.TakerKey,
		"order_id":    req.TakerOrderID,
		"market":      domain.MarketID{Type: req.MarketType, Index: req.MarketIndex}.String(),
		"bid":         domain.FormatPrice(req.Bid),
		"ask":         domain.FormatPrice(req.Ask),
		"post_only":   req.PostOnly.String(),
		"signed_uuid": signedUUID,
		"tx":          sig,
	}).Info("📝 [dry_run] 模拟提交成交")
	return sig, nil
}

// Requests 已记录请求的副本
func (p *PaperClient) Requests() []ports.FillRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]ports.FillRequest(nil), p.requests...)
}
