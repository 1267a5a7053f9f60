package events

import (
	"time"
)

// FillAttemptEvent 一次成交尝试（以及最终结果）的审计记录。
// 只追加写入日志/消息队列，调度逻辑从不回读。
type FillAttemptEvent struct {
	RequestID  string    `json:"request_id"`
	Signature  string    `json:"signature"`
	Strategy   string    `json:"strategy"`
	Market     string    `json:"market"`
	TakerKey   string    `json:"taker_key"`
	OrderID    uint64    `json:"order_id"`
	Attempt    int       `json:"attempt"`
	Slot       uint64    `json:"slot"`
	Bid        int64     `json:"bid"`
	Ask        int64     `json:"ask"`
	PostOnly   string    `json:"post_only"`
	PreConfirm bool      `json:"pre_confirm"`
	TxSig      string    `json:"tx_sig,omitempty"`
	ErrorClass string    `json:"error_class,omitempty"`
	Error      string    `json:"error,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Succeeded 尝试是否成功
func (e FillAttemptEvent) Succeeded() bool {
	return e.TxSig != "" && e.Error == ""
}
