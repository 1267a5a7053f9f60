// Package journal 成交尝试审计日志（只追加）。
package journal

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/betbot/jitbot/internal/events"
)

var log = logrus.WithField("component", "journal")

// Sink 接收成交尝试记录
type Sink interface {
	Record(ctx context.Context, ev events.FillAttemptEvent) error
	Close() error
}

// Reader 可回读最近记录的 sink（控制面展示用）
type Reader interface {
	Recent(ctx context.Context, limit int) ([]events.FillAttemptEvent, error)
}

// NopSink 丢弃所有记录
type NopSink struct{}

func (NopSink) Record(context.Context, events.FillAttemptEvent) error { return nil }
func (NopSink) Close() error                                          { return nil }

// MultiSink 依次写入多个 sink；单个 sink 失败不影响其他 sink
type MultiSink struct {
	sinks []Sink
}

func NewMultiSink(sinks ...Sink) *MultiSink {
	out := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return &MultiSink{sinks: out}
}

func (m *MultiSink) Record(ctx context.Context, ev events.FillAttemptEvent) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Record(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *MultiSink) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Recent 返回第一个支持回读的 sink 的结果
func (m *MultiSink) Recent(ctx context.Context, limit int) ([]events.FillAttemptEvent, error) {
	for _, s := range m.sinks {
		if r, ok := s.(Reader); ok {
			return r.Recent(ctx, limit)
		}
	}
	return nil, nil
}

// Len sink 数量
func (m *MultiSink) Len() int { return len(m.sinks) }
