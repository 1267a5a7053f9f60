package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/betbot/jitbot/internal/events"
)

const badgerKeyPrefix = "fill/"

// BadgerSink 把成交尝试写入本地 Badger（key 按时间有序）
type BadgerSink struct {
	db *badger.DB
}

func OpenBadger(dir string) (*BadgerSink, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("journal: badger dir is required")
	}
	db, err := badger.Open(badger.DefaultOptions(dir).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("打开 badger 失败: %w", err)
	}
	return &BadgerSink{db: db}, nil
}

func badgerKey(ev events.FillAttemptEvent) []byte {
	// 纳秒时间戳定宽，保证字典序 == 时间序
	return []byte(fmt.Sprintf("%s%020d/%s/%d", badgerKeyPrefix, ev.Timestamp.UnixNano(), ev.RequestID, ev.Attempt))
}

func (s *BadgerSink) Record(_ context.Context, ev events.FillAttemptEvent) error {
	val, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(badgerKey(ev), val)
	})
}

// Recent 按时间倒序返回最近 limit 条
func (s *BadgerSink) Recent(_ context.Context, limit int) ([]events.FillAttemptEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []events.FillAttemptEvent
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = []byte(badgerKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		// 反向迭代需要从前缀的“最大 key”开始
		seek := append([]byte(badgerKeyPrefix), 0xFF)
		for it.Seek(seek); it.ValidForPrefix(opts.Prefix) && len(out) < limit; it.Next() {
			var ev events.FillAttemptEvent
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &ev)
			}); err != nil {
				return err
			}
			out = append(out, ev)
		}
		return nil
	})
	return out, err
}

func (s *BadgerSink) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
