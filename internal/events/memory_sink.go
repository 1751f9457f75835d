package events

import (
	"context"
	"errors"
	"sync"
)

// MemorySink 使用带缓冲的 channel 保存事件，主要用于测试。
type MemorySink struct {
	ch     chan Event
	mu     sync.Mutex
	closed bool
}

// NewMemorySink 创建内存 Sink。
func NewMemorySink(size int) *MemorySink {
	if size <= 0 {
		size = 64
	}
	return &MemorySink{ch: make(chan Event, size)}
}

// Publish 实现 Sink 接口。
func (s *MemorySink) Publish(ctx context.Context, evt Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("event sink closed")
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case s.ch <- evt:
		return nil
	default:
		return errors.New("event sink full")
	}
}

// Events 返回 channel，供调用方读取。
func (s *MemorySink) Events() <-chan Event {
	return s.ch
}

// Drain 取出当前缓冲的全部事件。
func (s *MemorySink) Drain() []Event {
	var out []Event
	for {
		select {
		case evt, ok := <-s.ch:
			if !ok {
				return out
			}
			out = append(out, evt)
		default:
			return out
		}
	}
}

// Close 实现 Sink 接口。
func (s *MemorySink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		close(s.ch)
		s.closed = true
	}
	return nil
}
