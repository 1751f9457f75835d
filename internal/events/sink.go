package events

import (
	"context"
	"log/slog"
	"sync/atomic"

	"AgentVault/pkg/logger"
)

// Sink 是事件的投递目标。
type Sink interface {
	Publish(ctx context.Context, evt Event) error
	Close() error
}

// Emitter 是领域服务依赖的最小接口，投递失败不会影响调用结果。
type Emitter interface {
	Emit(ctx context.Context, evts ...Event)
}

// Nop 丢弃所有事件。
type Nop struct{}

// Emit 实现 Emitter 接口。
func (Nop) Emit(context.Context, ...Event) {}

// Publisher 将事件投递到 Sink，记录并统计失败。
type Publisher struct {
	sink      Sink
	log       *slog.Logger
	published atomic.Uint64
	failed    atomic.Uint64
}

// NewPublisher 创建 Publisher，sink 为空时仅统计。
func NewPublisher(sink Sink) *Publisher {
	return &Publisher{sink: sink, log: logger.Named("events")}
}

// Emit 依次投递事件。
func (p *Publisher) Emit(ctx context.Context, evts ...Event) {
	if p == nil || p.sink == nil {
		return
	}
	for _, evt := range evts {
		if err := p.sink.Publish(ctx, evt); err != nil {
			p.failed.Add(1)
			p.log.Error("事件投递失败",
				slog.String("event_id", evt.ID),
				slog.String("kind", string(evt.Kind)),
				slog.String("subject", evt.Subject),
				slog.Any("error", err))
			continue
		}
		p.published.Add(1)
	}
}

// Published 返回成功投递的事件数。
func (p *Publisher) Published() uint64 { return p.published.Load() }

// Failed 返回投递失败的事件数。
func (p *Publisher) Failed() uint64 { return p.failed.Load() }

// Close 关闭底层 Sink。
func (p *Publisher) Close() error {
	if p == nil || p.sink == nil {
		return nil
	}
	return p.sink.Close()
}
