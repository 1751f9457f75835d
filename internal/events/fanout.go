package events

import (
	"context"
	"errors"
	"fmt"
)

// Named 为 Sink 附加名称，便于在错误中定位。
type Named struct {
	Name string
	Sink Sink
}

// Fanout 将事件广播给多个 Sink。
type Fanout struct {
	sinks []Named
}

// NewFanout 创建 Fanout，忽略空 Sink。
func NewFanout(sinks ...Named) *Fanout {
	set := make([]Named, 0, len(sinks))
	for _, s := range sinks {
		if s.Sink == nil {
			continue
		}
		set = append(set, s)
	}
	return &Fanout{sinks: set}
}

// Publish 投递到所有 Sink，返回合并后的错误。
func (f *Fanout) Publish(ctx context.Context, evt Event) error {
	if f == nil {
		return nil
	}
	var errs []error
	for _, s := range f.sinks {
		if err := s.Sink.Publish(ctx, evt); err != nil {
			errs = append(errs, fmt.Errorf("sink %s: %w", s.Name, err))
		}
	}
	return errors.Join(errs...)
}

// Close 关闭全部 Sink。
func (f *Fanout) Close() error {
	if f == nil {
		return nil
	}
	var errs []error
	for _, s := range f.sinks {
		if err := s.Sink.Close(); err != nil {
			errs = append(errs, fmt.Errorf("sink %s: %w", s.Name, err))
		}
	}
	return errors.Join(errs...)
}
