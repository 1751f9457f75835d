package events

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisConfig 描述 Redis 事件列表的连接参数。
type RedisConfig struct {
	Address  string
	Password string
	DB       int
	List     string
	MaxLen   int64
}

// RedisSink 通过 LPUSH 将事件写入 Redis list。
type RedisSink struct {
	client redis.Cmdable
	closer func() error
	list   string
	maxLen int64
}

// NewRedisSink 连接 Redis 并创建 Sink。
func NewRedisSink(ctx context.Context, cfg RedisConfig) (*RedisSink, error) {
	if cfg.Address == "" {
		return nil, errors.New("Redis address 不能为空")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("连接 Redis 失败: %w", err)
	}
	sink := newRedisSink(client, cfg.List, cfg.MaxLen)
	sink.closer = client.Close
	return sink, nil
}

func newRedisSink(client redis.Cmdable, list string, maxLen int64) *RedisSink {
	if list == "" {
		list = "agentvault:events"
	}
	return &RedisSink{client: client, list: list, maxLen: maxLen}
}

// Publish 实现 Sink 接口。MaxLen 大于零时裁剪列表长度。
func (s *RedisSink) Publish(ctx context.Context, evt Event) error {
	payload, err := Encode(evt)
	if err != nil {
		return fmt.Errorf("编码事件失败: %w", err)
	}
	if s.maxLen <= 0 {
		if err := s.client.LPush(ctx, s.list, payload).Err(); err != nil {
			return fmt.Errorf("Redis 发布事件失败: %w", err)
		}
		return nil
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, s.list, payload)
		pipe.LTrim(ctx, s.list, 0, s.maxLen-1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("Redis 发布事件失败: %w", err)
	}
	return nil
}

// Close 关闭 Redis 连接。
func (s *RedisSink) Close() error {
	if s == nil || s.closer == nil {
		return nil
	}
	return s.closer()
}
