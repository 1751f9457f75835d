package events

import (
	"context"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// RabbitMQConfig 描述 RabbitMQ 事件队列的连接参数。
type RabbitMQConfig struct {
	URL      string
	Exchange string
	Queue    string
	Durable  bool
}

type amqpPublisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// RabbitMQSink 将事件以持久化消息写入 RabbitMQ。
type RabbitMQSink struct {
	conn     *amqp.Connection
	ch       amqpPublisher
	exchange string
	key      string
}

// NewRabbitMQSink 建立连接并声明队列。
func NewRabbitMQSink(cfg RabbitMQConfig) (*RabbitMQSink, error) {
	if cfg.URL == "" {
		return nil, errors.New("RabbitMQ URL 不能为空")
	}
	queue := cfg.Queue
	if queue == "" {
		queue = "agentvault.events"
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("连接 RabbitMQ 失败: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("创建 RabbitMQ channel 失败: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, cfg.Durable, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("声明 RabbitMQ 队列失败: %w", err)
	}
	if cfg.Exchange != "" {
		if err := ch.ExchangeDeclare(cfg.Exchange, amqp.ExchangeTopic, cfg.Durable, false, false, false, nil); err != nil {
			ch.Close()
			conn.Close()
			return nil, fmt.Errorf("声明 RabbitMQ exchange 失败: %w", err)
		}
		if err := ch.QueueBind(queue, "#", cfg.Exchange, false, nil); err != nil {
			ch.Close()
			conn.Close()
			return nil, fmt.Errorf("绑定 RabbitMQ 队列失败: %w", err)
		}
	}
	sink := &RabbitMQSink{conn: conn, ch: ch, exchange: cfg.Exchange, key: queue}
	return sink, nil
}

// Publish 实现 Sink 接口。使用 exchange 时以事件类型作为 routing key。
func (s *RabbitMQSink) Publish(ctx context.Context, evt Event) error {
	if s == nil || s.ch == nil {
		return errors.New("RabbitMQ Sink 未初始化")
	}
	msg, err := rabbitMessage(evt)
	if err != nil {
		return err
	}
	key := s.key
	if s.exchange != "" {
		key = string(evt.Kind)
	}
	return s.ch.PublishWithContext(ctx, s.exchange, key, false, false, msg)
}

func rabbitMessage(evt Event) (amqp.Publishing, error) {
	body, err := Encode(evt)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("编码事件失败: %w", err)
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    evt.ID,
		Type:         string(evt.Kind),
		Timestamp:    evt.OccurredAt,
		Body:         body,
	}, nil
}

// Close 关闭 RabbitMQ 连接。
func (s *RabbitMQSink) Close() error {
	if s == nil {
		return nil
	}
	if s.ch != nil {
		_ = s.ch.Close()
	}
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}
