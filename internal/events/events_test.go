package events

import (
	"context"
	"errors"
	"strings"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
)

type failingSink struct{ err error }

func (f failingSink) Publish(context.Context, Event) error { return f.err }
func (f failingSink) Close() error { return nil }

type recordingChannel struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

func (r *recordingChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	r.exchange = exchange
	r.key = key
	r.msg = msg
	return nil
}

func (r *recordingChannel) Close() error { return nil }

func TestPublisherCountsFailures(t *testing.T) {
	mem := NewMemorySink(4)
	pub := NewPublisher(NewFanout(
		Named{Name: "memory", Sink: mem},
		Named{Name: "broken", Sink: failingSink{err: errors.New("boom")}},
	))

	pub.Emit(context.Background(), New(KindDecisionLogged, "0x01", nil), New(KindDecisionExecuted, "0x01", nil))

	if pub.Failed() != 2 {
		t.Fatalf("expected 2 failures, got %d", pub.Failed())
	}
	got := mem.Drain()
	if len(got) != 2 || got[0].Kind != KindDecisionLogged || got[1].Kind != KindDecisionExecuted {
		t.Fatalf("unexpected delivered events: %+v", got)
	}
}

func TestFanoutNamesFailingSink(t *testing.T) {
	f := NewFanout(Named{Name: "broken", Sink: failingSink{err: errors.New("offline")}}, Named{Name: "nil"})
	err := f.Publish(context.Background(), New(KindAgentRegistered, "0x02", nil))
	if err == nil || !strings.Contains(err.Error(), "sink broken: offline") {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestMemorySinkRejectsWhenFull(t *testing.T) {
	mem := NewMemorySink(1)
	if err := mem.Publish(context.Background(), New(KindVaultPaused, "vault", nil)); err != nil {
		t.Fatalf("first publish: %v", err)
	}
	if err := mem.Publish(context.Background(), New(KindVaultUnpaused, "vault", nil)); err == nil {
		t.Fatal("expected full sink to reject")
	}
	_ = mem.Close()
	if err := mem.Publish(context.Background(), New(KindVaultPaused, "vault", nil)); err == nil {
		t.Fatal("expected closed sink to reject")
	}
}

func TestRabbitMQSinkRoutesByKind(t *testing.T) {
	ch := &recordingChannel{}
	sink := &RabbitMQSink{ch: ch, exchange: "agentvault", key: "agentvault.events"}
	evt := New(KindTransactionRecorded, "7", map[string]string{"amount": "5"})

	if err := sink.Publish(context.Background(), evt); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if ch.exchange != "agentvault" || ch.key != string(KindTransactionRecorded) {
		t.Fatalf("unexpected routing %q %q", ch.exchange, ch.key)
	}
	if ch.msg.DeliveryMode != amqp.Persistent || ch.msg.MessageId != evt.ID {
		t.Fatalf("unexpected message headers %+v", ch.msg)
	}
	decoded, err := Decode(ch.msg.Body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Attributes["amount"] != "5" || decoded.Subject != "7" {
		t.Fatalf("unexpected payload %+v", decoded)
	}
}

type listRedis struct {
	redis.Cmdable
	lists map[string][][]byte
}

func (f *listRedis) LPush(_ context.Context, key string, values ...interface{}) *redis.IntCmd {
	for _, v := range values {
		f.lists[key] = append([][]byte{v.([]byte)}, f.lists[key]...)
	}
	return redis.NewIntResult(int64(len(f.lists[key])), nil)
}

func TestRedisSinkPushesEncodedEvent(t *testing.T) {
	client := &listRedis{lists: make(map[string][][]byte)}
	sink := newRedisSink(client, "", 0)
	evt := New(KindDecisionLogged, "0xabc", map[string]string{"proof": "ipfs://p"})

	if err := sink.Publish(context.Background(), evt); err != nil {
		t.Fatalf("publish: %v", err)
	}
	entries := client.lists["agentvault:events"]
	if len(entries) != 1 {
		t.Fatalf("expected one entry on the default list, got %d", len(entries))
	}
	decoded, err := Decode(entries[0])
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.ID != evt.ID || decoded.Kind != KindDecisionLogged {
		t.Fatalf("unexpected payload %+v", decoded)
	}
}
