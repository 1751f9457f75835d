// Package events 负责在状态变更提交之后对外广播通知。
package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Kind 标识事件类型。
type Kind string

// 金库相关事件。
const (
	KindDecisionLogged       Kind = "decision.logged"
	KindDecisionExecuted     Kind = "decision.executed"
	KindTransactionRecorded  Kind = "transaction.recorded"
	KindLimitUpdated         Kind = "limit.updated"
	KindSpentReset           Kind = "spent.reset"
	KindVaultPaused          Kind = "vault.paused"
	KindVaultUnpaused        Kind = "vault.unpaused"
	KindVaultWithdrawn       Kind = "vault.withdrawn"
	KindVaultDeposited       Kind = "vault.deposited"
	KindOwnershipTransferred Kind = "ownership.transferred"
)

// 目录相关事件。
const (
	KindAgentRegistered            Kind = "agent.registered"
	KindAgentMetadataUpdated       Kind = "agent.metadata_updated"
	KindAgentStatusChanged         Kind = "agent.status_changed"
	KindAgentReputationUpdated     Kind = "agent.reputation_updated"
	KindServiceRegistered          Kind = "service.registered"
	KindServiceAvailabilityChanged Kind = "service.availability_changed"
	KindAdminTransferred           Kind = "admin.transferred"
)

// Event 描述一次已提交的状态变更。
type Event struct {
	ID         string            `json:"id"`
	Kind       Kind              `json:"kind"`
	Subject    string            `json:"subject"`
	Attributes map[string]string `json:"attributes,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// New 创建带有唯一 ID 的事件。
func New(kind Kind, subject string, attrs map[string]string) Event {
	return Event{
		ID:         uuid.NewString(),
		Kind:       kind,
		Subject:    subject,
		Attributes: attrs,
		OccurredAt: time.Now().UTC(),
	}
}

// Encode 将事件编码为 JSON，用于外部队列。
func Encode(evt Event) ([]byte, error) {
	return json.Marshal(evt)
}

// Decode 解析 Encode 生成的负载。
func Decode(payload []byte) (Event, error) {
	var evt Event
	err := json.Unmarshal(payload, &evt)
	return evt, err
}
