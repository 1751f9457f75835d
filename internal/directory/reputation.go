package directory

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"AgentVault/internal/events"
	"AgentVault/pkg/logger"
)

// ReputationEngine 根据交易结果维护信誉分与计数。
type ReputationEngine struct {
	*core
}

// Report 记录一次交易结果：成功 +10，失败 -20，结果截断在 [0, 1000]。
func (r *ReputationEngine) Report(ctx context.Context, caller, identity common.Address, success bool) (agent Agent, err error) {
	defer r.observe("report_outcome", &err)

	if err := r.reporter.Check(ctx, caller); err != nil {
		return Agent{}, err
	}
	err = r.store.Atomic(ctx, func(tx Tx) error {
		current, err := requireAgent(tx, identity)
		if err != nil {
			return err
		}
		current.TransactionCount++
		if success {
			current.SuccessfulCount++
		}
		current.Reputation = applyOutcome(current.Reputation, success)
		current.UpdatedAt = r.now()
		agent = current
		return tx.UpdateAgent(current)
	})
	if err != nil {
		return Agent{}, err
	}

	logger.Audit().Info("reputation updated",
		slog.String("identity", identity.Hex()),
		slog.String("reporter", caller.Hex()),
		slog.Bool("success", success),
		slog.Int("reputation", agent.Reputation))
	r.emit(ctx, events.New(events.KindAgentReputationUpdated, identity.Hex(), map[string]string{
		"reporter":   caller.Hex(),
		"success":    strconv.FormatBool(success),
		"reputation": strconv.Itoa(agent.Reputation),
	}))
	return agent, nil
}

// SuccessRate 返回 floor(成功数*100/总数)，总数为 0 时返回 0。
func (r *ReputationEngine) SuccessRate(ctx context.Context, identity common.Address) (uint64, error) {
	var out uint64
	err := r.store.View(ctx, func(tx ReadTx) error {
		a, err := requireAgent(tx, identity)
		out = a.SuccessRate()
		return err
	})
	return out, err
}

// Score 返回当前信誉分。
func (r *ReputationEngine) Score(ctx context.Context, identity common.Address) (int, error) {
	var out int
	err := r.store.View(ctx, func(tx ReadTx) error {
		a, err := requireAgent(tx, identity)
		out = a.Reputation
		return err
	})
	return out, err
}
