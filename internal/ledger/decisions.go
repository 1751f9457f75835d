package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	xerrors "AgentVault/internal/errors"
	"AgentVault/internal/events"
	"AgentVault/pkg/logger"
)

// DecisionLedger 负责决策指纹的一次性登记。
type DecisionLedger struct {
	*core
}

// Log 登记一个决策指纹及其证明指针，同一指纹只能登记一次。
func (l *DecisionLedger) Log(ctx context.Context, caller common.Address, fingerprint common.Hash, proofPointer string) (decision Decision, err error) {
	defer l.observe("log_decision", &err)

	proofPointer = strings.TrimSpace(proofPointer)
	err = l.store.Atomic(ctx, func(tx Tx) error {
		ctrl, err := control(tx)
		if err != nil {
			return err
		}
		if ctrl.Paused {
			return ErrPaused
		}
		if fingerprint == (common.Hash{}) {
			return ErrInvalidFingerprint
		}
		if proofPointer == "" {
			return ErrMissingProof
		}
		if len(proofPointer) > MaxProofPointerLength {
			return xerrors.New(xerrors.CodeInvalidArgument,
				fmt.Sprintf("proof pointer exceeds %d bytes", MaxProofPointerLength),
				xerrors.WithMetadata("field", "proof_pointer"))
		}
		if _, exists, err := tx.Decision(fingerprint); err != nil {
			return err
		} else if exists {
			return duplicate(fingerprint)
		}
		decision = Decision{
			Fingerprint:  fingerprint,
			ProofPointer: proofPointer,
			Logger:       caller,
			Logged:       true,
			CreatedAt:    l.now(),
		}
		if err := tx.InsertDecision(decision); err != nil {
			if xerrors.CodeOf(err) == CodeDuplicateDecision {
				return duplicate(fingerprint)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return Decision{}, err
	}

	logger.Audit().Info("decision logged",
		slog.String("fingerprint", fingerprint.Hex()),
		slog.String("logger", caller.Hex()),
		slog.String("proof", proofPointer))
	l.emit(ctx, events.New(events.KindDecisionLogged, fingerprint.Hex(), map[string]string{
		"logger": caller.Hex(),
		"proof":  proofPointer,
	}))
	return decision, nil
}

// Get 返回指纹对应的决策记录。
func (l *DecisionLedger) Get(ctx context.Context, fingerprint common.Hash) (Decision, error) {
	var decision Decision
	err := l.store.View(ctx, func(tx ReadTx) error {
		d, ok, err := tx.Decision(fingerprint)
		if err != nil {
			return err
		}
		if !ok {
			return notFound(fingerprint)
		}
		decision = d
		return nil
	})
	return decision, err
}

// IsExecuted 判断决策是否已经执行。
func (l *DecisionLedger) IsExecuted(ctx context.Context, fingerprint common.Hash) (bool, error) {
	d, err := l.Get(ctx, fingerprint)
	if err != nil {
		return false, err
	}
	return d.Executed, nil
}

func duplicate(fingerprint common.Hash) error {
	return xerrors.New(CodeDuplicateDecision,
		fmt.Sprintf("decision %s already logged", fingerprint.Hex()),
		xerrors.WithMetadata("fingerprint", fingerprint.Hex()))
}

func notFound(fingerprint common.Hash) error {
	return xerrors.New(CodeDecisionNotFound,
		fmt.Sprintf("decision %s not found", fingerprint.Hex()),
		xerrors.WithMetadata("fingerprint", fingerprint.Hex()))
}
