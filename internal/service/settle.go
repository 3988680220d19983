package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/telcoops/topup/internal/gateway"
	"github.com/telcoops/topup/internal/models"
)

var settlementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "topup_settlements_total",
	Help: "Settlement attempts by outcome",
}, []string{"outcome"})

// Engine executes one settlement decision per delivered event. Business
// outcomes (insufficient balance, unknown operator) are terminal statuses,
// not errors; only an unrecoverable double failure reaches the caller.
type Engine struct {
	store  gateway.SettlementStore
	logger zerolog.Logger
}

func NewEngine(store gateway.SettlementStore, logger zerolog.Logger) *Engine {
	return &Engine{store: store, logger: logger}
}

// ProcessEvent settles a single event. A nil return means the message can be
// acknowledged; a non-nil return means even the compensating transaction
// failed and the broker's redelivery policy decides the message's fate.
func (e *Engine) ProcessEvent(ctx context.Context, ev *models.TopupEvent) error {
	if ev == nil {
		return nil
	}

	err := e.settle(ctx, ev)
	if err == nil {
		return nil
	}

	if errors.Is(err, gateway.ErrRequestNotFound) {
		// Event references a request this store has never seen. Treated
		// like any other malformed input: logged and dropped.
		e.logger.Warn().Str("request_id", ev.RequestID).Msg("event for unknown request dropped")
		settlementsTotal.WithLabelValues("unknown_request").Inc()
		return nil
	}

	e.logger.Error().Err(err).Str("request_id", ev.RequestID).Msg("settlement failed, compensating")

	if cerr := e.failRequest(ctx, ev.RequestID, "internal error: "+err.Error()); cerr != nil {
		settlementsTotal.WithLabelValues("unrecovered").Inc()
		return fmt.Errorf("compensating transaction failed: %w (settlement error: %v)", cerr, err)
	}
	settlementsTotal.WithLabelValues("recovered").Inc()
	return nil
}

// settle runs the primary transaction: status guard, wallet lookup,
// conditional decrement, terminal status, audit — one commit for all of it.
func (e *Engine) settle(ctx context.Context, ev *models.TopupEvent) error {
	tx, err := e.store.BeginSettlement(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	// Redelivery guard: the row lock taken here serializes duplicate
	// deliveries, and a request that already reached COMPLETED or FAILED
	// must never be charged again.
	status, err := tx.RequestStatus(ctx, ev.RequestID)
	if err != nil {
		return err
	}
	if models.IsTerminal(status) {
		e.logger.Info().Str("request_id", ev.RequestID).Str("status", status).Msg("duplicate delivery, request already terminal")
		settlementsTotal.WithLabelValues("duplicate").Inc()
		return nil
	}

	outcome, err := e.decide(ctx, tx, ev)
	if err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("tx commit failed: %w", err)
	}
	settlementsTotal.WithLabelValues(outcome).Inc()
	return nil
}

func (e *Engine) decide(ctx context.Context, tx gateway.SettlementTx, ev *models.TopupEvent) (string, error) {
	if !ev.Amount.IsPositive() {
		return "invalid_amount", e.close(ctx, tx, ev.RequestID, models.StatusFailed,
			"invalid amount: "+ev.Amount.String())
	}

	wallet, err := tx.WalletByOperator(ctx, ev.Operator)
	if errors.Is(err, gateway.ErrWalletNotFound) {
		return "no_wallet", e.close(ctx, tx, ev.RequestID, models.StatusFailed,
			"operator not found: "+ev.Operator)
	}
	if err != nil {
		return "", err
	}

	if wallet.Balance.LessThan(ev.Amount) {
		return "insufficient", e.close(ctx, tx, ev.RequestID, models.StatusFailed,
			"insufficient balance")
	}

	affected, err := tx.DecrementBalance(ctx, wallet.OperatorID, ev.Amount)
	if err != nil {
		return "", err
	}
	if affected == 0 {
		// The conditional update re-checked the balance and refused.
		return "insufficient", e.close(ctx, tx, ev.RequestID, models.StatusFailed,
			"insufficient balance")
	}

	return "completed", e.close(ctx, tx, ev.RequestID, models.StatusCompleted,
		"settlement successful")
}

// close writes the terminal status and its audit line inside tx.
func (e *Engine) close(ctx context.Context, tx gateway.SettlementTx, requestID, status, detail string) error {
	if _, err := tx.MarkTerminal(ctx, requestID, status); err != nil {
		return err
	}
	return tx.AppendAudit(ctx, requestID, detail)
}

// failRequest is the compensating transaction: after a technical failure the
// request is closed as FAILED with the cause on the audit trail.
func (e *Engine) failRequest(ctx context.Context, requestID, detail string) error {
	tx, err := e.store.BeginSettlement(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.MarkTerminal(ctx, requestID, models.StatusFailed); err != nil {
		return err
	}
	if err := tx.AppendAudit(ctx, requestID, detail); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
