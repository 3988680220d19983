package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/telcoops/topup/internal/gateway"
	"github.com/telcoops/topup/internal/models"
)

// BeginSettlement opens the transaction wrapping one settlement attempt.
// Read committed is enough: the wallet and request rows are locked
// explicitly, and the balance decrement re-checks its own condition.
func (s *Store) BeginSettlement(ctx context.Context) (gateway.SettlementTx, error) {
	tx, err := s.Db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("tx begin failed: %w", err)
	}
	return &settlementTx{tx: tx}, nil
}

type settlementTx struct {
	tx pgx.Tx
}

func (t *settlementTx) RequestStatus(ctx context.Context, requestID string) (string, error) {
	var status string
	err := t.tx.QueryRow(ctx,
		"SELECT status FROM recharge_requests WHERE recharge_id = $1 FOR UPDATE",
		requestID).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", gateway.ErrRequestNotFound
		}
		return "", fmt.Errorf("status lookup failed: %w", err)
	}
	return status, nil
}

func (t *settlementTx) WalletByOperator(ctx context.Context, operator string) (*models.Wallet, error) {
	return scanWallet(t.tx.QueryRow(ctx,
		`SELECT operator_id, operator_name, current_balance::text, currency
		 FROM balance_wallets
		 WHERE LOWER(operator_name) = LOWER($1)
		 FOR UPDATE`, operator))
}

func (t *settlementTx) DecrementBalance(ctx context.Context, operatorID int64, amount decimal.Decimal) (int64, error) {
	ct, err := t.tx.Exec(ctx,
		`UPDATE balance_wallets
		 SET current_balance = current_balance - $1
		 WHERE operator_id = $2 AND current_balance >= $1`,
		amount.String(), operatorID)
	if err != nil {
		return 0, fmt.Errorf("balance decrement failed: %w", err)
	}
	return ct.RowsAffected(), nil
}

func (t *settlementTx) MarkTerminal(ctx context.Context, requestID, status string) (int64, error) {
	ct, err := t.tx.Exec(ctx,
		`UPDATE recharge_requests SET status = $1, updated_at = now()
		 WHERE recharge_id = $2 AND status NOT IN ($3, $4)`,
		status, requestID, models.StatusCompleted, models.StatusFailed)
	if err != nil {
		return 0, fmt.Errorf("terminal status update failed: %w", err)
	}
	return ct.RowsAffected(), nil
}

func (t *settlementTx) AppendAudit(ctx context.Context, requestID, detail string) error {
	_, err := t.tx.Exec(ctx,
		"INSERT INTO process_audits (recharge_id, error_details) VALUES ($1, $2)",
		requestID, detail)
	if err != nil {
		return fmt.Errorf("audit insert failed: %w", err)
	}
	return nil
}

func (t *settlementTx) Commit(ctx context.Context) error {
	return t.tx.Commit(ctx)
}

func (t *settlementTx) Rollback(ctx context.Context) error {
	return t.tx.Rollback(ctx)
}
