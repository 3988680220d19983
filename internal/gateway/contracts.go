package gateway

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"github.com/telcoops/topup/internal/models"
)

var (
	ErrRequestNotFound = errors.New("request not found")
	ErrWalletNotFound  = errors.New("wallet not found")
)

// RequestStore is what the dispatcher needs from the relational store.
type RequestStore interface {
	FindPending(ctx context.Context, limit int) ([]models.Request, error)
	// MarkQueued advances PENDING -> QUEUED and reports the affected row
	// count. Zero means another dispatch cycle already claimed the row.
	MarkQueued(ctx context.Context, requestID string) (int64, error)
}

// EventPublisher publishes one top-up event to the broker.
type EventPublisher interface {
	PublishTopup(ctx context.Context, ev models.TopupEvent) error
}

// SettlementStore opens one settlement transaction per delivered event.
type SettlementStore interface {
	BeginSettlement(ctx context.Context) (SettlementTx, error)
}

// SettlementTx is the unit of work for a single settlement attempt.
// Everything done through it becomes visible only on Commit.
type SettlementTx interface {
	// RequestStatus reads the current status, locking the request row so
	// concurrent deliveries of the same event serialize on it.
	RequestStatus(ctx context.Context, requestID string) (string, error)

	// WalletByOperator matches the operator name case-insensitively and
	// locks the wallet row. Returns ErrWalletNotFound when absent.
	WalletByOperator(ctx context.Context, operator string) (*models.Wallet, error)

	// DecrementBalance is a conditional arithmetic update; zero affected
	// rows means the balance no longer covers the amount.
	DecrementBalance(ctx context.Context, operatorID int64, amount decimal.Decimal) (int64, error)

	// MarkTerminal writes COMPLETED or FAILED, guarded so an already
	// terminal request is never overwritten (affected count is zero).
	MarkTerminal(ctx context.Context, requestID, status string) (int64, error)

	// AppendAudit adds one audit line. There is no update or delete.
	AppendAudit(ctx context.Context, requestID, detail string) error

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}
