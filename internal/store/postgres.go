package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/telcoops/topup/internal/gateway"
	"github.com/telcoops/topup/internal/models"
)

type Store struct {
	Db *pgxpool.Pool
}

func NewStore(connString string) (*Store, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return &Store{Db: pool}, nil
}

func (s *Store) Close() {
	s.Db.Close()
}

// CreateRequest inserts a new top-up request in PENDING state.
func (s *Store) CreateRequest(ctx context.Context, req *models.Request) error {
	err := s.Db.QueryRow(ctx,
		`INSERT INTO recharge_requests (recharge_id, phone_number, amount, carrier, status)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING created_at, updated_at`,
		req.ID, req.PhoneNumber, req.Amount.String(), req.Carrier, models.StatusPending,
	).Scan(&req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		return fmt.Errorf("request insert failed: %w", err)
	}
	req.Status = models.StatusPending
	return nil
}

// GetRequest retrieves a single request by ID.
func (s *Store) GetRequest(ctx context.Context, id string) (*models.Request, error) {
	var req models.Request
	var amount string
	err := s.Db.QueryRow(ctx,
		`SELECT recharge_id, phone_number, amount::text, carrier, status, created_at, updated_at
		 FROM recharge_requests WHERE recharge_id = $1`, id,
	).Scan(&req.ID, &req.PhoneNumber, &amount, &req.Carrier, &req.Status, &req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, gateway.ErrRequestNotFound
		}
		return nil, err
	}
	if req.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("corrupt amount on request %s: %w", id, err)
	}
	return &req, nil
}

// FindPending returns requests still awaiting dispatch, oldest first.
func (s *Store) FindPending(ctx context.Context, limit int) ([]models.Request, error) {
	rows, err := s.Db.Query(ctx,
		`SELECT recharge_id, phone_number, amount::text, carrier, status, created_at, updated_at
		 FROM recharge_requests
		 WHERE status = $1
		 ORDER BY created_at
		 LIMIT $2`,
		models.StatusPending, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var requests []models.Request
	for rows.Next() {
		var req models.Request
		var amount string
		if err := rows.Scan(&req.ID, &req.PhoneNumber, &amount, &req.Carrier,
			&req.Status, &req.CreatedAt, &req.UpdatedAt); err != nil {
			return nil, err
		}
		if req.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("corrupt amount on request %s: %w", req.ID, err)
		}
		requests = append(requests, req)
	}
	return requests, rows.Err()
}

// MarkQueued claims a row after a successful publish. The status guard keeps
// an overlapping poll cycle from dispatching the same row twice.
func (s *Store) MarkQueued(ctx context.Context, id string) (int64, error) {
	ct, err := s.Db.Exec(ctx,
		`UPDATE recharge_requests SET status = $1, updated_at = now()
		 WHERE recharge_id = $2 AND status = $3`,
		models.StatusQueued, id, models.StatusPending)
	if err != nil {
		return 0, err
	}
	return ct.RowsAffected(), nil
}

// WalletByOperator retrieves a wallet by operator name, case-insensitively.
func (s *Store) WalletByOperator(ctx context.Context, operator string) (*models.Wallet, error) {
	return scanWallet(s.Db.QueryRow(ctx,
		`SELECT operator_id, operator_name, current_balance::text, currency
		 FROM balance_wallets WHERE LOWER(operator_name) = LOWER($1)`, operator))
}

// GetAudits retrieves the audit trail for one request, oldest first.
func (s *Store) GetAudits(ctx context.Context, requestID string) ([]models.AuditRecord, error) {
	rows, err := s.Db.Query(ctx,
		`SELECT audit_id, recharge_id, error_details, completion_date
		 FROM process_audits WHERE recharge_id = $1 ORDER BY audit_id`,
		requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var audits []models.AuditRecord
	for rows.Next() {
		var a models.AuditRecord
		if err := rows.Scan(&a.ID, &a.RequestID, &a.Detail, &a.CompletedAt); err != nil {
			return nil, err
		}
		audits = append(audits, a)
	}
	return audits, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWallet(row rowScanner) (*models.Wallet, error) {
	var w models.Wallet
	var balance string
	err := row.Scan(&w.OperatorID, &w.Operator, &balance, &w.Currency)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, gateway.ErrWalletNotFound
		}
		return nil, err
	}
	if w.Balance, err = decimal.NewFromString(balance); err != nil {
		return nil, fmt.Errorf("corrupt balance on wallet %d: %w", w.OperatorID, err)
	}
	return &w, nil
}
