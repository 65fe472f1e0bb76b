package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// pgxConn is satisfied by *pgxpool.Pool.
type pgxConn interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore implements Store on the idempotency_keys table created by the order
// migrations, sharing the order database pool.
type PostgresStore struct {
	db pgxConn
}

// NewPostgresStore constructs a Postgres-backed idempotency store.
func NewPostgresStore(db pgxConn) *PostgresStore {
	return &PostgresStore{db: db}
}

const selectForUpdate = `SELECT key, fingerprint, status, COALESCE(order_id, ''), response_status, response_headers, response_body,
       created_at, updated_at, expires_at
  FROM idempotency_keys WHERE key_hash = $1 FOR UPDATE`

// Reserve implements the Store interface.
func (s *PostgresStore) Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error) {
	now = now.UTC()
	id := keyHash(key)
	fresh := newPending(key, fingerprint, now, normalizeTTL(ttl))

	var result Reservation
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `INSERT INTO idempotency_keys
			(key_hash, key, fingerprint, status, created_at, updated_at, expires_at)
			VALUES ($1, $2, $3, $4, $5, $5, $6)
			ON CONFLICT (key_hash) DO NOTHING`,
			id, key, fingerprint, string(StatusPending), now, fresh.ExpiresAt)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 1 {
			result = Reservation{State: ReservationStateNew, Record: fresh}
			return nil
		}

		record, err := scanRecord(tx.QueryRow(ctx, selectForUpdate, id))
		if err != nil {
			return err
		}
		if expired(record, now) {
			if _, err := tx.Exec(ctx, `UPDATE idempotency_keys
				SET fingerprint = $2, status = $3, order_id = NULL, response_status = 0,
				    response_headers = NULL, response_body = NULL,
				    created_at = $4, updated_at = $4, expires_at = $5
				WHERE key_hash = $1`, id, fingerprint, string(StatusPending), now, fresh.ExpiresAt); err != nil {
				return err
			}
			result = Reservation{State: ReservationStateNew, Record: fresh}
			return nil
		}
		if record.Fingerprint != fingerprint {
			return ErrFingerprintMismatch
		}
		if record.Status == StatusCompleted {
			result = Reservation{State: ReservationStateCompleted, Record: record}
			return nil
		}
		result = Reservation{State: ReservationStatePending, Record: record}
		return nil
	})
	return result, err
}

// SaveResponse implements the Store interface.
func (s *PostgresStore) SaveResponse(ctx context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error {
	now = now.UTC()
	headers, err := json.Marshal(replayableHeaders(resp.Headers))
	if err != nil {
		return fmt.Errorf("idempotency: encode headers: %w", err)
	}
	id := keyHash(key)

	return s.inTx(ctx, func(tx pgx.Tx) error {
		var stored string
		err := tx.QueryRow(ctx, `SELECT fingerprint FROM idempotency_keys WHERE key_hash = $1 FOR UPDATE`, id).Scan(&stored)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
		case err != nil:
			return err
		case stored != fingerprint:
			return ErrFingerprintMismatch
		}
		_, err = tx.Exec(ctx, `INSERT INTO idempotency_keys
			(key_hash, key, fingerprint, status, order_id, response_status, response_headers, response_body, created_at, updated_at, expires_at)
			VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8, $9, $9, $10)
			ON CONFLICT (key_hash) DO UPDATE SET
				status = EXCLUDED.status,
				order_id = EXCLUDED.order_id,
				response_status = EXCLUDED.response_status,
				response_headers = EXCLUDED.response_headers,
				response_body = EXCLUDED.response_body,
				updated_at = EXCLUDED.updated_at,
				expires_at = EXCLUDED.expires_at`,
			id, key, fingerprint, string(StatusCompleted), resp.OrderID, resp.Status, headers, cloneBody(resp.Body), now, now.Add(normalizeTTL(ttl)))
		return err
	})
}

// Release implements the Store interface.
func (s *PostgresStore) Release(ctx context.Context, key, fingerprint string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM idempotency_keys WHERE key_hash = $1 AND fingerprint = $2`,
		keyHash(key), fingerprint)
	return err
}

// CleanupExpired implements the Store interface.
func (s *PostgresStore) CleanupExpired(ctx context.Context, now time.Time, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}
	tag, err := s.db.Exec(ctx, `DELETE FROM idempotency_keys WHERE key_hash IN (
		SELECT key_hash FROM idempotency_keys WHERE expires_at <= $1 ORDER BY expires_at LIMIT $2)`,
		now.UTC(), limit)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(context.WithoutCancel(ctx))
	}()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func scanRecord(row pgx.Row) (Record, error) {
	var (
		record  Record
		status  string
		headers []byte
	)
	if err := row.Scan(&record.Key, &record.Fingerprint, &status, &record.OrderID, &record.ResponseStatus, &headers,
		&record.ResponseBody, &record.CreatedAt, &record.UpdatedAt, &record.ExpiresAt); err != nil {
		return Record{}, err
	}
	record.Status = Status(status)
	if len(headers) > 0 && string(headers) != "null" {
		if err := json.Unmarshal(headers, &record.ResponseHeaders); err != nil {
			return Record{}, fmt.Errorf("idempotency: decode headers: %w", err)
		}
	}
	return record, nil
}
