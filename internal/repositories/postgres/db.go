package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Gautam0104/jupi-diamond-sub005/internal/repositories"
)

// Config carries connection pool settings.
type Config struct {
	URL            string
	MaxConns       int32
	MinConns       int32
	ConnectTimeout time.Duration
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx so every repository can run
// either on the pool or inside a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Store is the pgx-backed repositories.Store.
type Store struct {
	pool   *pgxpool.Pool
	health repositories.HealthRepository
	*registry
}

var _ repositories.Store = (*Store)(nil)

// Open creates the pool and verifies connectivity.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.URL == "" {
		return nil, errors.New("postgres: database url is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.ConnectTimeout > 0 {
		poolCfg.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return NewStore(pool), nil
}

// NewStore wraps an existing pool.
func NewStore(pool *pgxpool.Pool) *Store {
	s := &Store{pool: pool, registry: newRegistry(pool)}
	health, _ := repositories.NewDependencyHealthRepository([]repositories.DependencyCheck{
		{Name: "postgres", Critical: true, Check: pool.Ping},
	})
	s.health = health
	return s
}

// Pool exposes the underlying pool for collaborators that share the database (idempotency, migrations).
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// Health implements repositories.Store.
func (s *Store) Health() repositories.HealthRepository {
	return s.health
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the pool.
func (s *Store) Close(context.Context) error {
	s.pool.Close()
	return nil
}

// RunInTx runs fn in a read-committed transaction, committing when fn returns nil.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx repositories.Registry) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return wrapError("begin tx", err)
	}
	defer func() {
		// no-op after a successful commit
		_ = tx.Rollback(context.WithoutCancel(ctx))
	}()

	if err := fn(ctx, newRegistry(tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return wrapError("commit tx", err)
	}
	return nil
}

type registry struct {
	variants  *variantRepository
	addresses *addressRepository
	rates     *rateRepository
	coupons   *couponRepository
	giftCards *giftCardRepository
	orders    *orderRepository
	history   *statusHistoryRepository
	payments  *paymentRepository
	returns   *returnRepository
	carts     *cartRepository
}

func newRegistry(q querier) *registry {
	return &registry{
		variants:  &variantRepository{q: q},
		addresses: &addressRepository{q: q},
		rates:     &rateRepository{q: q},
		coupons:   &couponRepository{q: q},
		giftCards: &giftCardRepository{q: q},
		orders:    &orderRepository{q: q},
		history:   &statusHistoryRepository{q: q},
		payments:  &paymentRepository{q: q},
		returns:   &returnRepository{q: q},
		carts:     &cartRepository{q: q},
	}
}

func (r *registry) Variants() repositories.VariantRepository                 { return r.variants }
func (r *registry) Addresses() repositories.AddressRepository                { return r.addresses }
func (r *registry) Rates() repositories.CurrencyRateRepository               { return r.rates }
func (r *registry) Coupons() repositories.CouponRepository                   { return r.coupons }
func (r *registry) GiftCards() repositories.GiftCardRepository               { return r.giftCards }
func (r *registry) Orders() repositories.OrderRepository                     { return r.orders }
func (r *registry) StatusHistory() repositories.OrderStatusHistoryRepository { return r.history }
func (r *registry) Payments() repositories.PaymentHistoryRepository          { return r.payments }
func (r *registry) Returns() repositories.ReturnRequestRepository            { return r.returns }
func (r *registry) Carts() repositories.CartRepository                       { return r.carts }
