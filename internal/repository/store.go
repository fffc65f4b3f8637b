package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rpattn/tabimport/internal/domain"
)

const entityCacheSize = 4096

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

type pgStore struct {
	q     querier
	cache *lru.Cache[uuid.UUID, domain.Entity]
}

// NewStore returns a Store backed by a pgx pool.
func NewStore(pool *pgxpool.Pool) (Store, error) {
	if pool == nil {
		return nil, errors.New("repository store requires a connection pool")
	}
	cache, err := lru.New[uuid.UUID, domain.Entity](entityCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create entity cache: %w", err)
	}
	return &pgStore{q: pool, cache: cache}, nil
}

func (s *pgStore) Entities() EntityStore {
	return &entityRepository{q: s.q, cache: s.cache}
}

func (s *pgStore) Batches() BatchRepository {
	return &importBatchRepository{q: s.q}
}

func (s *pgStore) Errors() ImportErrorRepository {
	return &importErrorRepository{q: s.q}
}

func (s *pgStore) Mappings() MappingRepository {
	return &importMappingRepository{q: s.q}
}

func (s *pgStore) Learnings() LearningRepository {
	return &mappingLearningRepository{q: s.q}
}

func (s *pgStore) Fingerprints() VendorFingerprintRepository {
	return &vendorFingerprintRepository{q: s.q}
}

// WithTx begins a transaction, or a savepoint when already inside one.
func (s *pgStore) WithTx(ctx context.Context, fn func(tx Store) error) (err error) {
	tx, err := s.q.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			s.cache.Purge()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				err = errors.Join(err, fmt.Errorf("failed to roll back: %w", rbErr))
			}
			// Handles cached inside the transaction may no longer exist.
			s.cache.Purge()
		}
	}()

	if err = fn(&pgStore{q: tx, cache: s.cache}); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *pgStore) ClearCache() {
	s.cache.Purge()
}

func notFound(err error, format string, args ...any) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf(format+": %w", append(args, ErrNotFound)...)
	}
	return fmt.Errorf("failed to "+format+": %w", append(args, err)...)
}
