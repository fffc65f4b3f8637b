package repository

import (
	"context"
	"errors"

	"github.com/rpattn/tabimport/internal/detect"
	"github.com/rpattn/tabimport/internal/domain"

	"github.com/google/uuid"
)

// ErrNotFound is returned by lookups that match nothing.
var ErrNotFound = errors.New("not found")

// Store groups the repositories an import needs behind one transaction
// boundary. WithTx hands fn a Store whose repositories all run inside the same
// transaction; returning an error rolls it back.
type Store interface {
	Entities() EntityStore
	Batches() BatchRepository
	Errors() ImportErrorRepository
	Mappings() MappingRepository
	Learnings() LearningRepository
	Fingerprints() VendorFingerprintRepository

	WithTx(ctx context.Context, fn func(tx Store) error) error
	// ClearCache drops cached entity handles. Callers must refetch by id.
	ClearCache()
}

// EntityStore persists imported entities.
type EntityStore interface {
	Create(ctx context.Context, entity domain.Entity) (domain.Entity, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.Entity, error)
	FindByNaturalKey(ctx context.Context, kind domain.EntityKind, naturalKey string) (domain.Entity, error)
	Update(ctx context.Context, entity domain.Entity) (domain.Entity, error)
	Delete(ctx context.Context, id uuid.UUID) error

	AddReference(ctx context.Context, ref domain.EntityReference) error
	// HasExternalReferences reports whether an entity is referenced by an
	// entity that does not belong to the given batch.
	HasExternalReferences(ctx context.Context, id uuid.UUID, batchID uuid.UUID) (bool, error)
	// IsReferenced reports whether any entity still references id.
	IsReferenced(ctx context.Context, id uuid.UUID) (bool, error)

	ListByBatch(ctx context.Context, batchID uuid.UUID, kind domain.EntityKind) ([]domain.Entity, error)
	CountByBatch(ctx context.Context, batchID uuid.UUID) (map[domain.EntityKind]int, error)
	CountByKind(ctx context.Context, kind domain.EntityKind) (int, error)
}

// BatchRepository persists import batches.
type BatchRepository interface {
	Create(ctx context.Context, batch domain.ImportBatch) error
	GetByID(ctx context.Context, id uuid.UUID) (domain.ImportBatch, error)
	Update(ctx context.Context, batch domain.ImportBatch) error
	List(ctx context.Context, limit int, offset int) ([]domain.ImportBatch, error)
}

// ImportErrorRepository is the append-only error log of a batch.
type ImportErrorRepository interface {
	Record(ctx context.Context, entry domain.ImportError) error
	ListByBatch(ctx context.Context, batchID uuid.UUID, limit int, offset int) ([]domain.ImportError, error)
	CountByBatch(ctx context.Context, batchID uuid.UUID) (int, error)
}

// MappingRepository persists named import mappings.
type MappingRepository interface {
	Save(ctx context.Context, mapping domain.ImportMapping) error
	GetByID(ctx context.Context, id uuid.UUID) (domain.ImportMapping, error)
	GetByName(ctx context.Context, name string) (domain.ImportMapping, error)
	List(ctx context.Context, entityType string) ([]domain.ImportMapping, error)
}

// LearningRepository stores mapping feedback.
type LearningRepository interface {
	FindByColumn(ctx context.Context, column, entityType string) ([]domain.ImportMappingLearning, error)
	FindByFingerprint(ctx context.Context, fingerprint string) ([]domain.ImportMappingLearning, error)
	Save(ctx context.Context, learning *domain.ImportMappingLearning) error
}

// VendorFingerprintRepository indexes vendor identifying signals.
type VendorFingerprintRepository interface {
	detect.FingerprintIndex
	Add(ctx context.Context, vendorID string, kind detect.SignalKind, value string) error
}
