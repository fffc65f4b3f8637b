package repository

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/rpattn/tabimport/internal/domain"
)

type rowFunc func(dest ...any) error

func (f rowFunc) Scan(dest ...any) error { return f(dest...) }

func TestScanEntity_DecodesProperties(t *testing.T) {
	id := uuid.New()
	batch := uuid.New()
	now := time.Now()
	key := "sku:abc"

	row := rowFunc(func(dest ...any) error {
		*dest[0].(*uuid.UUID) = id
		*dest[1].(*string) = "sellable"
		*dest[2].(**string) = &key
		*dest[3].(*string) = "Latte"
		*dest[4].(*[]byte) = []byte(`{"price": 4.5, "category": "coffee"}`)
		*dest[5].(**uuid.UUID) = &batch
		*dest[6].(*time.Time) = now
		*dest[7].(*time.Time) = now
		return nil
	})

	e, err := scanEntity(row)
	if err != nil {
		t.Fatalf("unexpected error scanning entity: %v", err)
	}
	if e.Kind != domain.KindSellable {
		t.Fatalf("expected sellable kind, got %q", e.Kind)
	}
	if e.NaturalKey != key {
		t.Fatalf("expected natural key %q, got %q", key, e.NaturalKey)
	}
	if price, ok := e.FloatProperty("price"); !ok || price != 4.5 {
		t.Fatalf("expected price 4.5, got %v (%v)", price, ok)
	}
	if e.BatchID == nil || *e.BatchID != batch {
		t.Fatalf("expected batch id %s, got %v", batch, e.BatchID)
	}
}

func TestScanEntity_NullNaturalKey(t *testing.T) {
	row := rowFunc(func(dest ...any) error {
		*dest[1].(*string) = "order"
		*dest[4].(*[]byte) = nil
		return nil
	})

	e, err := scanEntity(row)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.NaturalKey != "" {
		t.Fatalf("expected empty natural key, got %q", e.NaturalKey)
	}
	if e.Properties == nil {
		t.Fatalf("properties should never be nil after scanning")
	}
}

func TestNotFound_WrapsNoRows(t *testing.T) {
	err := notFound(pgx.ErrNoRows, "get entity %s", "x")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err.Error() != "get entity x: not found" {
		t.Fatalf("unexpected message %q", err.Error())
	}

	other := notFound(errors.New("conn reset"), "get entity %s", "x")
	if errors.Is(other, ErrNotFound) {
		t.Fatalf("driver errors must not look like not-found")
	}
	if other.Error() != "failed to get entity x: conn reset" {
		t.Fatalf("unexpected message %q", other.Error())
	}
}

func TestNullableText_BlankIsNull(t *testing.T) {
	if nullableText("   ") != nil {
		t.Fatalf("expected blank natural key to be stored as NULL")
	}
	if v := nullableText("name:flour"); v == nil || *v != "name:flour" {
		t.Fatalf("expected natural key to be kept, got %v", v)
	}
}

func TestMarshalBatchJSON_EmptyMaps(t *testing.T) {
	b := domain.ImportBatch{}
	counts, summary, meta, err := marshalBatchJSON(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if counts != "{}" || meta != "{}" {
		t.Fatalf("expected empty json objects, got %s and %s", counts, meta)
	}
	if summary != nil {
		t.Fatalf("expected nil summary, got %s", *summary)
	}
}
