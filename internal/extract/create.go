package extract

import (
	"context"
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/rpattn/tabimport/internal/domain"
	"github.com/rpattn/tabimport/internal/repository"
)

var errMissingName = errors.New("record has no name")

// creator carries the state shared by one CreateEntities call.
type creator struct {
	store  repository.EntityStore
	batch  *domain.ImportBatch
	counts map[string]int
	emap   *EntityMap
	drift  []domain.PropertyDrift
	errs   *multierror.Error
}

func newCreator(store repository.EntityStore, batch *domain.ImportBatch) *creator {
	return &creator{store: store, batch: batch, counts: map[string]int{}, emap: NewEntityMap()}
}

func (c *creator) outcome() (Outcome, error) {
	return Outcome{Counts: c.counts, Map: c.emap, Drift: c.drift}, c.errs.ErrorOrNil()
}

func (c *creator) fail(kind domain.EntityKind, key string, err error) {
	c.errs = multierror.Append(c.errs, fmt.Errorf("%s %q: %w", kind, key, err))
}

func (c *creator) tally(kind domain.EntityKind, what string) {
	c.counts[string(kind)+"_"+what]++
}

// lookup tries each natural key in order.
func (c *creator) lookup(ctx context.Context, kind domain.EntityKind, keys []string) (domain.Entity, bool, error) {
	for _, k := range keys {
		if k == "" {
			continue
		}
		e, err := c.store.FindByNaturalKey(ctx, kind, k)
		if err == nil {
			return e, true, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return domain.Entity{}, false, err
		}
	}
	return domain.Entity{}, false, nil
}

// findOrCreate returns the entity stored under the first matching key, or
// creates one under the first non-empty key. Running it twice for the same
// keys never creates a second entity. A stored entity is never updated, but
// properties the record disagrees on are reported as drift.
func (c *creator) findOrCreate(ctx context.Context, kind domain.EntityKind, keys []string, build func(naturalKey string) domain.Entity) (domain.Entity, bool, error) {
	existing, found, err := c.lookup(ctx, kind, keys)
	if err != nil {
		return domain.Entity{}, false, fmt.Errorf("failed to look up %s: %w", kind, err)
	}
	if found {
		c.compare(kind, existing, build(existing.NaturalKey))
		return existing, false, nil
	}
	primary := ""
	for _, k := range keys {
		if k != "" {
			primary = k
			break
		}
	}
	if primary == "" {
		return domain.Entity{}, false, errors.New("no natural key")
	}
	e := build(primary)
	if c.batch != nil {
		e = e.WithBatch(c.batch.ID)
	}
	created, err := c.store.Create(ctx, e)
	if err != nil {
		return domain.Entity{}, false, fmt.Errorf("failed to create %s: %w", kind, err)
	}
	return created, true, nil
}

func (c *creator) compare(kind domain.EntityKind, stored, incoming domain.Entity) {
	changes, err := domain.DiffProperties(stored.Properties, incoming.Properties)
	if err != nil || len(changes) == 0 {
		return
	}
	c.tally(kind, "drifted")
	c.drift = append(c.drift, domain.PropertyDrift{Kind: kind, NaturalKey: stored.NaturalKey, Changes: changes})
}

// remember maps the record key and extra aliases to the entity. A kind the
// map cannot hold is reported as a failure of that record.
func (c *creator) remember(kind domain.EntityKind, recordKey string, e domain.Entity, aliases ...string) {
	if err := c.emap.Add(kind, recordKey, e.ID, &e); err != nil {
		c.fail(kind, recordKey, err)
		return
	}
	if e.NaturalKey != recordKey {
		aliases = append([]string{e.NaturalKey}, aliases...)
	}
	for _, a := range aliases {
		if err := c.emap.AddAlias(kind, a, recordKey); err != nil {
			c.fail(kind, recordKey, err)
			return
		}
	}
}

// properties drops empty strings.
func properties(kv ...any) map[string]any {
	out := make(map[string]any, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		k, _ := kv[i].(string)
		switch v := kv[i+1].(type) {
		case string:
			if v != "" {
				out[k] = v
			}
		case nil:
		default:
			out[k] = v
		}
	}
	return out
}
