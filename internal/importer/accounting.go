package importer

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/rpattn/tabimport/internal/domain"
	"github.com/rpattn/tabimport/internal/repository"
)

// Ledger accounts used by generated journal entries.
const (
	AccountReceivable = "accounts_receivable"
	AccountRevenue    = "sales_revenue"
	AccountInventory  = "inventory"
	AccountPayable    = "accounts_payable"
)

type posting struct {
	kind          domain.EntityKind
	debit, credit string
	dateField     string
}

var postings = []posting{
	{domain.KindOrder, AccountReceivable, AccountRevenue, "order_date"},
	{domain.KindPurchase, AccountInventory, AccountPayable, "purchase_date"},
}

// postJournalEntries books one balanced entry per order and purchase the
// batch created. Entries already posted are skipped.
func (s *Service) postJournalEntries(ctx context.Context, batchID uuid.UUID) (map[string]int, error) {
	counts := map[string]int{}
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		clear(counts)
		entities := tx.Entities()
		for _, p := range postings {
			docs, err := entities.ListByBatch(ctx, batchID, p.kind)
			if err != nil {
				return fmt.Errorf("failed to list %s: %w", p.kind, err)
			}
			for _, doc := range docs {
				created, err := postEntry(ctx, entities, batchID, p, doc)
				if err != nil {
					return err
				}
				if created {
					counts[string(domain.KindJournalEntry)+"_created"]++
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return counts, nil
}

func postEntry(ctx context.Context, entities repository.EntityStore, batchID uuid.UUID, p posting, doc domain.Entity) (bool, error) {
	nk := fmt.Sprintf("journal:%s:%s", p.kind, doc.ID)
	if _, found, err := findByKeys(ctx, entities, domain.KindJournalEntry, nk); err != nil || found {
		return false, err
	}
	amount, _ := doc.FloatProperty("total")
	props := map[string]any{
		"source_kind":    string(p.kind),
		"source_id":      doc.ID.String(),
		"debit_account":  p.debit,
		"credit_account": p.credit,
		"amount":         round2(amount),
	}
	if d := doc.StringProperty(p.dateField); d != "" {
		props["entry_date"] = d
	}
	entry, err := entities.Create(ctx, domain.NewEntity(domain.KindJournalEntry, nk, "Journal: "+doc.Name, props).WithBatch(batchID))
	if err != nil {
		return false, fmt.Errorf("failed to create journal entry for %s: %w", doc.Name, err)
	}
	if err := entities.AddReference(ctx, domain.EntityReference{FromID: entry.ID, ToID: doc.ID, Relation: "posts"}); err != nil {
		return false, fmt.Errorf("failed to link journal entry: %w", err)
	}
	return true, nil
}
