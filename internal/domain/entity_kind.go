package domain

import "fmt"

// EntityKind enumerates the record types an import can produce.
type EntityKind string

const (
	KindStockLocation   EntityKind = "stock_location"
	KindCustomer        EntityKind = "customer"
	KindVendor          EntityKind = "vendor"
	KindItem            EntityKind = "item"
	KindItemVariant     EntityKind = "item_variant"
	KindSellable        EntityKind = "sellable"
	KindSellableVariant EntityKind = "sellable_variant"
	KindOrder           EntityKind = "order"
	KindOrderItem       EntityKind = "order_item"
	KindPurchase        EntityKind = "purchase"
	KindPurchaseItem    EntityKind = "purchase_item"
	KindJournalEntry    EntityKind = "journal_entry"
	KindStockTarget     EntityKind = "stock_target"
)

var allKinds = []EntityKind{
	KindStockLocation, KindCustomer, KindVendor, KindItem, KindItemVariant,
	KindSellable, KindSellableVariant, KindOrder, KindOrderItem, KindPurchase,
	KindPurchaseItem, KindJournalEntry, KindStockTarget,
}

// ParseEntityKind validates a kind name.
func ParseEntityKind(s string) (EntityKind, error) {
	for _, k := range allKinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown entity kind %q", s)
}

// Mappable reports whether the kind can be cross-referenced through an EntityMap.
func (k EntityKind) Mappable() bool {
	switch k {
	case KindStockLocation, KindCustomer, KindVendor, KindItem, KindItemVariant,
		KindSellable, KindSellableVariant:
		return true
	}
	return false
}

// DependencyRank orders kinds so that prerequisites come first.
// Kinds with no foreign prerequisites rank 1.
func (k EntityKind) DependencyRank() int {
	switch k {
	case KindStockLocation, KindCustomer, KindVendor:
		return 1
	case KindItem:
		return 2
	case KindItemVariant, KindSellable:
		return 3
	case KindSellableVariant, KindStockTarget:
		return 4
	case KindOrder, KindPurchase:
		return 5
	case KindOrderItem, KindPurchaseItem:
		return 6
	case KindJournalEntry:
		return 7
	}
	return 99
}

// RollbackOrder lists kinds dependents-first, the order in which batch-created
// rows can be deleted without orphaning references.
func RollbackOrder() []EntityKind {
	return []EntityKind{
		KindJournalEntry,
		KindOrderItem, KindOrder,
		KindPurchaseItem, KindPurchase,
		KindSellableVariant, KindSellable,
		KindItemVariant, KindItem,
		KindCustomer, KindVendor, KindStockLocation,
	}
}
