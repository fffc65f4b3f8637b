package importer

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/rpattn/tabimport/internal/domain"
	"github.com/rpattn/tabimport/internal/extract"
	"github.com/rpattn/tabimport/internal/repository"
)

var masterKinds = map[string]domain.EntityKind{
	"item":           domain.KindItem,
	"sellable":       domain.KindSellable,
	"customer":       domain.KindCustomer,
	"vendor":         domain.KindVendor,
	"stock_location": domain.KindStockLocation,
}

var (
	locationIDColumns   = []string{"store_id", "location_id", "store_number", "site_id", "location_code"}
	locationNameColumns = []string{"store_name", "store_location", "location", "location_name", "store", "branch", "outlet"}
)

// Supported reports whether rows of an entity type can be imported.
func Supported(entityType string) bool {
	switch entityType {
	case "order", "order_item", "order_line", "purchase", "purchase_item", "purchase_line":
		return true
	}
	_, ok := masterKinds[entityType]
	return ok
}

// RowError is a row that could not be turned into entities.
type RowError struct {
	Field   string
	Message string
}

func (e *RowError) Error() string { return e.Message }

func rowErr(field, format string, args ...any) error {
	return &RowError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// rowImporter turns transformed rows into transactional entities. A copy is
// taken per row so the tallies of a rolled back row are dropped with it.
type rowImporter struct {
	store       repository.EntityStore
	emap        *extract.EntityMap
	batchID     uuid.UUID
	entityType  string
	transformer *Transformer
	locIDCol    string
	locNameCol  string
	counts      map[string]int
}

func newRowImporter(store repository.EntityStore, emap *extract.EntityMap, batchID uuid.UUID, m *domain.ImportMapping, headers []string) *rowImporter {
	if emap == nil {
		emap = extract.NewEntityMap()
	}
	return &rowImporter{
		store:       store,
		emap:        emap,
		batchID:     batchID,
		entityType:  m.EntityType,
		transformer: NewTransformer(m),
		locIDCol:    extract.FindColumn(locationIDColumns, headers),
		locNameCol:  extract.FindColumn(locationNameColumns, headers),
		counts:      map[string]int{},
	}
}

// withStore returns a copy writing to store with fresh tallies.
func (ri *rowImporter) withStore(store repository.EntityStore) *rowImporter {
	c := *ri
	c.store = store
	c.counts = map[string]int{}
	return &c
}

func (ri *rowImporter) tally(kind domain.EntityKind, what string) {
	ri.counts[string(kind)+"_"+what]++
}

// Import converts one row.
func (ri *rowImporter) Import(ctx context.Context, row ParsedRow) error {
	fields, errs := ri.transformer.Apply(row.Values)
	if len(errs) > 0 {
		return rowErr(errs[0].Field, "Invalid value for %s: %s", errs[0].Field, errs[0].Message)
	}
	switch ri.entityType {
	case "order", "order_item", "order_line":
		return ri.orderLine(ctx, row, fields)
	case "purchase", "purchase_item", "purchase_line":
		return ri.purchaseLine(ctx, row, fields)
	}
	if kind, ok := masterKinds[ri.entityType]; ok {
		return ri.masterRecord(ctx, kind, fields)
	}
	return fmt.Errorf("unsupported entity type %q", ri.entityType)
}

func (ri *rowImporter) orderLine(ctx context.Context, row ParsedRow, f Fields) error {
	name := f.First("sellable", "product", "product_name", "name")
	sku := f.String("sku")
	if name == "" && sku == "" {
		return rowErr("sellable", "Sellable is required")
	}
	sellable, variant, err := ri.resolveSellable(ctx, name, sku)
	if err != nil {
		return err
	}

	qty, err := quantity(f)
	if err != nil {
		return err
	}
	price, ok := f.Float("unit_price")
	if !ok {
		price = sellablePrice(sellable, variant)
	}
	if price < 0 {
		return rowErr("unit_price", "Unit price cannot be negative")
	}
	lineTotal := round2(price * qty)

	order, err := ri.findOrCreateOrder(ctx, row, f)
	if err != nil {
		return err
	}

	props := map[string]any{
		"order_id":    order.ID.String(),
		"sellable_id": sellable.ID.String(),
		"quantity":    qty,
		"unit_price":  price,
		"line_total":  lineTotal,
		"line_number": row.Line,
	}
	if variant != nil {
		props["variant_id"] = variant.ID.String()
	}
	line, err := ri.store.Create(ctx, domain.NewEntity(domain.KindOrderItem, "", sellable.Name, props).WithBatch(ri.batchID))
	if err != nil {
		return fmt.Errorf("failed to create order line: %w", err)
	}
	refs := []domain.EntityReference{
		{FromID: line.ID, ToID: order.ID, Relation: "line_of"},
		{FromID: line.ID, ToID: sellable.ID, Relation: "sells"},
	}
	if variant != nil {
		refs = append(refs, domain.EntityReference{FromID: line.ID, ToID: variant.ID, Relation: "sells_variant"})
	}
	if err := ri.addReferences(ctx, refs...); err != nil {
		return err
	}
	ri.tally(domain.KindOrderItem, "created")
	return ri.addToTotals(ctx, order, lineTotal)
}

// resolveSellable looks a product up in the entity map first, then by SKU,
// then by name, then by the base name of a sized product.
func (ri *rowImporter) resolveSellable(ctx context.Context, name, sku string) (domain.Entity, *domain.Entity, error) {
	for _, key := range []string{name, sku} {
		if key == "" {
			continue
		}
		s, err := ri.emap.Entity(ctx, domain.KindSellable, key, ri.store)
		if err != nil {
			continue
		}
		if v, err := ri.emap.Entity(ctx, domain.KindSellableVariant, key, ri.store); err == nil {
			return s, &v, nil
		}
		return s, nil, nil
	}

	keys := []string{}
	if sku != "" {
		keys = append(keys, "sku:"+extract.NormalizeKey(sku))
	}
	if name != "" {
		keys = append(keys, "name:"+extract.NormalizeKey(name))
	}
	s, found, err := ri.lookup(ctx, domain.KindSellable, keys...)
	if err != nil {
		return domain.Entity{}, nil, err
	}
	if found {
		return s, nil, nil
	}
	if inf := extract.InferVariant(name); inf.Size != nil {
		s, found, err = ri.lookup(ctx, domain.KindSellable, "name:"+extract.NormalizeKey(inf.BaseName))
		if err != nil {
			return domain.Entity{}, nil, err
		}
		if found {
			v, vFound, err := ri.lookup(ctx, domain.KindSellableVariant, extract.VariantKey(inf.BaseName, inf.Size.Code))
			if err != nil {
				return domain.Entity{}, nil, err
			}
			if vFound {
				return s, &v, nil
			}
			return s, nil, nil
		}
	}
	return domain.Entity{}, nil, rowErr("sellable", "Sellable not found: %s", firstNonEmpty(name, sku))
}

func sellablePrice(sellable domain.Entity, variant *domain.Entity) float64 {
	if variant != nil {
		if p, ok := extract.VariantPrice(sellable, *variant); ok {
			return p
		}
	}
	p, _ := sellable.FloatProperty("price")
	return p
}

func (ri *rowImporter) findOrCreateOrder(ctx context.Context, row ParsedRow, f Fields) (domain.Entity, error) {
	number := f.First("order_number", "order_id", "receipt_number", "transaction_id")
	nk := ""
	if number != "" {
		nk = "order:" + extract.NormalizeKey(number)
		existing, found, err := ri.lookup(ctx, domain.KindOrder, nk)
		if err != nil {
			return domain.Entity{}, err
		}
		if found {
			return existing, nil
		}
	}

	props := map[string]any{
		"status":   firstNonEmpty(f.String("status"), "completed"),
		"subtotal": 0.0,
		"total":    0.0,
		"source":   "import",
	}
	if number != "" {
		props["order_number"] = number
	}
	if f.Has("order_date") {
		props["order_date"] = f.String("order_date")
	}
	for _, k := range []string{"tax", "discount"} {
		if v, ok := f.Float(k); ok {
			props[k] = v
		}
	}
	if notes := f.String("notes"); notes != "" {
		props["notes"] = notes
	}

	customerID, customerName, err := ri.resolveCustomer(ctx, f)
	if err != nil {
		return domain.Entity{}, err
	}
	if customerID != uuid.Nil {
		props["customer_id"] = customerID.String()
	} else if customerName != "" {
		props["customer_name"] = customerName
	}
	locationID, hasLocation := ri.resolveLocation(row, f)
	if hasLocation {
		props["location_id"] = locationID.String()
	}

	label := "Order " + number
	if number == "" {
		label = fmt.Sprintf("Order (line %d)", row.Line)
	}
	order, err := ri.store.Create(ctx, domain.NewEntity(domain.KindOrder, nk, label, props).WithBatch(ri.batchID))
	if err != nil {
		return domain.Entity{}, fmt.Errorf("failed to create order: %w", err)
	}
	var refs []domain.EntityReference
	if customerID != uuid.Nil {
		refs = append(refs, domain.EntityReference{FromID: order.ID, ToID: customerID, Relation: "placed_by"})
	}
	if hasLocation {
		refs = append(refs, domain.EntityReference{FromID: order.ID, ToID: locationID, Relation: "sold_at"})
	}
	if err := ri.addReferences(ctx, refs...); err != nil {
		return domain.Entity{}, err
	}
	ri.tally(domain.KindOrder, "created")
	return order, nil
}

// resolveCustomer returns the customer for an order. Rows without an
// identifiable customer go to the fallback customer when there is one;
// otherwise the raw name is kept on the order.
func (ri *rowImporter) resolveCustomer(ctx context.Context, f Fields) (uuid.UUID, string, error) {
	name := f.First("customer", "customer_name")
	email := f.First("customer_email", "email")
	for _, key := range []string{email, name} {
		if key == "" {
			continue
		}
		if id, ok := ri.emap.Get(domain.KindCustomer, key); ok {
			return id, name, nil
		}
	}
	var keys []string
	if email != "" {
		keys = append(keys, "email:"+extract.NormalizeKey(email))
	}
	if name != "" && !extract.IsGenericCustomerName(name) {
		keys = append(keys, "name:"+extract.NormalizeKey(name))
	}
	c, found, err := ri.lookup(ctx, domain.KindCustomer, keys...)
	if err != nil {
		return uuid.Nil, "", err
	}
	if found {
		return c.ID, name, nil
	}
	if email == "" && (name == "" || extract.IsGenericCustomerName(name)) {
		if id, ok := ri.emap.Get(domain.KindCustomer, extract.FallbackKey); ok {
			return id, name, nil
		}
	}
	return uuid.Nil, name, nil
}

func (ri *rowImporter) resolveLocation(row ParsedRow, f Fields) (uuid.UUID, bool) {
	candidates := []string{f.String("location")}
	if ri.locIDCol != "" {
		candidates = append(candidates, row.Values[ri.locIDCol])
	}
	if ri.locNameCol != "" {
		candidates = append(candidates, row.Values[ri.locNameCol])
	}
	for _, c := range candidates {
		if c == "" {
			continue
		}
		if id, ok := ri.emap.Get(domain.KindStockLocation, c); ok {
			return id, true
		}
	}
	return uuid.Nil, false
}

func (ri *rowImporter) purchaseLine(ctx context.Context, row ParsedRow, f Fields) error {
	name := f.First("item", "item_name", "name", "product")
	sku := f.String("sku")
	if name == "" && sku == "" {
		return rowErr("item", "Item is required")
	}
	item, err := ri.resolveItem(ctx, name, sku)
	if err != nil {
		return err
	}
	qty, err := quantity(f)
	if err != nil {
		return err
	}
	cost, ok := f.Float("unit_cost")
	if !ok {
		cost, ok = f.Float("unit_price")
	}
	if !ok {
		cost, ok = item.FloatProperty("unit_cost")
	}
	if !ok {
		cost, _ = item.FloatProperty("cost")
	}
	lineTotal := round2(cost * qty)

	purchase, err := ri.findOrCreatePurchase(ctx, row, f)
	if err != nil {
		return err
	}
	props := map[string]any{
		"purchase_id": purchase.ID.String(),
		"item_id":     item.ID.String(),
		"quantity":    qty,
		"unit_cost":   cost,
		"line_total":  lineTotal,
		"line_number": row.Line,
	}
	if unit := f.String("unit"); unit != "" {
		props["unit"] = unit
	}
	line, err := ri.store.Create(ctx, domain.NewEntity(domain.KindPurchaseItem, "", item.Name, props).WithBatch(ri.batchID))
	if err != nil {
		return fmt.Errorf("failed to create purchase line: %w", err)
	}
	if err := ri.addReferences(ctx,
		domain.EntityReference{FromID: line.ID, ToID: purchase.ID, Relation: "line_of"},
		domain.EntityReference{FromID: line.ID, ToID: item.ID, Relation: "purchases"},
	); err != nil {
		return err
	}
	ri.tally(domain.KindPurchaseItem, "created")
	return ri.addToTotals(ctx, purchase, lineTotal)
}

func (ri *rowImporter) resolveItem(ctx context.Context, name, sku string) (domain.Entity, error) {
	for _, key := range []string{sku, name} {
		if key == "" {
			continue
		}
		if e, err := ri.emap.Entity(ctx, domain.KindItem, key, ri.store); err == nil {
			return e, nil
		}
	}
	var keys []string
	if sku != "" {
		keys = append(keys, "sku:"+extract.NormalizeKey(sku))
	}
	if name != "" {
		keys = append(keys, "name:"+extract.NormalizeKey(name))
	}
	item, found, err := ri.lookup(ctx, domain.KindItem, keys...)
	if err != nil {
		return domain.Entity{}, err
	}
	if !found {
		return domain.Entity{}, rowErr("item", "Item not found: %s", firstNonEmpty(name, sku))
	}
	return item, nil
}

func (ri *rowImporter) findOrCreatePurchase(ctx context.Context, row ParsedRow, f Fields) (domain.Entity, error) {
	number := f.First("purchase_number", "purchase_id", "po_number", "invoice_number")
	nk := ""
	if number != "" {
		nk = "purchase:" + extract.NormalizeKey(number)
		existing, found, err := ri.lookup(ctx, domain.KindPurchase, nk)
		if err != nil {
			return domain.Entity{}, err
		}
		if found {
			return existing, nil
		}
	}

	vendorName := f.First("vendor", "vendor_name", "supplier")
	if vendorName == "" {
		return domain.Entity{}, rowErr("vendor", "Vendor is required to create a purchase")
	}
	vendorID, ok := ri.emap.Get(domain.KindVendor, vendorName)
	if !ok {
		v, found, err := ri.lookup(ctx, domain.KindVendor, "name:"+extract.NormalizeKey(vendorName))
		if err != nil {
			return domain.Entity{}, err
		}
		if !found {
			return domain.Entity{}, rowErr("vendor", "Vendor not found: %s", vendorName)
		}
		vendorID = v.ID
	}

	props := map[string]any{
		"vendor_id": vendorID.String(),
		"status":    firstNonEmpty(f.String("status"), "received"),
		"subtotal":  0.0,
		"total":     0.0,
		"source":    "import",
	}
	if number != "" {
		props["purchase_number"] = number
	}
	if f.Has("purchase_date") {
		props["purchase_date"] = f.String("purchase_date")
	}
	label := "Purchase " + number
	if number == "" {
		label = fmt.Sprintf("Purchase (line %d)", row.Line)
	}
	purchase, err := ri.store.Create(ctx, domain.NewEntity(domain.KindPurchase, nk, label, props).WithBatch(ri.batchID))
	if err != nil {
		return domain.Entity{}, fmt.Errorf("failed to create purchase: %w", err)
	}
	if err := ri.addReferences(ctx, domain.EntityReference{FromID: purchase.ID, ToID: vendorID, Relation: "supplied_by"}); err != nil {
		return domain.Entity{}, err
	}
	ri.tally(domain.KindPurchase, "created")
	return purchase, nil
}

// masterRecord finds or creates one master-data entity and folds the row's
// fields into it.
func (ri *rowImporter) masterRecord(ctx context.Context, kind domain.EntityKind, f Fields) error {
	name := f.String("name")
	if name == "" {
		return rowErr("name", "Name is required")
	}
	var keys []string
	switch kind {
	case domain.KindItem, domain.KindSellable:
		if sku := f.String("sku"); sku != "" {
			keys = append(keys, "sku:"+extract.NormalizeKey(sku))
		}
	case domain.KindCustomer:
		if email := f.String("email"); email != "" {
			keys = append(keys, "email:"+extract.NormalizeKey(email))
		}
	case domain.KindStockLocation:
		if ext := f.String("external_id"); ext != "" {
			keys = append(keys, "ext:"+extract.NormalizeKey(ext))
		}
	}
	keys = append(keys, "name:"+extract.NormalizeKey(name))
	props := f.Properties("name")

	existing, found, err := ri.lookup(ctx, kind, keys...)
	if err != nil {
		return err
	}
	if !found {
		if _, err := ri.store.Create(ctx, domain.NewEntity(kind, keys[0], name, props).WithBatch(ri.batchID)); err != nil {
			return fmt.Errorf("failed to create %s: %w", kind, err)
		}
		ri.tally(kind, "created")
		return nil
	}

	// compared by JSON encoding, so 2 and 2.0 read back from jsonb agree
	changes, err := domain.DiffProperties(existing.Properties, props)
	if err != nil {
		return fmt.Errorf("failed to compare %s: %w", kind, err)
	}
	if len(changes) == 0 {
		ri.tally(kind, "found")
		return nil
	}
	updated := existing
	for k, v := range props {
		updated = updated.WithProperty(k, v)
	}
	if _, err := ri.store.Update(ctx, updated); err != nil {
		return fmt.Errorf("failed to update %s: %w", kind, err)
	}
	ri.tally(kind, "updated")
	return nil
}

func (ri *rowImporter) addToTotals(ctx context.Context, parent domain.Entity, lineTotal float64) error {
	sub, _ := parent.FloatProperty("subtotal")
	sub = round2(sub + lineTotal)
	tax, _ := parent.FloatProperty("tax")
	discount, _ := parent.FloatProperty("discount")
	lines, _ := parent.FloatProperty("line_count")
	updated := parent.
		WithProperty("subtotal", sub).
		WithProperty("total", round2(sub+tax-discount)).
		WithProperty("line_count", lines+1)
	if _, err := ri.store.Update(ctx, updated); err != nil {
		return fmt.Errorf("failed to update %s totals: %w", parent.Kind, err)
	}
	return nil
}

func (ri *rowImporter) addReferences(ctx context.Context, refs ...domain.EntityReference) error {
	for _, ref := range refs {
		if err := ri.store.AddReference(ctx, ref); err != nil {
			return fmt.Errorf("failed to link %s: %w", ref.Relation, err)
		}
	}
	return nil
}

func (ri *rowImporter) lookup(ctx context.Context, kind domain.EntityKind, keys ...string) (domain.Entity, bool, error) {
	return findByKeys(ctx, ri.store, kind, keys...)
}

// findByKeys returns the entity stored under the first matching natural key.
func findByKeys(ctx context.Context, store repository.EntityStore, kind domain.EntityKind, keys ...string) (domain.Entity, bool, error) {
	for _, k := range keys {
		if k == "" {
			continue
		}
		e, err := store.FindByNaturalKey(ctx, kind, k)
		if err == nil {
			return e, true, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return domain.Entity{}, false, fmt.Errorf("failed to look up %s: %w", kind, err)
		}
	}
	return domain.Entity{}, false, nil
}

func quantity(f Fields) (float64, error) {
	if !f.Has("quantity") {
		return 1, nil
	}
	q, ok := f.Float("quantity")
	if !ok {
		return 0, rowErr("quantity", "Quantity %q is not a number", f.String("quantity"))
	}
	if q <= 0 {
		return 0, rowErr("quantity", "Quantity must be greater than zero")
	}
	return q, nil
}

func round2(f float64) float64 { return math.Round(f*100) / 100 }

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
