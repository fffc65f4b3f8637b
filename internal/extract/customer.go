package extract

import (
	"context"
	"net/mail"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/rpattn/tabimport/internal/domain"
	"github.com/rpattn/tabimport/internal/repository"
)

// Fallback modes for rows without an identifiable customer.
const (
	FallbackWalkIn   = "walk_in"
	FallbackPlatform = "platform"
	FallbackEvent    = "event"
	FallbackNamed    = "named"
	FallbackNone     = "none"
)

// FallbackKey is the record key of the fallback customer. The row importer
// resolves anonymous rows through it.
const FallbackKey = "__fallback__"

// Mapping options read by the customer extractor.
const (
	OptFallbackMode = "customer.fallback_mode"
	OptFallbackName = "customer.fallback_name"
)

var fallbackDefaults = map[string]struct{ Name, Description string }{
	FallbackWalkIn:   {"Walk In", "Anonymous walk-in customers (counter sales, cash transactions)"},
	FallbackPlatform: {"Online Customer", "Aggregated online/e-commerce orders"},
	FallbackEvent:    {"Event Sales", "Sales from events, markets, and pop-ups"},
}

var platforms = []struct{ Key, Name string }{
	{"shopify", "Shopify Customer"},
	{"square", "Square Customer"},
	{"toast", "Toast Customer"},
	{"clover", "Clover Customer"},
	{"doordash", "DoorDash Customer"},
	{"ubereats", "Uber Eats Customer"},
	{"grubhub", "Grubhub Customer"},
}

var genericCustomerNames = map[string]bool{
	"guest": true, "walk in": true, "walk-in": true, "walkin": true, "anonymous": true,
	"cash": true, "cash customer": true, "counter": true, "retail": true,
	"n/a": true, "na": true, "none": true, "unknown": true, "-": true, ".": true,
}

var nonDigit = regexp.MustCompile(`\D`)

// IsGenericCustomerName reports names that stand for no one in particular.
func IsGenericCustomerName(name string) bool {
	return genericCustomerNames[strings.ToLower(strings.TrimSpace(name))]
}

// CustomerExtractor extracts customers and assigns anonymous rows to a
// fallback customer.
type CustomerExtractor struct{}

// NewCustomerExtractor returns the customer extractor.
func NewCustomerExtractor() *CustomerExtractor { return &CustomerExtractor{} }

var customerProfile = Profile{
	Groups: [][]string{
		{"customer", "customer_name", "client", "buyer", "patron"},
		{"order", "order_id", "transaction", "sale", "invoice"},
	},
	Strong: []string{
		"customer_id", "customer_email", "customer_phone",
		"billing_name", "shipping_name", "contact_name",
		"company", "organization", "account",
	},
}

func (e *CustomerExtractor) Metadata() Metadata {
	return Metadata{Name: "customer", Label: "Customers & Attribution", Kinds: []domain.EntityKind{domain.KindCustomer}, Priority: 80}
}

// Detect gives transactional data without a customer column a score of 0.4
// so the fallback customer can still be assigned.
func (e *CustomerExtractor) Detect(headers []string, sample []Row) float64 {
	norm := normalizedSet(headers)
	if hasAny(norm, []string{"customer", "customer_name", "client", "buyer", "customer_id", "customer_email", "patron"}) {
		return Detect(customerProfile, headers, sample)
	}
	txn := hasAny(norm, []string{"order", "order_id", "order_number", "transaction", "transaction_id", "sale", "sale_id", "invoice", "receipt", "ticket"})
	date := hasAny(norm, []string{"date", "order_date", "transaction_date", "sale_date", "created_at"})
	if txn && date {
		return MinRelevance
	}
	return 0
}

func (e *CustomerExtractor) Extract(rows []Row, headers []string, mapping *domain.ImportMapping) *Result {
	mode := mapping.Option(OptFallbackMode, FallbackWalkIn)
	customName := mapping.Option(OptFallbackName, "")

	nameCol := column(mapping, []string{"customer", "customer.name"}, []string{"customer", "customer_name", "client", "buyer", "patron"}, headers)
	emailCol := column(mapping, []string{"customer.email"}, []string{"customer_email", "email", "contact_email"}, headers)
	phoneCol := column(mapping, []string{"customer.phone"}, []string{"customer_phone", "phone", "contact_phone", "telephone"}, headers)
	companyCol := column(mapping, []string{"customer.company"}, []string{"company", "organization", "business", "account"}, headers)

	platform := DetectPlatform(rows, headers)

	res := NewResult()
	customers := map[string]Record{}
	anonymous, attributed := 0, 0
	for i, row := range rows {
		name, email, phone := Value(row, nameCol), Value(row, emailCol), Value(row, phoneCol)
		if !identifiable(name, email, phone) {
			anonymous++
			continue
		}
		key := CustomerKey(name, email)
		rec, ok := customers[key]
		if !ok {
			display := name
			if display == "" || IsGenericCustomerName(display) {
				display = NameFromEmail(email)
			}
			rec = newRecord(key, display)
			rec.Fields["email"] = email
			rec.Fields["phone"] = phone
			rec.Fields["company"] = Value(row, companyCol)
			rec.Fields["source"] = "extracted"
		}
		rec.Rows = append(rec.Rows, i)
		customers[key] = rec
		attributed++
	}

	for _, rec := range customers {
		res.Put(domain.KindCustomer, rec)
	}
	if fb, ok := resolveFallback(mode, customName, platform, anonymous); ok {
		res.Put(domain.KindCustomer, fb)
	} else if anonymous > 0 {
		res.Warnf("%d transactions have no customer data and no fallback configured", anonymous)
	}

	res.Diagnostics["total_rows"] = len(rows)
	res.Diagnostics["extracted_customers"] = len(customers)
	res.Diagnostics["extracted_transactions"] = attributed
	res.Diagnostics["anonymous_transactions"] = anonymous
	return res
}

func identifiable(name, email, phone string) bool {
	if name != "" && !IsGenericCustomerName(name) {
		return true
	}
	if email != "" && validEmail(email) {
		return true
	}
	return len(nonDigit.ReplaceAllString(phone, "")) >= 7
}

func validEmail(v string) bool {
	addr, err := mail.ParseAddress(v)
	return err == nil && addr.Address == v
}

// CustomerKey prefers the e-mail address over the name.
func CustomerKey(name, email string) string {
	if email != "" {
		return "email:" + NormalizeKey(email)
	}
	if name == "" {
		name = "unknown"
	}
	return "name:" + NormalizeKey(name)
}

// NameFromEmail turns "jane.doe@x.com" into "Jane Doe".
func NameFromEmail(email string) string {
	if email == "" {
		return "Unknown Customer"
	}
	local, _, _ := strings.Cut(email, "@")
	words := strings.FieldsFunc(local, func(r rune) bool { return r == '.' || r == '_' || r == '-' })
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToUpper(r)) + w[size:]
	}
	return strings.Join(words, " ")
}

// DetectPlatform looks for a known sales platform in the headers and then in
// the first 100 rows.
func DetectPlatform(rows []Row, headers []string) string {
	var hb strings.Builder
	for _, h := range headers {
		hb.WriteString(NormalizeHeader(h))
		hb.WriteByte(' ')
	}
	if p := platformIn(hb.String()); p != "" {
		return p
	}
	var sb strings.Builder
	for i, row := range rows {
		if i >= detectSample {
			break
		}
		for _, v := range row {
			sb.WriteString(strings.ToLower(v))
			sb.WriteByte(' ')
		}
	}
	return platformIn(sb.String())
}

func platformIn(text string) string {
	for _, p := range platforms {
		if strings.Contains(text, p.Key) {
			return p.Key
		}
	}
	return ""
}

func platformName(key string) string {
	for _, p := range platforms {
		if p.Key == key {
			return p.Name
		}
	}
	return "Platform Customer"
}

// resolveFallback builds the fallback customer record when anonymous rows
// exist. Unknown modes fall back to walk-in.
func resolveFallback(mode, customName, platform string, anonymous int) (Record, bool) {
	if anonymous == 0 || mode == FallbackNone {
		return Record{}, false
	}
	rec := newRecord(FallbackKey, "")
	rec.Fields["source"] = "fallback"
	rec.Numbers["anonymous_count"] = float64(anonymous)

	switch {
	case mode == FallbackNamed:
		rec.Name = customName
		if rec.Name == "" {
			rec.Name = "Custom Fallback"
		}
	case mode == FallbackPlatform && platform != "":
		rec.Name = platformName(platform)
		rec.Fields["platform"] = platform
		rec.Fields["description"] = "Orders imported from " + platform
	default:
		d, ok := fallbackDefaults[mode]
		if !ok {
			mode, d = FallbackWalkIn, fallbackDefaults[FallbackWalkIn]
		}
		rec.Name = d.Name
		if customName != "" {
			rec.Name = customName
		}
		rec.Fields["description"] = d.Description
		rec.Fields["is_system"] = "true"
	}
	rec.Fields["mode"] = mode
	return rec, true
}

func (e *CustomerExtractor) CreateEntities(ctx context.Context, records Records, batch *domain.ImportBatch, store repository.EntityStore) (Outcome, error) {
	c := newCreator(store, batch)
	for _, rec := range sortedRecords(records[domain.KindCustomer]) {
		name, email := strings.TrimSpace(rec.Name), rec.Field("email")
		if name == "" && email == "" {
			c.fail(domain.KindCustomer, rec.Key, errMissingName)
			continue
		}
		if name == "" {
			name = NameFromEmail(email)
		}
		nameKey := "name:" + NormalizeKey(name)
		var keys []string
		if email != "" {
			keys = append(keys, "email:"+NormalizeKey(email))
		}
		keys = append(keys, nameKey)

		ent, created, err := c.findOrCreate(ctx, domain.KindCustomer, keys, func(nk string) domain.Entity {
			props := properties(
				"email", email,
				"phone", rec.Field("phone"),
				"company", rec.Field("company"),
				"source", rec.Field("source"),
				"notes", rec.Field("description"),
			)
			if rec.Field("is_system") == "true" {
				props["is_system"] = true
			}
			return domain.NewEntity(domain.KindCustomer, nk, name, props)
		})
		if err != nil {
			c.fail(domain.KindCustomer, rec.Key, err)
			continue
		}
		if created {
			c.tally(domain.KindCustomer, "created")
		} else {
			c.tally(domain.KindCustomer, "found")
		}
		c.remember(domain.KindCustomer, rec.Key, ent, name, email)
	}
	return c.outcome()
}
