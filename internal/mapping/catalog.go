// Package mapping turns column evidence into field mappings and learns from
// user corrections.
package mapping

import (
	"github.com/rpattn/tabimport/internal/signal"
)

// Profile is the value distribution a field is expected to show.
type Profile string

const (
	ProfileIdentifier Profile = "identifier"
	ProfileQuantity   Profile = "quantity"
	ProfileMoney      Profile = "money"
	ProfileText       Profile = "text"
	ProfileTemporal   Profile = "temporal"
)

// Field is one target field of an entity type.
type Field struct {
	Name       string
	EntityType string
	Types      []signal.DataType
	Profile    Profile
	Required   bool
}

type fieldShape struct {
	types   []signal.DataType
	profile Profile
}

var (
	idTypes    = []signal.DataType{signal.TypeString, signal.TypeInteger}
	textTypes  = []signal.DataType{signal.TypeString}
	moneyTypes = []signal.DataType{signal.TypeDecimal, signal.TypeInteger, signal.TypeCurrency}
	qtyTypes   = []signal.DataType{signal.TypeInteger, signal.TypeDecimal}
	dateTypes  = []signal.DataType{signal.TypeDate, signal.TypeDatetime}
)

var shapes = map[string]fieldShape{
	"order_number":    {idTypes, ProfileIdentifier},
	"order_id":        {idTypes, ProfileIdentifier},
	"purchase_number": {idTypes, ProfileIdentifier},
	"purchase_id":     {idTypes, ProfileIdentifier},
	"external_id":     {idTypes, ProfileIdentifier},
	"account_number":  {idTypes, ProfileIdentifier},
	"sku":             {idTypes, ProfileIdentifier},
	"upc":             {[]signal.DataType{signal.TypeInteger, signal.TypeString}, ProfileIdentifier},
	"order_date":      {dateTypes, ProfileTemporal},
	"purchase_date":   {dateTypes, ProfileTemporal},
	"quantity":        {qtyTypes, ProfileQuantity},
	"unit_price":      {moneyTypes, ProfileMoney},
	"unit_cost":       {moneyTypes, ProfileMoney},
	"price":           {moneyTypes, ProfileMoney},
	"cost":            {moneyTypes, ProfileMoney},
	"total":           {moneyTypes, ProfileMoney},
	"subtotal":        {moneyTypes, ProfileMoney},
	"tax":             {moneyTypes, ProfileMoney},
	"discount":        {moneyTypes, ProfileMoney},
	"line_total":      {moneyTypes, ProfileMoney},
	"email":           {[]signal.DataType{signal.TypeEmail}, ProfileText},
	"phone":           {[]signal.DataType{signal.TypePhone, signal.TypeInteger}, ProfileText},
}

var requiredFields = map[string][]string{
	"order":          {"order_number", "order_date"},
	"order_item":     {"order_id", "sellable", "quantity"},
	"sellable":       {"name", "price"},
	"item":           {"name"},
	"customer":       {"name"},
	"vendor":         {"name"},
	"stock_location": {"name"},
	"purchase":       {"vendor", "purchase_date"},
	"purchase_item":  {"item", "quantity"},
}

// RequiredFields lists the fields an entity type cannot be imported without.
func RequiredFields(entityType string) []string {
	return append([]string(nil), requiredFields[entityType]...)
}

// FieldProfile is the expected value profile of a field name in any entity
// type. Unknown fields are text.
func FieldProfile(field string) Profile {
	if shape, ok := shapes[field]; ok {
		return shape.profile
	}
	return ProfileText
}

// Catalog returns the target fields of an entity type in alias order.
func Catalog(entityType string) []Field {
	required := map[string]bool{}
	for _, f := range requiredFields[entityType] {
		required[f] = true
	}
	var out []Field
	for _, name := range signal.KnownFields(entityType) {
		shape, ok := shapes[name]
		if !ok {
			shape = fieldShape{textTypes, ProfileText}
		}
		out = append(out, Field{
			Name:       name,
			EntityType: entityType,
			Types:      shape.types,
			Profile:    shape.profile,
			Required:   required[name],
		})
	}
	return out
}

// catalogFor merges the catalogs of several entity types. A field name that
// appears twice keeps its first definition.
func catalogFor(types []string) []Field {
	seen := map[string]bool{}
	var out []Field
	for _, t := range types {
		for _, f := range Catalog(t) {
			if seen[f.Name] {
				continue
			}
			seen[f.Name] = true
			out = append(out, f)
		}
	}
	return out
}

func (f Field) acceptsType(t signal.DataType) bool {
	for _, want := range f.Types {
		if want == t {
			return true
		}
	}
	return false
}
