package detect

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

// SignalKind names a kind of identifying evidence found on a receipt.
type SignalKind string

const (
	SignalTaxID       SignalKind = "tax_id"
	SignalPhone       SignalKind = "phone"
	SignalURL         SignalKind = "url"
	SignalEmail       SignalKind = "email"
	SignalAddressHash SignalKind = "address_hash"
	SignalAlias       SignalKind = "alias"
	SignalBrand       SignalKind = "brand"
	SignalPostal      SignalKind = "postal"
	SignalStoreNumber SignalKind = "store_number"
)

// Signal is one normalized piece of evidence.
type Signal struct {
	Kind  SignalKind `json:"kind"`
	Value string     `json:"value"`
	Raw   string     `json:"raw,omitempty"`
}

var (
	rePhone   = regexp.MustCompile(`(\+?\d[\d\-.\s()]{8,}\d)`)
	reURL     = regexp.MustCompile(`(?i)\b(?:https?://)?((?:www\.)?[a-z0-9][a-z0-9\-]*(?:\.[a-z0-9\-]+)*\.(?:com|net|org|ca|co|us|io|biz|info))\b`)
	reEmail   = regexp.MustCompile(`(?i)\b([a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,})\b`)
	reTaxID   = regexp.MustCompile(`(?i)\b(VAT|GST|TAX\s*ID|ABN|TIN)[:\s\-]*([A-Z0-9\-]+)\b`)
	reStore   = regexp.MustCompile(`(?i)\b(STORE|STR)(?:\s*#\s*|\s+)([A-Z0-9\-]*\d[A-Z0-9\-]*)\b`)
	reStreet  = regexp.MustCompile(`(?i)\b\d{1,6}\s+[A-Za-z0-9.'\s]+?\s(street|st|avenue|ave|road|rd|drive|dr|boulevard|blvd|lane|ln|way|highway|hwy|parkway|pkwy)\b\.?`)
	reZipUS   = regexp.MustCompile(`\b(\d{5})(?:-\d{4})?\b`)
	reZipCA   = regexp.MustCompile(`(?i)\b([A-Z]\d[A-Z])\s?(\d[A-Z]\d)\b`)
	reNonWord = regexp.MustCompile(`[^a-z0-9\s]`)
	reSpaces  = regexp.MustCompile(`\s+`)
	reDigits  = regexp.MustCompile(`\D`)
)

var brands = []string{"KROGER", "WALMART", "TARGET", "ALDI", "WHOLE FOODS", "COSTCO", "SAFEWAY", "GIANT", "PUBLIX", "TRADER JOE'S"}

var streetAbbrev = strings.NewReplacer(
	" street", " st",
	" avenue", " ave",
	" road", " rd",
	" drive", " dr",
	" boulevard", " blvd",
)

// ExtractSignals scans receipt header and footer lines for identifying
// evidence. Duplicate signals are reported once.
func ExtractSignals(lines []string) []Signal {
	var out []Signal
	seen := map[Signal]bool{}
	add := func(s Signal) {
		key := Signal{Kind: s.Kind, Value: s.Value}
		if s.Value == "" || seen[key] {
			return
		}
		seen[key] = true
		out = append(out, s)
	}

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		upper := strings.ToUpper(line)

		for _, m := range rePhone.FindAllString(line, -1) {
			if digits := reDigits.ReplaceAllString(m, ""); len(digits) >= 10 {
				add(Signal{Kind: SignalPhone, Value: digits, Raw: m})
			}
		}
		emails := reEmail.FindAllStringSubmatch(line, -1)
		for _, m := range emails {
			add(Signal{Kind: SignalEmail, Value: strings.ToLower(m[1]), Raw: m[0]})
		}
		if len(emails) == 0 {
			for _, m := range reURL.FindAllStringSubmatch(line, -1) {
				host := strings.TrimPrefix(strings.ToLower(m[1]), "www.")
				add(Signal{Kind: SignalURL, Value: host, Raw: m[0]})
			}
		}
		for _, m := range reTaxID.FindAllStringSubmatch(upper, -1) {
			add(Signal{Kind: SignalTaxID, Value: m[2], Raw: m[0]})
		}
		for _, m := range reStore.FindAllStringSubmatch(upper, -1) {
			add(Signal{Kind: SignalStoreNumber, Value: m[2], Raw: m[0]})
		}
		if m := reStreet.FindString(line); m != "" {
			add(Signal{Kind: SignalAddressHash, Value: AddressHash(m), Raw: m})
		}
		if m := reZipCA.FindStringSubmatch(upper); m != nil {
			add(Signal{Kind: SignalPostal, Value: m[1] + m[2], Raw: m[0]})
		} else if reStreet.MatchString(line) || strings.Contains(line, ",") {
			if m := reZipUS.FindStringSubmatch(line); m != nil {
				add(Signal{Kind: SignalPostal, Value: m[1], Raw: m[0]})
			}
		}
		for _, b := range brands {
			if strings.Contains(upper, b) {
				add(Signal{Kind: SignalBrand, Value: strings.ToLower(b), Raw: b})
			}
		}
	}
	return out
}

// NormalizeAddress lower-cases an address, strips punctuation and abbreviates
// common street suffixes.
func NormalizeAddress(addr string) string {
	a := strings.ToLower(addr)
	a = reNonWord.ReplaceAllString(a, " ")
	a = reSpaces.ReplaceAllString(a, " ")
	a = strings.TrimSpace(a)
	return strings.TrimSpace(streetAbbrev.Replace(a + " "))
}

// AddressHash is the sha256 hex digest of the normalized address.
func AddressHash(addr string) string {
	sum := sha256.Sum256([]byte(NormalizeAddress(addr)))
	return hex.EncodeToString(sum[:])
}
