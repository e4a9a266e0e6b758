// Package parser validates and normalizes product records delivered by the
// scraping vendor and parses price and query text.
package parser

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/antedotee/mad-project-price-tracker/models"
	"github.com/antedotee/mad-project-price-tracker/pricing"
)

// MinTermLength is the shortest query term the linker will match on.
const MinTermLength = 2

// FlexPrice is a price that the vendor sends either as a JSON number, a
// numeric string ("1,299.99", "$12.50") or null. Strings without digits
// decode as an absent price.
type FlexPrice struct {
	Value float64
	Valid bool
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *FlexPrice) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*p = FlexPrice{}
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] == '"' {
		var text string
		if err := json.Unmarshal(data, &text); err != nil {
			return err
		}
		// unparseable display text ("N/A", "Currently unavailable") means no price
		if v, err := ParsePriceText(text); err == nil {
			p.Value, p.Valid = v, true
		}
		return nil
	}
	v, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("final_price: %w", err)
	}
	p.Value, p.Valid = v, true
	return nil
}

// RawRecord is one product as delivered by the scrape webhook.
type RawRecord struct {
	ASIN       string    `json:"asin"`
	Name       string    `json:"name"`
	Image      string    `json:"image"`
	URL        string    `json:"url"`
	FinalPrice FlexPrice `json:"final_price"`
	Currency   string    `json:"currency"`
	Brand      string    `json:"brand"`
	Keyword    string    `json:"keyword"`
}

// ValidateRecord ensures the vendor captured the required fields.
func ValidateRecord(r *RawRecord) error {
	if r == nil {
		return fmt.Errorf("record is nil")
	}
	if strings.TrimSpace(r.ASIN) == "" {
		return fmt.Errorf("record missing asin")
	}
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("record missing name for %s", r.ASIN)
	}
	return nil
}

// NormalizeRecord converts a validated record into a product stamped with
// now. Non-positive prices are treated as missing.
func NormalizeRecord(r RawRecord, now time.Time) models.Product {
	p := models.Product{
		ASIN:      strings.TrimSpace(r.ASIN),
		Name:      strings.TrimSpace(r.Name),
		Image:     strings.TrimSpace(r.Image),
		URL:       strings.TrimSpace(r.URL),
		Currency:  strings.ToUpper(strings.TrimSpace(r.Currency)),
		Brand:     strings.TrimSpace(r.Brand),
		Keyword:   strings.TrimSpace(r.Keyword),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if p.Currency == "" {
		p.Currency = models.DefaultCurrency
	}
	if r.FinalPrice.Valid && r.FinalPrice.Value > 0 {
		p.FinalPrice = models.PriceOf(pricing.Round2(r.FinalPrice.Value))
	}
	return p
}

// FilterRecords splits records into normalized products and the count of
// records dropped by ValidateRecord. Later duplicates of an ASIN win.
func FilterRecords(records []RawRecord, now time.Time) ([]models.Product, int) {
	index := make(map[string]int, len(records))
	products := make([]models.Product, 0, len(records))
	dropped := 0
	for i := range records {
		if err := ValidateRecord(&records[i]); err != nil {
			dropped++
			continue
		}
		p := NormalizeRecord(records[i], now)
		if at, ok := index[p.ASIN]; ok {
			products[at] = p
			continue
		}
		index[p.ASIN] = len(products)
		products = append(products, p)
	}
	return products, dropped
}

// ParsePriceText extracts a number from display text such as "$1,299.99",
// "USD 12.50" or " 7 ".
func ParsePriceText(text string) (float64, error) {
	var b strings.Builder
	for _, r := range text {
		if (r >= '0' && r <= '9') || r == '.' || (r == '-' && b.Len() == 0) {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return 0, fmt.Errorf("no digits in price text %q", text)
	}
	v, err := strconv.ParseFloat(b.String(), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid price text %q: %w", text, err)
	}
	return v, nil
}

// QueryTerms lowercases query, splits it on whitespace and drops terms
// shorter than MinTermLength characters.
func QueryTerms(query string) []string {
	var terms []string
	for _, field := range strings.Fields(strings.ToLower(query)) {
		if utf8.RuneCountInString(field) >= MinTermLength {
			terms = append(terms, field)
		}
	}
	return terms
}

// MatchesAny reports whether any term is a substring of the lowercased
// name, brand or keyword of p.
func MatchesAny(p models.Product, terms []string) bool {
	name := strings.ToLower(p.Name)
	brand := strings.ToLower(p.Brand)
	keyword := strings.ToLower(p.Keyword)
	for _, term := range terms {
		if strings.Contains(name, term) || strings.Contains(brand, term) || strings.Contains(keyword, term) {
			return true
		}
	}
	return false
}
