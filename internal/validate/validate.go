// Package validate contains the pure input validators that run before any
// network call. Each validator takes one raw argument and either returns a
// normalized value or fails with an [*Error] naming the offending field.
// Validators have no side effects.
package validate

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Argument bounds. These mirror the limits documented for the upstream API.
const (
	MaxQueryLength    = 500
	MaxLocationLength = 100
	MinRadius         = 1
	MaxRadius         = 200
	MinPrice          = 0
	MaxPrice          = 999999999
	MinPageCount      = 1
	MaxPageCount      = 20
)

// SortOptions lists the accepted sort orders; the first entry is the default.
var SortOptions = []string{"newest", "oldest", "price_asc", "price_desc"}

// Error reports a rejected argument. It is surfaced verbatim to the caller
// and never retried.
type Error struct {
	Field  string
	Reason string
}

func (e *Error) Error() string {
	return e.Field + ": " + e.Reason
}

var (
	// markupPattern matches markup sequences that are rejected rather than
	// escaped: script tags, javascript: URLs and inline event handlers.
	markupPattern = regexp.MustCompile(`(?i)<script|javascript:|on\w+=`)

	// locationPattern allows alphanumerics, whitespace, commas, hyphens and
	// German letters. Go's \w is ASCII-only, so umlauts are listed explicitly.
	locationPattern = regexp.MustCompile(`^[\w\s,äöüßÄÖÜ-]+$`)

	digitsPattern = regexp.MustCompile(`^\d+$`)
)

// Query normalizes a search query: whitespace is collapsed, overlong or
// markup-bearing input is rejected. An empty query is valid and maps to "".
func Query(query string) (string, error) {
	query = strings.Join(strings.Fields(query), " ")
	if query == "" {
		return "", nil
	}
	if utf8.RuneCountInString(query) > MaxQueryLength {
		return "", &Error{Field: "query", Reason: fmt.Sprintf("too long (max %d characters)", MaxQueryLength)}
	}
	if markupPattern.MatchString(query) {
		return "", &Error{Field: "query", Reason: "contains disallowed markup"}
	}
	return query, nil
}

// Location validates a free-text location. Postal-code-like strings such as
// "10178" pass through unmodified. An empty location is valid and maps to "".
func Location(location string) (string, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return "", nil
	}
	if utf8.RuneCountInString(location) > MaxLocationLength {
		return "", &Error{Field: "location", Reason: fmt.Sprintf("too long (max %d characters)", MaxLocationLength)}
	}
	if !locationPattern.MatchString(location) {
		return "", &Error{Field: "location", Reason: "contains invalid characters"}
	}
	return location, nil
}

// Radius validates a search radius in kilometers.
func Radius(radius int) error {
	if radius < MinRadius || radius > MaxRadius {
		return &Error{Field: "radius", Reason: fmt.Sprintf("must be between %d and %d km", MinRadius, MaxRadius)}
	}
	return nil
}

// Price validates a single price bound in euros. field names the argument in
// the error ("min_price" or "max_price").
func Price(price int, field string) error {
	if price < MinPrice || price > MaxPrice {
		return &Error{Field: field, Reason: fmt.Sprintf("must be between %d and %d", MinPrice, MaxPrice)}
	}
	return nil
}

// PriceRange validates the optional min/max price pair, including the
// cross-field constraint min ≤ max. Nil means the bound is absent.
func PriceRange(minPrice, maxPrice *int) error {
	if minPrice != nil {
		if err := Price(*minPrice, "min_price"); err != nil {
			return err
		}
	}
	if maxPrice != nil {
		if err := Price(*maxPrice, "max_price"); err != nil {
			return err
		}
	}
	if minPrice != nil && maxPrice != nil && *minPrice > *maxPrice {
		return &Error{Field: "min_price", Reason: "must not exceed max_price"}
	}
	return nil
}

// PageCount validates the number of result pages to fetch. Zero means the
// argument was absent and yields the default of one page.
func PageCount(pageCount int) (int, error) {
	if pageCount == 0 {
		return MinPageCount, nil
	}
	if pageCount < MinPageCount || pageCount > MaxPageCount {
		return 0, &Error{Field: "page_count", Reason: fmt.Sprintf("must be between %d and %d", MinPageCount, MaxPageCount)}
	}
	return pageCount, nil
}

// Sort validates a sort order. An empty value yields the default ("newest").
func Sort(sort string) (string, error) {
	if sort == "" {
		return SortOptions[0], nil
	}
	for _, opt := range SortOptions {
		if sort == opt {
			return sort, nil
		}
	}
	return "", &Error{Field: "sort", Reason: "must be one of: " + strings.Join(SortOptions, ", ")}
}

// ListingID validates a listing identifier: non-empty, digits only.
func ListingID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", &Error{Field: "listing_id", Reason: "is required"}
	}
	if !digitsPattern.MatchString(id) {
		return "", &Error{Field: "listing_id", Reason: "must be a numeric identifier"}
	}
	return id, nil
}

// Category validates a comma-separated list of numeric category IDs and
// returns it with surrounding whitespace stripped from each entry. An empty
// value is valid and maps to "".
func Category(category string) (string, error) {
	if category == "" {
		return "", nil
	}
	parts := strings.Split(category, ",")
	for i, part := range parts {
		part = strings.TrimSpace(part)
		if !digitsPattern.MatchString(part) {
			return "", &Error{Field: "category", Reason: fmt.Sprintf("invalid category ID %q", part)}
		}
		parts[i] = part
	}
	return strings.Join(parts, ","), nil
}
