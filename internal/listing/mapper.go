package listing

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// listingURLPrefix rebuilds the public ad URL from the upstream listing ID.
const listingURLPrefix = "https://www.kleinanzeigen.de/s-anzeige/"

// priceOnRequest is shown when the upstream price is zero, matching the
// site's own rendering.
const priceOnRequest = "Auf Anfrage"

// MappingError reports a malformed upstream response. It is surfaced to the
// caller as an internal error; corrupted data is never presented as valid.
type MappingError struct {
	Field  string
	Reason string
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("mapping %s: %s", e.Field, e.Reason)
}

// Raw upstream shapes. All loosely-typed fields are kept as RawMessage so
// mismatches surface as MappingError instead of a generic decode failure.

type searchEnvelope struct {
	Success bool `json:"success"`
	Data    struct {
		Ads []json.RawMessage `json:"ads"`
	} `json:"data"`
}

type detailEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
}

type locationsEnvelope struct {
	Success bool       `json:"success"`
	Data    []Location `json:"data"`
}

type categoriesEnvelope struct {
	Success    bool       `json:"success"`
	Categories []Category `json:"categories"`
}

type rawAd struct {
	AdID        json.RawMessage `json:"adid"`
	Title       string          `json:"title"`
	Price       json.RawMessage `json:"price"`
	Location    *rawAdLocation  `json:"location"`
	Seller      *rawAdSeller    `json:"seller"`
	Images      []string        `json:"images"`
	UploadDate  string          `json:"upload_date"`
	Description string          `json:"description"`
	Shipping    *bool           `json:"shipping"`
}

type rawAdLocation struct {
	City  string `json:"city"`
	State string `json:"state"`
}

type rawAdSeller struct {
	Name string `json:"name"`
}

// DecodeSearchPage maps one raw search response body to its result rows,
// preserving upstream order. A page reported as unsuccessful or with a
// malformed ad fails as a whole.
func DecodeSearchPage(body []byte) ([]Summary, error) {
	var env searchEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, &MappingError{Field: "search response", Reason: err.Error()}
	}
	if !env.Success {
		return nil, &MappingError{Field: "search response", Reason: "upstream reported success=false"}
	}

	summaries := make([]Summary, 0, len(env.Data.Ads))
	for i, raw := range env.Data.Ads {
		ad, err := decodeAd(raw)
		if err != nil {
			return nil, &MappingError{Field: fmt.Sprintf("ads[%d]", i), Reason: err.Error()}
		}
		summaries = append(summaries, ad.summary())
	}
	return summaries, nil
}

// DecodeDetail maps a raw detail response body. fallbackID fills the ID when
// the upstream omits adid, so the caller-supplied listing ID is never lost.
func DecodeDetail(body []byte, fallbackID string) (Detail, error) {
	var env detailEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Detail{}, &MappingError{Field: "detail response", Reason: err.Error()}
	}
	if !env.Success || len(env.Data) == 0 || string(env.Data) == "null" {
		return Detail{}, &MappingError{Field: "detail response", Reason: "listing not found or upstream reported success=false"}
	}

	ad, err := decodeAd(env.Data)
	if err != nil {
		return Detail{}, &MappingError{Field: "detail response", Reason: err.Error()}
	}
	d := ad.detail()
	if d.ID == "" {
		d.ID = fallbackID
		d.URL = listingURLPrefix + fallbackID
	}
	return d, nil
}

// DecodeLocations maps a raw locations response body.
func DecodeLocations(body []byte) ([]Location, error) {
	var env locationsEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, &MappingError{Field: "locations response", Reason: err.Error()}
	}
	if !env.Success {
		return nil, &MappingError{Field: "locations response", Reason: "upstream reported success=false"}
	}
	return env.Data, nil
}

// DecodeCategories maps a raw categories response body.
func DecodeCategories(body []byte) ([]Category, error) {
	var env categoriesEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, &MappingError{Field: "categories response", Reason: err.Error()}
	}
	if !env.Success {
		return nil, &MappingError{Field: "categories response", Reason: "upstream reported success=false"}
	}
	return env.Categories, nil
}

// parsedAd is a rawAd with its loosely-typed fields resolved.
type parsedAd struct {
	raw   rawAd
	id    string
	price string
}

func decodeAd(raw json.RawMessage) (*parsedAd, error) {
	var ad rawAd
	if err := json.Unmarshal(raw, &ad); err != nil {
		return nil, err
	}

	id, err := stringOrNumber(ad.AdID)
	if err != nil {
		return nil, &MappingError{Field: "adid", Reason: err.Error()}
	}
	price, err := priceText(ad.Price)
	if err != nil {
		return nil, err
	}
	return &parsedAd{raw: ad, id: id, price: price}, nil
}

func (p *parsedAd) summary() Summary {
	thumbnail := ""
	if len(p.raw.Images) > 0 {
		thumbnail = p.raw.Images[0]
	}
	return Summary{
		ID:          p.id,
		Title:       p.raw.Title,
		Price:       p.price,
		Location:    locationText(p.raw.Location),
		Date:        p.raw.UploadDate,
		URL:         listingURLPrefix + p.id,
		Thumbnail:   thumbnail,
		Description: p.raw.Description,
	}
}

func (p *parsedAd) detail() Detail {
	seller := ""
	if p.raw.Seller != nil {
		seller = p.raw.Seller.Name
	}
	return Detail{
		ID:          p.id,
		Title:       p.raw.Title,
		Price:       p.price,
		Location:    locationText(p.raw.Location),
		Date:        p.raw.UploadDate,
		URL:         listingURLPrefix + p.id,
		Description: p.raw.Description,
		Seller:      seller,
		Shipping:    shippingText(p.raw.Shipping),
		Images:      p.raw.Images,
	}
}

func locationText(loc *rawAdLocation) string {
	if loc == nil {
		return ""
	}
	parts := make([]string, 0, 2)
	if loc.City != "" {
		parts = append(parts, loc.City)
	}
	if loc.State != "" {
		parts = append(parts, loc.State)
	}
	return strings.Join(parts, ", ")
}

func shippingText(shipping *bool) string {
	switch {
	case shipping == nil:
		return ""
	case *shipping:
		return "Versand möglich"
	default:
		return "Nur Abholung"
	}
}

var numericPattern = regexp.MustCompile(`^\d+(\.\d+)?$`)

// priceText renders the upstream price field. A zero price is shown as
// "Auf Anfrage"; an absent price maps to the empty string; a non-numeric
// value is a mapping failure, never a silent coercion.
func priceText(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return renderPrice(n.String()), nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s == "" {
			return "", nil
		}
		if !numericPattern.MatchString(s) {
			return "", &MappingError{Field: "price", Reason: fmt.Sprintf("value %q is not numeric", s)}
		}
		return renderPrice(s), nil
	}

	return "", &MappingError{Field: "price", Reason: fmt.Sprintf("unexpected JSON value %s", raw)}
}

func renderPrice(value string) string {
	if value == "0" {
		return priceOnRequest
	}
	return "€ " + value
}

// stringOrNumber accepts an identifier encoded as either a JSON string or a
// JSON number and returns its textual form.
func stringOrNumber(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), nil
	}
	return "", fmt.Errorf("unexpected JSON value %s", raw)
}
