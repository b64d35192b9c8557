// Package listing defines the typed output shapes of the adapter and the
// mapper that produces them from raw upstream JSON.
package listing

// SearchRequest carries the normalized arguments of one search invocation.
// It is constructed once per call, after validation, and never mutated.
type SearchRequest struct {
	Query      string
	Location   string
	LocationID int
	Radius     int
	MinPrice   *int
	MaxPrice   *int
	Sort       string
	Category   string
	PageCount  int
}

// Summary is one search result row. It has no identity beyond the upstream
// listing ID.
type Summary struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Price       string `json:"price"`
	Location    string `json:"location"`
	Date        string `json:"date,omitempty"`
	URL         string `json:"url"`
	Thumbnail   string `json:"thumbnail"`
	Description string `json:"description,omitempty"`
}

// Detail is the full record for a single listing, fetched per listing ID.
type Detail struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Price       string   `json:"price"`
	Location    string   `json:"location"`
	Date        string   `json:"date,omitempty"`
	URL         string   `json:"url"`
	Description string   `json:"description,omitempty"`
	Seller      string   `json:"seller,omitempty"`
	Shipping    string   `json:"shipping,omitempty"`
	Images      []string `json:"images,omitempty"`
}

// Location is a place known to the upstream location index.
type Location struct {
	ID        string  `json:"id"`
	City      string  `json:"city"`
	State     string  `json:"state"`
	Zip       string  `json:"zip"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Category is an upstream listing category.
type Category struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}
