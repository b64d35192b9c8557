package tools

import (
	"fmt"
	"strings"

	"github.com/kleinanzeigen-agent/kleinanzeigen-mcp/internal/listing"
)

// maxDescriptionChars truncates listing descriptions in search results.
// Full descriptions are available through get_listing_details.
const maxDescriptionChars = 200

// maxDetailImages caps the number of image URLs shown in a detail view.
const maxDetailImages = 5

func formatSummaries(summaries []listing.Summary) string {
	if len(summaries) == 0 {
		return "No listings found."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d listings:\n\n", len(summaries))
	for i, s := range summaries {
		fmt.Fprintf(&b, "%d. **%s**\n", i+1, s.Title)
		if s.Price != "" {
			fmt.Fprintf(&b, "   Price: %s\n", s.Price)
		}
		if s.Location != "" {
			fmt.Fprintf(&b, "   Location: %s\n", s.Location)
		}
		if s.Date != "" {
			fmt.Fprintf(&b, "   Date: %s\n", s.Date)
		}
		fmt.Fprintf(&b, "   URL: %s\n", s.URL)
		fmt.Fprintf(&b, "   ID: %s\n", s.ID)
		if s.Description != "" {
			fmt.Fprintf(&b, "   Description: %s\n", truncate(s.Description, maxDescriptionChars))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func formatDetail(d listing.Detail) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**%s**\n\n", d.Title)
	if d.Price != "" {
		fmt.Fprintf(&b, "**Price:** %s\n", d.Price)
	}
	if d.Location != "" {
		fmt.Fprintf(&b, "**Location:** %s\n", d.Location)
	}
	if d.Date != "" {
		fmt.Fprintf(&b, "**Date:** %s\n", d.Date)
	}
	if d.Seller != "" {
		fmt.Fprintf(&b, "**Seller:** %s\n", d.Seller)
	}
	if d.Shipping != "" {
		fmt.Fprintf(&b, "**Shipping:** %s\n", d.Shipping)
	}
	fmt.Fprintf(&b, "**URL:** %s\n", d.URL)
	fmt.Fprintf(&b, "**ID:** %s\n\n", d.ID)

	if d.Description != "" {
		fmt.Fprintf(&b, "**Description:**\n%s\n\n", d.Description)
	}
	if len(d.Images) > 0 {
		fmt.Fprintf(&b, "**Images:** %d image(s)\n", len(d.Images))
		for i, img := range d.Images {
			if i == maxDetailImages {
				break
			}
			fmt.Fprintf(&b, "- %s\n", img)
		}
	}
	return b.String()
}

func formatLocations(locations []listing.Location) string {
	if len(locations) == 0 {
		return "No locations found."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d locations:\n\n", len(locations))
	for i, loc := range locations {
		fmt.Fprintf(&b, "%d. **%s**, %s\n", i+1, loc.City, loc.State)
		fmt.Fprintf(&b, "   Postal Code: %s\n", loc.Zip)
		fmt.Fprintf(&b, "   Coordinates: %g, %g\n", loc.Latitude, loc.Longitude)
		fmt.Fprintf(&b, "   Location ID: %s\n", loc.ID)
		b.WriteString("\n")
	}
	return b.String()
}

func formatCategories(categories []listing.Category) string {
	if len(categories) == 0 {
		return "No categories found."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d categories:\n\n", len(categories))
	for _, c := range categories {
		fmt.Fprintf(&b, "**%s** (ID: %d)\n", c.Name, c.ID)
	}
	return b.String()
}

// truncate shortens s to at most n runes, appending an ellipsis when cut.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
