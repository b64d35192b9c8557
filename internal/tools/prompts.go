package tools

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const verifyAvailabilityPrompt = `Please follow these important instructions when helping me search for listings:

When using the Kleinanzeigen MCP tools, many listings returned by ` + "`search_listings`" + ` may no longer be active. To ensure accuracy:

1. **Always verify listings**: After using ` + "`search_listings`" + `, use ` + "`get_listing_details`" + ` for each listing I'm interested in to verify it's still available.

2. **Check for availability indicators**: If ` + "`get_listing_details`" + ` returns an error or the listing appears to be inactive, let me know that the listing is no longer available.

3. **Batch verification**: For multiple listings, verify the top results to ensure they're still active before presenting them to me.

This verification step is crucial because listings on Kleinanzeigen can be removed quickly, and the search index may contain outdated results.`

const assistantPrompt = `I need help finding items on eBay Kleinanzeigen. Please follow these guidelines:

**Available Tools:**
- ` + "`search_listings`" + `: Search for listings with various filters
- ` + "`get_listing_details`" + `: Get detailed information about a specific listing
- ` + "`search_locations`" + `: Find location IDs for cities and postal codes
- ` + "`get_categories`" + `: List all available categories
- ` + "`get_docs`" + `: Get API documentation

**Important: Verify Listing Availability**
Many listings in search results may no longer be active. Always:
1. Use ` + "`get_listing_details`" + ` to verify listings before recommending them
2. If a listing returns an error or appears inactive, mark it as unavailable
3. Only present verified, active listings to me

**Search Tips:**
- Use location IDs from ` + "`search_locations`" + ` for more accurate radius searches
- Apply price filters to narrow down results
- Use category IDs from ` + "`get_categories`" + ` to filter by type
- Sort by 'newest' to find recently posted items

**Best Practices:**
- Start with broad searches and refine based on my needs
- Always verify top results are still available
- Provide direct links to active listings
- Inform me promptly if listings are no longer available`

func (s *Server) registerPrompts() {
	s.mcpServer.AddPrompt(&mcp.Prompt{
		Name:        "verify_listing_availability",
		Title:       "Verify Listing Availability",
		Description: "System instructions for verifying that search results are still active by checking individual listing details",
	}, staticPrompt(verifyAvailabilityPrompt))

	s.mcpServer.AddPrompt(&mcp.Prompt{
		Name:        "kleinanzeigen_assistant",
		Title:       "Kleinanzeigen Assistant Instructions",
		Description: "Complete system instructions for using the Kleinanzeigen MCP tools effectively",
	}, staticPrompt(assistantPrompt))
}

// staticPrompt returns a prompt handler serving a fixed user message.
func staticPrompt(text string) mcp.PromptHandler {
	return func(_ context.Context, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
		if req == nil || req.Params == nil {
			return nil, fmt.Errorf("missing prompt request parameters")
		}
		return &mcp.GetPromptResult{
			Messages: []*mcp.PromptMessage{
				{
					Role:    "user",
					Content: &mcp.TextContent{Text: text},
				},
			},
		}, nil
	}
}
