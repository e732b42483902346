// Package products supplies the product records a comparison article is
// written about.
package products

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"postforge/internal/core"
)

// Source yields products for a search term, in relevance order.
type Source interface {
	Search(ctx context.Context, term string, maxResults int) ([]core.Product, error)
}

// FileSource serves products from a JSON fixture file mapping search
// terms to product lists. Used for dry runs and tests; terms are matched
// case-insensitively.
type FileSource struct {
	byTerm map[string][]core.Product
}

// NewFileSource loads a fixture file of the form
// {"term": [{...product...}, ...], ...}.
func NewFileSource(path string) (*FileSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading products fixture: %w", err)
	}

	raw := make(map[string][]core.Product)
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing products fixture: %w", err)
	}

	byTerm := make(map[string][]core.Product, len(raw))
	for term, list := range raw {
		byTerm[strings.ToLower(strings.TrimSpace(term))] = list
	}
	return &FileSource{byTerm: byTerm}, nil
}

// Search returns up to maxResults products for the term. An unknown term
// yields an empty list, not an error.
func (s *FileSource) Search(_ context.Context, term string, maxResults int) ([]core.Product, error) {
	list := s.byTerm[strings.ToLower(strings.TrimSpace(term))]
	if maxResults > 0 && len(list) > maxResults {
		list = list[:maxResults]
	}
	return list, nil
}
