package api

import (
	"github.com/starford/luzzle/internal/index"
	"github.com/starford/luzzle/internal/models"
	"github.com/starford/luzzle/internal/schema"
)

// TypeInfo describes one registered piece type.
type TypeInfo struct {
	Name    string `json:"name" example:"books"`
	Fields  int    `json:"fields" example:"8"`
	Indexed bool   `json:"indexed"`
}

// TypeListResponse wraps the registered types.
type TypeListResponse struct {
	Types []TypeInfo `json:"types"`
}

// SchemaResponse is the normalized schema of a type.
type SchemaResponse = schema.Schema

// ItemListResponse wraps paginated item listings.
type ItemListResponse struct {
	Items []models.Item `json:"items"`
	Total int           `json:"total" example:"42"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []index.SearchResult `json:"results"`
}

// HealthResponse is returned by the health probes.
type HealthResponse struct {
	Status string `json:"status" example:"ok"`
}
