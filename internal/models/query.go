package models

import (
	"fmt"

	"github.com/moldworks/taisaku/pkg/utils"
)

// DefaultTopN is the result count used when a query does not ask for one.
const DefaultTopN = 5

// MaxTopN caps the result count a single query may request.
const MaxTopN = 100

// SearchQuery represents a similarity-search request. An empty Equipment
// means no filter (every record is a candidate).
type SearchQuery struct {
	Query     string `json:"query"`
	Equipment string `json:"equipment,omitempty"`
	TopN      int    `json:"top_n,omitempty"`
}

// Validate ensures the query has text and normalizes TopN.
// Returns an error wrapping ErrValidation when the query text is blank.
func (q *SearchQuery) Validate() error {
	if utils.IsBlank(q.Query) {
		return fmt.Errorf("%w: query must not be blank", ErrValidation)
	}
	if q.TopN <= 0 {
		q.TopN = DefaultTopN
	}
	if q.TopN > MaxTopN {
		q.TopN = MaxTopN
	}
	return nil
}
