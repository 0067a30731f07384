package models

// SearchResult represents a single similarity hit.
type SearchResult struct {
	Record *IncidentRecord `json:"record"`
	Score  float64         `json:"score"`
	Rank   int             `json:"rank"`
}

// SearchResponse is the response for a search request.
// Candidates counts the records that survived filtering and eligibility,
// i.e. the population the ranking was computed over.
type SearchResponse struct {
	Results    []*SearchResult `json:"results"`
	Candidates int             `json:"candidates"`
	QueryTime  int64           `json:"query_time_ms"`
	Query      string          `json:"query"`
}
