// Package cli renders search results, record listings, and status for the
// taisaku command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/moldworks/taisaku/internal/models"
	"github.com/moldworks/taisaku/pkg/utils"
)

// OutputFormat selects how results are rendered.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputCompact is one line per result.
	OutputCompact OutputFormat = "compact"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseFormat maps a flag value to an output format; anything unrecognized
// falls back to text.
func ParseFormat(s string) OutputFormat {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "compact":
		return OutputCompact
	case "json":
		return OutputJSON
	default:
		return OutputText
	}
}

const separator = "─────────────────────────────────────────────────────────"

// WriteSearchResults writes a search response to w in the given format.
func WriteSearchResults(w io.Writer, response *models.SearchResponse, format OutputFormat) error {
	switch format {
	case OutputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(response)
	case OutputCompact:
		for _, result := range response.Results {
			fmt.Fprintf(w, "%d. [%.3f] %s | %s | %s | %s\n",
				result.Rank, result.Score,
				result.Record.OccurredOn, result.Record.MachineID,
				result.Record.Equipment,
				utils.Truncate(result.Record.Description, 60))
		}
		return nil
	default:
		writeSearchResultsText(w, response)
		return nil
	}
}

func writeSearchResultsText(w io.Writer, response *models.SearchResponse) {
	if len(response.Results) == 0 {
		fmt.Fprintf(w, "\nNo similar incidents found (%d candidates searched, %dms)\n",
			response.Candidates, response.QueryTime)
		return
	}
	fmt.Fprintf(w, "\nFound %d similar incidents in %dms (%d candidates searched)\n\n",
		len(response.Results), response.QueryTime, response.Candidates)
	for _, result := range response.Results {
		fmt.Fprintln(w, separator)
		fmt.Fprintf(w, "Rank: %d | Score: %.4f\n", result.Rank, result.Score)
		writeRecordBody(w, result.Record)
		fmt.Fprintln(w)
	}
}

func writeRecordBody(w io.Writer, r *models.IncidentRecord) {
	fmt.Fprintf(w, "Site: %s | Date: %s | Machine: %s | Equipment: %s\n",
		r.Site, r.OccurredOn, r.MachineID, r.Equipment)
	fmt.Fprintf(w, "Description: %s\n", r.Description)
	fmt.Fprintf(w, "Cause: %s\n", r.Cause)
	fmt.Fprintf(w, "Action: %s\n", r.CorrectiveAction)
	fmt.Fprintf(w, "Hours: %g | Responder: %s\n", r.ResponseHours, r.Responder)
	if r.InvestigationProcess != "" {
		fmt.Fprintf(w, "Investigation: %s\n", utils.Truncate(r.InvestigationProcess, 200))
	}
	if r.InvestigationNotes != "" {
		fmt.Fprintf(w, "Notes: %s\n", utils.Truncate(r.InvestigationNotes, 200))
	}
}

// WriteRecords writes a record listing to w in the given format. JSON output
// matches the server's list response shape.
func WriteRecords(w io.Writer, records []models.IncidentRecord, format OutputFormat) error {
	switch format {
	case OutputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]interface{}{
			"records": records,
			"total":   len(records),
		})
	case OutputCompact:
		for i := range records {
			r := &records[i]
			fmt.Fprintf(w, "%d. %s | %s | %s | %s\n",
				i+1, r.OccurredOn, r.MachineID, r.Equipment,
				utils.Truncate(r.Description, 60))
		}
		return nil
	default:
		if len(records) == 0 {
			fmt.Fprintln(w, "No records.")
			return nil
		}
		fmt.Fprintf(w, "%d records\n\n", len(records))
		for i := range records {
			r := &records[i]
			fmt.Fprintf(w, "#%d  %s  %s  %s (%s)\n",
				i+1, r.OccurredOn, r.MachineID, r.Equipment, r.Site)
			fmt.Fprintf(w, "    %s\n", utils.Truncate(r.Description, 120))
		}
		return nil
	}
}

// StatusInfo is the status view shared by server and direct lookups.
type StatusInfo struct {
	Source        string   `json:"source"`
	Records       int      `json:"records"`
	StorePath     string   `json:"store_path"`
	StoreExists   bool     `json:"store_exists"`
	SizeBytes     int64    `json:"size_bytes"`
	Warnings      []string `json:"warnings,omitempty"`
	EmbeddingType string   `json:"embedding_type"`
	Dimensions    int      `json:"dimensions"`
}

// WriteStatus writes a status summary to w in the given format.
func WriteStatus(w io.Writer, info *StatusInfo, format OutputFormat) error {
	if format == OutputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintf(w, "Source: %s\n", info.Source)
	fmt.Fprintf(w, "Records: %d\n", info.Records)
	if info.StoreExists {
		fmt.Fprintf(w, "Store: %s (%d bytes)\n", info.StorePath, info.SizeBytes)
	} else {
		fmt.Fprintf(w, "Store: %s (not created yet)\n", info.StorePath)
	}
	fmt.Fprintf(w, "Embedding: %s (%d dimensions)\n", info.EmbeddingType, info.Dimensions)
	if len(info.Warnings) > 0 {
		fmt.Fprintln(w, "Warnings:")
		for _, warning := range info.Warnings {
			fmt.Fprintf(w, "  - %s\n", warning)
		}
	}
	return nil
}

// TruncateWords returns up to maxWords from the space-separated string.
func TruncateWords(s string, maxWords int) string {
	words := strings.Fields(s)
	if len(words) <= maxWords {
		return s
	}
	return strings.Join(words[:maxWords], " ") + "..."
}
