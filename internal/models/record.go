// Package models defines core data structures for incident records, queries,
// and search results.
package models

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/moldworks/taisaku/pkg/utils"
)

// ErrValidation is wrapped by all record and query validation failures.
var ErrValidation = errors.New("validation failed")

// DateLayout is the wire format for OccurredOn.
const DateLayout = "2006/01/02"

// IncidentRecord is one row of the trouble table. Field order matches the
// canonical column order; the json tags are the canonical column headers.
type IncidentRecord struct {
	Site                 string  `json:"site"`
	OccurredOn           string  `json:"occurredOn"`
	MachineID            string  `json:"machineId"`
	Equipment            string  `json:"equipment"`
	Description          string  `json:"description"`
	Cause                string  `json:"cause"`
	CorrectiveAction     string  `json:"correctiveAction"`
	ResponseHours        float64 `json:"responseHours"`
	Responder            string  `json:"responder"`
	InvestigationProcess string  `json:"investigationProcess"`
	InvestigationNotes   string  `json:"investigationNotes"`
}

// FieldCount is the number of columns in the trouble table.
const FieldCount = 11

// canonicalHeaders in canonical column order.
var canonicalHeaders = [FieldCount]string{
	"site",
	"occurredOn",
	"machineId",
	"equipment",
	"description",
	"cause",
	"correctiveAction",
	"responseHours",
	"responder",
	"investigationProcess",
	"investigationNotes",
}

// Headers returns the canonical column headers in canonical order.
func Headers() []string {
	h := make([]string, FieldCount)
	copy(h, canonicalHeaders[:])
	return h
}

// HeaderIndex returns the canonical column position of a header name,
// or -1 when the name is not a canonical header.
func HeaderIndex(name string) int {
	for i, h := range canonicalHeaders {
		if h == name {
			return i
		}
	}
	return -1
}

// sites are the plant sites a record may belong to.
var sites = []string{"Hofu", "Otsu", "Asco", "Midori", "MNAC", "MAM"}

// equipmentTypes are the registerable equipment categories. "other" is the
// catch-all for anything outside the named types.
var equipmentTypes = []string{
	"molding machine",
	"take-out robot",
	"autoloader",
	"temperature controller",
	"hot runner",
	"valve gate",
	"mold change cart",
	"assembly machine",
	"welding machine",
	"leak tester",
	"other",
}

// Sites returns the canonical plant-site names.
func Sites() []string {
	s := make([]string, len(sites))
	copy(s, sites)
	return s
}

// EquipmentTypes returns the canonical equipment-type names.
func EquipmentTypes() []string {
	e := make([]string, len(equipmentTypes))
	copy(e, equipmentTypes)
	return e
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// Validate checks a record before it is written: every column non-blank,
// OccurredOn in YYYY/MM/DD form, ResponseHours a non-negative finite number,
// Site and Equipment from the canonical sets. Returns the first violation,
// wrapping ErrValidation. Rows already in the table are never validated.
func (r *IncidentRecord) Validate() error {
	blanks := []struct {
		name  string
		value string
	}{
		{"site", r.Site},
		{"occurredOn", r.OccurredOn},
		{"machineId", r.MachineID},
		{"equipment", r.Equipment},
		{"description", r.Description},
		{"cause", r.Cause},
		{"correctiveAction", r.CorrectiveAction},
		{"responder", r.Responder},
		{"investigationProcess", r.InvestigationProcess},
		{"investigationNotes", r.InvestigationNotes},
	}
	for _, f := range blanks {
		if utils.IsBlank(f.value) {
			return fmt.Errorf("%w: %s must not be blank", ErrValidation, f.name)
		}
	}
	if _, err := time.Parse(DateLayout, r.OccurredOn); err != nil {
		return fmt.Errorf("%w: occurredOn must be YYYY/MM/DD, got %q", ErrValidation, r.OccurredOn)
	}
	if math.IsNaN(r.ResponseHours) || math.IsInf(r.ResponseHours, 0) || r.ResponseHours < 0 {
		return fmt.Errorf("%w: responseHours must be a non-negative number, got %v", ErrValidation, r.ResponseHours)
	}
	if !contains(sites, r.Site) {
		return fmt.Errorf("%w: unknown site %q", ErrValidation, r.Site)
	}
	if !contains(equipmentTypes, r.Equipment) {
		return fmt.Errorf("%w: unknown equipment %q", ErrValidation, r.Equipment)
	}
	return nil
}

// Row returns the record's columns as strings in canonical order.
func (r *IncidentRecord) Row() []string {
	return []string{
		r.Site,
		r.OccurredOn,
		r.MachineID,
		r.Equipment,
		r.Description,
		r.Cause,
		r.CorrectiveAction,
		strconv.FormatFloat(r.ResponseHours, 'g', -1, 64),
		r.Responder,
		r.InvestigationProcess,
		r.InvestigationNotes,
	}
}

// RecordFromRow builds a record from columns in canonical order. Short rows
// are treated as padded with empty strings; extra columns are ignored. A
// non-numeric responseHours column is coerced to 0 and reported as an error
// alongside the (still usable) record, so callers can log and keep going.
func RecordFromRow(row []string) (IncidentRecord, error) {
	col := func(i int) string {
		if i < len(row) {
			return row[i]
		}
		return ""
	}
	r := IncidentRecord{
		Site:                 col(0),
		OccurredOn:           col(1),
		MachineID:            col(2),
		Equipment:            col(3),
		Description:          col(4),
		Cause:                col(5),
		CorrectiveAction:     col(6),
		Responder:            col(8),
		InvestigationProcess: col(9),
		InvestigationNotes:   col(10),
	}
	raw := col(7)
	if utils.IsBlank(raw) {
		return r, nil
	}
	hours, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return r, fmt.Errorf("responseHours %q is not a number", raw)
	}
	r.ResponseHours = hours
	return r, nil
}

// FilterByEquipment returns the records whose Equipment equals equipment
// exactly. A blank filter means "all" and returns records unchanged; it is
// not a wildcard match.
func FilterByEquipment(records []IncidentRecord, equipment string) []IncidentRecord {
	if utils.IsBlank(equipment) {
		return records
	}
	out := make([]IncidentRecord, 0, len(records))
	for _, r := range records {
		if r.Equipment == equipment {
			out = append(out, r)
		}
	}
	return out
}

// DistinctEquipment returns the sorted unique non-blank equipment values
// observed in records. This feeds filter choices, so legacy values outside
// the canonical set are included as-is.
func DistinctEquipment(records []IncidentRecord) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, r := range records {
		if utils.IsBlank(r.Equipment) {
			continue
		}
		if _, ok := seen[r.Equipment]; ok {
			continue
		}
		seen[r.Equipment] = struct{}{}
		out = append(out, r.Equipment)
	}
	sort.Strings(out)
	return out
}
