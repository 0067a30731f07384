package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/moldworks/taisaku/internal/embedding"
	"github.com/moldworks/taisaku/internal/export"
	"github.com/moldworks/taisaku/internal/models"
	"github.com/moldworks/taisaku/internal/store"
	"github.com/moldworks/taisaku/pkg/utils"
)

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var query models.SearchQuery
	if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("search request",
		zap.String("query", utils.Truncate(query.Query, 80)),
		zap.String("equipment", query.Equipment),
		zap.Int("top_n", query.TopN))
	response, err := s.engine.Search(r.Context(), &query)
	if err != nil {
		s.logger.Error("search failed", zap.Error(err))
		s.respondOperationError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, response)
}

func (s *Server) handleAddIncident(w http.ResponseWriter, r *http.Request) {
	var rec models.IncidentRecord
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("register request",
		zap.String("site", rec.Site),
		zap.String("machine_id", rec.MachineID),
		zap.String("equipment", rec.Equipment))
	total, err := s.snapshot.Append(r.Context(), &rec)
	if err != nil {
		s.logger.Error("register failed", zap.Error(err))
		s.respondOperationError(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, map[string]interface{}{
		"status": "registered",
		"total":  total,
	})
}

func (s *Server) handleListIncidents(w http.ResponseWriter, r *http.Request) {
	records, err := s.snapshot.Records(r.Context())
	if err != nil {
		s.logger.Error("list failed", zap.Error(err))
		s.respondOperationError(w, err)
		return
	}

	records = models.FilterByEquipment(records, r.URL.Query().Get("equipment"))

	total := len(records)
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			s.respondError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		// The table is append-only, so the newest records are at the end.
		if limit < len(records) {
			records = records[len(records)-limit:]
		}
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"records": records,
		"total":   total,
	})
}

func (s *Server) handleOptions(w http.ResponseWriter, r *http.Request) {
	records, err := s.snapshot.Records(r.Context())
	if err != nil {
		s.logger.Error("options failed", zap.Error(err))
		s.respondOperationError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"sites":            models.Sites(),
		"equipment_types":  models.EquipmentTypes(),
		"equipment_in_use": models.DistinctEquipment(records),
	})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	records, err := s.snapshot.Records(r.Context())
	if err != nil {
		s.logger.Error("export failed", zap.Error(err))
		s.respondOperationError(w, err)
		return
	}
	records = models.FilterByEquipment(records, r.URL.Query().Get("equipment"))
	var buf bytes.Buffer
	n, err := export.WriteExcel(&buf, records)
	if err != nil {
		s.logger.Error("export failed", zap.Error(err))
		s.respondOperationError(w, err)
		return
	}
	s.logger.Debug("export", zap.Int("records", n))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.FileName+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	records, err := s.snapshot.Records(r.Context())
	if err != nil {
		s.logger.Error("status failed", zap.Error(err))
		s.respondOperationError(w, err)
		return
	}
	stats, err := s.store.Stats()
	if err != nil {
		s.logger.Error("status failed", zap.Error(err))
		s.respondOperationError(w, err)
		return
	}
	report := s.snapshot.Report()
	resp := map[string]interface{}{
		"records":        len(records),
		"store":          stats,
		"warnings":       report.Warnings(),
		"uptime_seconds": int64(time.Since(s.startedAt).Seconds()),
		"config": map[string]interface{}{
			"embedding_type":       s.config.Embedding.Type,
			"embedding_dimensions": s.embedder.Dimensions(),
			"store_path":           s.config.Store.Path,
			"watch":                s.config.Store.WatchOrDefault(),
		},
	}
	s.respondJSON(w, http.StatusOK, resp)
}

// respondOperationError maps domain failures to their HTTP statuses: bad
// input 400, file permissions 409, lock contention and a down embedder 503,
// anything else 500.
func (s *Server) respondOperationError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrValidation):
		s.respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrAccessDenied):
		s.respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, store.ErrLockTimeout):
		s.respondError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, embedding.ErrUnavailable):
		s.respondError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
