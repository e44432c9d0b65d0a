package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/sells-group/permitcheck/internal/search"
	"github.com/sells-group/permitcheck/internal/store"
)

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if s.pinger != nil {
		if err := s.pinger.Ping(r.Context()); err != nil {
			s.log.Warn("health check failed", zap.Error(err))
			s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// fuzzyContractor handles GET /api/fuzzy-contractor?contractor_name=&fuzz_ratio=.
func (s *Server) fuzzyContractor(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	threshold := s.opts.Threshold
	if raw := q.Get("fuzz_ratio"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 || v > 100 {
			s.writeError(w, http.StatusBadRequest, "invalid_fuzz_ratio", "fuzz_ratio must be a number between 0 and 100")
			return
		}
		threshold = v
	}

	matches, err := s.searcher.Search(r.Context(), q.Get("contractor_name"), threshold)
	if err != nil {
		s.log.Error("fuzzy search failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "search_failed", "search failed")
		return
	}
	s.writeJSON(w, http.StatusOK, matches)
}

// detailedContractor handles GET /api/detailed-contractor?contractor_name=|license_id=.
func (s *Server) detailedContractor(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	detail, err := s.lookuper.Lookup(r.Context(), search.LookupRequest{
		Name:      q.Get("contractor_name"),
		LicenseID: q.Get("license_id"),
	})
	switch {
	case err == nil:
		s.writeJSON(w, http.StatusOK, detail)
	case errors.Is(err, search.ErrNoLookupKey):
		s.writeError(w, http.StatusBadRequest, "missing_parameter", "contractor_name or license_id is required")
	case errors.Is(err, store.ErrNotFound):
		s.writeError(w, http.StatusNotFound, "not_found", "contractor not found")
	default:
		s.log.Error("contractor lookup failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "lookup_failed", "lookup failed")
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error("failed to encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, code, message string) {
	s.writeJSON(w, status, map[string]string{
		"error":   code,
		"message": message,
	})
}
