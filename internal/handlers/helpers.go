package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/duebook/backend/internal/middleware"
	"github.com/duebook/backend/internal/models"
	"github.com/duebook/backend/internal/services"
	"github.com/go-chi/chi/v5"
)

// currentUser reads the authenticated user, replying 401 when absent.
func currentUser(w http.ResponseWriter, r *http.Request, tag string) (int64, bool) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok || userID <= 0 {
		log.Printf("[%s] Unauthorized: userID missing or invalid", tag)
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return 0, false
	}
	return userID, true
}

// decodeBody reads a single JSON object of at most 1 MB. An empty body is
// accepted when optional is set and leaves dst untouched.
func decodeBody(w http.ResponseWriter, r *http.Request, tag string, dst any, optional bool) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return true
		}
		log.Printf("[%s] Decode error: %v", tag, err)
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return false
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		log.Printf("[%s] Multiple JSON objects detected", tag)
		services.SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return false
	}
	return true
}

// pathID parses a positive integer URL parameter. allowZero admits 0.
func pathID(w http.ResponseWriter, r *http.Request, name string, allowZero bool) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id < 0 || (id == 0 && !allowZero) {
		services.SendErrorResponse(w, "Invalid "+name, http.StatusBadRequest, nil)
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// parseDate parses an already validated YYYY-MM-DD value. Empty means unset.
func parseDate(value string) *time.Time {
	if value == "" {
		return nil
	}
	t, err := time.Parse(models.DateLayout, value)
	if err != nil {
		return nil
	}
	return &t
}

// pageQuery reads ?page and ?size. Missing values are left at zero for the
// service to default; non-numeric values are rejected.
func pageQuery(w http.ResponseWriter, r *http.Request) (models.PageRequest, bool) {
	var p models.PageRequest
	params := []struct {
		name string
		dst  *int
	}{{"page", &p.Page}, {"size", &p.Size}}
	for _, param := range params {
		name, dst := param.name, param.dst
		value := r.URL.Query().Get(name)
		if value == "" {
			continue
		}
		n, err := strconv.Atoi(value)
		if err != nil {
			services.SendErrorResponse(w, "Invalid "+name, http.StatusBadRequest, nil)
			return models.PageRequest{}, false
		}
		*dst = n
	}
	return p, true
}
