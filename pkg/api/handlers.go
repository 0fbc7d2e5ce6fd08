package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"zcommit/pkg/storage"
)

// MaxListLimit caps the limit query parameter.
const MaxListLimit = 1000

// DeliveriesHandler lists journal records filtered by class, instance and status.
type DeliveriesHandler struct {
	Store  storage.DeliveryStore
	Logger zerolog.Logger
}

func (h *DeliveriesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.Store == nil {
		http.Error(w, "storage not configured", http.StatusServiceUnavailable)
		return
	}

	query := r.URL.Query()
	filter := storage.DeliveryFilter{
		Class:    strings.TrimSpace(query.Get("class")),
		Instance: strings.TrimSpace(query.Get("instance")),
		Status:   strings.TrimSpace(query.Get("status")),
	}
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		if limit > MaxListLimit {
			limit = MaxListLimit
		}
		filter.Limit = limit
	}

	records, err := h.Store.ListDeliveries(r.Context(), filter)
	if err != nil {
		h.Logger.Error().Err(err).Msg("list deliveries failed")
		http.Error(w, "list deliveries failed", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []storage.DeliveryRecord{}
	}
	writeJSON(w, records)
}

func writeJSON(w http.ResponseWriter, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}
