package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/telcoops/topup/internal/gateway"
	"github.com/telcoops/topup/internal/models"
	"github.com/telcoops/topup/internal/store"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "topup_http_requests_total",
		Help: "Total HTTP requests processed, labeled by status code",
	}, []string{"method", "endpoint", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "topup_http_request_duration_seconds",
		Help:    "Latency distribution of HTTP requests",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"method", "endpoint"})
)

type Handler struct {
	store  *store.Store
	logger zerolog.Logger
}

func NewHandler(s *store.Store, logger zerolog.Logger) *Handler {
	return &Handler{store: s, logger: logger}
}

func (h *Handler) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// CreateTopupHandler accepts a top-up request and stores it as PENDING. The
// dispatcher and settler take it from there; the client gets 202 right away.
func (h *Handler) CreateTopupHandler(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", "/topups"))
	defer timer.ObserveDuration()

	var req models.TopupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.count("POST", "/topups", http.StatusBadRequest)
		respondWithError(w, http.StatusBadRequest, "Malformed JSON body")
		return
	}

	// Carrier is required here on purpose: an event without an operator can
	// never match a wallet downstream.
	if msg := validateTopup(&req); msg != "" {
		h.count("POST", "/topups", http.StatusUnprocessableEntity)
		respondWithError(w, http.StatusUnprocessableEntity, msg)
		return
	}

	request := &models.Request{
		ID:          uuid.NewString(),
		PhoneNumber: strings.TrimSpace(req.PhoneNumber),
		Amount:      req.Amount,
		Carrier:     strings.TrimSpace(req.Carrier),
	}

	if err := h.store.CreateRequest(r.Context(), request); err != nil {
		h.logger.Error().Err(err).Msg("request insert failed")
		h.count("POST", "/topups", http.StatusInternalServerError)
		respondWithError(w, http.StatusInternalServerError, "System error creating request")
		return
	}

	h.count("POST", "/topups", http.StatusAccepted)
	w.Header().Set("Location", "/api/v1/topups/"+request.ID)
	respondWithJSON(w, http.StatusAccepted, request)
}

func (h *Handler) GetTopupHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	request, err := h.store.GetRequest(r.Context(), id)
	if err != nil {
		if errors.Is(err, gateway.ErrRequestNotFound) {
			h.count("GET", "/topups/{id}", http.StatusNotFound)
			respondWithError(w, http.StatusNotFound, "Request not found")
			return
		}
		h.count("GET", "/topups/{id}", http.StatusInternalServerError)
		respondWithError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	audits, err := h.store.GetAudits(r.Context(), id)
	if err != nil {
		h.count("GET", "/topups/{id}", http.StatusInternalServerError)
		respondWithError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	h.count("GET", "/topups/{id}", http.StatusOK)
	respondWithJSON(w, http.StatusOK, models.RequestDetail{Request: *request, Audits: audits})
}

func (h *Handler) GetWalletHandler(w http.ResponseWriter, r *http.Request) {
	operator := mux.Vars(r)["operator"]

	wallet, err := h.store.WalletByOperator(r.Context(), operator)
	if err != nil {
		if errors.Is(err, gateway.ErrWalletNotFound) {
			h.count("GET", "/wallets/{operator}", http.StatusNotFound)
			respondWithError(w, http.StatusNotFound, "Wallet not found")
			return
		}
		h.count("GET", "/wallets/{operator}", http.StatusInternalServerError)
		respondWithError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	h.count("GET", "/wallets/{operator}", http.StatusOK)
	respondWithJSON(w, http.StatusOK, wallet)
}

func validateTopup(req *models.TopupRequest) string {
	if strings.TrimSpace(req.PhoneNumber) == "" {
		return "Phone number cannot be blank"
	}
	if !req.Amount.IsPositive() {
		return "Amount must be positive"
	}
	if strings.TrimSpace(req.Carrier) == "" {
		return "Carrier cannot be blank"
	}
	return ""
}

func (h *Handler) count(method, endpoint string, code int) {
	httpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(code)).Inc()
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}
