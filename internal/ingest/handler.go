package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/malbeclabs/sensorlake/internal/event"
	"github.com/malbeclabs/sensorlake/internal/store"
)

const (
	WebhookPath = "/webhook"

	defaultMaxBodySize = int64(1 << 20)
)

// Ingester persists a parsed delivery.
type Ingester interface {
	Ingest(ctx context.Context, ev *event.Event) (store.IngestResult, error)
}

type Config struct {
	Logger        *slog.Logger
	Store         Ingester
	WebhookSecret string
	MaxBodySize   int64
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Store == nil {
		return errors.New("store is required")
	}
	if cfg.MaxBodySize < 0 {
		return errors.New("max body size must be >= 0")
	}
	if cfg.MaxBodySize == 0 {
		cfg.MaxBodySize = defaultMaxBodySize
	}
	return nil
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

type WebhookResponse struct {
	Status    string `json:"status"`
	EventType string `json:"event_type"`
	EventID   int64  `json:"event_id"`
}

type Handler struct {
	log   *slog.Logger
	cfg   Config
	auth  *SecretAuthenticator
	store Ingester
}

func NewHandler(cfg Config) (*Handler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("handler config validation failed: %w", err)
	}
	return &Handler{
		log:   cfg.Logger,
		cfg:   cfg,
		auth:  &SecretAuthenticator{Secret: cfg.WebhookSecret},
		store: cfg.Store,
	}, nil
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc(WebhookPath, h.ServeHTTP)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) writeJSONError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, ErrorResponse{Error: msg, Code: status})
}

// ServeHTTP accepts one webhook delivery. The secret is checked before the body is
// read, so a rejected request never reaches the store.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		h.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		RequestErrorsTotal.WithLabelValues("method_not_allowed").Inc()
		return
	}

	if err := h.auth.Authenticate(r); err != nil {
		h.log.Debug("ingest: rejected delivery", "remote", r.RemoteAddr, "error", err)
		h.writeJSONError(w, http.StatusUnauthorized, err.Error())
		RequestErrorsTotal.WithLabelValues("unauthorized").Inc()
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxBodySize)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			h.writeJSONError(w, http.StatusRequestEntityTooLarge, "request body too large")
			RequestErrorsTotal.WithLabelValues("request_body_too_large").Inc()
			return
		}
		h.writeJSONError(w, http.StatusBadRequest, "failed to read body")
		RequestErrorsTotal.WithLabelValues("failed_to_read_body").Inc()
		return
	}

	ev, err := event.Parse(body)
	if err != nil {
		switch {
		case errors.Is(err, event.ErrMissingEventType):
			RequestErrorsTotal.WithLabelValues("missing_event_type").Inc()
		default:
			RequestErrorsTotal.WithLabelValues("invalid_json").Inc()
		}
		h.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.store.Ingest(r.Context(), ev)
	if err != nil {
		h.log.Error("ingest: failed to persist event", "event_type", ev.Type, "error", err)
		h.writeJSONError(w, http.StatusInternalServerError, "processing error: "+err.Error())
		RequestErrorsTotal.WithLabelValues("processing_error").Inc()
		return
	}

	EventsTotal.WithLabelValues(string(res.Kind)).Inc()
	ReadingsWrittenTotal.Add(float64(res.Readings))
	if res.DeviceCreated {
		DevicesRegisteredTotal.Inc()
		h.log.Info("ingest: registered device", "device_id", res.DeviceID)
	}

	h.writeJSON(w, http.StatusOK, WebhookResponse{
		Status:    "ok",
		EventType: ev.Type,
		EventID:   res.EventID,
	})
}
