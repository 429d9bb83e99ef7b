package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"botnet-detector/api/internal/storage"
	"botnet-detector/internal/bundle"
	"botnet-detector/internal/inference"
	"botnet-detector/internal/model"
	"botnet-detector/internal/pipeline"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

type Handlers struct {
	classifier *inference.Classifier
	processor  *pipeline.Processor
	holder     *bundle.Holder
	store      *storage.Storage
	logger     *logrus.Logger
	upgrader   websocket.Upgrader
}

func NewHandlers(classifier *inference.Classifier, processor *pipeline.Processor, holder *bundle.Holder, store *storage.Storage, logger *logrus.Logger) *Handlers {
	return &Handlers{
		classifier: classifier,
		processor:  processor,
		holder:     holder,
		store:      store,
		logger:     logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				logger.Debugf("WebSocket origin check: %s", r.Header.Get("Origin"))
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes mounts the prediction page and the /api/v1 endpoints.
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/", h.Home).Methods("GET")
	router.HandleFunc("/predict", h.Predict).Methods("POST")

	api := router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/classify", h.Classify).Methods("POST")

	api.HandleFunc("/verdicts/stats", h.GetVerdictStats).Methods("GET")
	api.HandleFunc("/stream/verdicts", h.StreamVerdicts).Methods("GET")
	api.HandleFunc("/verdicts", h.GetVerdicts).Methods("GET")
	api.HandleFunc("/verdicts/{id}", h.GetVerdict).Methods("GET")

	api.HandleFunc("/alerts", h.GetAlerts).Methods("GET")

	api.HandleFunc("/bundle", h.GetBundle).Methods("GET")
	api.HandleFunc("/bundle/reload", h.ReloadBundle).Methods("POST")
}

// classify scores raw and hands the verdict to the processor. Processor
// failures only affect alert delivery, never the verdict.
func (h *Handlers) classify(r *http.Request, raw map[string]string) model.Verdict {
	v := h.classifier.Classify(raw)
	if err := h.processor.Process(r.Context(), v); err != nil {
		h.logger.Warnf("Verdict %s processed with errors: %v", v.ID, err)
	}
	return v
}

// Classification handlers
func (h *Handlers) Classify(w http.ResponseWriter, r *http.Request) {
	var raw map[string]string
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: expected a JSON object of string fields")
		return
	}

	writeJSON(w, http.StatusOK, h.classify(r, raw))
}

// Verdict handlers
func (h *Handlers) GetVerdicts(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 {
		limit = 50
	}
	if limit > 1000 {
		limit = 1000
	}

	filter := storage.VerdictFilter{
		Status: r.URL.Query().Get("status"),
		Result: r.URL.Query().Get("result"),
	}
	verdicts := h.store.GetVerdicts(limit, filter)

	response := map[string]interface{}{
		"items": verdicts,
		"total": len(verdicts),
	}

	writeJSON(w, http.StatusOK, response)
}

func (h *Handlers) GetVerdict(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	v := h.store.GetVerdictByID(id)
	if v == nil {
		writeError(w, http.StatusNotFound, "Verdict not found")
		return
	}

	writeJSON(w, http.StatusOK, v)
}

func (h *Handlers) GetVerdictStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.GetStats())
}

// Alerts handlers
func (h *Handlers) GetAlerts(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 {
		limit = 50
	}
	if limit > 1000 {
		limit = 1000
	}

	alerts := h.store.GetAlerts(limit, r.URL.Query().Get("severity"), r.URL.Query().Get("search"))

	response := map[string]interface{}{
		"items": alerts,
		"total": len(alerts),
	}

	writeJSON(w, http.StatusOK, response)
}

// Bundle handlers
type bundleInfo struct {
	RunID       string                  `json:"run_id"`
	CreatedAt   time.Time               `json:"created_at"`
	Algorithm   string                  `json:"algorithm"`
	Features    []string                `json:"features"`
	Categorical map[string]int          `json:"categorical"`
	Checksum    string                  `json:"checksum"`
	Report      *model.EvaluationReport `json:"report,omitempty"`
}

func describeBundle(b *bundle.Bundle) bundleInfo {
	info := bundleInfo{
		RunID:       b.ID(),
		CreatedAt:   b.Manifest.CreatedAt,
		Algorithm:   b.Model.Algorithm(),
		Features:    b.Schema.Names(),
		Categorical: make(map[string]int),
		Checksum:    b.Checksum,
		Report:      b.Manifest.Report,
	}
	for _, name := range b.Schema.Categorical() {
		if enc, ok := b.Encoders.Get(name); ok {
			info.Categorical[name] = enc.Len()
		}
	}
	return info
}

func (h *Handlers) GetBundle(w http.ResponseWriter, r *http.Request) {
	b := h.holder.Current()
	if b == nil {
		writeError(w, http.StatusServiceUnavailable, "No model bundle loaded")
		return
	}
	writeJSON(w, http.StatusOK, describeBundle(b))
}

// ReloadBundle reloads the bundle from disk. A corrupt bundle is rejected
// and the previous one keeps serving.
func (h *Handlers) ReloadBundle(w http.ResponseWriter, r *http.Request) {
	b, err := h.holder.Reload()
	if err != nil {
		var corrupt *bundle.CorruptBundleError
		if errors.As(err, &corrupt) {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, describeBundle(b))
}

// StreamVerdicts pushes every new verdict matching the status and result
// query filters to the websocket client.
func (h *Handlers) StreamVerdicts(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Errorf("WebSocket upgrade error: %v", err)
		return
	}
	h.logger.Infof("WebSocket connection established from %s", r.RemoteAddr)
	defer func() {
		h.logger.Debugf("WebSocket connection closed for %s", r.RemoteAddr)
		conn.Close()
	}()

	sub := &storage.VerdictSubscriber{
		ID:      uuid.NewString(),
		Channel: make(chan model.Verdict, 100),
		Filter: storage.VerdictFilter{
			Status: r.URL.Query().Get("status"),
			Result: r.URL.Query().Get("result"),
		},
	}
	h.store.Subscribe(sub)
	defer h.store.Unsubscribe(sub)

	conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := conn.WriteJSON(map[string]string{"type": "connected", "message": "WebSocket connection established"}); err != nil {
		h.logger.Errorf("Failed to send initial message: %v", err)
		return
	}

	done := make(chan struct{})
	once := &sync.Once{}
	closeDone := func() {
		once.Do(func() {
			close(done)
		})
	}

	// Read until the client goes away; pongs are handled by the library.
	go func() {
		defer closeDone()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	pingTicker := time.NewTicker(30 * time.Second)
	defer pingTicker.Stop()

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case v, ok := <-sub.Channel:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(v); err != nil {
				h.logger.Debugf("WebSocket write error: %v", err)
				return
			}
		case <-pingTicker.C:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, []byte{}); err != nil {
				h.logger.Debugf("Ping failed: %v", err)
				return
			}
		}
	}
}

// Helper functions
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}
