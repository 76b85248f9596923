package httpadapter

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/mkravets/deep-researcher/internal/core/domain"
	"github.com/mkravets/deep-researcher/internal/core/ports"
	"github.com/mkravets/deep-researcher/internal/observability/metrics"
)

const serviceName = "deep-researcher-api"

type Router struct {
	ingestor ports.DocumentIngestor
	querySvc ports.QueryService
	research ports.ResearchService
	reader   ports.DocumentReader
	metrics  *metrics.HTTPServerMetrics

	rateLimitRPS   float64
	rateLimitBurst int
	maxConcurrent  int
}

type RouterConfig struct {
	RateLimitRPS   float64
	RateLimitBurst int
	MaxConcurrent  int
}

func NewRouter(
	ingestor ports.DocumentIngestor,
	querySvc ports.QueryService,
	research ports.ResearchService,
	reader ports.DocumentReader,
	serverMetrics *metrics.HTTPServerMetrics,
	cfg RouterConfig,
) *Router {
	return &Router{
		ingestor:       ingestor,
		querySvc:       querySvc,
		research:       research,
		reader:         reader,
		metrics:        serverMetrics,
		rateLimitRPS:   cfg.RateLimitRPS,
		rateLimitBurst: cfg.RateLimitBurst,
		maxConcurrent:  cfg.MaxConcurrent,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/documents", rt.uploadDocument)
	mux.HandleFunc("/v1/documents/", rt.getDocumentByID)
	mux.HandleFunc("/v1/query", rt.query)
	mux.HandleFunc("/v1/research", rt.researchQuery)
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
	}

	var handler http.Handler = mux
	if rt.maxConcurrent > 0 {
		handler = backpressureMiddleware(handler, rt.maxConcurrent, 50*time.Millisecond)
	}
	if rt.rateLimitRPS > 0 {
		handler = rateLimitMiddleware(handler, rt.rateLimitRPS, rt.rateLimitBurst)
	}
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	return requestIDMiddleware(accessLogMiddleware(handler))
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	doc, err := rt.ingestor.Upload(
		r.Context(),
		fileHeader.Filename,
		fileHeader.Header.Get("Content-Type"),
		file,
	)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, doc)
}

func (rt *Router) getDocumentByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/v1/documents/")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "document id is required"})
		return
	}

	doc, err := rt.reader.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (rt *Router) query(w http.ResponseWriter, r *http.Request) {
	rt.answerWith(w, r, "/v1/query", rt.querySvc.Answer)
}

func (rt *Router) researchQuery(w http.ResponseWriter, r *http.Request) {
	rt.answerWith(w, r, "/v1/research", rt.research.Research)
}

func (rt *Router) answerWith(
	w http.ResponseWriter,
	r *http.Request,
	endpoint string,
	answer func(ctx context.Context, question string) (*domain.Answer, error),
) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req struct {
		Question string `json:"question"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "question is required"})
		return
	}

	start := time.Now()
	result, err := answer(r.Context(), req.Question)
	if err != nil {
		writeError(w, err)
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordQuery(serviceName, endpoint, len(result.Sources), time.Since(start))
	}

	writeJSON(w, http.StatusOK, result)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
}
