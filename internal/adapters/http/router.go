package httpadapter

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/ragline/ragline/internal/config"
	"github.com/ragline/ragline/internal/core/domain"
	"github.com/ragline/ragline/internal/core/ports"
	"github.com/ragline/ragline/internal/observability/metrics"
)

const serviceName = "api"

type Router struct {
	cfg           config.Config
	answer        ports.AnswerService
	defaultBudget domain.ContextBudget
	defaultRoute  domain.ProviderRoute
	metrics       *metrics.HTTPServerMetrics
}

func NewRouter(
	cfg config.Config,
	answer ports.AnswerService,
	defaultBudget domain.ContextBudget,
	defaultRoute domain.ProviderRoute,
	m *metrics.HTTPServerMetrics,
) *Router {
	return &Router{
		cfg:           cfg,
		answer:        answer,
		defaultBudget: defaultBudget,
		defaultRoute:  defaultRoute,
		metrics:       m,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/answer", rt.answerQuestion)
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
	}

	var handler http.Handler = mux
	handler = backpressureMiddleware(handler, rt.cfg.APIMaxConcurrent, rt.cfg.APIQueueWait)
	if rt.cfg.APIRateLimitRPS > 0 {
		handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
	}
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	handler = accessLogMiddleware(handler)
	handler = requestIDMiddleware(handler)
	return handler
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type answerRequestBody struct {
	Query          string                `json:"query"`
	ConversationID string                `json:"conversation_id"`
	TenantID       string                `json:"tenant_id"`
	Budget         *domain.ContextBudget `json:"budget,omitempty"`
	Route          []domain.RouteEntry   `json:"route,omitempty"`
	CostCeiling    float64               `json:"cost_ceiling,omitempty"`
}

func (rt *Router) answerQuestion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var body answerRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	req := domain.AnswerRequest{
		Query:          body.Query,
		ConversationID: body.ConversationID,
		TenantID:       body.TenantID,
		Budget:         rt.defaultBudget,
		Route:          rt.defaultRoute,
		CostCeiling:    body.CostCeiling,
	}
	if body.Budget != nil {
		req.Budget = *body.Budget
	}
	if len(body.Route) > 0 {
		route, err := domain.NewProviderRoute(body.Route)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		req.Route = route
	}

	start := time.Now()
	result, err := rt.answer.Answer(r.Context(), req)
	if err != nil {
		status := mapErrorToHTTPStatus(err)
		if status >= http.StatusInternalServerError {
			slog.Error("answer_failed",
				"request_id", requestIDFromContext(r.Context()),
				"tenant_id", body.TenantID,
				"error", err,
			)
		}
		rt.recordAnswer(errorKindLabel(err), time.Since(start))
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}

	rt.recordAnswer("ok", time.Since(start))
	if rt.metrics != nil {
		rt.metrics.RecordAnswerQuality(
			serviceName,
			result.ProviderUsed,
			len(result.Citations),
			result.Cost,
			result.Degraded,
			result.ContextTruncated,
		)
	}
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) recordAnswer(outcome string, duration time.Duration) {
	if rt.metrics == nil {
		return
	}
	rt.metrics.RecordAnswer(serviceName, outcome, duration)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
