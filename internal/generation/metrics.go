package generation

import (
	"time"

	"github.com/pkoukk/tiktoken-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	aiRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "narrative_ai_requests_total",
			Help: "Total number of requests to the AI API.",
		},
		[]string{"model", "operation", "status"},
	)
	aiRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "narrative_ai_request_duration_seconds",
			Help:    "Histogram of AI API request durations.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"model", "operation"},
	)
	aiPromptTokens = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "narrative_ai_prompt_tokens",
			Help:    "Histogram of prompt token counts.",
			Buckets: prometheus.LinearBuckets(250, 250, 20),
		},
		[]string{"model", "operation"},
	)
	aiCompletionTokens = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "narrative_ai_completion_tokens",
			Help:    "Histogram of completion token counts.",
			Buckets: prometheus.LinearBuckets(100, 100, 20),
		},
		[]string{"model", "operation"},
	)
	mediaRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "narrative_media_requests_total",
			Help: "Total number of narration and image generation requests.",
		},
		[]string{"kind", "status"},
	)
)

func recordRequest(model, operation, status string, duration time.Duration) {
	aiRequestsTotal.With(prometheus.Labels{"model": model, "operation": operation, "status": status}).Inc()
	if duration > 0 {
		aiRequestDuration.With(prometheus.Labels{"model": model, "operation": operation}).Observe(duration.Seconds())
	}
}

func recordUsage(model, operation string, usage UsageInfo) {
	if usage.TotalTokens <= 0 {
		return
	}
	aiPromptTokens.With(prometheus.Labels{"model": model, "operation": operation}).Observe(float64(usage.PromptTokens))
	aiCompletionTokens.With(prometheus.Labels{"model": model, "operation": operation}).Observe(float64(usage.CompletionTokens))
}

func recordMedia(kind, status string) {
	mediaRequestsTotal.With(prometheus.Labels{"kind": kind, "status": status}).Inc()
}

// estimateTokens оценивает число токенов через tiktoken.
// Для неизвестных модели кодировок возвращает false.
func estimateTokens(model string, texts ...string) (int, bool) {
	tke, err := tiktoken.EncodingForModel(model)
	if err != nil {
		tke, err = tiktoken.GetEncoding(tiktoken.MODEL_CL100K_BASE)
		if err != nil {
			return 0, false
		}
	}
	total := 0
	for _, t := range texts {
		total += len(tke.Encode(t, nil, nil))
	}
	return total, true
}
