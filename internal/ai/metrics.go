package ai

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	aiRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "story_canvas_ai_requests_total",
			Help: "Total number of requests to the language model API.",
		},
		[]string{"model", "operation", "status"},
	)
	aiRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "story_canvas_ai_request_duration_seconds",
			Help:    "Histogram of language model request durations.",
			Buckets: []float64{.5, 1, 2.5, 5, 10, 20, 30, 60, 90},
		},
		[]string{"model", "operation"},
	)
	aiPromptTokens = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "story_canvas_ai_prompt_tokens",
			Help:    "Histogram of prompt token counts.",
			Buckets: prometheus.LinearBuckets(250, 250, 20),
		},
		[]string{"model"},
	)
	aiCompletionTokens = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "story_canvas_ai_completion_tokens",
			Help:    "Histogram of completion token counts.",
			Buckets: prometheus.LinearBuckets(100, 100, 20),
		},
		[]string{"model"},
	)
	aiHistoryTrimmed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "story_canvas_ai_history_messages_trimmed_total",
			Help: "Chat history messages dropped to fit the prompt token budget.",
		},
	)
)
