package server

import (
	"context"
	"time"

	"github.com/mohammad-safakhou/supportbot/provider"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the service's Prometheus collectors.
type Metrics struct {
	ChatRequests       *prometheus.CounterVec
	GroundingOverrides prometheus.Counter
	TokensUsed         prometheus.Counter
	ModelLatency       prometheus.Histogram
	RateLimited        prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ChatRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "supportbot_chat_requests_total",
			Help: "Chat requests by outcome.",
		}, []string{"outcome"}),
		GroundingOverrides: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "supportbot_grounding_overrides_total",
			Help: "Model replies replaced by the refusal for low documentation overlap.",
		}),
		TokensUsed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "supportbot_tokens_used_total",
			Help: "Tokens reported by the model.",
		}),
		ModelLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "supportbot_model_latency_seconds",
			Help:    "Latency of model calls.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
		RateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "supportbot_rate_limited_total",
			Help: "Requests refused by the rate limiter.",
		}),
	}
	reg.MustRegister(m.ChatRequests, m.GroundingOverrides, m.TokensUsed, m.ModelLatency, m.RateLimited)
	return m
}

// Timed wraps gen so every call is observed in ModelLatency.
func (m *Metrics) Timed(gen provider.Generator) provider.Generator {
	return &timedGenerator{next: gen, hist: m.ModelLatency}
}

type timedGenerator struct {
	next provider.Generator
	hist prometheus.Histogram
}

func (g *timedGenerator) Generate(ctx context.Context, prompt string) (*provider.Result, error) {
	start := time.Now()
	res, err := g.next.Generate(ctx, prompt)
	g.hist.Observe(time.Since(start).Seconds())
	return res, err
}
