package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	MembersRegistered    prometheus.Counter
	Activations          prometheus.Counter
	DuplicateActivations prometheus.Counter
	TokensIssued         prometheus.Counter
	Verifications        *prometheus.CounterVec
	RateLimitRejections  prometheus.Counter
	CaptchaFailures      prometheus.Counter
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers metrics against a specific registerer so tests can use an
// isolated registry.
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		MembersRegistered: factory.NewCounter(prometheus.CounterOpts{
			Name: "membergate_members_registered_total",
			Help: "Total number of members registered",
		}),
		Activations: factory.NewCounter(prometheus.CounterOpts{
			Name: "membergate_activations_total",
			Help: "Total number of membership activations that changed state",
		}),
		DuplicateActivations: factory.NewCounter(prometheus.CounterOpts{
			Name: "membergate_duplicate_activations_total",
			Help: "Total number of activation requests deduplicated by the idempotency guard",
		}),
		TokensIssued: factory.NewCounter(prometheus.CounterOpts{
			Name: "membergate_card_tokens_issued_total",
			Help: "Total number of membership card tokens issued",
		}),
		Verifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "membergate_verifications_total",
			Help: "Total number of public verification requests by outcome",
		}, []string{"outcome"}),
		RateLimitRejections: factory.NewCounter(prometheus.CounterOpts{
			Name: "membergate_verify_rate_limited_total",
			Help: "Total number of verification requests rejected by rate limiting",
		}),
		CaptchaFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "membergate_verify_captcha_failures_total",
			Help: "Total number of verification requests rejected by captcha",
		}),
	}
}

// ObserveVerification records a verification outcome
// ("valid", "invalid", "revoked", "expired").
func (m *Metrics) ObserveVerification(outcome string) {
	m.Verifications.WithLabelValues(outcome).Inc()
}
