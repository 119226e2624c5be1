package resilience

import "github.com/prometheus/client_golang/prometheus"

// Breaker collectors are labelled by outbound target (paypal, payfast_validate, acymailing).
var (
	BreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "sponsor",
			Name:      "breaker_state",
			Help:      "Current breaker state per outbound dependency: 0=closed,1=open,2=half-open",
		},
		[]string{"target"},
	)
	BreakerTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sponsor",
			Name:      "breaker_transition_total",
			Help:      "Count of breaker state transitions",
		},
		[]string{"target", "from", "to"},
	)
	BreakerOpenedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sponsor",
			Name:      "breaker_open_total",
			Help:      "Number of times a breaker transitioned into open state",
		},
		[]string{"target"},
	)
)

func init() {
	prometheus.MustRegister(BreakerState, BreakerTransitions, BreakerOpenedTotal)
}
