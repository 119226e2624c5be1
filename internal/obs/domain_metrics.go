package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// OrderCreatedTotal counts order creation outcomes per provider.
	OrderCreatedTotal *prometheus.CounterVec
	// PaymentNotificationTotal counts inbound provider callbacks by source and outcome.
	PaymentNotificationTotal *prometheus.CounterVec
	// PaymentFallbackTotal counts checkouts that degraded to the unverified fallback redirect.
	PaymentFallbackTotal *prometheus.CounterVec
	// ReconcileRowsTotal counts order rows visited while marking orders paid.
	ReconcileRowsTotal *prometheus.CounterVec
	// LedgerConfirmTotal counts public ledger confirmation outcomes per title.
	LedgerConfirmTotal *prometheus.CounterVec
	// MailingSubscribeTotal counts mailing list subscription attempts.
	MailingSubscribeTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		OrderCreatedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_created_total",
			Help:      "Count of order creation outcomes.",
		}, []string{"provider", "result"})
		PaymentNotificationTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_notification_total",
			Help:      "Count of processed payment callbacks by outcome.",
		}, []string{"provider", "source", "result"})
		PaymentFallbackTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_fallback_total",
			Help:      "Count of checkouts redirected to the unverified fallback URL.",
		}, []string{"provider"})
		ReconcileRowsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_rows_total",
			Help:      "Count of order rows visited during reconciliation.",
		}, []string{"result"})
		LedgerConfirmTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_confirm_total",
			Help:      "Count of public ledger confirmation outcomes.",
		}, []string{"result"})
		MailingSubscribeTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mailing_subscribe_total",
			Help:      "Count of mailing list subscription attempts.",
		}, []string{"result"})

		for _, c := range []**prometheus.CounterVec{
			&OrderCreatedTotal,
			&PaymentNotificationTotal,
			&PaymentFallbackTotal,
			&ReconcileRowsTotal,
			&LedgerConfirmTotal,
			&MailingSubscribeTotal,
		} {
			target := c
			mustRegisterCollector(reg, *target, func(existing prometheus.Collector) {
				if v, ok := existing.(*prometheus.CounterVec); ok {
					*target = v
				}
			})
		}
	})
}

// Inc increments a labelled counter when it has been registered.
func Inc(vec *prometheus.CounterVec, labels ...string) {
	if vec == nil {
		return
	}
	vec.WithLabelValues(labels...).Inc()
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register domain metric: %w", err))
	}
}
