package metrics

import "github.com/prometheus/client_golang/prometheus"

// DeliveryMetrics counts allocation outcomes across both trigger paths.
type DeliveryMetrics struct {
	allocations   *prometheus.CounterVec
	insufficient  prometheus.Counter
	retries       prometheus.Counter
	alertFailures prometheus.Counter
}

// NewDeliveryMetrics registers the delivery counters on the provided registerer.
func NewDeliveryMetrics(reg prometheus.Registerer) *DeliveryMetrics {
	if reg == nil {
		return &DeliveryMetrics{}
	}
	allocations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "delivery_allocations_total",
		Help: "Line item allocation attempts by outcome.",
	}, []string{"outcome"})
	insufficient := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "delivery_insufficient_inventory_total",
		Help: "Line items that failed for lack of eligible credentials.",
	})
	retries := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "delivery_retries_total",
		Help: "Delivery retries dispatched by the retry sweep.",
	})
	alertFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "delivery_notification_failures_total",
		Help: "Notification gateway dispatch failures.",
	})
	reg.MustRegister(allocations, insufficient, retries, alertFailures)
	return &DeliveryMetrics{
		allocations:   allocations,
		insufficient:  insufficient,
		retries:       retries,
		alertFailures: alertFailures,
	}
}

// IncAllocation records one line-item allocation attempt by outcome label.
func (d *DeliveryMetrics) IncAllocation(outcome string) {
	if d == nil || d.allocations == nil {
		return
	}
	d.allocations.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// IncInsufficient counts a shortage failure.
func (d *DeliveryMetrics) IncInsufficient() {
	if d == nil || d.insufficient == nil {
		return
	}
	d.insufficient.Inc()
}

// IncRetry counts a retry dispatch.
func (d *DeliveryMetrics) IncRetry() {
	if d == nil || d.retries == nil {
		return
	}
	d.retries.Inc()
}

// IncNotificationFailure counts a gateway dispatch failure.
func (d *DeliveryMetrics) IncNotificationFailure() {
	if d == nil || d.alertFailures == nil {
		return
	}
	d.alertFailures.Inc()
}
