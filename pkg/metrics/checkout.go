package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CheckoutMetrics records outcomes of the order pipeline, coupon checks and payments.
// A nil *CheckoutMetrics is valid and records nothing.
type CheckoutMetrics struct {
	duration         *prometheus.HistogramVec
	ordersPlaced     *prometheus.CounterVec
	checkoutFailures *prometheus.CounterVec
	couponRejections *prometheus.CounterVec
	paymentEvents    *prometheus.CounterVec
}

// NewCheckoutMetrics registers the checkout metrics on the provided registerer.
func NewCheckoutMetrics(reg prometheus.Registerer) *CheckoutMetrics {
	if reg == nil {
		return &CheckoutMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "checkout_duration_seconds",
		Help:    "Duration of order placement in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"payment_method"})
	ordersPlaced := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_placed_total",
		Help: "Orders persisted by checkout.",
	}, []string{"payment_method"})
	checkoutFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_failures_total",
		Help: "Checkout attempts rejected or failed.",
	}, []string{"reason"})
	couponRejections := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "coupon_rejections_total",
		Help: "Coupon validations that did not apply a discount.",
	}, []string{"reason"})
	paymentEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_events_total",
		Help: "Payment verifications, webhooks and refunds by outcome.",
	}, []string{"event"})
	reg.MustRegister(duration, ordersPlaced, checkoutFailures, couponRejections, paymentEvents)
	return &CheckoutMetrics{
		duration:         duration,
		ordersPlaced:     ordersPlaced,
		checkoutFailures: checkoutFailures,
		couponRejections: couponRejections,
		paymentEvents:    paymentEvents,
	}
}

// ObserveCheckout records how long a successful placement took.
func (c *CheckoutMetrics) ObserveCheckout(method string, duration time.Duration) {
	if c == nil || c.duration == nil {
		return
	}
	c.duration.WithLabelValues(normalizeLabel(method)).Observe(duration.Seconds())
}

// IncOrderPlaced counts a persisted order.
func (c *CheckoutMetrics) IncOrderPlaced(method string) {
	if c == nil || c.ordersPlaced == nil {
		return
	}
	c.ordersPlaced.WithLabelValues(normalizeLabel(method)).Inc()
}

// IncCheckoutFailure counts a rejected or failed placement.
func (c *CheckoutMetrics) IncCheckoutFailure(reason string) {
	if c == nil || c.checkoutFailures == nil {
		return
	}
	c.checkoutFailures.WithLabelValues(normalizeLabel(reason)).Inc()
}

// IncCouponRejection counts a coupon that failed validation.
func (c *CheckoutMetrics) IncCouponRejection(reason string) {
	if c == nil || c.couponRejections == nil {
		return
	}
	c.couponRejections.WithLabelValues(normalizeLabel(reason)).Inc()
}

// IncPaymentEvent counts a payment outcome such as "verified" or "webhook_duplicate".
func (c *CheckoutMetrics) IncPaymentEvent(event string) {
	if c == nil || c.paymentEvents == nil {
		return
	}
	c.paymentEvents.WithLabelValues(normalizeLabel(event)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
