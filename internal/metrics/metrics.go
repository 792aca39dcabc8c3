package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PurchaseDuration tracks the latency of voucher purchases
	PurchaseDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "ipipo_purchase_duration_seconds",
			Help: "Duration of voucher purchase requests in seconds",
			Buckets: []float64{
				0.001, // 1ms
				0.005, // 5ms
				0.01,  // 10ms
				0.025, // 25ms
				0.05,  // 50ms
				0.1,   // 100ms
				0.25,  // 250ms
				0.5,   // 500ms
				1.0,   // 1s
				2.5,   // 2.5s
				5.0,   // 5s
				10.0,  // 10s
			},
		},
		[]string{"status"}, // success or failed
	)

	// RedeemDuration tracks the latency of voucher redemptions
	RedeemDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "ipipo_redeem_duration_seconds",
			Help: "Duration of voucher redemption requests in seconds",
			Buckets: []float64{
				0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0,
			},
		},
		[]string{"status"},
	)

	// PurchasedUnits counts voucher units sold across all campaigns
	PurchasedUnits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ipipo_purchased_units_total",
			Help: "Total voucher units sold",
		},
	)
)

// RecordPurchaseDuration records the duration of a purchase request
func RecordPurchaseDuration(status string, duration float64) {
	PurchaseDuration.WithLabelValues(status).Observe(duration)
}

// RecordRedeemDuration records the duration of a redemption request
func RecordRedeemDuration(status string, duration float64) {
	RedeemDuration.WithLabelValues(status).Observe(duration)
}
