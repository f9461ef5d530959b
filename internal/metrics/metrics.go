// Package metrics implements Prometheus metrics for the capture engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PacketsTotal counts packets parsed into published slots.
	PacketsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridcap_packets_total",
			Help: "Total number of packets parsed into published slots",
		},
		[]string{"traffic"},
	)

	// PayloadBytesTotal counts captured payload bytes.
	PayloadBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridcap_payload_bytes_total",
			Help: "Total payload bytes captured",
		},
		[]string{"traffic"},
	)

	// PollsTotal counts receive queue polls, split by outcome.
	PollsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridcap_polls_total",
			Help: "Total receive queue polls",
		},
		[]string{"outcome"}, // batch | empty
	)

	// TruncatedTotal counts frames dropped by the capacity policy.
	TruncatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gridcap_truncated_packets_total",
			Help: "Frames dropped because a poll exceeded slot capacity",
		},
	)

	// AbortsTotal counts fatal capture aborts.
	AbortsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gridcap_aborts_total",
			Help: "Fatal capture session aborts",
		},
	)

	// RingSlots tracks ring occupancy per slot state.
	RingSlots = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gridcap_ring_slots",
			Help: "Slot ring occupancy by state",
		},
		[]string{"state"},
	)

	// SinkErrorsTotal counts failed sink deliveries.
	SinkErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridcap_sink_errors_total",
			Help: "Failed sink deliveries",
		},
		[]string{"sink"},
	)
)
