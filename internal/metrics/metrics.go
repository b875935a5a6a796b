package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Inbound pipeline counters. Matched is labeled by the strategy that won so
// cascade drift shows up on the dashboard.
var (
	InboundProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pharmeast",
		Subsystem: "inbound",
		Name:      "processed_total",
		Help:      "Inbound messages run through the correlator pipeline.",
	})

	InboundMatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pharmeast",
		Subsystem: "inbound",
		Name:      "matched_total",
		Help:      "Inbound messages matched to an inquiry, by strategy.",
	}, []string{"strategy"})

	InboundDeduped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pharmeast",
		Subsystem: "inbound",
		Name:      "deduped_total",
		Help:      "Inbound messages skipped because their Message-ID was already threaded.",
	})

	InboundDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pharmeast",
		Subsystem: "inbound",
		Name:      "dropped_total",
		Help:      "Inbound messages that matched no inquiry and were dropped.",
	})

	InboundErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pharmeast",
		Subsystem: "inbound",
		Name:      "errors_total",
		Help:      "Inbound messages that failed to parse or persist.",
	})

	CampaignEmails = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pharmeast",
		Subsystem: "campaign",
		Name:      "emails_total",
		Help:      "Campaign emails attempted, by outcome.",
	}, []string{"outcome"})
)
