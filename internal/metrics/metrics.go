package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var PagesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "botcelian_pages_processed_total",
	Help: "Pages handled by the orchestrator, by outcome",
}, []string{"outcome"})

var ActionsTaken = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "botcelian_actions_total",
	Help: "Decided actions, by kind and whether they were saved",
}, []string{"action", "persisted"})

var DetectorErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "botcelian_detector_errors_total",
	Help: "Detector failures treated as no verdict",
}, []string{"detector"})

var DetectorVerdicts = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "botcelian_detector_verdicts_total",
	Help: "Detector verdicts, by detector and recommendation",
}, []string{"detector", "recommend"})

var ReferenceFetchErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "botcelian_reference_fetch_errors_total",
	Help: "Failed reference corpus lookups, by source",
}, []string{"source"})

var ModelAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "botcelian_model_attempts_total",
	Help: "Language model calls, by status (ok, transport, malformed, fallback)",
}, []string{"status"})

var MutationsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "botcelian_mutations_rejected_total",
	Help: "Typography mutations discarded by the safety checks, by reason",
}, []string{"reason"})

var NotificationsSent = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "botcelian_notifications_total",
	Help: "Alert deliveries, by channel and status",
}, []string{"channel", "status"})

var NotificationsSuppressed = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "botcelian_notifications_suppressed_total",
	Help: "Alerts dropped by a cooldown, by cooldown kind",
}, []string{"cooldown"})

var EditsRemaining = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "botcelian_edit_budget_remaining",
	Help: "Writes left in the current run",
})
