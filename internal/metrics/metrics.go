package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	MessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "volunteers_messages_total",
			Help: "SMS send outcomes by stage and message type",
		},
		[]string{"stage", "type"}, // sent|failed|skipped , reminder|confirmation|...
	)

	RegistrationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "volunteers_registrations_total",
			Help: "Signup registration attempts by outcome",
		},
		[]string{"outcome"}, // ok|full|locked|invalid|error
	)

	RepliesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "volunteers_replies_total",
			Help: "Inbound SMS replies by classified intent",
		},
		[]string{"intent"},
	)

	InstancesGenerated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "volunteers_instances_generated_total",
			Help: "Event instances created from recurring templates",
		},
	)

	WebhookRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "volunteers_webhook_rejected_total",
			Help: "Inbound webhook payloads rejected by authenticity checks",
		},
		[]string{"reason"},
	)
)

var registerOnce sync.Once

// MustRegister registers all collectors once; serve and worker may both call it.
func MustRegister(r prometheus.Registerer) {
	registerOnce.Do(func() {
		r.MustRegister(
			MessagesTotal,
			RegistrationsTotal,
			RepliesTotal,
			InstancesGenerated,
			WebhookRejected,
		)
	})
}
