package ingest

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sensorlake_ingest_events_total",
		Help: "Total number of webhook events persisted",
	},
		[]string{"kind"},
	)

	RequestErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sensorlake_ingest_request_errors_total",
		Help: "Total number of rejected or failed webhook deliveries",
	},
		[]string{"reason"},
	)

	ReadingsWrittenTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sensorlake_ingest_readings_written_total",
		Help: "Total number of sensor readings written from uplink events",
	})

	DevicesRegisteredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sensorlake_ingest_devices_registered_total",
		Help: "Total number of devices registered on first sight",
	})
)
