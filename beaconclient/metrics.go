package beaconclient

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsReceivedCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "beacon_events",
		Subsystem: "client",
		Name:      "events_received_total",
		Help:      "Events decoded from the beacon node event stream",
	}, []string{"topic"})

	decodeFailuresCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "beacon_events",
		Subsystem: "client",
		Name:      "decode_failures_total",
		Help:      "Frames dropped because they could not be decoded",
	}, []string{"reason"})

	listenerFaultsCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "beacon_events",
		Subsystem: "client",
		Name:      "listener_faults_total",
		Help:      "Listener invocations that returned an error or panicked",
	}, []string{"topic"})

	droppedEventsCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "beacon_events",
		Subsystem: "client",
		Name:      "dropped_events_total",
		Help:      "Events dropped because the dispatch queue was full",
	}, []string{"topic"})

	reconnectsCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "beacon_events",
		Subsystem: "client",
		Name:      "reconnects_total",
		Help:      "Automatic reconnect attempts after a transport failure",
	}, []string{"addr"})

	connectionStateGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "beacon_events",
		Subsystem: "client",
		Name:      "connection_state",
		Help:      "Current connection state: 0=disconnected, 1=connecting, 2=connected, 3=failed",
	}, []string{"addr"})
)
