package mplsgos

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "mplsgos"

// Metrics holds the counters of one topology, registered in a registry of its own
// so that several topologies can live in one process
type Metrics struct {
	Registry *prometheus.Registry

	PacketsReceived *prometheus.CounterVec // node
	PacketsSent     *prometheus.CounterVec // node
	PacketsDropped  *prometheus.CounterVec // node, reason
	LabelsGranted   *prometheus.CounterVec // node
	LabelsDenied    *prometheus.CounterVec // node
	Switchovers     *prometheus.CounterVec // node
	GPSRPRequests   *prometheus.CounterVec // node, outcome
	DMGPEvictions   *prometheus.CounterVec // node
}

// CreateMetrics is a constructor
func CreateMetrics() *Metrics {
	m := new(Metrics)
	m.Registry = prometheus.NewRegistry()
	m.PacketsReceived = newCounterVec("node", "packets_received_total",
		"Number of packets admitted into a node buffer.", "node")
	m.PacketsSent = newCounterVec("node", "packets_sent_total",
		"Number of packets put on a link.", "node")
	m.PacketsDropped = newCounterVec("node", "packets_dropped_total",
		"Number of packets discarded.", "node", "reason")
	m.LabelsGranted = newCounterVec("tldp", "labels_granted_total",
		"Number of label requests answered positively.", "node")
	m.LabelsDenied = newCounterVec("tldp", "labels_denied_total",
		"Number of label requests refused or given up.", "node")
	m.Switchovers = newCounterVec("tldp", "switchovers_total",
		"Number of switching entries moved to their backup LSP.", "node")
	m.GPSRPRequests = newCounterVec("gpsrp", "requests_total",
		"Number of retransmission requests, by outcome.", "node", "outcome")
	m.DMGPEvictions = newCounterVec("dmgp", "evictions_total",
		"Number of stored packets evicted to make room.", "node")
	m.Registry.MustRegister(m.PacketsReceived, m.PacketsSent, m.PacketsDropped, m.LabelsGranted,
		m.LabelsDenied, m.Switchovers, m.GPSRPRequests, m.DMGPEvictions)
	return m
}

func newCounterVec(subsystem, name, help string, labels ...string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
		},
		labels,
	)
}

// Reset zeroes every counter
func (m *Metrics) Reset() {
	for _, cv := range []*prometheus.CounterVec{m.PacketsReceived, m.PacketsSent, m.PacketsDropped,
		m.LabelsGranted, m.LabelsDenied, m.Switchovers, m.GPSRPRequests, m.DMGPEvictions} {
		cv.Reset()
	}
}
