package outputhandler

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/venslabs/roundup/pkg/diag"
	"github.com/venslabs/roundup/pkg/lifecycle"
	"github.com/venslabs/roundup/pkg/ticket"
)

// Metrics are the gauges exported for one iteration.
type Metrics struct {
	Registry    *prometheus.Registry
	Iteration   prometheus.Gauge
	Tickets     *prometheus.GaugeVec
	Findings    *prometheus.GaugeVec
	Advisories  *prometheus.GaugeVec
	UnusedRules prometheus.Gauge
	Diagnostics *prometheus.GaugeVec
}

// NewMetrics creates the gauges on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		Iteration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "roundup_iteration",
			Help: "Number of the last computed iteration",
		}),
		Tickets: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "roundup_tickets",
			Help: "Ticket decisions of the iteration by lifecycle status",
		}, []string{"status"}),
		Findings: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "roundup_findings",
			Help: "Findings of the iteration after whitelisting",
		}, []string{"state"}),
		Advisories: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "roundup_open_advisories",
			Help: "Advisories listed in open tickets by CVSSv3 severity",
		}, []string{"severity"}),
		UnusedRules: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "roundup_unused_whitelist_rules",
			Help: "Whitelist rules that matched no finding",
		}),
		Diagnostics: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "roundup_diagnostics",
			Help: "Diagnostics collected during the iteration by kind",
		}, []string{"kind"}),
	}
	m.Registry.MustRegister(m.Iteration, m.Tickets, m.Findings, m.Advisories, m.UnusedRules, m.Diagnostics)
	return m
}

// Observe sets the gauges from a report.
func (m *Metrics) Observe(r *Report) {
	m.Iteration.Set(float64(r.Iteration))
	for st, n := range lifecycle.Counts(r.Decisions) {
		m.Tickets.WithLabelValues(string(st)).Set(float64(n))
	}
	m.Findings.WithLabelValues("active").Set(float64(r.Active))
	m.Findings.WithLabelValues("suppressed").Set(float64(len(r.Suppressed)))
	m.UnusedRules.Set(float64(len(r.Unused)))

	sev := make(map[string]int)
	for _, d := range r.Decisions {
		if d.Status == ticket.StatusResolved {
			continue
		}
		for _, e := range d.Ticket.Entries {
			sev[string(severityOf(e.Score))]++
		}
	}
	for s, n := range sev {
		m.Advisories.WithLabelValues(s).Set(float64(n))
	}

	kinds := make(map[diag.Kind]int)
	for _, d := range r.Diagnostics {
		kinds[d.Kind]++
	}
	for k, n := range kinds {
		m.Diagnostics.WithLabelValues(string(k)).Set(float64(n))
	}
}

type prometheusOutputHandler struct {
	path string
	m    *Metrics
}

// NewPrometheusOutputHandler writes the gauges in text exposition format to path,
// ready for the node exporter's textfile collector.
func NewPrometheusOutputHandler(path string) OutputHandler {
	return &prometheusOutputHandler{path: path, m: NewMetrics()}
}

func (h *prometheusOutputHandler) HandleReport(r *Report) error {
	h.m.Observe(r)
	return nil
}

func (h *prometheusOutputHandler) Close() error {
	return prometheus.WriteToTextfile(h.path, h.m.Registry)
}
