// Package metrics exports the tracker and sink statistics
// as prometheus collectors.
//
// The collectors sample on scrape and hold no state of
// their own, so registering one imposes nothing on the
// tracker it observes.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/chaitin/socktrace"
	"github.com/chaitin/socktrace/conntrack"
	"github.com/chaitin/socktrace/dnstrace"
	"github.com/chaitin/socktrace/httptrace"
)

// namespace prefixes every exported metric name.
const namespace = "socktrace"

// sinkDescs is the descriptor pair every tracker sink
// exports.
type sinkDescs struct {
	records *prometheus.Desc
	drops   *prometheus.Desc
}

func newSinkDescs(subsystem string) sinkDescs {
	return sinkDescs{
		records: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "records_total"),
			"Records accepted by the sink.", nil, nil),
		drops: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "drops_total"),
			"Records dropped at the full sink.", nil, nil),
	}
}

func (d sinkDescs) describe(ch chan<- *prometheus.Desc) {
	ch <- d.records
	ch <- d.drops
}

func (d sinkDescs) collect(
	ch chan<- prometheus.Metric, sink *socktrace.Sink,
) {
	ch <- prometheus.MustNewConstMetric(
		d.records, prometheus.CounterValue, float64(sink.GetDone()))
	ch <- prometheus.MustNewConstMetric(
		d.drops, prometheus.CounterValue, float64(sink.GetLost()))
}

// connCollector exports the connection tracker state.
type connCollector struct {
	tracker  *conntrack.Tracker
	active   *prometheus.Desc
	counters *prometheus.Desc
	refused  *prometheus.Desc
	sink     sinkDescs
}

// NewConnCollector creates the prometheus collector of a
// connection tracker.
func NewConnCollector(tracker *conntrack.Tracker) prometheus.Collector {
	return &connCollector{
		tracker: tracker,
		active: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "conn", "active"),
			"Connections currently tracked.", nil, nil),
		counters: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "conn", "retrans_counters"),
			"Retransmit counters held, orphaned ones included.",
			nil, nil),
		refused: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "conn", "refused_total"),
			"Table inserts refused at capacity.", nil, nil),
		sink: newSinkDescs("conn"),
	}
}

// Describe implements prometheus.Collector.
func (c *connCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.active
	ch <- c.counters
	ch <- c.refused
	c.sink.describe(ch)
}

// Collect implements prometheus.Collector.
func (c *connCollector) Collect(ch chan<- prometheus.Metric) {
	stats := c.tracker.Stats()
	ch <- prometheus.MustNewConstMetric(
		c.active, prometheus.GaugeValue, float64(stats.Active))
	ch <- prometheus.MustNewConstMetric(
		c.counters, prometheus.GaugeValue, float64(stats.Counters))
	ch <- prometheus.MustNewConstMetric(
		c.refused, prometheus.CounterValue, float64(stats.Refused))
	c.sink.collect(ch, c.tracker.Sink())
}

// httpCollector exports the HTTP correlator state.
type httpCollector struct {
	tracker     *httptrace.Tracker
	outstanding *prometheus.Desc
	pending     *prometheus.Desc
	refused     *prometheus.Desc
	sink        sinkDescs
}

// NewHTTPCollector creates the prometheus collector of an
// HTTP correlator.
func NewHTTPCollector(tracker *httptrace.Tracker) prometheus.Collector {
	return &httpCollector{
		tracker: tracker,
		outstanding: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "http", "outstanding"),
			"Requests awaiting their response.", nil, nil),
		pending: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "http", "pending"),
			"Receive calls between their enter and exit phases.",
			nil, nil),
		refused: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "http", "refused_total"),
			"Table inserts refused at capacity.", nil, nil),
		sink: newSinkDescs("http"),
	}
}

// Describe implements prometheus.Collector.
func (c *httpCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.outstanding
	ch <- c.pending
	ch <- c.refused
	c.sink.describe(ch)
}

// Collect implements prometheus.Collector.
func (c *httpCollector) Collect(ch chan<- prometheus.Metric) {
	stats := c.tracker.Stats()
	ch <- prometheus.MustNewConstMetric(
		c.outstanding, prometheus.GaugeValue,
		float64(stats.Outstanding))
	ch <- prometheus.MustNewConstMetric(
		c.pending, prometheus.GaugeValue, float64(stats.Pending))
	ch <- prometheus.MustNewConstMetric(
		c.refused, prometheus.CounterValue, float64(stats.Refused))
	c.sink.collect(ch, c.tracker.Sink())
}

// dnsCollector exports the DNS extractor state.
type dnsCollector struct {
	tracker   *dnstrace.Tracker
	malformed *prometheus.Desc
	sink      sinkDescs
}

// NewDNSCollector creates the prometheus collector of a
// DNS extractor.
func NewDNSCollector(tracker *dnstrace.Tracker) prometheus.Collector {
	return &dnsCollector{
		tracker: tracker,
		malformed: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "dns", "malformed_total"),
			"Resolver port datagrams yielding no query name.",
			nil, nil),
		sink: newSinkDescs("dns"),
	}
}

// Describe implements prometheus.Collector.
func (c *dnsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.malformed
	c.sink.describe(ch)
}

// Collect implements prometheus.Collector.
func (c *dnsCollector) Collect(ch chan<- prometheus.Metric) {
	stats := c.tracker.Stats()
	ch <- prometheus.MustNewConstMetric(
		c.malformed, prometheus.CounterValue,
		float64(stats.Malformed))
	c.sink.collect(ch, c.tracker.Sink())
}
