package metric

import "github.com/prometheus/client_golang/prometheus"

// ArchiveStats is a point-in-time view of the on-disk archive.
type ArchiveStats struct {
	Runs      int
	Artifacts int
	Bytes     int64
}

// StatsFunc reports the current archive stats.
type StatsFunc func() (ArchiveStats, error)

// Collector reports archive size on every scrape.
type Collector struct {
	stats StatsFunc

	runs      *prometheus.Desc
	artifacts *prometheus.Desc
	bytes     *prometheus.Desc
	up        *prometheus.Desc
}

// NewCollector creates a collector backed by fn.
func NewCollector(fn StatsFunc) *Collector {
	return &Collector{
		stats: fn,
		runs: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "archive", "runs"),
			"Runs present in the archive directory.", nil, nil),
		artifacts: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "archive", "artifacts"),
			"Artifact files in the archive directory.", nil, nil),
		bytes: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "archive", "bytes"),
			"Total size of archived artifacts.", nil, nil),
		up: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "archive", "up"),
			"Whether the archive could be listed.", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.runs
	ch <- c.artifacts
	ch <- c.bytes
	ch <- c.up
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s, err := c.stats()
	if err != nil {
		ch <- prometheus.MustNewConstMetric(c.up, prometheus.GaugeValue, 0)
		return
	}
	ch <- prometheus.MustNewConstMetric(c.up, prometheus.GaugeValue, 1)
	ch <- prometheus.MustNewConstMetric(c.runs, prometheus.GaugeValue, float64(s.Runs))
	ch <- prometheus.MustNewConstMetric(c.artifacts, prometheus.GaugeValue, float64(s.Artifacts))
	ch <- prometheus.MustNewConstMetric(c.bytes, prometheus.GaugeValue, float64(s.Bytes))
}
