package netcore

import "github.com/prometheus/client_golang/prometheus"

// StatisticsCollector adapts a Statistics into a prometheus.Collector,
// so a ClientUDP or per-RemoteClient NetworkStatistics can be registered
// directly with an existing registry without a background scrape loop.
// Grounded on the pack's go-tcpinfo exporter pattern: one Collector per
// live connection, descriptors built once, values read fresh on every
// Collect.
type StatisticsCollector struct {
	stats  *Statistics
	labels prometheus.Labels

	packetsSent     *prometheus.Desc
	packetsReceived *prometheus.Desc
	bytesSent       *prometheus.Desc
	bytesReceived   *prometheus.Desc
	packetsLost     *prometheus.Desc
	packetLossRate  *prometheus.Desc
	pingSeconds     *prometheus.Desc
}

// NewStatisticsCollector builds a collector for stats, tagging every
// metric with the given connection label (e.g. a remote's endpoint or a
// client's UUID) so multiple connections can share one registry.
func NewStatisticsCollector(stats *Statistics, connectionLabel string) *StatisticsCollector {
	constLabels := prometheus.Labels{"connection": connectionLabel}
	ns := "netcore"
	return &StatisticsCollector{
		stats:  stats,
		labels: constLabels,
		packetsSent: prometheus.NewDesc(
			ns+"_packets_sent_total", "Datagrams sent on this connection.", nil, constLabels),
		packetsReceived: prometheus.NewDesc(
			ns+"_packets_received_total", "Datagrams received on this connection.", nil, constLabels),
		bytesSent: prometheus.NewDesc(
			ns+"_bytes_sent_total", "Bytes sent on this connection.", nil, constLabels),
		bytesReceived: prometheus.NewDesc(
			ns+"_bytes_received_total", "Bytes received on this connection.", nil, constLabels),
		packetsLost: prometheus.NewDesc(
			ns+"_packets_lost_total", "Bundles aged out unacked plus reliable messages given up on after exhausting retries.", nil, constLabels),
		packetLossRate: prometheus.NewDesc(
			ns+"_packet_loss_rate", "Fraction of sent packets never acked.", nil, constLabels),
		pingSeconds: prometheus.NewDesc(
			ns+"_ping_seconds", "Smoothed round-trip time.", nil, constLabels),
	}
}

// Describe implements prometheus.Collector.
func (c *StatisticsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.packetsSent
	ch <- c.packetsReceived
	ch <- c.bytesSent
	ch <- c.bytesReceived
	ch <- c.packetsLost
	ch <- c.packetLossRate
	ch <- c.pingSeconds
}

// Collect implements prometheus.Collector.
func (c *StatisticsCollector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(c.packetsSent, prometheus.CounterValue, float64(c.stats.PacketsSent()))
	ch <- prometheus.MustNewConstMetric(c.packetsReceived, prometheus.CounterValue, float64(c.stats.PacketsReceived()))
	ch <- prometheus.MustNewConstMetric(c.bytesSent, prometheus.CounterValue, float64(c.stats.BytesSent()))
	ch <- prometheus.MustNewConstMetric(c.bytesReceived, prometheus.CounterValue, float64(c.stats.BytesReceived()))
	ch <- prometheus.MustNewConstMetric(c.packetsLost, prometheus.CounterValue, float64(c.stats.PacketsLost()))
	ch <- prometheus.MustNewConstMetric(c.packetLossRate, prometheus.GaugeValue, c.stats.PacketLossRate())
	ch <- prometheus.MustNewConstMetric(c.pingSeconds, prometheus.GaugeValue, c.stats.Ping().AsDuration().Seconds())
}
