// Command echoserver runs a minimal netcore ServerUDP that echoes every
// application message it receives back to the sending client, reliably.
package main

import (
	"flag"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lambdanet/netcore/netcore"
	"github.com/lambdanet/netcore/pkg/logger"
)

type echoHandler struct {
	registry *prometheus.Registry
}

func (h *echoHandler) OnClientConnecting(remote *netcore.RemoteClient) {
	logger.InfoCyan("connecting: %s", remote.Addr())
}

func (h *echoHandler) OnClientDisconnecting(remote *netcore.RemoteClient) {
	logger.Info("disconnecting: %s", remote.Addr())
}

func (h *echoHandler) OnClientConnected(remote *netcore.RemoteClient) {
	logger.Success("accepted %s (id=%s)", remote.Addr(), remote.ID())
	h.registry.MustRegister(netcore.NewStatisticsCollector(remote.Statistics(), remote.Addr().String()))
}

func (h *echoHandler) OnClientDisconnected(remote *netcore.RemoteClient, reason error) {
	logger.Info("disconnected %s: %v", remote.Addr(), reason)
}

func (h *echoHandler) OnPacketReceived(remote *netcore.RemoteClient, pkt *netcore.NetworkPacket) {
	logger.Debug("echoing %d bytes from %s", len(pkt.Payload), remote.Addr())
	if _, err := remote.Manager().EnqueueReliable(pkt.Type, pkt.Payload); err != nil {
		logger.Error("failed to echo to %s: %v", remote.Addr(), err)
	}
}

func (h *echoHandler) OnPacketDelivered(remote *netcore.RemoteClient, pkt *netcore.NetworkPacket) {
	logger.Debug("delivered %d bytes to %s", len(pkt.Payload), remote.Addr())
}

func (h *echoHandler) OnPacketResent(remote *netcore.RemoteClient, pkt *netcore.NetworkPacket, retries int) {
	logger.Debug("resending to %s (retry %d)", remote.Addr(), retries)
}

func (h *echoHandler) OnPacketMaxTriesReached(remote *netcore.RemoteClient, pkt *netcore.NetworkPacket, retries int) {
	logger.Error("giving up on message to %s after %d retries", remote.Addr(), retries)
}

func main() {
	addr := flag.String("addr", ":9423", "UDP address to listen on")
	level := flag.Int("level", logger.LevelInfo, "log level (0=debug .. 4=success)")
	metricsAddr := flag.String("metrics", ":9424", "HTTP address to serve Prometheus metrics on")
	flag.Parse()

	logger.SetLevel(*level)
	logger.Banner("netcore echo server", "1.0.0")

	reg := prometheus.NewRegistry()
	handler := &echoHandler{registry: reg}
	server := netcore.NewServer(handler,
		netcore.WithServerCapacity(128),
	)

	logger.Section("Listening")
	if err := server.Listen(*addr); err != nil {
		logger.Fatal("failed to listen on %s: %v", *addr, err)
	}
	logger.Success("listening on %s", *addr)

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		logger.Info("metrics on http://%s/metrics", *metricsAddr)
		if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
			logger.Error("metrics server stopped: %v", err)
		}
	}()

	select {}
}
