// Command echoclient connects to an echoserver, sends a handful of
// reliable messages, and prints back whatever the server echoes.
package main

import (
	"flag"
	"fmt"
	"time"

	"github.com/lambdanet/netcore/netcore"
	"github.com/lambdanet/netcore/pkg/logger"
)

const typeGreeting uint16 = netcore.FirstApplicationType

type echoClientHandler struct {
	connected chan struct{}
	done      chan struct{}
	sent      int
	want      int
}

func (h *echoClientHandler) OnConnecting() {
	logger.InfoCyan("connecting...")
}

func (h *echoClientHandler) OnDisconnecting() {
	logger.Info("disconnecting...")
}

func (h *echoClientHandler) OnConnected() {
	logger.Success("handshake complete")
	close(h.connected)
}

func (h *echoClientHandler) OnDisconnected(reason error) {
	logger.Info("disconnected: %v", reason)
}

func (h *echoClientHandler) OnPacketReceived(pkt *netcore.NetworkPacket) {
	logger.Info("echo: %s", string(pkt.Payload))
	h.sent++
	if h.sent >= h.want {
		close(h.done)
	}
}

func (h *echoClientHandler) OnPacketDelivered(pkt *netcore.NetworkPacket) {
	logger.Debug("delivered: type=%d", pkt.Type)
}

func (h *echoClientHandler) OnPacketResent(pkt *netcore.NetworkPacket, retries int) {
	logger.Debug("resending (retry %d)", retries)
}

func (h *echoClientHandler) OnPacketMaxTriesReached(pkt *netcore.NetworkPacket, retries int) {
	logger.Error("giving up after %d retries", retries)
}

func (h *echoClientHandler) OnServerFull() {
	logger.Error("server full, giving up")
	close(h.done)
}

func main() {
	addr := flag.String("addr", "127.0.0.1:9423", "echoserver address")
	count := flag.Int("count", 5, "number of messages to send")
	level := flag.Int("level", logger.LevelInfo, "log level (0=debug .. 4=success)")
	flag.Parse()

	logger.SetLevel(*level)
	logger.Banner("netcore echo client", "1.0.0")

	handler := &echoClientHandler{
		connected: make(chan struct{}),
		done:      make(chan struct{}),
		want:      *count,
	}
	client := netcore.NewClient(handler)
	defer client.Release()

	logger.Section("Connecting")
	if err := client.Connect(*addr); err != nil {
		logger.Fatal("connect failed: %v", err)
	}

	select {
	case <-handler.connected:
	case <-time.After(5 * time.Second):
		logger.Fatal("handshake timed out")
	}

	logger.Section("Sending")
	for i := 0; i < *count; i++ {
		payload := []byte(fmt.Sprintf("hello #%d", i))
		if _, err := client.SendReliable(typeGreeting, payload); err != nil {
			logger.Error("send failed: %v", err)
		}
	}

	select {
	case <-handler.done:
	case <-time.After(10 * time.Second):
		logger.Error("timed out waiting for echoes")
	}

	client.Disconnect()
	logger.Success("done, ping=%dns", client.Statistics().Ping())
}
