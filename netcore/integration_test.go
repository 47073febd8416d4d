package netcore

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingClientHandler captures lifecycle transitions and delivered
// packets for assertions, guarded by a mutex since every callback fires
// from the ClientUDP's own goroutines.
type recordingClientHandler struct {
	mu         sync.Mutex
	connected  bool
	fullSeen   bool
	received   [][]byte
	delivered  int
	resent     int
	gaveUp     int
}

func (h *recordingClientHandler) OnConnecting()    {}
func (h *recordingClientHandler) OnDisconnecting() {}
func (h *recordingClientHandler) OnConnected() {
	h.mu.Lock()
	h.connected = true
	h.mu.Unlock()
}
func (h *recordingClientHandler) OnDisconnected(reason error) {
	h.mu.Lock()
	h.connected = false
	h.mu.Unlock()
}
func (h *recordingClientHandler) OnPacketReceived(pkt *NetworkPacket) {
	h.mu.Lock()
	cp := append([]byte(nil), pkt.Payload...)
	h.received = append(h.received, cp)
	h.mu.Unlock()
}
func (h *recordingClientHandler) OnPacketDelivered(pkt *NetworkPacket) {
	h.mu.Lock()
	h.delivered++
	h.mu.Unlock()
}
func (h *recordingClientHandler) OnPacketResent(pkt *NetworkPacket, retries int) {
	h.mu.Lock()
	h.resent++
	h.mu.Unlock()
}
func (h *recordingClientHandler) OnPacketMaxTriesReached(pkt *NetworkPacket, retries int) {
	h.mu.Lock()
	h.gaveUp++
	h.mu.Unlock()
}
func (h *recordingClientHandler) OnServerFull() {
	h.mu.Lock()
	h.fullSeen = true
	h.mu.Unlock()
}

func (h *recordingClientHandler) isConnected() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.connected
}

func (h *recordingClientHandler) receivedCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.received)
}

// recordingServerHandler echoes every application message it receives
// back to the sender, and counts connects/disconnects.
type recordingServerHandler struct {
	mu         sync.Mutex
	connects   int
	disconnects int
	server     *ServerUDP
}

func (h *recordingServerHandler) OnClientConnecting(remote *RemoteClient)    {}
func (h *recordingServerHandler) OnClientDisconnecting(remote *RemoteClient) {}
func (h *recordingServerHandler) OnClientConnected(remote *RemoteClient) {
	h.mu.Lock()
	h.connects++
	h.mu.Unlock()
}
func (h *recordingServerHandler) OnClientDisconnected(remote *RemoteClient, reason error) {
	h.mu.Lock()
	h.disconnects++
	h.mu.Unlock()
}
func (h *recordingServerHandler) OnPacketReceived(remote *RemoteClient, pkt *NetworkPacket) {
	_, _ = remote.manager.EnqueueReliable(pkt.Type, pkt.Payload)
}
func (h *recordingServerHandler) OnPacketDelivered(remote *RemoteClient, pkt *NetworkPacket)              {}
func (h *recordingServerHandler) OnPacketResent(remote *RemoteClient, pkt *NetworkPacket, retries int)    {}
func (h *recordingServerHandler) OnPacketMaxTriesReached(remote *RemoteClient, pkt *NetworkPacket, retries int) {
}

func (h *recordingServerHandler) connectCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.connects
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	require.True(t, cond(), "condition not met within %s", timeout)
}

func TestHandshakeAndEchoOverFakeNetwork(t *testing.T) {
	network := newFakeNetwork()
	serverSocket := network.newSocket("server:9000")
	clientSocket := network.newSocket("client:1")

	serverHandler := &recordingServerHandler{}
	server := NewServer(serverHandler, WithTickInterval(5*time.Millisecond))
	require.NoError(t, server.listenOn(serverSocket))
	defer server.Close()
	serverHandler.server = server

	clientHandler := &recordingClientHandler{}
	client := NewClient(clientHandler, WithTickInterval(5*time.Millisecond))
	require.NoError(t, client.connectVia(clientSocket, fakeAddr("server:9000")))
	defer client.Release()

	waitFor(t, 2*time.Second, clientHandler.isConnected)
	assert.Equal(t, StateConnected, client.State())
	assert.Equal(t, 1, serverHandler.connectCount())

	uid, err := client.SendReliable(FirstApplicationType, []byte("ping"))
	require.NoError(t, err)
	assert.NotZero(t, uid)

	waitFor(t, 2*time.Second, func() bool { return clientHandler.receivedCount() > 0 })

	clientHandler.mu.Lock()
	got := clientHandler.received[0]
	clientHandler.mu.Unlock()
	assert.Equal(t, []byte("ping"), got)

	waitFor(t, 2*time.Second, func() bool {
		clientHandler.mu.Lock()
		defer clientHandler.mu.Unlock()
		return clientHandler.delivered > 0
	})
}

func TestServerFullRejectsBeyondCapacity(t *testing.T) {
	network := newFakeNetwork()
	serverSocket := network.newSocket("server:9100")

	serverHandler := &recordingServerHandler{}
	server := NewServer(serverHandler, WithTickInterval(5*time.Millisecond), WithServerCapacity(1))
	require.NoError(t, server.listenOn(serverSocket))
	defer server.Close()

	h1 := &recordingClientHandler{}
	c1 := NewClient(h1, WithTickInterval(5*time.Millisecond))
	require.NoError(t, c1.connectVia(network.newSocket("client:1"), fakeAddr("server:9100")))
	defer c1.Release()
	waitFor(t, 2*time.Second, h1.isConnected)

	h2 := &recordingClientHandler{}
	c2 := NewClient(h2, WithTickInterval(5*time.Millisecond))
	require.NoError(t, c2.connectVia(network.newSocket("client:2"), fakeAddr("server:9100")))
	defer c2.Release()

	waitFor(t, 2*time.Second, func() bool {
		h2.mu.Lock()
		defer h2.mu.Unlock()
		return h2.fullSeen
	})
	assert.False(t, h2.isConnected())
}

func TestReliableDeliverySurvivesSimulatedLoss(t *testing.T) {
	network := newFakeNetwork()
	serverSocket := network.newSocket("server:9200")
	clientSocket := network.newSocket("client:1")

	var dropped int
	var mu sync.Mutex
	clientSocket.setDrop(func(from, to net.Addr) bool {
		mu.Lock()
		defer mu.Unlock()
		if dropped < 2 {
			dropped++
			return true
		}
		return false
	})

	serverHandler := &recordingServerHandler{}
	server := NewServer(serverHandler, WithTickInterval(5*time.Millisecond))
	require.NoError(t, server.listenOn(serverSocket))
	defer server.Close()

	clientHandler := &recordingClientHandler{}
	client := NewClient(clientHandler, WithTickInterval(5*time.Millisecond), WithMaxRetries(20))
	require.NoError(t, client.connectVia(clientSocket, fakeAddr("server:9200")))
	defer client.Release()

	waitFor(t, 3*time.Second, clientHandler.isConnected)

	_, err := client.SendReliable(FirstApplicationType, []byte("important"))
	require.NoError(t, err)

	waitFor(t, 3*time.Second, func() bool { return clientHandler.receivedCount() > 0 })
}
