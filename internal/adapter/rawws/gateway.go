// Package rawws serves display clients over plain gorilla/websocket connections.
//
// Gateway is an actor: one goroutine owns every room and processes commands from
// a channel, so no mutexes guard the maps. Each connection gets its own writer
// goroutine with a bounded send buffer; clients that fall behind are evicted.
package rawws

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/activate/internal/adapter/metrics"
)

const (
	commandTimeout = 5 * time.Second
	stopTimeout    = 10 * time.Second
	commandBuffer  = 256
)

var errGatewayStopped = errors.New("websocket gateway stopped")

type room map[string]*outbox

// gatewayCmd is the command interface for the Gateway actor.
type gatewayCmd interface{ isGatewayCmd() }

type baseGatewayCmd struct{}

func (baseGatewayCmd) isGatewayCmd() {}

type registerCmd struct {
	baseGatewayCmd
	channelID  string
	clientID   string
	connection *websocket.Conn
	errCh      chan error
}

type unregisterCmd struct {
	baseGatewayCmd
	clientID string
}

type sendCmd struct {
	baseGatewayCmd
	clientID string
	messages [][]byte
}

type publishCmd struct {
	baseGatewayCmd
	channelID string
	message   []byte
}

type clientCountCmd struct {
	baseGatewayCmd
	channelID string
	replyCh   chan int
}

type stopCmd struct {
	baseGatewayCmd
}

type client struct {
	channelID string
	outbox    *outbox
}

// Gateway fans messages out to raw WebSocket clients grouped by channel.
// It implements broadcast.Transport.
type Gateway struct {
	cmdCh                chan gatewayCmd
	clock                clockwork.Clock
	rooms                map[string]room
	clients              map[string]client
	wsMetrics            *metrics.WebSocketMetrics
	done                 chan struct{}
	stopTimeout          time.Duration
	maxClientsPerChannel int
}

// NewGateway starts the gateway actor. wsMetrics may be nil.
func NewGateway(clock clockwork.Clock, maxClientsPerChannel int, wsMetrics *metrics.WebSocketMetrics) *Gateway {
	g := &Gateway{
		cmdCh:                make(chan gatewayCmd, commandBuffer),
		clock:                clock,
		rooms:                make(map[string]room),
		clients:              make(map[string]client),
		wsMetrics:            wsMetrics,
		done:                 make(chan struct{}),
		stopTimeout:          stopTimeout,
		maxClientsPerChannel: maxClientsPerChannel,
	}
	go g.run()
	return g
}

// Register adds a connection to a channel's room.
// Returns an error if the room is full; the connection is closed in that case.
func (g *Gateway) Register(channelID, clientID string, conn *websocket.Conn) error {
	errCh := make(chan error, 1)
	if !g.submit(registerCmd{channelID: channelID, clientID: clientID, connection: conn, errCh: errCh}) {
		_ = conn.Close()
		return errGatewayStopped
	}

	timer := g.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case err := <-errCh:
		return err
	case <-timer.Chan():
		return fmt.Errorf("register command timed out after %v", commandTimeout)
	}
}

// Unregister removes the client and closes its connection.
func (g *Gateway) Unregister(clientID string) {
	g.submit(unregisterCmd{clientID: clientID})
}

// Send queues messages for a single client, in order.
func (g *Gateway) Send(clientID string, messages ...[]byte) {
	g.submit(sendCmd{clientID: clientID, messages: messages})
}

func (g *Gateway) PublishContent(channelID string, msg []byte) {
	g.submit(publishCmd{channelID: channelID, message: msg})
}

func (g *Gateway) PublishColor(channelID string, msg []byte) {
	g.submit(publishCmd{channelID: channelID, message: msg})
}

// ClientCount returns the number of connections in a channel's room.
// Returns -1 if the command times out.
func (g *Gateway) ClientCount(channelID string) int {
	replyCh := make(chan int, 1)
	if !g.submit(clientCountCmd{channelID: channelID, replyCh: replyCh}) {
		return -1
	}

	timer := g.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case count := <-replyCh:
		return count
	case <-timer.Chan():
		slog.Warn("ClientCount timed out", "timeout", commandTimeout)
		return -1
	}
}

// Stop closes every connection with a close frame and waits for the actor to exit.
func (g *Gateway) Stop() {
	if !g.submit(stopCmd{}) {
		return
	}

	timeout := g.clock.NewTimer(g.stopTimeout)
	defer timeout.Stop()

	select {
	case <-g.done:
		slog.Info("WebSocket gateway stopped gracefully")
	case <-timeout.Chan():
		slog.Warn("WebSocket gateway stop timeout exceeded", "timeout", g.stopTimeout)
	}
}

// submit hands cmd to the actor. Returns false once the actor has exited.
func (g *Gateway) submit(cmd gatewayCmd) bool {
	select {
	case <-g.done:
		return false
	default:
	}

	select {
	case g.cmdCh <- cmd:
		return true
	case <-g.done:
		return false
	}
}

func (g *Gateway) run() {
	defer close(g.done)
	defer func() {
		if r := recover(); r != nil {
			slog.Error("WebSocket gateway panic recovered", "panic", r)
			g.closeAll("gateway panic")
		}
	}()

	for cmd := range g.cmdCh {
		switch c := cmd.(type) {
		case registerCmd:
			g.handleRegister(c)
		case unregisterCmd:
			g.handleUnregister(c.clientID)
		case sendCmd:
			g.handleSend(c)
		case publishCmd:
			g.handlePublish(c)
		case clientCountCmd:
			c.replyCh <- len(g.rooms[c.channelID])
		case stopCmd:
			g.handleStop()
			return
		default:
			slog.Warn("WebSocket gateway received unknown command type", "command_type", fmt.Sprintf("%T", cmd))
		}
	}
}

func (g *Gateway) handleRegister(c registerCmd) {
	r, exists := g.rooms[c.channelID]
	if !exists {
		r = make(room)
		g.rooms[c.channelID] = r
	}

	if g.maxClientsPerChannel > 0 && len(r) >= g.maxClientsPerChannel {
		slog.Warn("Rejecting client: max clients reached", "channel_id", c.channelID, "max_clients", g.maxClientsPerChannel)
		if len(r) == 0 {
			delete(g.rooms, c.channelID)
		}
		_ = c.connection.Close()
		c.errCh <- fmt.Errorf("max clients per channel (%d) reached", g.maxClientsPerChannel)
		return
	}

	ob := newOutbox(c.connection, g.clock, g.wsMetrics)
	r[c.clientID] = ob
	g.clients[c.clientID] = client{channelID: c.channelID, outbox: ob}

	if g.wsMetrics != nil {
		g.wsMetrics.ActiveConnections.WithLabelValues(metrics.TransportRaw).Inc()
	}

	slog.Debug("Client registered", "channel_id", c.channelID, "client_id", c.clientID, "total_clients", len(r))
	c.errCh <- nil
}

func (g *Gateway) handleUnregister(clientID string) {
	cl, exists := g.clients[clientID]
	if !exists {
		return
	}

	cl.outbox.close("")
	delete(g.clients, clientID)

	if g.wsMetrics != nil {
		g.wsMetrics.ActiveConnections.WithLabelValues(metrics.TransportRaw).Dec()
	}

	r := g.rooms[cl.channelID]
	delete(r, clientID)
	if len(r) == 0 {
		delete(g.rooms, cl.channelID)
	}

	slog.Debug("Client unregistered", "channel_id", cl.channelID, "client_id", clientID, "remaining_clients", len(r))
}

func (g *Gateway) handleSend(c sendCmd) {
	cl, exists := g.clients[c.clientID]
	if !exists {
		return
	}

	for _, msg := range c.messages {
		if !cl.outbox.offer(msg) {
			g.evict(c.clientID, cl.channelID)
			return
		}
	}
}

func (g *Gateway) handlePublish(c publishCmd) {
	var slow []string
	for clientID, ob := range g.rooms[c.channelID] {
		if !ob.offer(c.message) {
			slow = append(slow, clientID)
		}
	}

	for _, clientID := range slow {
		g.evict(clientID, c.channelID)
	}

	if g.wsMetrics != nil {
		g.wsMetrics.MessagesPublished.WithLabelValues(metrics.TransportRaw).Inc()
	}
}

// evict drops a client whose send buffer is full. The connection's read loop
// then fails and reports the disconnect upstream.
func (g *Gateway) evict(clientID, channelID string) {
	slog.Warn("Disconnecting slow client", "channel_id", channelID, "client_id", clientID)
	if g.wsMetrics != nil {
		g.wsMetrics.SlowClientsEvicted.Inc()
	}
	g.handleUnregister(clientID)
}

func (g *Gateway) handleStop() {
	slog.Info("WebSocket gateway shutting down", "channels", len(g.rooms), "total_clients", len(g.clients))
	g.closeAll("Server shutting down")
}

func (g *Gateway) closeAll(reason string) {
	for clientID, cl := range g.clients {
		cl.outbox.close(reason)
		delete(g.clients, clientID)
	}
	g.rooms = make(map[string]room)
	if g.wsMetrics != nil {
		g.wsMetrics.ActiveConnections.WithLabelValues(metrics.TransportRaw).Set(0)
	}
}
