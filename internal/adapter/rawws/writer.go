package rawws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/activate/internal/adapter/metrics"
)

const (
	writeDeadline = 5 * time.Second
	pingInterval  = 30 * time.Second

	// maxMissedPongs is how many ping rounds a display may stay silent
	// before it is treated as gone.
	maxMissedPongs = 3
	pongDeadline   = maxMissedPongs * pingInterval

	outboxSize = 32
)

// outbox serializes every write to one display connection. While the loop
// goroutine runs it is the only writer; close writes the close frame only
// after the loop has exited.
type outbox struct {
	conn    *websocket.Conn
	clock   clockwork.Clock
	metrics *metrics.WebSocketMetrics

	queue chan []byte
	done  chan struct{}
	once  sync.Once
	wg    sync.WaitGroup

	mu       sync.Mutex
	lastPong time.Time
}

func newOutbox(conn *websocket.Conn, clock clockwork.Clock, wsMetrics *metrics.WebSocketMetrics) *outbox {
	o := &outbox{
		conn:     conn,
		clock:    clock,
		metrics:  wsMetrics,
		queue:    make(chan []byte, outboxSize),
		done:     make(chan struct{}),
		lastPong: clock.Now(),
	}
	_ = conn.SetReadDeadline(clock.Now().Add(pongDeadline))
	conn.SetPongHandler(func(string) error {
		o.pong()
		return nil
	})
	o.wg.Go(o.loop)
	return o
}

// offer queues msg without blocking. False means the display is not
// draining its queue and should be dropped.
func (o *outbox) offer(msg []byte) bool {
	select {
	case o.queue <- msg:
		return true
	default:
		return false
	}
}

func (o *outbox) loop() {
	ticker := o.clock.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-o.done:
			return
		case msg := <-o.queue:
			if !o.write(msg) {
				return
			}
		case <-ticker.Chan():
			if o.unresponsive() {
				if o.metrics != nil {
					o.metrics.UnresponsiveDisconnects.Inc()
				}
				_ = o.conn.Close()
				return
			}
			if !o.ping() {
				return
			}
		}
	}
}

func (o *outbox) write(msg []byte) bool {
	start := o.clock.Now()
	_ = o.conn.SetWriteDeadline(start.Add(writeDeadline))
	if err := o.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		return false
	}
	if o.metrics != nil {
		o.metrics.SendDuration.Observe(o.clock.Since(start).Seconds())
	}
	return true
}

func (o *outbox) ping() bool {
	_ = o.conn.SetWriteDeadline(o.clock.Now().Add(writeDeadline))
	if err := o.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		if o.metrics != nil {
			o.metrics.PingFailures.Inc()
		}
		return false
	}
	return true
}

func (o *outbox) pong() {
	now := o.clock.Now()
	_ = o.conn.SetReadDeadline(now.Add(pongDeadline))

	o.mu.Lock()
	o.lastPong = now
	o.mu.Unlock()
}

// unresponsive reports whether the display has not answered a ping within
// pongDeadline.
func (o *outbox) unresponsive() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.clock.Since(o.lastPong) >= pongDeadline
}

// close stops the loop and closes the connection. A non-empty reason is sent
// to the display in a normal-closure frame first. Safe to call repeatedly;
// only the first call has an effect.
func (o *outbox) close(reason string) {
	o.once.Do(func() {
		close(o.done)
		if reason == "" {
			// Unblocks a write stuck on a dead peer.
			_ = o.conn.Close()
			return
		}

		o.wg.Wait()
		_ = o.conn.SetWriteDeadline(o.clock.Now().Add(writeDeadline))
		_ = o.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason))
		_ = o.conn.Close()
	})
	o.wg.Wait()
}
