package broadcast

import (
	"context"
	"log/slog"
	"sync"

	"github.com/pscheid92/activate/internal/domain"
)

// channelState is the per-channel record owned by the Hub. Its lock serializes
// join, leave and publish for the channel; payload is only valid when resolved.
type channelState struct {
	mu       sync.Mutex
	payload  domain.Payload
	resolved bool
	removed  bool
	lastErr  error
}

// ChannelStatus is a point-in-time view of one channel for the admin layer.
type ChannelStatus struct {
	ChannelID    string `json:"visualizerId"`
	Members      int    `json:"members"`
	Content      string `json:"content"`
	Resolved     bool   `json:"resolved"`
	Animating    bool   `json:"animating"`
	CurrentColor string `json:"currentColor,omitempty"`
	LastError    string `json:"lastError,omitempty"`
}

// Hub tracks display clients per channel, serves the initial snapshot, and
// fans administrative publishes out to members. An animation runs for a
// channel exactly while it has members and its cached payload is a pixel map.
type Hub struct {
	resolver  domain.ContentResolver
	transport Transport
	registry  *Registry
	animator  *Animator
	metrics   Metrics

	mu       sync.Mutex
	channels map[string]*channelState
}

// NewHub creates a hub. metrics may be nil.
func NewHub(resolver domain.ContentResolver, transport Transport, animator *Animator, metrics Metrics) *Hub {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Hub{
		resolver:  resolver,
		transport: transport,
		registry:  NewRegistry(),
		animator:  animator,
		metrics:   metrics,
		channels:  make(map[string]*channelState),
	}
}

// lock returns the channel's live state with its lock held. Released states
// are skipped so callers never act on a stale record.
func (h *Hub) lock(channelID string) *channelState {
	for {
		h.mu.Lock()
		st, ok := h.channels[channelID]
		if !ok {
			st = &channelState{}
			h.channels[channelID] = st
		}
		h.mu.Unlock()

		st.mu.Lock()
		if !st.removed {
			return st
		}
		st.mu.Unlock()
	}
}

// OnClientConnect registers the client as a member of the channel and returns
// what it should render right now. Resolution failures are logged and yield the
// none variant; the client stays registered and the failure is not cached.
func (h *Hub) OnClientConnect(ctx context.Context, channelID, clientID string) Snapshot {
	return h.OnClientConnectWith(ctx, channelID, clientID, nil)
}

// OnClientConnectWith is OnClientConnect with a deliver callback that runs
// while the channel is locked, so no publish can overtake the snapshot.
// deliver must not call back into the hub.
func (h *Hub) OnClientConnectWith(ctx context.Context, channelID, clientID string, deliver func(Snapshot)) Snapshot {
	st := h.lock(channelID)

	for !st.resolved {
		st.mu.Unlock()
		payload, err := h.resolver.Resolve(ctx, channelID)

		again := h.lock(channelID)
		if again != st {
			// Removed while resolving; resolve against the fresh state.
			st = again
			continue
		}
		if st.resolved {
			// A publish or another client landed while resolving; it wins.
			break
		}
		if err != nil {
			slog.WarnContext(ctx, "Content resolution failed, serving no content", "channel_id", channelID, "error", err)
			h.metrics.ResolutionFailed()
			st.lastErr = err
			break
		}
		st.payload = payload
		st.resolved = true
		st.lastErr = nil
	}
	defer st.mu.Unlock()

	payload := domain.NoContent()
	if st.resolved {
		payload = st.payload
	}

	h.registry.Join(channelID, clientID)
	snap := Snapshot{Payload: payload}

	if payload.IsAnimation() {
		if !h.animator.Running(channelID) {
			h.startAnimation(ctx, channelID, payload)
		}
		snap.Color, _ = h.animator.Current(channelID)
	}
	if deliver != nil {
		deliver(snap)
	}

	h.reportMembership()
	slog.DebugContext(ctx, "Client joined channel", "channel_id", channelID, "client_id", clientID, "content", payload.Kind().String(), "members", h.registry.MemberCount(channelID))
	return snap
}

// OnClientDisconnect removes the client from the channel and stops the
// channel's animation once nobody is watching.
func (h *Hub) OnClientDisconnect(ctx context.Context, channelID, clientID string) {
	st := h.lock(channelID)
	defer st.mu.Unlock()

	if h.registry.Leave(channelID, clientID) {
		h.stopAnimation(channelID)
	}
	h.releaseIfIdle(channelID, st)

	h.reportMembership()
	slog.DebugContext(ctx, "Client left channel", "channel_id", channelID, "client_id", clientID)
}

// OnClientGone handles a dropped transport: the client leaves every channel it
// had joined, and animations of channels left empty are stopped.
func (h *Hub) OnClientGone(ctx context.Context, clientID string) {
	emptied := h.registry.DisconnectAll(clientID)

	for _, channelID := range emptied {
		st := h.lock(channelID)
		// Another client may have joined between DisconnectAll and the lock.
		if h.registry.MemberCount(channelID) == 0 {
			h.stopAnimation(channelID)
		}
		h.releaseIfIdle(channelID, st)
		st.mu.Unlock()
	}

	h.reportMembership()
	slog.DebugContext(ctx, "Client gone", "client_id", clientID, "emptied_channels", len(emptied))
}

// Publish replaces the channel's payload, sends it to every member and
// reconciles the animation. A pixel-map payload always restarts the cycle
// from its first color. Publishing to a channel without members is legal.
func (h *Hub) Publish(ctx context.Context, channelID string, payload domain.Payload) error {
	st := h.lock(channelID)
	defer st.mu.Unlock()

	st.payload = payload
	st.resolved = true
	st.lastErr = nil

	if err := h.publishContent(channelID, payload); err != nil {
		return err
	}

	if payload.IsAnimation() && h.registry.MemberCount(channelID) > 0 {
		h.startAnimation(ctx, channelID, payload)
	} else {
		h.stopAnimation(channelID)
	}

	slog.InfoContext(ctx, "Content published", "channel_id", channelID, "content", payload.Kind().String(), "members", h.registry.MemberCount(channelID))
	h.releaseIfIdle(channelID, st)
	return nil
}

// PublishChannelRemoved sends the none variant to every member, stops the
// animation and releases the cached state. Members stay registered; the next
// join resolves the channel afresh.
func (h *Hub) PublishChannelRemoved(ctx context.Context, channelID string) error {
	st := h.lock(channelID)
	defer st.mu.Unlock()

	err := h.publishContent(channelID, domain.NoContent())
	h.stopAnimation(channelID)

	h.release(channelID, st)

	slog.InfoContext(ctx, "Channel removed", "channel_id", channelID, "members", h.registry.MemberCount(channelID))
	return err
}

// Status reports the channel's current membership and content state.
// Channels without cached state are reported without creating any.
func (h *Hub) Status(channelID string) ChannelStatus {
	status := ChannelStatus{
		ChannelID: channelID,
		Members:   h.registry.MemberCount(channelID),
		Content:   domain.ContentNone.String(),
	}

	h.mu.Lock()
	_, known := h.channels[channelID]
	h.mu.Unlock()
	if !known {
		return status
	}

	st := h.lock(channelID)
	defer st.mu.Unlock()

	status.Members = h.registry.MemberCount(channelID)
	status.Resolved = st.resolved
	if st.resolved {
		status.Content = st.payload.Kind().String()
	}
	status.CurrentColor, status.Animating = h.animator.Current(channelID)
	if st.lastErr != nil {
		status.LastError = st.lastErr.Error()
	}
	return status
}

// MemberCount returns the number of clients joined to the channel.
func (h *Hub) MemberCount(channelID string) int {
	return h.registry.MemberCount(channelID)
}

// Stop halts every animation. Connected clients are left to their transports.
func (h *Hub) Stop() {
	running := h.animator.RunningCount()
	h.animator.StopAll()
	h.metrics.AnimationsRunning(0)
	slog.Info("Broadcast hub stopped", "stopped_animations", running, "clients", h.registry.ClientCount())
}

// release retires the channel's state; the next caller starts from scratch.
// Callers hold st.mu.
func (h *Hub) release(channelID string, st *channelState) {
	st.removed = true
	h.mu.Lock()
	if h.channels[channelID] == st {
		delete(h.channels, channelID)
	}
	h.mu.Unlock()
}

// releaseIfIdle releases a memberless channel unless it caches content worth
// keeping for the next join. Retained states are bounded by the channels that
// resolve to content; connects to arbitrary identifiers leave nothing behind.
// Callers hold st.mu.
func (h *Hub) releaseIfIdle(channelID string, st *channelState) {
	if h.registry.MemberCount(channelID) > 0 {
		return
	}
	if st.resolved && !st.payload.IsNone() {
		return
	}
	h.release(channelID, st)
}

func (h *Hub) reportMembership() {
	h.metrics.ClientsConnected(h.registry.ClientCount())
	h.metrics.ChannelsWatched(h.registry.ChannelCount())
}

func (h *Hub) publishContent(channelID string, payload domain.Payload) error {
	msg, err := EncodeContentUpdate(channelID, payload)
	if err != nil {
		return err
	}
	h.transport.PublishContent(channelID, msg)
	h.metrics.ContentPublished(payload.Kind().String())
	return nil
}

// startAnimation (re)starts the channel's color cycle. Callers hold the channel lock.
func (h *Hub) startAnimation(ctx context.Context, channelID string, payload domain.Payload) {
	if err := h.animator.Restart(channelID, payload.Colors(), h.colorTick(channelID)); err != nil {
		slog.ErrorContext(ctx, "Failed to start animation", "channel_id", channelID, "error", err)
	} else {
		slog.DebugContext(ctx, "Animation started", "channel_id", channelID, "colors", payload.ColorCount())
	}
	h.metrics.AnimationsRunning(h.animator.RunningCount())
}

// stopAnimation stops the channel's color cycle. Callers hold the channel lock.
func (h *Hub) stopAnimation(channelID string) {
	if !h.animator.Running(channelID) {
		return
	}
	h.animator.Stop(channelID)
	h.metrics.AnimationsRunning(h.animator.RunningCount())
	slog.Debug("Animation stopped", "channel_id", channelID)
}

func (h *Hub) colorTick(channelID string) TickFunc {
	return func(color string) {
		msg, err := EncodeColorUpdate(channelID, color)
		if err != nil {
			slog.Error("Failed to encode color update", "channel_id", channelID, "error", err)
			return
		}
		h.transport.PublishColor(channelID, msg)
		h.metrics.ColorTicked()
	}
}
