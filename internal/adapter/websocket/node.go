// Package websocket serves display clients through a Centrifuge node. A client
// subscribes to "visualizer:<id>" for every channel it renders; one connection
// may watch several channels.
package websocket

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/centrifugal/centrifuge"
	"github.com/pscheid92/activate/internal/adapter/metrics"
	"github.com/pscheid92/activate/internal/broadcast"
)

const channelPrefix = "visualizer:"

// Hub is the subset of broadcast.Hub the node drives.
type Hub interface {
	OnClientConnectWith(ctx context.Context, channelID, clientID string, deliver func(broadcast.Snapshot)) broadcast.Snapshot
	OnClientDisconnect(ctx context.Context, channelID, clientID string)
	OnClientGone(ctx context.Context, clientID string)
}

// ChannelName returns the Centrifuge channel carrying a visualizer's updates.
func ChannelName(channelID string) string {
	return channelPrefix + channelID
}

// ChannelID extracts the visualizer id from a Centrifuge channel name.
func ChannelID(channel string) (string, bool) {
	id, ok := strings.CutPrefix(channel, channelPrefix)
	if !ok || id == "" || len(id) > 128 {
		return "", false
	}
	return id, true
}

func NewNode(logLevel string) (*centrifuge.Node, error) {
	conf := centrifuge.Config{LogLevel: parseCentrifugeLogLevel(logLevel), LogHandler: slogHandler}
	node, err := centrifuge.New(conf)
	if err != nil {
		return nil, fmt.Errorf("create centrifuge node: %w", err)
	}
	return node, nil
}

// HandleDisplays routes the node's connection lifecycle into hub. Call it
// before node.Run; the hub's transport may already publish through node.
func HandleDisplays(node *centrifuge.Node, hub Hub, wsMetrics *metrics.WebSocketMetrics) {
	node.OnConnecting(onConnecting)
	node.OnConnect(onConnect(hub, wsMetrics))
}

// WithAnonymousCredentials marks every connection as an anonymous display.
func WithAnonymousCredentials(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := centrifuge.SetCredentials(r.Context(), &centrifuge.Credentials{UserID: ""})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func onConnecting(ctx context.Context, _ centrifuge.ConnectEvent) (centrifuge.ConnectReply, error) {
	if _, ok := centrifuge.GetCredentials(ctx); !ok {
		return centrifuge.ConnectReply{}, centrifuge.DisconnectServerError
	}
	return centrifuge.ConnectReply{}, nil
}

func onConnect(hub Hub, wsMetrics *metrics.WebSocketMetrics) func(client *centrifuge.Client) {
	return func(client *centrifuge.Client) {
		slog.Debug("Display connected", "client_id", client.ID())

		if wsMetrics != nil {
			wsMetrics.ActiveConnections.WithLabelValues(metrics.TransportCentrifuge).Inc()
		}

		// The client context dies with the connection; hub work must outlive it.
		ctx := context.WithoutCancel(client.Context())

		client.OnSubscribe(func(e centrifuge.SubscribeEvent, cb centrifuge.SubscribeCallback) {
			channelID, ok := ChannelID(e.Channel)
			if !ok {
				cb(centrifuge.SubscribeReply{}, centrifuge.ErrorUnknownChannel)
				return
			}
			cb(centrifuge.SubscribeReply{Options: centrifuge.SubscribeOptions{EmitPresence: true}}, nil)

			hub.OnClientConnectWith(ctx, channelID, client.ID(), func(snap broadcast.Snapshot) {
				sendSnapshot(client, channelID, snap)
			})
		})

		client.OnUnsubscribe(func(e centrifuge.UnsubscribeEvent) {
			if channelID, ok := ChannelID(e.Channel); ok {
				hub.OnClientDisconnect(ctx, channelID, client.ID())
			}
		})

		client.OnDisconnect(func(e centrifuge.DisconnectEvent) {
			slog.Debug("Display disconnected", "client_id", client.ID(), "reason", e.Reason)
			hub.OnClientGone(ctx, client.ID())
			if wsMetrics != nil {
				wsMetrics.ActiveConnections.WithLabelValues(metrics.TransportCentrifuge).Dec()
			}
		})
	}
}

func sendSnapshot(client *centrifuge.Client, channelID string, snap broadcast.Snapshot) {
	msgs, err := snap.Messages(channelID)
	if err != nil {
		slog.Error("Failed to encode snapshot", "channel_id", channelID, "error", err)
		return
	}
	for _, msg := range msgs {
		if err := client.Send(msg); err != nil {
			slog.Debug("Failed to send snapshot", "channel_id", channelID, "client_id", client.ID(), "error", err)
			return
		}
	}
}

// SetupRedisPresence keeps subscriber presence in Redis so every instance can
// count displays cluster-wide. Publications stay on the in-memory broker: each
// instance's hub receives relayed updates and publishes to its own clients.
func SetupRedisPresence(node *centrifuge.Node, redisAddr string) error {
	shard, err := centrifuge.NewRedisShard(node, centrifuge.RedisShardConfig{Address: redisAddr})
	if err != nil {
		return fmt.Errorf("create redis shard: %w", err)
	}

	pmConfig := centrifuge.RedisPresenceManagerConfig{Prefix: "activate", Shards: []*centrifuge.RedisShard{shard}}
	presenceManager, err := centrifuge.NewRedisPresenceManager(node, pmConfig)
	if err != nil {
		return fmt.Errorf("create redis presence manager: %w", err)
	}
	node.SetPresenceManager(presenceManager)

	return nil
}

// PresenceCounter reports Centrifuge subscribers of a channel across all instances.
type PresenceCounter struct {
	node *centrifuge.Node
}

func NewPresenceCounter(node *centrifuge.Node) *PresenceCounter {
	return &PresenceCounter{node: node}
}

func (p *PresenceCounter) Subscribers(channelID string) (int, error) {
	stats, err := p.node.PresenceStats(ChannelName(channelID))
	if err != nil {
		return 0, fmt.Errorf("presence stats for %s: %w", channelID, err)
	}
	return stats.NumClients, nil
}

func slogHandler(entry centrifuge.LogEntry) {
	attrs := make([]any, 0, len(entry.Fields)*2)
	for k, v := range entry.Fields {
		attrs = append(attrs, k, v)
	}
	switch entry.Level {
	case centrifuge.LogLevelDebug, centrifuge.LogLevelTrace:
		slog.Debug(entry.Message, attrs...)
	case centrifuge.LogLevelInfo:
		slog.Info(entry.Message, attrs...)
	case centrifuge.LogLevelWarn:
		slog.Warn(entry.Message, attrs...)
	case centrifuge.LogLevelError:
		slog.Error(entry.Message, attrs...)
	case centrifuge.LogLevelNone:
	}
}

func parseCentrifugeLogLevel(level string) centrifuge.LogLevel {
	switch level {
	case "debug":
		return centrifuge.LogLevelDebug
	case "warn":
		return centrifuge.LogLevelWarn
	case "error":
		return centrifuge.LogLevelError
	default:
		return centrifuge.LogLevelInfo
	}
}
