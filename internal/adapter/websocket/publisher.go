package websocket

import (
	"log/slog"

	"github.com/centrifugal/centrifuge"
	"github.com/pscheid92/activate/internal/adapter/metrics"
)

// Publisher delivers hub messages to Centrifuge subscribers.
// It implements broadcast.Transport.
type Publisher struct {
	node      *centrifuge.Node
	wsMetrics *metrics.WebSocketMetrics
}

func NewPublisher(node *centrifuge.Node, wsMetrics *metrics.WebSocketMetrics) *Publisher {
	return &Publisher{node: node, wsMetrics: wsMetrics}
}

func (p *Publisher) PublishContent(channelID string, msg []byte) {
	p.publish(channelID, msg)
}

func (p *Publisher) PublishColor(channelID string, msg []byte) {
	p.publish(channelID, msg)
}

func (p *Publisher) publish(channelID string, msg []byte) {
	channel := ChannelName(channelID)
	if _, err := p.node.Publish(channel, msg); err != nil {
		slog.Warn("Failed to publish to channel", "channel", channel, "error", err)
		return
	}

	if p.wsMetrics != nil {
		p.wsMetrics.MessagesPublished.WithLabelValues(metrics.TransportCentrifuge).Inc()
	}
}
