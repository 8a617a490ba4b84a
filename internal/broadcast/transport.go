package broadcast

// Transport delivers encoded messages to every client joined to a channel.
// Delivery is fire and forget: an empty channel is a no-op, not an error.
// Per-client delivery of a Snapshot is done by the transport that accepted the client.
type Transport interface {
	PublishContent(channelID string, msg []byte)
	PublishColor(channelID string, msg []byte)
}

// MultiTransport fans every delivery out to several transports.
type MultiTransport []Transport

func (m MultiTransport) PublishContent(channelID string, msg []byte) {
	for _, t := range m {
		t.PublishContent(channelID, msg)
	}
}

func (m MultiTransport) PublishColor(channelID string, msg []byte) {
	for _, t := range m {
		t.PublishColor(channelID, msg)
	}
}

// Metrics receives hub activity. Implemented by the Prometheus adapter.
type Metrics interface {
	ClientsConnected(n int)
	ChannelsWatched(n int)
	AnimationsRunning(n int)
	ContentPublished(kind string)
	ColorTicked()
	ResolutionFailed()
}

type noopMetrics struct{}

func (noopMetrics) ClientsConnected(int)    {}
func (noopMetrics) ChannelsWatched(int)     {}
func (noopMetrics) AnimationsRunning(int)   {}
func (noopMetrics) ContentPublished(string) {}
func (noopMetrics) ColorTicked()            {}
func (noopMetrics) ResolutionFailed()       {}
