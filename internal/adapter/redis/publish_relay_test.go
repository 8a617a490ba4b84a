package redis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pscheid92/activate/internal/domain"
	"github.com/pscheid92/activate/internal/platform/correlation"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type relayedCall struct {
	channelID string
	removed   bool
	payload   domain.Payload
	requestID string
}

type recordingHub struct {
	mu    sync.Mutex
	calls []relayedCall
	err   error
}

func (h *recordingHub) Publish(ctx context.Context, channelID string, payload domain.Payload) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	id, _ := correlation.ID(ctx)
	h.calls = append(h.calls, relayedCall{channelID: channelID, payload: payload, requestID: id})
	return h.err
}

func (h *recordingHub) PublishChannelRemoved(_ context.Context, channelID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, relayedCall{channelID: channelID, removed: true})
	return h.err
}

func (h *recordingHub) snapshot() []relayedCall {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]relayedCall(nil), h.calls...)
}

type recordingCache struct {
	mu          sync.Mutex
	invalidated []string
}

func (c *recordingCache) InvalidateLocal(channelID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated = append(c.invalidated, channelID)
}

func TestPublishRelay_HandleMessage(t *testing.T) {
	hub := &recordingHub{}
	cache := &recordingCache{}
	relay := NewPublishRelay(goredis.NewClient(&goredis.Options{}), hub, cache)

	relay.handleMessage(context.Background(), `{"visualizerId":"lobby","removed":false,"mediaContent":{"mediaType":"image","url":"https://cdn/a.png","originalName":"a.png"}}`)
	relay.handleMessage(context.Background(), `{"visualizerId":"stage","removed":true,"mediaContent":null}`)

	calls := hub.snapshot()
	require.Len(t, calls, 2)
	assert.Equal(t, "lobby", calls[0].channelID)
	assert.Equal(t, domain.ContentStatic, calls[0].payload.Kind())
	assert.Equal(t, "https://cdn/a.png", calls[0].payload.URL())
	assert.True(t, calls[1].removed)
	assert.Equal(t, []string{"lobby", "stage"}, cache.invalidated)
}

func TestPublishRelay_DropsMalformedMessages(t *testing.T) {
	hub := &recordingHub{}
	cache := &recordingCache{}
	relay := NewPublishRelay(goredis.NewClient(&goredis.Options{}), hub, cache)

	relay.handleMessage(context.Background(), `not json`)
	relay.handleMessage(context.Background(), `{"removed":true}`)
	relay.handleMessage(context.Background(), `{"visualizerId":"lobby","mediaContent":{"mediaType":"hologram"}}`)

	assert.Empty(t, hub.snapshot())
	assert.Empty(t, cache.invalidated)
}

func TestPublishRelay_RestoresOnlyWellFormedCorrelationIDs(t *testing.T) {
	hub := &recordingHub{}
	relay := NewPublishRelay(goredis.NewClient(&goredis.Options{}), hub, &recordingCache{})

	relay.handleMessage(context.Background(), `{"visualizerId":"lobby","mediaContent":null,"correlationId":"a1b2c3d4"}`)
	relay.handleMessage(context.Background(), `{"visualizerId":"lobby","mediaContent":null,"correlationId":"bad id\nlevel=ERROR"}`)

	calls := hub.snapshot()
	require.Len(t, calls, 2)
	assert.Equal(t, "a1b2c3d4", calls[0].requestID)
	assert.Empty(t, calls[1].requestID)
}

func TestPublishRelay_HubErrorIsLogged(t *testing.T) {
	hub := &recordingHub{err: errors.New("encode failed")}
	relay := NewPublishRelay(goredis.NewClient(&goredis.Options{}), hub, &recordingCache{})

	relay.handleMessage(context.Background(), `{"visualizerId":"lobby","mediaContent":null}`)
	assert.Len(t, hub.snapshot(), 1)
}

func TestPublishRelay_MultiInstanceInOrder(t *testing.T) {
	client := setupTestClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	hubs := []*recordingHub{{}, {}, {}}
	relays := make([]*PublishRelay, len(hubs))
	for i, hub := range hubs {
		relays[i] = NewPublishRelay(client, hub, &recordingCache{})
		require.NoError(t, relays[i].Start(ctx))
	}

	animation := domain.AnimationContent([]string{"#FF0000", "#00FF00"}, "", "", "RGB")
	require.NoError(t, relays[0].Publish(ctx, "lobby", animation))
	require.NoError(t, relays[1].Publish(ctx, "lobby", domain.NoContent()))
	require.NoError(t, relays[2].PublishChannelRemoved(ctx, "lobby"))

	for _, hub := range hubs {
		require.Eventually(t, func() bool { return len(hub.snapshot()) == 3 }, 5*time.Second, 10*time.Millisecond)
		calls := hub.snapshot()
		assert.Equal(t, domain.ContentAnimation, calls[0].payload.Kind())
		assert.Equal(t, []string{"#FF0000", "#00FF00"}, calls[0].payload.Colors())
		assert.True(t, calls[1].payload.IsNone())
		assert.True(t, calls[2].removed)
	}
}

func TestPublishRelay_StartReportsFailedSubscription(t *testing.T) {
	client := goredis.NewClient(&goredis.Options{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: 200 * time.Millisecond})
	t.Cleanup(func() { _ = client.Close() })
	relay := NewPublishRelay(client, &recordingHub{}, &recordingCache{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := relay.Start(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "subscribe to "+publishChannel)
}
