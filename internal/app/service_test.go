package app

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/pscheid92/activate/internal/broadcast"
	"github.com/pscheid92/activate/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Mock implementations ---

type mockBindingRepo struct {
	findChannelBindingFn func(ctx context.Context, channelID string) (*domain.ChannelBinding, error)
	findMediaFn          func(ctx context.Context, mediaID uuid.UUID) (*domain.MediaRecord, error)
	assignMediaFn        func(ctx context.Context, channelID string, mediaID *uuid.UUID) error
	setActiveFn          func(ctx context.Context, channelID string, active bool) error
	deleteFn             func(ctx context.Context, channelID string) error
}

func (m *mockBindingRepo) FindChannelBinding(ctx context.Context, channelID string) (*domain.ChannelBinding, error) {
	if m.findChannelBindingFn != nil {
		return m.findChannelBindingFn(ctx, channelID)
	}
	return nil, domain.ErrChannelNotFound
}

func (m *mockBindingRepo) FindMedia(ctx context.Context, mediaID uuid.UUID) (*domain.MediaRecord, error) {
	if m.findMediaFn != nil {
		return m.findMediaFn(ctx, mediaID)
	}
	return nil, domain.ErrMediaNotFound
}

func (m *mockBindingRepo) AssignMedia(ctx context.Context, channelID string, mediaID *uuid.UUID) error {
	if m.assignMediaFn != nil {
		return m.assignMediaFn(ctx, channelID, mediaID)
	}
	return nil
}

func (m *mockBindingRepo) SetActive(ctx context.Context, channelID string, active bool) error {
	if m.setActiveFn != nil {
		return m.setActiveFn(ctx, channelID, active)
	}
	return nil
}

func (m *mockBindingRepo) Delete(ctx context.Context, channelID string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, channelID)
	}
	return nil
}

type mockCache struct {
	invalidated []string
	err         error
}

func (m *mockCache) Invalidate(_ context.Context, channelID string) error {
	m.invalidated = append(m.invalidated, channelID)
	return m.err
}

type mockResolver struct {
	resolveFn  func(ctx context.Context, channelID string) (domain.Payload, error)
	freshCalls []string
}

func (m *mockResolver) ResolveFresh(ctx context.Context, channelID string) (domain.Payload, error) {
	m.freshCalls = append(m.freshCalls, channelID)
	return m.Resolve(ctx, channelID)
}

func (m *mockResolver) Resolve(ctx context.Context, channelID string) (domain.Payload, error) {
	if m.resolveFn != nil {
		return m.resolveFn(ctx, channelID)
	}
	return domain.NoContent(), nil
}

type publishedContent struct {
	channelID string
	payload   domain.Payload
	removed   bool
}

type mockPublisher struct {
	published []publishedContent
	err       error
}

func (m *mockPublisher) Publish(_ context.Context, channelID string, payload domain.Payload) error {
	if m.err != nil {
		return m.err
	}
	m.published = append(m.published, publishedContent{channelID: channelID, payload: payload})
	return nil
}

func (m *mockPublisher) PublishChannelRemoved(_ context.Context, channelID string) error {
	if m.err != nil {
		return m.err
	}
	m.published = append(m.published, publishedContent{channelID: channelID, removed: true})
	return nil
}

type mockStatus struct {
	statusFn func(channelID string) broadcast.ChannelStatus
}

func (m *mockStatus) Status(channelID string) broadcast.ChannelStatus {
	if m.statusFn != nil {
		return m.statusFn(channelID)
	}
	return broadcast.ChannelStatus{ChannelID: channelID}
}

type mockPresence struct {
	subscribersFn func(channelID string) (int, error)
}

func (m *mockPresence) Subscribers(channelID string) (int, error) {
	if m.subscribersFn != nil {
		return m.subscribersFn(channelID)
	}
	return 0, nil
}

type testDeps struct {
	repo      *mockBindingRepo
	cache     *mockCache
	resolver  *mockResolver
	publisher *mockPublisher
	status    *mockStatus
	presence  *mockPresence
}

func newTestService() (*Service, *testDeps) {
	d := &testDeps{
		repo:      &mockBindingRepo{},
		cache:     &mockCache{},
		resolver:  &mockResolver{},
		publisher: &mockPublisher{},
		status:    &mockStatus{},
		presence:  &mockPresence{},
	}
	return NewService(d.repo, d.cache, d.resolver, d.publisher, d.status, d.presence), d
}

var rgb = domain.AnimationContent([]string{"#FF0000", "#00FF00", "#0000FF"}, "", "", "RGB")

// --- AssignMedia ---

func TestAssignMedia_PublishesResolvedContent(t *testing.T) {
	svc, d := newTestService()
	mediaID := uuid.New()

	var assigned *uuid.UUID
	d.repo.assignMediaFn = func(_ context.Context, channelID string, id *uuid.UUID) error {
		assert.Equal(t, "lobby", channelID)
		assigned = id
		return nil
	}
	d.resolver.resolveFn = func(_ context.Context, channelID string) (domain.Payload, error) {
		// the cache must already be cleared when the new content is resolved
		assert.Equal(t, []string{"lobby"}, d.cache.invalidated)
		return rgb, nil
	}

	require.NoError(t, svc.AssignMedia(context.Background(), "lobby", mediaID))

	require.NotNil(t, assigned)
	assert.Equal(t, mediaID, *assigned)
	require.Len(t, d.publisher.published, 1)
	assert.Equal(t, "lobby", d.publisher.published[0].channelID)
	assert.Equal(t, rgb, d.publisher.published[0].payload)
}

func TestMutations_ResolveWithoutSharingEarlierLookups(t *testing.T) {
	mutations := map[string]func(svc *Service) error{
		"assign": func(svc *Service) error { return svc.AssignMedia(context.Background(), "lobby", uuid.New()) },
		"clear":  func(svc *Service) error { return svc.ClearBinding(context.Background(), "lobby") },
		"active": func(svc *Service) error { return svc.SetActive(context.Background(), "lobby", false) },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			svc, d := newTestService()

			require.NoError(t, mutate(svc))
			assert.Equal(t, []string{"lobby"}, d.resolver.freshCalls)
		})
	}
}

func TestContent_MayShareLookups(t *testing.T) {
	svc, d := newTestService()

	svc.Content(context.Background(), "lobby")
	assert.Empty(t, d.resolver.freshCalls)
}

func TestAssignMedia_StoreErrorStopsBeforePublish(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"unknown channel", domain.ErrChannelNotFound},
		{"unknown media", domain.ErrMediaNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, d := newTestService()
			d.repo.assignMediaFn = func(context.Context, string, *uuid.UUID) error { return tt.err }

			err := svc.AssignMedia(context.Background(), "lobby", uuid.New())

			assert.ErrorIs(t, err, tt.err)
			assert.Empty(t, d.cache.invalidated)
			assert.Empty(t, d.publisher.published)
		})
	}
}

func TestAssignMedia_ResolveErrorIsReturned(t *testing.T) {
	svc, d := newTestService()
	storeErr := errors.New("store unavailable")
	d.resolver.resolveFn = func(context.Context, string) (domain.Payload, error) {
		return domain.NoContent(), storeErr
	}

	err := svc.AssignMedia(context.Background(), "lobby", uuid.New())

	assert.ErrorIs(t, err, storeErr)
	assert.Empty(t, d.publisher.published)
}

func TestAssignMedia_PublishErrorIsReturned(t *testing.T) {
	svc, d := newTestService()
	relayErr := errors.New("redis down")
	d.publisher.err = relayErr

	err := svc.AssignMedia(context.Background(), "lobby", uuid.New())

	assert.ErrorIs(t, err, relayErr)
}

func TestAssignMedia_CacheErrorDoesNotBlockPublish(t *testing.T) {
	svc, d := newTestService()
	d.cache.err = errors.New("circuit open")

	require.NoError(t, svc.AssignMedia(context.Background(), "lobby", uuid.New()))
	assert.Len(t, d.publisher.published, 1)
}

// --- ClearBinding ---

func TestClearBinding_PublishesNoContent(t *testing.T) {
	svc, d := newTestService()

	var cleared bool
	d.repo.assignMediaFn = func(_ context.Context, _ string, id *uuid.UUID) error {
		cleared = id == nil
		return nil
	}

	require.NoError(t, svc.ClearBinding(context.Background(), "lobby"))

	assert.True(t, cleared)
	require.Len(t, d.publisher.published, 1)
	assert.True(t, d.publisher.published[0].payload.IsNone())
}

// --- SetActive ---

func TestSetActive(t *testing.T) {
	svc, d := newTestService()

	var gotActive bool
	d.repo.setActiveFn = func(_ context.Context, _ string, active bool) error {
		gotActive = active
		return nil
	}
	d.resolver.resolveFn = func(context.Context, string) (domain.Payload, error) { return rgb, nil }

	require.NoError(t, svc.SetActive(context.Background(), "lobby", true))

	assert.True(t, gotActive)
	assert.Equal(t, []string{"lobby"}, d.cache.invalidated)
	require.Len(t, d.publisher.published, 1)
	assert.True(t, d.publisher.published[0].payload.IsAnimation())
}

func TestSetActive_UnknownChannel(t *testing.T) {
	svc, d := newTestService()
	d.repo.setActiveFn = func(context.Context, string, bool) error { return domain.ErrChannelNotFound }

	err := svc.SetActive(context.Background(), "ghost", false)

	assert.ErrorIs(t, err, domain.ErrChannelNotFound)
	assert.Empty(t, d.publisher.published)
}

// --- DeleteChannel ---

func TestDeleteChannel_PublishesRemoval(t *testing.T) {
	svc, d := newTestService()
	resolved := false
	d.resolver.resolveFn = func(context.Context, string) (domain.Payload, error) {
		resolved = true
		return domain.NoContent(), nil
	}

	require.NoError(t, svc.DeleteChannel(context.Background(), "lobby"))

	assert.False(t, resolved)
	assert.Equal(t, []string{"lobby"}, d.cache.invalidated)
	require.Len(t, d.publisher.published, 1)
	assert.True(t, d.publisher.published[0].removed)
}

func TestDeleteChannel_UnknownChannel(t *testing.T) {
	svc, d := newTestService()
	d.repo.deleteFn = func(context.Context, string) error { return domain.ErrChannelNotFound }

	assert.ErrorIs(t, svc.DeleteChannel(context.Background(), "ghost"), domain.ErrChannelNotFound)
	assert.Empty(t, d.publisher.published)
}

func TestDeleteChannel_PublishError(t *testing.T) {
	svc, d := newTestService()
	d.publisher.err = errors.New("redis down")

	assert.Error(t, svc.DeleteChannel(context.Background(), "lobby"))
}

// --- Content / ChannelStatus ---

func TestContent(t *testing.T) {
	svc, d := newTestService()
	d.resolver.resolveFn = func(context.Context, string) (domain.Payload, error) { return rgb, nil }

	assert.Equal(t, rgb, svc.Content(context.Background(), "lobby"))
}

func TestContent_FailureServesNoContent(t *testing.T) {
	svc, d := newTestService()
	d.resolver.resolveFn = func(context.Context, string) (domain.Payload, error) {
		return rgb, errors.New("store unavailable")
	}

	assert.True(t, svc.Content(context.Background(), "lobby").IsNone())
}

func TestChannelStatus(t *testing.T) {
	svc, d := newTestService()
	d.status.statusFn = func(channelID string) broadcast.ChannelStatus {
		return broadcast.ChannelStatus{ChannelID: channelID, Members: 3, Animating: true}
	}
	d.presence.subscribersFn = func(string) (int, error) { return 7, nil }

	status := svc.ChannelStatus(context.Background(), "lobby")

	assert.Equal(t, "lobby", status.ChannelID)
	assert.Equal(t, 3, status.Members)
	assert.True(t, status.Animating)
	require.NotNil(t, status.ClusterSubscribers)
	assert.Equal(t, 7, *status.ClusterSubscribers)
}

func TestChannelStatus_PresenceFailure(t *testing.T) {
	svc, d := newTestService()
	d.presence.subscribersFn = func(string) (int, error) { return 0, errors.New("redis down") }

	status := svc.ChannelStatus(context.Background(), "lobby")

	assert.Equal(t, "lobby", status.ChannelID)
	assert.Nil(t, status.ClusterSubscribers)
}

func TestChannelStatus_WithoutPresence(t *testing.T) {
	d := &mockStatus{}
	svc := NewService(&mockBindingRepo{}, &mockCache{}, &mockResolver{}, &mockPublisher{}, d, nil)

	assert.Nil(t, svc.ChannelStatus(context.Background(), "lobby").ClusterSubscribers)
}
