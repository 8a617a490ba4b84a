package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/pscheid92/activate/internal/broadcast"
	"github.com/pscheid92/activate/internal/domain"
)

// StatusReader reports live channel state. Satisfied by *broadcast.Hub.
type StatusReader interface {
	Status(channelID string) broadcast.ChannelStatus
}

// PresenceCounter counts a channel's subscribers across every instance.
type PresenceCounter interface {
	Subscribers(channelID string) (int, error)
}

// ContentResolver resolves channel content. Satisfied by *content.Resolver.
// ResolveFresh must not reuse a lookup that started before the caller's last write.
type ContentResolver interface {
	domain.ContentResolver
	ResolveFresh(ctx context.Context, channelID string) (domain.Payload, error)
}

// ChannelStatus is the local hub state plus, when known, the cluster-wide
// subscriber count.
type ChannelStatus struct {
	broadcast.ChannelStatus
	ClusterSubscribers *int `json:"clusterSubscribers,omitempty"`
}

// Service orchestrates the administrative use cases.
type Service struct {
	bindings  domain.BindingRepository
	cache     domain.BindingCache
	resolver  ContentResolver
	publisher domain.ContentPublisher
	status    StatusReader
	presence  PresenceCounter
}

// NewService creates the application layer service. presence may be nil.
func NewService(bindings domain.BindingRepository, cache domain.BindingCache, resolver ContentResolver, publisher domain.ContentPublisher, status StatusReader, presence PresenceCounter) *Service {
	return &Service{
		bindings:  bindings,
		cache:     cache,
		resolver:  resolver,
		publisher: publisher,
		status:    status,
		presence:  presence,
	}
}

// AssignMedia binds mediaID to the channel and publishes the resulting content.
func (s *Service) AssignMedia(ctx context.Context, channelID string, mediaID uuid.UUID) error {
	if err := s.bindings.AssignMedia(ctx, channelID, &mediaID); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Media assigned", "channel_id", channelID, "media_id", mediaID.String())
	return s.republish(ctx, channelID)
}

// ClearBinding removes the channel's media so displays show nothing.
func (s *Service) ClearBinding(ctx context.Context, channelID string) error {
	if err := s.bindings.AssignMedia(ctx, channelID, nil); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Media binding cleared", "channel_id", channelID)
	return s.republish(ctx, channelID)
}

// SetActive activates or deactivates a channel. Inactive channels resolve to no content.
func (s *Service) SetActive(ctx context.Context, channelID string, active bool) error {
	if err := s.bindings.SetActive(ctx, channelID, active); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Channel activation changed", "channel_id", channelID, "active", active)
	return s.republish(ctx, channelID)
}

// DeleteChannel removes the channel record and tells connected displays it is gone.
func (s *Service) DeleteChannel(ctx context.Context, channelID string) error {
	if err := s.bindings.Delete(ctx, channelID); err != nil {
		return err
	}
	s.invalidate(ctx, channelID)

	if err := s.publisher.PublishChannelRemoved(ctx, channelID); err != nil {
		slog.ErrorContext(ctx, "Failed to publish channel removal", "channel_id", channelID, "error", err)
		return fmt.Errorf("publish channel removal: %w", err)
	}
	slog.InfoContext(ctx, "Channel deleted", "channel_id", channelID)
	return nil
}

// Content returns the channel's current content for the public endpoint.
// Lookup failures degrade to no content.
func (s *Service) Content(ctx context.Context, channelID string) domain.Payload {
	payload, err := s.resolver.Resolve(ctx, channelID)
	if err != nil {
		slog.WarnContext(ctx, "Content lookup failed, serving no content", "channel_id", channelID, "error", err)
		return domain.NoContent()
	}
	return payload
}

// ChannelStatus returns the live state of the channel. A failed presence
// lookup leaves ClusterSubscribers unset.
func (s *Service) ChannelStatus(ctx context.Context, channelID string) ChannelStatus {
	status := ChannelStatus{ChannelStatus: s.status.Status(channelID)}
	if s.presence == nil {
		return status
	}

	n, err := s.presence.Subscribers(channelID)
	if err != nil {
		slog.WarnContext(ctx, "Presence lookup failed", "channel_id", channelID, "error", err)
		return status
	}
	status.ClusterSubscribers = &n
	return status
}

func (s *Service) republish(ctx context.Context, channelID string) error {
	s.invalidate(ctx, channelID)

	payload, err := s.resolver.ResolveFresh(ctx, channelID)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to resolve content after update", "channel_id", channelID, "error", err)
		return fmt.Errorf("resolve content: %w", err)
	}

	if err := s.publisher.Publish(ctx, channelID, payload); err != nil {
		slog.ErrorContext(ctx, "Failed to publish content update", "channel_id", channelID, "error", err)
		return fmt.Errorf("publish content: %w", err)
	}
	return nil
}

// invalidate is best effort: a failed Redis delete leaves the entry to expire on its TTL.
func (s *Service) invalidate(ctx context.Context, channelID string) {
	if err := s.cache.Invalidate(ctx, channelID); err != nil {
		slog.WarnContext(ctx, "Failed to invalidate binding cache", "channel_id", channelID, "error", err)
	}
}
