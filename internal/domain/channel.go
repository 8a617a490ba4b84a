package domain

import (
	"context"

	"github.com/google/uuid"
)

// ChannelBinding is the administrative record behind a channel (an "activator").
type ChannelBinding struct {
	ChannelID   string     `json:"channel_id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Active      bool       `json:"active"`
	MediaID     *uuid.UUID `json:"media_id,omitempty"`
}

// MediaRecord is the stored metadata of an uploaded media item.
type MediaRecord struct {
	ID          uuid.UUID `json:"id"`
	Kind        MediaKind `json:"kind"`
	URL         string    `json:"url"`
	DisplayName string    `json:"display_name"`
	Colors      []string  `json:"colors,omitempty"`
	OverlayURL  string    `json:"overlay_url,omitempty"`
	AudioURL    string    `json:"audio_url,omitempty"`
}

// BindingStore is the read-only record lookup the content resolver depends on.
// Implementations return ErrChannelNotFound and ErrMediaNotFound for missing records.
type BindingStore interface {
	FindChannelBinding(ctx context.Context, channelID string) (*ChannelBinding, error)
	FindMedia(ctx context.Context, mediaID uuid.UUID) (*MediaRecord, error)
}

// BindingRepository adds the administrative mutations to the lookup.
type BindingRepository interface {
	BindingStore
	AssignMedia(ctx context.Context, channelID string, mediaID *uuid.UUID) error
	SetActive(ctx context.Context, channelID string, active bool) error
	Delete(ctx context.Context, channelID string) error
}

// BindingCache drops cached lookups after a mutation.
type BindingCache interface {
	Invalidate(ctx context.Context, channelID string) error
}

// ContentResolver turns a channel into its current payload.
type ContentResolver interface {
	Resolve(ctx context.Context, channelID string) (Payload, error)
}

// ContentPublisher fans administrative changes out to connected display clients.
type ContentPublisher interface {
	Publish(ctx context.Context, channelID string, payload Payload) error
	PublishChannelRemoved(ctx context.Context, channelID string) error
}
