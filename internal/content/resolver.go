// Package content resolves a channel's administrative binding into the payload
// display clients render.
package content

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/pscheid92/activate/internal/domain"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/singleflight"
)

const (
	breakerConsecutiveFailures = 5
	breakerOpenTimeout         = 30 * time.Second
	breakerHalfOpenRequests    = 1
)

// Resolver implements domain.ContentResolver on top of a BindingStore.
// Concurrent resolutions of the same channel share one store round-trip.
type Resolver struct {
	store   domain.BindingStore
	breaker *gobreaker.CircuitBreaker
	group   singleflight.Group
}

func NewResolver(store domain.BindingStore) *Resolver {
	settings := gobreaker.Settings{
		Name:        "binding-store",
		MaxRequests: breakerHalfOpenRequests,
		Timeout:     breakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerConsecutiveFailures
		},
		IsSuccessful: isStoreSuccess,
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("Circuit breaker state changed", "component", name, "from", from.String(), "to", to.String())
		},
	}
	return &Resolver{store: store, breaker: gobreaker.NewCircuitBreaker(settings)}
}

// Resolve returns the current payload for channelID. Missing, inactive and
// unbound channels resolve to the none variant without error; store failures
// and malformed records are returned as errors.
func (r *Resolver) Resolve(ctx context.Context, channelID string) (domain.Payload, error) {
	v, err, _ := r.group.Do(channelID, func() (any, error) {
		return r.resolve(ctx, channelID)
	})
	if err != nil {
		return domain.NoContent(), err
	}
	return v.(domain.Payload), nil
}

// ResolveFresh is Resolve for callers that just wrote the store: it never joins
// a lookup already in flight, since that lookup may have read the old record.
// Later Resolve calls share this lookup instead.
func (r *Resolver) ResolveFresh(ctx context.Context, channelID string) (domain.Payload, error) {
	r.group.Forget(channelID)
	return r.Resolve(ctx, channelID)
}

func (r *Resolver) resolve(ctx context.Context, channelID string) (domain.Payload, error) {
	binding, err := r.findChannelBinding(ctx, channelID)
	if errors.Is(err, domain.ErrChannelNotFound) {
		return domain.NoContent(), nil
	}
	if err != nil {
		return domain.NoContent(), fmt.Errorf("find channel binding %q: %w", channelID, err)
	}

	if !binding.Active || binding.MediaID == nil {
		return domain.NoContent(), nil
	}

	media, err := r.findMedia(ctx, *binding.MediaID)
	if errors.Is(err, domain.ErrMediaNotFound) {
		slog.DebugContext(ctx, "Bound media no longer exists", "channel_id", channelID, "media_id", binding.MediaID.String())
		return domain.NoContent(), nil
	}
	if err != nil {
		return domain.NoContent(), fmt.Errorf("find media %s: %w", binding.MediaID, err)
	}

	return PayloadFor(media)
}

// PayloadFor maps a media record onto its payload variant.
func PayloadFor(media *domain.MediaRecord) (domain.Payload, error) {
	switch {
	case media.Kind.IsStatic():
		return domain.StaticContent(media.URL, media.Kind, media.DisplayName), nil
	case media.Kind == domain.MediaPixelMap:
		return domain.AnimationContent(media.Colors, media.OverlayURL, media.AudioURL, media.DisplayName), nil
	default:
		return domain.NoContent(), fmt.Errorf("media %s: %w: %q", media.ID, domain.ErrUnknownMediaKind, media.Kind)
	}
}

func (r *Resolver) findChannelBinding(ctx context.Context, channelID string) (*domain.ChannelBinding, error) {
	v, err := r.breaker.Execute(func() (any, error) {
		return r.store.FindChannelBinding(ctx, channelID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.ChannelBinding), nil
}

func (r *Resolver) findMedia(ctx context.Context, mediaID uuid.UUID) (*domain.MediaRecord, error) {
	v, err := r.breaker.Execute(func() (any, error) {
		return r.store.FindMedia(ctx, mediaID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.MediaRecord), nil
}

func isStoreSuccess(err error) bool {
	return err == nil ||
		errors.Is(err, domain.ErrChannelNotFound) ||
		errors.Is(err, domain.ErrMediaNotFound)
}
