package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pscheid92/activate/internal/domain"
)

const foreignKeyViolation = "23503"

const (
	findChannelBindingSQL = `
SELECT visualizer_id, name, description, is_active, media_id
FROM activators
WHERE visualizer_id = $1`

	findMediaSQL = `
SELECT id, media_type, url, original_name, colors, logo_url, audio_url
FROM media
WHERE id = $1`

	assignMediaSQL = `
UPDATE activators SET media_id = $2, updated_at = NOW()
WHERE visualizer_id = $1`

	setActiveSQL = `
UPDATE activators SET is_active = $2, updated_at = NOW()
WHERE visualizer_id = $1`

	deleteChannelSQL = `
DELETE FROM activators
WHERE visualizer_id = $1`
)

// BindingRepo implements domain.BindingRepository on PostgreSQL.
type BindingRepo struct {
	pool *pgxpool.Pool
}

func NewBindingRepo(pool *pgxpool.Pool) *BindingRepo {
	return &BindingRepo{pool: pool}
}

func (r *BindingRepo) FindChannelBinding(ctx context.Context, channelID string) (*domain.ChannelBinding, error) {
	var (
		binding domain.ChannelBinding
		mediaID pgtype.UUID
	)
	err := r.pool.QueryRow(ctx, findChannelBindingSQL, channelID).
		Scan(&binding.ChannelID, &binding.Name, &binding.Description, &binding.Active, &mediaID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrChannelNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get channel binding: %w", err)
	}

	if mediaID.Valid {
		id := uuid.UUID(mediaID.Bytes)
		binding.MediaID = &id
	}
	return &binding, nil
}

func (r *BindingRepo) FindMedia(ctx context.Context, mediaID uuid.UUID) (*domain.MediaRecord, error) {
	var (
		media     domain.MediaRecord
		mediaType string
		logoURL   pgtype.Text
		audioURL  pgtype.Text
	)
	err := r.pool.QueryRow(ctx, findMediaSQL, mediaID).
		Scan(&media.ID, &mediaType, &media.URL, &media.DisplayName, &media.Colors, &logoURL, &audioURL)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrMediaNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get media: %w", err)
	}

	// Unknown kinds are kept as-is; the resolver rejects them as malformed.
	media.Kind = domain.MediaKind(mediaType)
	media.OverlayURL = logoURL.String
	media.AudioURL = audioURL.String
	return &media, nil
}

// AssignMedia binds mediaID to the channel; nil clears the binding.
func (r *BindingRepo) AssignMedia(ctx context.Context, channelID string, mediaID *uuid.UUID) error {
	var arg pgtype.UUID
	if mediaID != nil {
		arg = pgtype.UUID{Bytes: *mediaID, Valid: true}
	}

	tag, err := r.pool.Exec(ctx, assignMediaSQL, channelID, arg)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
			return domain.ErrMediaNotFound
		}
		return fmt.Errorf("failed to assign media: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrChannelNotFound
	}
	return nil
}

func (r *BindingRepo) SetActive(ctx context.Context, channelID string, active bool) error {
	tag, err := r.pool.Exec(ctx, setActiveSQL, channelID, active)
	if err != nil {
		return fmt.Errorf("failed to set channel active: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrChannelNotFound
	}
	return nil
}

func (r *BindingRepo) Delete(ctx context.Context, channelID string) error {
	tag, err := r.pool.Exec(ctx, deleteChannelSQL, channelID)
	if err != nil {
		return fmt.Errorf("failed to delete channel: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrChannelNotFound
	}
	return nil
}
