// Package inbox serves a user's notifications and keeps their unread count
// cached.
package inbox

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"taskflow/api/internal/models"
	"taskflow/api/internal/repos"
	"taskflow/shared/cachex"
	"taskflow/shared/logx"
	"taskflow/shared/metricsx"
)

var (
	ErrNotFound  = repos.ErrNotFound
	ErrForbidden = errors.New("notification belongs to another user")
)

type Store interface {
	ListForUser(ctx context.Context, userID int64, unreadOnly bool, limit int, offset int) ([]models.Notification, error)
	CountUnread(ctx context.Context, userID int64) (int64, error)
	GetByID(ctx context.Context, notificationID int64) (models.Notification, error)
	MarkRead(ctx context.Context, notificationID int64) (bool, error)
	MarkAllRead(ctx context.Context, userID int64) (int64, error)
}

// Cache is satisfied by *cachex.Client.
type Cache interface {
	GetJSON(ctx context.Context, key string, dest any) (bool, error)
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

type ListOptions struct {
	UnreadOnly bool
	Limit      int
	Offset     int
}

type Service struct {
	store  Store
	cache  Cache
	ttl    time.Duration
	logger logx.Logger
}

// NewService builds the inbox. cache may be nil, in which case every count
// goes to the database.
func NewService(store Store, cache Cache, ttl time.Duration, logger logx.Logger) *Service {
	return &Service{store: store, cache: cache, ttl: ttl, logger: logger}
}

func unreadKey(userID int64) string {
	return cachex.Key("unread", strconv.FormatInt(userID, 10))
}

func (s *Service) List(ctx context.Context, userID int64, opts ListOptions) ([]models.Notification, error) {
	return s.store.ListForUser(ctx, userID, opts.UnreadOnly, opts.Limit, opts.Offset)
}

func (s *Service) UnreadCount(ctx context.Context, userID int64) (int64, error) {
	key := unreadKey(userID)
	if s.cache != nil {
		var cached int64
		hit, err := s.cache.GetJSON(ctx, key, &cached)
		switch {
		case err != nil:
			metricsx.IncUnreadCache("error")
			s.logger.Warn(ctx, "unread_cache_get_failed", "falling back to database",
				slog.Int64("user_id", userID),
				slog.String("error", err.Error()),
			)
		case hit:
			metricsx.IncUnreadCache("hit")
			return cached, nil
		default:
			metricsx.IncUnreadCache("miss")
		}
	}

	count, err := s.store.CountUnread(ctx, userID)
	if err != nil {
		return 0, err
	}
	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, key, count, s.ttl); err != nil {
			s.logger.Warn(ctx, "unread_cache_set_failed", "failed to cache unread count",
				slog.Int64("user_id", userID),
				slog.String("error", err.Error()),
			)
		}
	}
	return count, nil
}

// MarkRead flips one notification to read. Marking an already read
// notification succeeds without writing.
func (s *Service) MarkRead(ctx context.Context, userID int64, notificationID int64) (models.Notification, error) {
	n, err := s.store.GetByID(ctx, notificationID)
	if err != nil {
		return models.Notification{}, err
	}
	if n.RecipientUserID != userID {
		return models.Notification{}, ErrForbidden
	}
	if n.Read {
		return n, nil
	}
	if _, err := s.store.MarkRead(ctx, notificationID); err != nil {
		return models.Notification{}, err
	}
	n.Read = true
	s.invalidate(ctx, userID)
	return n, nil
}

func (s *Service) MarkAllRead(ctx context.Context, userID int64) (int64, error) {
	count, err := s.store.MarkAllRead(ctx, userID)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		s.invalidate(ctx, userID)
	}
	return count, nil
}

// Invalidate drops the cached unread count for userID.
func (s *Service) Invalidate(ctx context.Context, userID int64) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Delete(ctx, unreadKey(userID))
}

func (s *Service) invalidate(ctx context.Context, userID int64) {
	if err := s.Invalidate(ctx, userID); err != nil {
		s.logger.Warn(ctx, "unread_cache_invalidate_failed", "failed to drop cached unread count",
			slog.Int64("user_id", userID),
			slog.String("error", err.Error()),
		)
	}
}
