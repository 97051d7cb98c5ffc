package db

import (
	"context"
	"log/slog"
	"time"
)

const (
	DefaultCleanupInterval = 1 * time.Hour
)

// CleanupService sweeps expired ephemeral rows. It is hygiene only: every
// lookup already filters on expires_at, so correctness never depends on the
// sweep having run.
type CleanupService struct {
	pendingCodes  *PendingCodeRepository
	streamTokens  *StreamTokenRepository
	playTokens    *PlayTokenRepository
	refreshTokens *RefreshTokenRepository
	interval      time.Duration
}

func NewCleanupService(
	pendingCodes *PendingCodeRepository,
	streamTokens *StreamTokenRepository,
	playTokens *PlayTokenRepository,
	refreshTokens *RefreshTokenRepository,
) *CleanupService {
	return &CleanupService{
		pendingCodes:  pendingCodes,
		streamTokens:  streamTokens,
		playTokens:    playTokens,
		refreshTokens: refreshTokens,
		interval:      DefaultCleanupInterval,
	}
}

func (s *CleanupService) Start(ctx context.Context) {
	slog.Info("starting token cleanup service", "component", "cleanup", "interval", s.interval)

	s.runCleanup()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("stopping token cleanup service", "component", "cleanup")
			return
		case <-ticker.C:
			s.runCleanup()
		}
	}
}

func (s *CleanupService) runCleanup() {
	sweep := []struct {
		name string
		fn   func() (int64, error)
	}{
		{"pending activation codes", s.pendingCodes.DeleteExpired},
		{"stream tokens", s.streamTokens.DeleteExpired},
		{"play tokens", s.playTokens.DeleteExpired},
		{"refresh tokens", s.refreshTokens.DeleteExpired},
	}

	for _, target := range sweep {
		deleted, err := target.fn()
		if err != nil {
			slog.Error("error deleting expired rows", "component", "cleanup", "target", target.name, "error", err)
			continue
		}
		if deleted > 0 {
			slog.Info("deleted expired rows", "component", "cleanup", "target", target.name, "count", deleted)
		}
	}
}
