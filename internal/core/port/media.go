package port

import (
	"context"

	"github.com/Wyydra/yamesh/internal/core/domain"
)

// MediaSource acquires local capture tracks.
type MediaSource interface {
	GetLocalMedia(ctx context.Context, constraints domain.MediaConstraints) (*domain.LocalStream, error)
}
