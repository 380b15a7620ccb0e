package service

import (
	"context"
	"errors"

	"github.com/Wyydra/yamesh/internal/core/domain"
	"github.com/Wyydra/yamesh/internal/core/port"
	"github.com/rs/zerolog/log"
)

// AcquireLocalMedia asks src for the requested kinds and degrades to
// audio-only, then video-only, then no media at all. The returned stream is
// never nil. The error is non-nil whenever less than requested was obtained;
// callers may log it and carry on receive-only.
func AcquireLocalMedia(ctx context.Context, src port.MediaSource, want domain.MediaConstraints) (*domain.LocalStream, error) {
	attempts := []domain.MediaConstraints{want}
	if want.Audio && want.Video {
		attempts = append(attempts,
			domain.MediaConstraints{Audio: true},
			domain.MediaConstraints{Video: true},
		)
	}

	var errs []error
	for i, c := range attempts {
		if !c.Audio && !c.Video {
			break
		}
		stream, err := src.GetLocalMedia(ctx, c)
		if err == nil && stream != nil {
			if i == 0 {
				return stream, nil
			}
			log.Warn().Bool("audio", c.Audio).Bool("video", c.Video).Msg("Using degraded local media")
			return stream, domain.WrapError("acquire media", errors.Join(errs...), "degraded")
		}
		if err == nil {
			err = domain.ErrNoMedia
		}
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
	}

	empty := &domain.LocalStream{ID: "empty"}
	if len(errs) == 0 {
		return empty, nil
	}
	log.Warn().Err(errors.Join(errs...)).Msg("No local media available, continuing receive-only")
	return empty, domain.WrapError("acquire media", errors.Join(append(errs, domain.ErrNoMedia)...), "receive-only")
}
