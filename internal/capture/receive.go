package capture

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/banshee-data/signature.capture/internal/serialport"
)

// DefaultLineTimeout bounds the wait for each protocol line.
const DefaultLineTimeout = 10 * time.Second

// LineSource yields one line at a time, or serialport.ErrTimeout when no line
// arrives within timeout.
type LineSource interface {
	ReadLine(ctx context.Context, timeout time.Duration) (string, error)
}

// Receive feeds lines from src into s until the session completes or fails.
// Context cancellation is returned unwrapped so callers can tell an interrupt
// from a protocol failure.
func Receive(ctx context.Context, src LineSource, s *Session, timeout time.Duration) (Frame, error) {
	if timeout <= 0 {
		timeout = DefaultLineTimeout
	}
	for {
		line, err := src.ReadLine(ctx, timeout)
		if err != nil {
			switch {
			case ctx.Err() != nil:
				return Frame{}, ctx.Err()
			case errors.Is(err, serialport.ErrTimeout):
				return Frame{}, &Error{
					Kind: KindTimeout,
					Op:   "receive",
					Err:  err,
				}
			default:
				return Frame{}, newError(KindConnection, "receive", err)
			}
		}

		prev := s.State()
		done, err := s.Feed(line)
		if err != nil {
			return Frame{}, err
		}
		if prev == StateIdle && s.State() == StateCapturing {
			log.Info().Str("serial", s.frame.Serial).Msg("capturing signature")
		}
		if done {
			frame, _ := s.Frame()
			return frame, nil
		}
	}
}
