package audit

import (
	"context"

	"github.com/rs/zerolog"
)

// FallbackSink writes to a primary sink, falling through to a secondary
// channel when the primary fails, and to the log as a last resort. It
// never returns an error: standalone audit writes are best-effort and
// must not mask the business failure that triggered them.
type FallbackSink struct {
	Primary   Sink
	Secondary Sink
	Logger    zerolog.Logger
}

func (s *FallbackSink) Write(ctx context.Context, e *Entry) error {
	err := s.Primary.Write(ctx, e)
	if err == nil {
		return nil
	}

	if s.Secondary != nil {
		if fbErr := s.Secondary.Write(ctx, e); fbErr == nil {
			s.Logger.Warn().Err(err).
				Str("action", e.Action).
				Str("resource", e.ResourceType).
				Msg("audit write failed, entry routed to fallback channel")
			return nil
		}
	}

	s.Logger.Error().Err(err).
		Str("action", e.Action).
		Str("resource", e.ResourceType).
		Str("resource_id", e.ResourceID).
		Str("description", e.Description).
		Msg("audit write failed on all channels, entry logged only")
	return nil
}
