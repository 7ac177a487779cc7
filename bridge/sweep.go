// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package bridge

import (
	"context"
	"net/http"
	"time"

	"github.com/z5labs/tether/correlation"
	"github.com/z5labs/tether/internal/slogfield"
)

func (s *Server) sweep(ctx context.Context) {
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		s.expire(ctx, s.now())
	}
}

// expire answers every entry past its deadline at now with 504 Gateway Timeout.
func (s *Server) expire(ctx context.Context, now time.Time) int {
	expired := s.registry.Sweep(now)
	for _, e := range expired {
		ectx := correlation.NewContext(ctx, e.ID)
		s.log.WarnContext(ectx, "pending response expired", slogfield.Duration("overdue", now.Sub(e.Deadline)))

		err := e.Handle.respond(statusResponse(http.StatusGatewayTimeout))
		if err != nil {
			s.log.ErrorContext(ectx, "failed to write timeout response", slogfield.Error(err))
		}
	}
	return len(expired)
}
