package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/telegraph-dev/telegraph/pkg/server"
	"github.com/telegraph-dev/telegraph/pkg/wire"
)

// Logger creates middleware that logs every handled packet with its duration.
// Successful packets are logged at debug level, failures at warn.
func Logger(logger *slog.Logger) server.Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "handler")

	return func(next server.Handler) server.Handler {
		return server.HandlerFunc(func(ctx context.Context, w server.PacketWriter, p *wire.Packet) error {
			start := time.Now()
			err := next.HandlePacket(ctx, w, p)

			attrs := []any{
				"conn_id", w.ConnID(),
				"req_id", p.ReqID,
				"type", p.Type.String(),
				"duration", time.Since(start),
			}
			if err != nil {
				logger.WarnContext(ctx, "packet failed", append(attrs, "error", err)...)
			} else {
				logger.DebugContext(ctx, "packet handled", attrs...)
			}
			return err
		})
	}
}
