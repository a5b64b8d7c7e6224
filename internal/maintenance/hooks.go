package maintenance

import (
	"context"
	"log/slog"

	"github.com/ekaty/ekaty-agent/internal/syncer"
)

// Alerter delivers critical alerts. A nil *alert.Webhook satisfies it and
// drops everything.
type Alerter interface {
	Critical(ctx context.Context, where string, err error) error
}

// Invalidator drops cached responses derived from listing data.
type Invalidator interface {
	InvalidatePrefix(prefix string) int
}

// AfterSync returns the post-sync hook shared by the CLI, the scheduler and
// the HTTP trigger. It invalidates cached listing responses and alerts on a
// failed run.
func AfterSync(ctx context.Context, alert Alerter, cache Invalidator, logger *slog.Logger) func(*syncer.Stats, error) {
	return func(stats *syncer.Stats, err error) {
		if cache != nil {
			cache.InvalidatePrefix("listing:")
		}
		if err == nil {
			if stats != nil {
				logger.Info("Post-sync hook complete", "summary", stats.Summary())
			}
			return
		}
		if alert == nil {
			return
		}
		if aerr := alert.Critical(context.WithoutCancel(ctx), "Restaurant sync", err); aerr != nil {
			logger.Warn("Failed to send alert", "error", aerr)
		}
	}
}
