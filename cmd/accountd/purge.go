// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/accountd/accountd/internal/account"
	"github.com/accountd/accountd/pkg/errutil"
)

// purgeRecorder counts deleted sessions.
type purgeRecorder interface {
	RecordSessionsPurged(n int64)
}

// purgeSessions deletes expired sessions every interval until ctx is done.
func purgeSessions(ctx context.Context, repo account.SessionRepository, interval time.Duration, rec purgeRecorder, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			purgeOnce(ctx, repo, rec, logger)
		}
	}
}

func purgeOnce(ctx context.Context, repo account.SessionRepository, rec purgeRecorder, logger *slog.Logger) {
	n, err := repo.DeleteExpired(ctx)
	if err != nil {
		if ctx.Err() == nil {
			errutil.LogError(ctx, logger, "session purge failed", err)
		}
		return
	}
	rec.RecordSessionsPurged(n)
	if n > 0 {
		logger.DebugContext(ctx, "purged expired sessions", "count", n)
	}
}
