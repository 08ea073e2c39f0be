package main

import (
	"context"
	"log/slog"
	"time"
)

// Version is the current server version. Set at build time via -ldflags.
var Version = "0.1.0-dev"

// RunMetrics logs connection and throughput counters every interval until
// ctx is canceled, replacing the teacher's room-stats logger (room.Stats)
// with this domain's equivalents.
func RunMetrics(ctx context.Context, deps *Deps, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastMessages int
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			online := deps.Presence.OnlineCount()
			inFlight := deps.Uploads.Count()
			messages, err := deps.Store.MessageCount()
			if err != nil {
				slog.Error("metrics: message count", "err", err)
				continue
			}
			delta := messages - lastMessages
			lastMessages = messages
			if online > 0 || inFlight > 0 || delta > 0 {
				slog.Info("metrics",
					"online_sessions", online,
					"uploads_in_flight", inFlight,
					"messages_total", messages,
					"messages_per_interval", delta,
				)
			}
		}
	}
}
