package protocol

import (
	"context"
	"log/slog"
	"maps"
	"slices"
)

// SweepCaches reaps stale rate-limit counters and expired one-time codes
func (r *Router) SweepCaches(context.Context) {
	limits := r.limiter.Sweep()
	codes := r.codes.Sweep()
	if limits+codes > 0 {
		r.logger.Debug("caches swept",
			slog.Int("rate_limits", limits),
			slog.Int("codes", codes))
	}
}

// SweepRounds closes out every round whose timer has run out
func (r *Router) SweepRounds(ctx context.Context) {
	for _, summary := range r.games.SweepRounds(ctx) {
		r.broadcastRound(summary)
	}
}

// NotifyFinishedGames tells watching connections that their game no longer exists
func (r *Router) NotifyFinishedGames(context.Context) {
	watches := r.registry.Watches()
	for _, id := range slices.Sorted(maps.Keys(watches)) {
		gameID := watches[id]
		if r.games.IsLive(gameID) {
			continue
		}
		if conn, ok := r.registry.Conn(id); ok {
			n := notification(NotifyGameFinish)
			n.GameID = gameID
			conn.Send(Encode(n))
		}
		r.registry.Unwatch(id)
	}
}
