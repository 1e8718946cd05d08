package staking

import "sort"

// Leaderboard returns the top earners ranked descending by all-time rewards.
// Ties are broken by ascending owner identity for determinism. The ranking is
// derived from the committed aggregates at call time; no rank is ever stored,
// so concurrent reads always agree with the latest committed settlements.
func (e *Engine) Leaderboard(limit int) []LeaderboardEntry {
	e.mu.RLock()
	entries := make([]LeaderboardEntry, 0, len(e.aggregates))
	for _, agg := range e.aggregates {
		entries = append(entries, LeaderboardEntry{
			Owner:              agg.Owner,
			TotalStaked:        agg.TotalStaked,
			TotalRewardsEarned: copyBigInt(agg.TotalRewardsEarned),
		})
	}
	e.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		cmp := entries[i].TotalRewardsEarned.Cmp(entries[j].TotalRewardsEarned)
		if cmp != 0 {
			return cmp > 0
		}
		return entries[i].Owner < entries[j].Owner
	})
	for i := range entries {
		entries[i].Rank = uint32(i + 1)
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries
}

// OwnerAggregateFor returns a copy of the aggregate for one owner, if any.
func (e *Engine) OwnerAggregateFor(owner string) (*OwnerAggregate, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	agg, ok := e.aggregates[owner]
	if !ok {
		return nil, false
	}
	return agg.Clone(), true
}
