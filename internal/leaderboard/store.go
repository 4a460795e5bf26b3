package leaderboard

import (
	"sort"

	"live-quiz-client/internal/domain"
)

// Store holds the latest leaderboard snapshot for one session.
// It is owned by the session engine and is not safe for concurrent use.
type Store struct {
	entries []domain.LeaderboardEntry
	applied bool
}

func NewStore() *Store {
	return &Store{}
}

// Apply replaces the stored snapshot with entries. The input is re-sorted by rank
// (then score descending, then identity) and duplicate identities keep their first row.
func (s *Store) Apply(entries []domain.LeaderboardEntry) {
	sorted := make([]domain.LeaderboardEntry, len(entries))
	copy(sorted, entries)

	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Rank != sorted[j].Rank {
			return sorted[i].Rank < sorted[j].Rank
		}
		if sorted[i].Score != sorted[j].Score {
			return sorted[i].Score > sorted[j].Score
		}
		return sorted[i].Identity() < sorted[j].Identity()
	})

	seen := make(map[string]struct{}, len(sorted))
	snapshot := sorted[:0]
	for _, entry := range sorted {
		if _, dup := seen[entry.Identity()]; dup {
			continue
		}
		seen[entry.Identity()] = struct{}{}
		snapshot = append(snapshot, entry)
	}

	s.entries = snapshot
	s.applied = true
}

// Entries returns a copy of the current snapshot ordered by rank.
func (s *Store) Entries() []domain.LeaderboardEntry {
	out := make([]domain.LeaderboardEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Lookup finds the entry of a participant by id or username.
func (s *Store) Lookup(participant string) (domain.LeaderboardEntry, bool) {
	if participant == "" {
		return domain.LeaderboardEntry{}, false
	}
	for _, entry := range s.entries {
		if entry.ParticipantID == participant || entry.Username == participant {
			return entry, true
		}
	}
	return domain.LeaderboardEntry{}, false
}

// Received reports whether any snapshot has been applied.
func (s *Store) Received() bool {
	return s.applied
}
