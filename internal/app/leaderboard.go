package app

import (
	"sort"

	"live-quiz-service/internal/domain"
)

// Rank orders participants by score, highest first. Ties go to whoever joined
// earlier, then to the lower user ID, so the ranking is stable across calls.
func Rank(participants []domain.Participant) []domain.LeaderboardEntry {
	ordered := make([]domain.Participant, len(participants))
	copy(ordered, participants)

	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].Score != ordered[j].Score {
			return ordered[i].Score > ordered[j].Score
		}
		if !ordered[i].JoinedAt.Equal(ordered[j].JoinedAt) {
			return ordered[i].JoinedAt.Before(ordered[j].JoinedAt)
		}
		return ordered[i].UserID < ordered[j].UserID
	})

	entries := make([]domain.LeaderboardEntry, 0, len(ordered))
	for i, p := range ordered {
		entries = append(entries, domain.LeaderboardEntry{
			Rank:   i + 1,
			UserID: p.UserID,
			Name:   p.Name,
			Image:  p.Image,
			Score:  p.Score,
		})
	}
	return entries
}
