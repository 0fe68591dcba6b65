package domain

import "sort"

// LeaderboardEntry is a snapshot-friendly view of one ranked player.
type LeaderboardEntry struct {
	Rank         int    `json:"rank"`
	PlayerID     string `json:"playerId"`
	Username     string `json:"username"`
	TotalScore   int    `json:"totalScore"`
	CorrectCount int    `json:"correctCount"`
	AnswerCount  int    `json:"answerCount"`
}

// Leaderboard is the ranked derivation of player scores. It is recomputed on
// demand and never stored independently.
type Leaderboard struct {
	RoomID  string             `json:"roomId"`
	Entries []LeaderboardEntry `json:"entries"`
}

// BuildLeaderboard derives the ranking from the room's accumulated answers.
// Order: totalScore desc, then correctCount desc, then username ascending.
// The final tie-break keeps the ordering identical on every client no matter
// the delivery order of updates. A player with no answer for a question
// simply contributes zero for it; no record is synthesized.
func BuildLeaderboard(room *Room) Leaderboard {
	entries := make([]LeaderboardEntry, 0, len(room.Players))
	for i := range room.Players {
		p := &room.Players[i]
		total, correct := 0, 0
		for _, a := range p.Answers {
			total += a.PointsEarned
			if a.IsCorrect {
				correct++
			}
		}
		entries = append(entries, LeaderboardEntry{
			PlayerID:     p.ID,
			Username:     p.Username,
			TotalScore:   total,
			CorrectCount: correct,
			AnswerCount:  len(p.Answers),
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].TotalScore != entries[j].TotalScore {
			return entries[i].TotalScore > entries[j].TotalScore
		}
		if entries[i].CorrectCount != entries[j].CorrectCount {
			return entries[i].CorrectCount > entries[j].CorrectCount
		}
		return entries[i].Username < entries[j].Username
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return Leaderboard{RoomID: room.ID, Entries: entries}
}
