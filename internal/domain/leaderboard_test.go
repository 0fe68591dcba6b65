package domain

import "testing"

func playerWithAnswers(id, name string, answers ...Answer) Player {
	p := Player{ID: id, Username: name, Answers: answers}
	p.RecomputeScore()
	return p
}

func TestBuildLeaderboardOrdering(t *testing.T) {
	room := &Room{
		ID: "room-1",
		Players: []Player{
			playerWithAnswers("p1", "alice",
				Answer{QuestionID: "q1", IsCorrect: true, PointsEarned: 500}),
			playerWithAnswers("p2", "bob",
				Answer{QuestionID: "q1", IsCorrect: true, PointsEarned: 800},
				Answer{QuestionID: "q2", IsCorrect: true, PointsEarned: 200}),
			playerWithAnswers("p3", "carol",
				Answer{QuestionID: "q1", IsCorrect: false, PointsEarned: 0}),
		},
	}

	lb := BuildLeaderboard(room)
	if lb.RoomID != "room-1" {
		t.Fatalf("room id %q", lb.RoomID)
	}
	want := []string{"p2", "p1", "p3"}
	for i, id := range want {
		if lb.Entries[i].PlayerID != id {
			t.Fatalf("rank %d is %s, want %s", i+1, lb.Entries[i].PlayerID, id)
		}
		if lb.Entries[i].Rank != i+1 {
			t.Fatalf("entry %d has rank %d", i, lb.Entries[i].Rank)
		}
	}
	if lb.Entries[0].TotalScore != 1000 || lb.Entries[0].CorrectCount != 2 {
		t.Fatalf("top entry totals = (%d, %d)", lb.Entries[0].TotalScore, lb.Entries[0].CorrectCount)
	}
}

func TestBuildLeaderboardTieBreaks(t *testing.T) {
	// Same score: more correct answers wins.
	room := &Room{
		ID: "room-1",
		Players: []Player{
			playerWithAnswers("p1", "zed",
				Answer{QuestionID: "q1", IsCorrect: true, PointsEarned: 300},
				Answer{QuestionID: "q2", IsCorrect: true, PointsEarned: 300}),
			playerWithAnswers("p2", "amy",
				Answer{QuestionID: "q1", IsCorrect: true, PointsEarned: 600}),
		},
	}
	lb := BuildLeaderboard(room)
	if lb.Entries[0].PlayerID != "p1" {
		t.Fatalf("expected more-correct player first, got %s", lb.Entries[0].PlayerID)
	}

	// Same score and correct count: username ascending, so the ordering is
	// identical on every client.
	room = &Room{
		ID: "room-1",
		Players: []Player{
			playerWithAnswers("p1", "zed", Answer{QuestionID: "q1", IsCorrect: true, PointsEarned: 500}),
			playerWithAnswers("p2", "amy", Answer{QuestionID: "q1", IsCorrect: true, PointsEarned: 500}),
		},
	}
	lb = BuildLeaderboard(room)
	if lb.Entries[0].Username != "amy" {
		t.Fatalf("expected username tie-break, got %s first", lb.Entries[0].Username)
	}
}

func TestBuildLeaderboardSkippedQuestions(t *testing.T) {
	// A player who never answered contributes zero without a synthesized record.
	room := &Room{
		ID: "room-1",
		Players: []Player{
			playerWithAnswers("p1", "alice", Answer{QuestionID: "q1", IsCorrect: true, PointsEarned: 400}),
			{ID: "p2", Username: "bob"},
		},
	}
	lb := BuildLeaderboard(room)
	if len(lb.Entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(lb.Entries))
	}
	bottom := lb.Entries[1]
	if bottom.PlayerID != "p2" || bottom.TotalScore != 0 || bottom.AnswerCount != 0 {
		t.Fatalf("non-answering player entry = %+v", bottom)
	}
}

func TestBuildLeaderboardEmptyRoom(t *testing.T) {
	lb := BuildLeaderboard(&Room{ID: "room-1"})
	if len(lb.Entries) != 0 {
		t.Fatalf("expected no entries, got %d", len(lb.Entries))
	}
}
