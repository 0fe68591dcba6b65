package domain

import (
	"testing"
	"time"
)

func TestScoreIncorrectIsZero(t *testing.T) {
	if got := DefaultScoreConfig.Score(false, 0, 30*time.Second, 1); got != 0 {
		t.Fatalf("incorrect answer scored %d, want 0", got)
	}
}

func TestScoreInstantAnswerGetsBase(t *testing.T) {
	if got := DefaultScoreConfig.Score(true, 0, 30*time.Second, 1); got != 1000 {
		t.Fatalf("instant answer scored %d, want 1000", got)
	}
}

func TestScoreAtLimitGetsMinimum(t *testing.T) {
	cfg := DefaultScoreConfig
	if got := cfg.Score(true, 30*time.Second, 30*time.Second, 1); got != cfg.MinPoints {
		t.Fatalf("answer at limit scored %d, want %d", got, cfg.MinPoints)
	}
	if got := cfg.Score(true, time.Minute, 30*time.Second, 1); got != cfg.MinPoints {
		t.Fatalf("answer past limit scored %d, want %d", got, cfg.MinPoints)
	}
}

func TestScoreMonotonicInTime(t *testing.T) {
	cfg := DefaultScoreConfig
	limit := 30 * time.Second
	prev := cfg.Score(true, 0, limit, 1)
	for spent := time.Second; spent <= limit; spent += time.Second {
		got := cfg.Score(true, spent, limit, 1)
		if got > prev {
			t.Fatalf("score increased from %d to %d at timeSpent=%v", prev, got, spent)
		}
		if got < cfg.MinPoints || got > cfg.BasePoints {
			t.Fatalf("score %d outside [%d, %d]", got, cfg.MinPoints, cfg.BasePoints)
		}
		prev = got
	}
}

func TestScoreNegativeTimeClamped(t *testing.T) {
	if got := DefaultScoreConfig.Score(true, -5*time.Second, 30*time.Second, 1); got != 1000 {
		t.Fatalf("negative timeSpent scored %d, want base 1000", got)
	}
}

func TestScoreQuestionPointsMultiplier(t *testing.T) {
	cfg := DefaultScoreConfig
	single := cfg.Score(true, 10*time.Second, 30*time.Second, 1)
	double := cfg.Score(true, 10*time.Second, 30*time.Second, 2)
	if double != 2*single {
		t.Fatalf("points=2 scored %d, want %d", double, 2*single)
	}
	// Zero means unset, treated as 1.
	if got := cfg.Score(true, 10*time.Second, 30*time.Second, 0); got != single {
		t.Fatalf("points=0 scored %d, want %d", got, single)
	}
}

func TestScoreZeroConfigUsesDefaults(t *testing.T) {
	var cfg ScoreConfig
	if got := cfg.Score(true, 0, 30*time.Second, 1); got != DefaultScoreConfig.BasePoints {
		t.Fatalf("zero config scored %d, want default base", got)
	}
}
