// Package scoring computes the points awarded for a single answer.
//
// A correct answer earns a fixed base, a speed bonus that decays linearly to
// zero at the question's time limit, and a streak bonus for consecutive
// correct answers. Incorrect answers earn nothing.
package scoring

import (
	"math"

	"live-quiz-service/internal/domain"
)

const (
	BasePoints     = 500
	MaxSpeedBonus  = 500
	StreakStep     = 100
	MaxStreakBonus = 500
)

// Input is everything the engine needs to score one answer.
type Input struct {
	Correct   string  // correct option label
	TimeLimit int     // seconds
	Selection string  // selected option label
	Elapsed   float64 // raw elapsed seconds, untrusted
	Streak    int     // consecutive correct answers immediately before this one
}

// Score returns the point breakdown for in.
func Score(in Input) (domain.ScoreBreakdown, error) {
	if in.TimeLimit <= 0 {
		return domain.ScoreBreakdown{}, domain.ErrInvalidTimeLimit
	}
	if math.IsNaN(in.Elapsed) {
		return domain.ScoreBreakdown{}, domain.ErrInvalidElapsed
	}
	if in.Streak < 0 {
		return domain.ScoreBreakdown{}, domain.ErrInvalidStreak
	}
	if in.Selection != in.Correct {
		return domain.ScoreBreakdown{}, nil
	}

	elapsed := ClampElapsed(in.Elapsed, in.TimeLimit)
	speedFactor := 1 - elapsed/float64(in.TimeLimit)
	speed := int(math.Round(MaxSpeedBonus * speedFactor))

	streak := min(in.Streak*StreakStep, MaxStreakBonus)

	return domain.ScoreBreakdown{
		Base:        BasePoints,
		SpeedBonus:  speed,
		StreakBonus: streak,
		Total:       BasePoints + speed + streak,
	}, nil
}

// ClampElapsed bounds elapsed to [0, limit].
func ClampElapsed(elapsed float64, limit int) float64 {
	return math.Max(0, math.Min(elapsed, float64(limit)))
}

// Streak counts the leading correct answers in prior, which must be ordered newest first.
func Streak(prior []domain.Answer) int {
	n := 0
	for _, a := range prior {
		if !a.Correct {
			break
		}
		n++
	}
	return n
}
