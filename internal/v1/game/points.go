package game

import "math"

// positionBonuses rewards submission order within a round, 0-based.
var positionBonuses = []int{300, 200, 100, 50, 25}

// streakMultipliers saturates at its last entry.
var streakMultipliers = []float64{1.0, 1.2, 1.5, 2.0, 2.5, 3.0}

// pointsForLocked scores one correct answer:
//
//	base     = grade x 100
//	bonus    = base x 0.5 x ((T-t)/T)^1.5, never negative
//	position = fixed table by arrival order
//	total    = round((base + bonus + position) x streakMultiplier)
//
// The streak multiplier uses the streak as it stood before this answer.
// Untimed rounds earn no time bonus.
func (r *Room) pointsForLocked(p *Participant, ans *Answer) int {
	grade := 1
	if r.CurrentRoundIndex < len(r.Questions) && r.Questions[r.CurrentRoundIndex].Grade > 0 {
		grade = r.Questions[r.CurrentRoundIndex].Grade
	}
	base := float64(grade * 100)

	var timeBonus float64
	if r.timerArmed() && r.RoundStartedAt != nil {
		limit := float64(*r.TimeLimitSeconds)
		elapsed := ans.SubmittedAt.Sub(*r.RoundStartedAt).Seconds()
		frac := (limit - elapsed) / limit
		if frac > 0 {
			timeBonus = base * 0.5 * math.Pow(frac, 1.5)
		}
	}

	var positionBonus int
	if ans.submissionOrder < len(positionBonuses) {
		positionBonus = positionBonuses[ans.submissionOrder]
	}

	streak := p.Streak
	if streak >= len(streakMultipliers) {
		streak = len(streakMultipliers) - 1
	}

	total := (base + timeBonus + float64(positionBonus)) * streakMultipliers[streak]
	return int(math.Round(total))
}
