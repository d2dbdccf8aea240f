package consensus

// calculateStrength scores a consensus window on a 0-100 scale.
// More distinct authors, tighter price agreement and faster clustering
// all raise the score from a base of 50.
func calculateStrength(authors int, spreadPct *float64, spanMinutes float64) int {
	strength := 50

	switch {
	case authors >= 5:
		strength += 20
	case authors >= 4:
		strength += 10
	}

	if spreadPct != nil {
		switch {
		case *spreadPct < 1:
			strength += 15
		case *spreadPct < 2:
			strength += 5
		case *spreadPct > 5:
			strength -= 10
		}
	}

	switch {
	case spanMinutes < 10:
		strength += 15
	case spanMinutes < 20:
		strength += 5
	}

	if strength < 0 {
		strength = 0
	}
	if strength > 100 {
		strength = 100
	}
	return strength
}
