package service

// maxLevelCascade bounds the number of level-ups a single operation can
// grant. Bonuses feed back into totalEarned, and once a level bonus
// exceeds the threshold step the cascade would sustain itself forever,
// so the loop needs a hard stop.
const maxLevelCascade = 50

// LevelBonus describes one crossed level and the bonus it grants.
type LevelBonus struct {
	Level int
	Bonus int64
}

// LevelingEngine computes tier progression. A wallet at level L advances
// when totalEarned reaches L*levelStep; reaching level L+1 grants a bonus
// of (L+1)*bonusStep, which itself counts toward further thresholds, so
// crossings are re-checked iteratively rather than once.
type LevelingEngine struct {
	levelStep int64
	bonusStep int64
}

// NewLevelingEngine creates an engine with the given threshold and bonus steps.
func NewLevelingEngine(levelStep, bonusStep int64) *LevelingEngine {
	return &LevelingEngine{
		levelStep: levelStep,
		bonusStep: bonusStep,
	}
}

// Advance returns the levels crossed by a wallet currently at level with
// the given (already updated) lifetime earnings. Bonus amounts are added
// to the running total before each re-check, so one earn can cross
// several thresholds.
func (e *LevelingEngine) Advance(level int, totalEarned int64) []LevelBonus {
	var crossed []LevelBonus
	for totalEarned >= int64(level)*e.levelStep && len(crossed) < maxLevelCascade {
		level++
		bonus := int64(level) * e.bonusStep
		totalEarned += bonus
		crossed = append(crossed, LevelBonus{Level: level, Bonus: bonus})
	}
	return crossed
}
