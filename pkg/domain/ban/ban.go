package ban

import "time"

// Level is the ordinal ban state for a network identity. Within a
// violation episode it never decreases; LevelPermanent is terminal.
type Level int

const (
	LevelNone Level = iota
	LevelShort
	LevelMedium
	LevelLong
	LevelPermanent
)

func (l Level) String() string {
	switch l {
	case LevelNone:
		return "none"
	case LevelShort:
		return "short"
	case LevelMedium:
		return "medium"
	case LevelLong:
		return "long"
	case LevelPermanent:
		return "permanent"
	}
	return "unknown"
}

// LevelForViolations maps a cumulative violation count onto a ban
// level. Counts one through three walk short, medium, long; a fourth
// episode repeats long, and only a fifth becomes permanent.
func LevelForViolations(count int) Level {
	switch {
	case count <= 0:
		return LevelNone
	case count <= int(LevelLong):
		return Level(count)
	case count == int(LevelLong)+1:
		return LevelLong
	default:
		return LevelPermanent
	}
}

// Record is the enforcement state for one network identity.
// ExpiresAt is nil for permanent bans.
type Record struct {
	Identity       string     `json:"identity" gorm:"primaryKey"`
	Level          Level      `json:"level"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	ViolationCount int        `json:"violation_count"`
	LastViolation  time.Time  `json:"last_violation"`
}

func (Record) TableName() string {
	return "ban_records"
}

func (r *Record) Active(now time.Time) bool {
	if r.Level == LevelNone {
		return false
	}
	if r.Level == LevelPermanent {
		return true
	}
	return r.ExpiresAt != nil && now.Before(*r.ExpiresAt)
}
