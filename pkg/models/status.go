package models

import "time"

type Level string

const (
	LevelOK       Level = "ok"
	LevelDegraded Level = "degraded"
	LevelDown     Level = "down"
)

func (l Level) severity() int {
	switch l {
	case LevelDown:
		return 2
	case LevelDegraded:
		return 1
	default:
		return 0
	}
}

func (l Level) Valid() bool {
	return l == LevelOK || l == LevelDegraded || l == LevelDown
}

// WorstLevel returns the most severe level given, or LevelOK when none are.
func WorstLevel(levels ...Level) Level {
	worst := LevelOK
	for _, l := range levels {
		if l.severity() > worst.severity() {
			worst = l
		}
	}
	return worst
}

// Status is the latest health report of one component of a worker.
type Status struct {
	Component string                 `json:"component"`
	Level     Level                  `json:"status"`
	Type      string                 `json:"type"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	ChannelID string                 `json:"channel_id,omitempty"`
	Timestamp time.Time              `json:"timestamp,omitempty"`
}
