package parking

import "fmt"

// Side is one half of the dual-exit lot, and also names the overflow lane feeding it.
type Side string

const (
	North Side = "north"
	South Side = "south"
)

func (s Side) Opposite() Side {
	if s == North {
		return South
	}
	return North
}

func (s Side) prefix() string {
	if s == North {
		return "N"
	}
	return "S"
}

func slotLabel(side Side, index int) string {
	return fmt.Sprintf("%s%d", side.prefix(), index+1)
}

func laneLabel(side Side, index int) string {
	return fmt.Sprintf("%sQ%d", side.prefix(), index+1)
}
