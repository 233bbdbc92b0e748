package match

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/pefman/hnefatafl-online/internal/board"
)

var ErrBadTimeControl = errors.New("bad time control")

// TimeControl is a per-side starting budget plus a per-move increment.
// A zero Initial means the match is untimed.
type TimeControl struct {
	Initial   time.Duration `json:"initial"`
	Increment time.Duration `json:"increment"`
}

func (tc TimeControl) Enabled() bool { return tc.Initial > 0 }

// String renders the control in "minutes+seconds" form, e.g. "10+5".
func (tc TimeControl) String() string {
	if !tc.Enabled() {
		return "0"
	}
	if tc.Increment <= 0 {
		return strconv.Itoa(int(tc.Initial / time.Minute))
	}
	return fmt.Sprintf("%d+%d", int(tc.Initial/time.Minute), int(tc.Increment/time.Second))
}

var timeControlRe = regexp.MustCompile(`^\s*(\d+)\s*(?:\+\s*(\d+))?\s*$`)

// ParseTimeControl reads the "10+5" notation: minutes of starting time,
// optionally plus seconds added after every move. "0" is untimed.
func ParseTimeControl(s string) (TimeControl, error) {
	m := timeControlRe.FindStringSubmatch(s)
	if m == nil {
		return TimeControl{}, fmt.Errorf("%w: %q", ErrBadTimeControl, s)
	}
	minutes, _ := strconv.Atoi(m[1])
	var tc TimeControl
	tc.Initial = time.Duration(minutes) * time.Minute
	if m[2] != "" {
		seconds, _ := strconv.Atoi(m[2])
		tc.Increment = time.Duration(seconds) * time.Second
	}
	if !tc.Enabled() && tc.Increment > 0 {
		return TimeControl{}, fmt.Errorf("%w: increment without starting time", ErrBadTimeControl)
	}
	return tc, nil
}

// clock tracks both sides' remaining time. It is owned by a Session and
// only touched under the session lock.
type clock struct {
	control   TimeControl
	remaining map[board.Side]time.Duration
	turnStart time.Time
}

func newClock(tc TimeControl, start time.Time) clock {
	return clock{
		control: tc,
		remaining: map[board.Side]time.Duration{
			board.SideAttacker: tc.Initial,
			board.SideDefender: tc.Initial,
		},
		turnStart: start,
	}
}

// left is the live remaining time for a side, with the running side's
// budget reduced by the in-progress turn.
func (c *clock) left(side, running board.Side, now time.Time) time.Duration {
	rem := c.remaining[side]
	if c.control.Enabled() && side == running {
		rem -= now.Sub(c.turnStart)
	}
	if rem < 0 {
		rem = 0
	}
	return rem
}

// moveMade charges the mover for the elapsed turn, credits the
// increment, and starts the opponent's turn.
func (c *clock) moveMade(mover board.Side, now time.Time) {
	if c.control.Enabled() {
		rem := c.remaining[mover] - now.Sub(c.turnStart)
		if rem < 0 {
			rem = 0
		}
		c.remaining[mover] = rem + c.control.Increment
	}
	c.turnStart = now
}
