package match

import (
	"errors"
	"testing"
	"time"
)

func TestParseTimeControl(t *testing.T) {
	cases := []struct {
		in   string
		want TimeControl
	}{
		{"10+5", TimeControl{Initial: 10 * time.Minute, Increment: 5 * time.Second}},
		{"10", TimeControl{Initial: 10 * time.Minute}},
		{" 15 + 10 ", TimeControl{Initial: 15 * time.Minute, Increment: 10 * time.Second}},
		{"0", TimeControl{}},
		{"3+2", TimeControl{Initial: 3 * time.Minute, Increment: 2 * time.Second}},
	}
	for _, tc := range cases {
		got, err := ParseTimeControl(tc.in)
		if err != nil {
			t.Errorf("%q: %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("%q = %+v, want %+v", tc.in, got, tc.want)
		}
	}
}

func TestParseTimeControlRejects(t *testing.T) {
	for _, in := range []string{"", "blitz", "+5", "10+", "0+5", "-3"} {
		if _, err := ParseTimeControl(in); !errors.Is(err, ErrBadTimeControl) {
			t.Errorf("%q: got %v, want ErrBadTimeControl", in, err)
		}
	}
}

func TestTimeControlString(t *testing.T) {
	cases := []struct {
		tc   TimeControl
		want string
	}{
		{TimeControl{Initial: 10 * time.Minute, Increment: 5 * time.Second}, "10+5"},
		{TimeControl{Initial: 10 * time.Minute}, "10"},
		{TimeControl{}, "0"},
	}
	for _, c := range cases {
		if got := c.tc.String(); got != c.want {
			t.Errorf("%+v.String() = %q, want %q", c.tc, got, c.want)
		}
	}
	for _, s := range []string{"10+5", "10", "0"} {
		tc, err := ParseTimeControl(s)
		if err != nil {
			t.Fatal(err)
		}
		if tc.String() != s {
			t.Errorf("round trip %q → %q", s, tc.String())
		}
	}
}

func TestUntimedMatchNeverExpires(t *testing.T) {
	s, clk := newTestSession(t, nil) // zero TimeControl
	clk.advance(24 * time.Hour)
	s.ExpireClock(s.Snapshot().Turn)
	if got := s.Status(); got != StatusActive {
		t.Fatalf("untimed match timed out: %s", got)
	}
	snap := s.Snapshot()
	if snap.Clocks.Running != "" || snap.Clocks.AttackerMs != 0 {
		t.Errorf("untimed clocks should be idle: %+v", snap.Clocks)
	}
}
