package pacing

import (
	"math/rand/v2"
	"strings"
	"testing"
	"time"

	"github.com/LeventeLantos/pacedsend/internal/model"
)

func newPolicy(t *testing.T, mutate func(*Settings)) *Policy {
	t.Helper()

	s := Defaults()
	s.Location = time.UTC
	if mutate != nil {
		mutate(&s)
	}
	p, err := New(s, rand.New(rand.NewPCG(1, 2)))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return p
}

func TestDraws_StayWithinBands(t *testing.T) {
	t.Parallel()

	p := newPolicy(t, nil)
	s := p.Settings()

	for i := 0; i < 2000; i++ {
		if d := p.InterMessageDelay(); d < s.DelayMin || d > s.DelayMax {
			t.Fatalf("inter-message delay %v outside [%v, %v]", d, s.DelayMin, s.DelayMax)
		}
		if d := p.TypingDelay(); d < s.TypingDelayMin || d > s.TypingDelayMax {
			t.Fatalf("typing delay %v outside band", d)
		}
		if d := p.LongPauseDuration(); d < s.LongPauseMin || d > s.LongPauseMax {
			t.Fatalf("long pause %v outside band", d)
		}
		if d := p.ErrorBackoff(); d < 30*time.Second || d > 60*time.Second {
			t.Fatalf("error backoff %v outside band", d)
		}
	}
}

func TestDraws_DegenerateBand(t *testing.T) {
	t.Parallel()

	p := newPolicy(t, func(s *Settings) {
		s.DelayMin = 2 * time.Second
		s.DelayMax = 2 * time.Second
	})
	if d := p.InterMessageDelay(); d != 2*time.Second {
		t.Fatalf("expected exact 2s, got %v", d)
	}
}

func TestLongPauseDue(t *testing.T) {
	t.Parallel()

	p := newPolicy(t, func(s *Settings) { s.LongPauseEvery = 3 })

	cases := map[int]bool{0: false, 1: false, 2: false, 3: true, 4: false, 6: true, 9: true}
	for sent, want := range cases {
		if got := p.LongPauseDue(sent); got != want {
			t.Fatalf("LongPauseDue(%d) = %v, want %v", sent, got, want)
		}
	}

	off := newPolicy(t, func(s *Settings) { s.LongPauseEvery = 0 })
	if off.LongPauseDue(10) {
		t.Fatalf("expected long pause disabled when every=0")
	}
}

func TestWithinOperatingHours(t *testing.T) {
	t.Parallel()

	p := newPolicy(t, func(s *Settings) {
		s.HourStart = 8
		s.HourEnd = 20
	})

	cases := []struct {
		hour, min int
		want      bool
	}{
		{7, 59, false},
		{8, 0, true},
		{13, 30, true},
		{19, 59, true},
		{20, 0, false},
		{23, 0, false},
	}
	for _, tc := range cases {
		now := time.Date(2026, 1, 5, tc.hour, tc.min, 0, 0, time.UTC)
		if got := p.WithinOperatingHours(now); got != tc.want {
			t.Fatalf("%02d:%02d: got %v, want %v", tc.hour, tc.min, got, tc.want)
		}
	}
}

func TestWithinOperatingHours_UsesLocation(t *testing.T) {
	t.Parallel()

	p := newPolicy(t, func(s *Settings) { s.Location = time.FixedZone("BRT", -3*60*60) })

	// 10:00 UTC is 07:00 in BRT.
	if p.WithinOperatingHours(time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected gate closed at 07:00 local")
	}
	if !p.WithinOperatingHours(time.Date(2026, 1, 5, 11, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected gate open at 08:00 local")
	}
}

func TestTypingCadence_Floor(t *testing.T) {
	t.Parallel()

	p := newPolicy(t, nil)
	text := strings.Repeat("a", 100)

	// Budget far below 100 × 35ms: every keystroke must still take >= 35ms.
	cadence := p.TypingCadence(text, 500*time.Millisecond)
	if len(cadence) != 100 {
		t.Fatalf("expected 100 delays, got %d", len(cadence))
	}

	var total time.Duration
	for _, d := range cadence {
		if d < MinCharDelay {
			t.Fatalf("keystroke delay %v below floor", d)
		}
		total += d
	}
	if total < 100*MinCharDelay {
		t.Fatalf("total %v below n×35ms", total)
	}
}

func TestTypingCadence_JitterBounds(t *testing.T) {
	t.Parallel()

	p := newPolicy(t, nil)
	text := "olá, tudo bem?"
	total := 7 * time.Second
	base := total / time.Duration(14)

	cadence := p.TypingCadence(text, total)
	if len(cadence) != 14 {
		t.Fatalf("expected one delay per rune, got %d", len(cadence))
	}

	distinct := map[time.Duration]bool{}
	for _, d := range cadence {
		lo := time.Duration(float64(base) * 0.6)
		hi := time.Duration(float64(base) * 1.4)
		if d < lo-time.Microsecond || d > hi+time.Microsecond {
			t.Fatalf("delay %v outside ±40%% of %v", d, base)
		}
		distinct[d] = true
	}
	if len(distinct) < 2 {
		t.Fatalf("expected a non-uniform cadence")
	}

	if p.TypingCadence("", time.Second) != nil {
		t.Fatalf("expected nil cadence for empty text")
	}
}

func TestPickMessage(t *testing.T) {
	t.Parallel()

	p := newPolicy(t, nil)
	set := model.MessageSet{Primary: "a", Variants: []string{"b", " ", "c"}}

	seen := map[string]int{}
	for i := 0; i < 600; i++ {
		seen[p.PickMessage(set)]++
	}
	if len(seen) != 3 {
		t.Fatalf("expected a, b and c to be picked, got %v", seen)
	}
	if _, ok := seen[" "]; ok {
		t.Fatalf("blank variant was picked")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		mutate func(*Settings)
		want   string
	}{
		{"delay band", func(s *Settings) { s.DelayMax = s.DelayMin - 1 }, "delay max"},
		{"cap", func(s *Settings) { s.MaxPerSession = 0 }, "max per session"},
		{"hours order", func(s *Settings) { s.HourStart, s.HourEnd = 20, 8 }, "operating hours"},
		{"hours range", func(s *Settings) { s.HourEnd = 25 }, "operating hours"},
		{"poll", func(s *Settings) { s.HoursPollInterval = 0 }, "poll interval"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			s := Defaults()
			tc.mutate(&s)
			err := s.Validate()
			if err == nil {
				t.Fatalf("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error mentioning %q, got %v", tc.want, err)
			}
			if _, err := New(s, nil); err == nil {
				t.Fatalf("New() accepted invalid settings")
			}
		})
	}
}
