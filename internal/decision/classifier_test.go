package decision

import (
	"errors"
	"testing"

	"github.com/opensource-finance/peregrine/internal/domain"
)

func TestNewClassifier(t *testing.T) {
	t.Run("Valid", func(t *testing.T) {
		if _, err := NewClassifier(80, 55); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("BlockNotAboveChallenge", func(t *testing.T) {
		for _, pair := range [][2]float64{{55, 80}, {55, 55}} {
			_, err := NewClassifier(pair[0], pair[1])
			if !errors.Is(err, domain.ErrConfigInvalid) {
				t.Errorf("block=%g challenge=%g: expected ErrConfigInvalid, got %v", pair[0], pair[1], err)
			}
		}
	})
}

func TestClassify(t *testing.T) {
	c, err := NewClassifier(80, 55)
	if err != nil {
		t.Fatalf("NewClassifier failed: %v", err)
	}

	cases := []struct {
		score float64
		want  string
	}{
		{0, domain.ActionAllow},
		{54.99, domain.ActionAllow},
		{55, domain.ActionChallenge}, // threshold is inclusive
		{79.99, domain.ActionChallenge},
		{80, domain.ActionBlock}, // threshold is inclusive
		{120, domain.ActionBlock},
	}

	for _, tc := range cases {
		if got := c.Classify(tc.score); got != tc.want {
			t.Errorf("Classify(%g) = %s, want %s", tc.score, got, tc.want)
		}
	}

	// Classification is deterministic
	for i := 0; i < 3; i++ {
		if got := c.Classify(67.5); got != domain.ActionChallenge {
			t.Errorf("repeat %d: Classify(67.5) = %s, want CHALLENGE", i, got)
		}
	}
}

func TestRound2(t *testing.T) {
	cases := []struct {
		in   float64
		want float64
	}{
		{1.234, 1.23},
		{1.236, 1.24},
		{62, 62},
		{0, 0},
	}
	for _, tc := range cases {
		if got := Round2(tc.in); got != tc.want {
			t.Errorf("Round2(%g) = %g, want %g", tc.in, got, tc.want)
		}
	}
}
