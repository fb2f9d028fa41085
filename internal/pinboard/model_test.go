package pinboard

import (
	"errors"
	"testing"
	"time"
)

var referenceTime = time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)

func secondsAt(offset time.Duration) *int64 {
	value := referenceTime.Add(offset).Unix()
	return &value
}

func TestNewSlugValidation(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
		fails bool
	}{
		{name: "simple", input: "spring-fair", want: "spring-fair"},
		{name: "uppercase folded", input: "  Spring-Fair  ", want: "spring-fair"},
		{name: "digits", input: "fair-2026", want: "fair-2026"},
		{name: "empty", input: "   ", fails: true},
		{name: "leading hyphen", input: "-fair", fails: true},
		{name: "trailing hyphen", input: "fair-", fails: true},
		{name: "double hyphen", input: "spring--fair", fails: true},
		{name: "illegal characters", input: "spring_fair", fails: true},
		{name: "too long", input: "a-very-long-slug-that-keeps-going-and-going-and-going-past-sixty-three", fails: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			slug, err := NewSlug(tc.input)
			if tc.fails {
				if !errors.Is(err, ErrInvalidSlug) {
					t.Fatalf("expected ErrInvalidSlug, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if slug.String() != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, slug.String())
			}
		})
	}
}

func TestEffectiveStatusDerivation(t *testing.T) {
	cases := []struct {
		name  string
		board Pinboard
		want  Status
	}{
		{
			name:  "trial with future deadline",
			board: Pinboard{Status: StatusTrial, TrialEndsAtSeconds: secondsAt(24 * time.Hour)},
			want:  StatusTrial,
		},
		{
			name:  "trial lapsed yesterday",
			board: Pinboard{Status: StatusTrial, TrialEndsAtSeconds: secondsAt(-24 * time.Hour)},
			want:  StatusExpired,
		},
		{
			name:  "trial without deadline",
			board: Pinboard{Status: StatusTrial},
			want:  StatusExpired,
		},
		{
			name:  "active within paid period",
			board: Pinboard{Status: StatusActive, PaidUntilSeconds: secondsAt(720 * time.Hour)},
			want:  StatusActive,
		},
		{
			name:  "active past paid period",
			board: Pinboard{Status: StatusActive, PaidUntilSeconds: secondsAt(-time.Hour)},
			want:  StatusExpired,
		},
		{
			name:  "exempt trial never expires",
			board: Pinboard{Status: StatusTrial, OwnerExempt: true, TrialEndsAtSeconds: secondsAt(-24 * time.Hour)},
			want:  StatusTrial,
		},
		{
			name:  "removed stays removed",
			board: Pinboard{Status: StatusRemoved, PaidUntilSeconds: secondsAt(24 * time.Hour)},
			want:  StatusRemoved,
		},
		{
			name:  "suspended stays suspended",
			board: Pinboard{Status: StatusSuspended, TrialEndsAtSeconds: secondsAt(24 * time.Hour)},
			want:  StatusSuspended,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := EffectiveStatus(tc.board, referenceTime); got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestEvaluateVisibility(t *testing.T) {
	visible := Evaluate(Pinboard{Status: StatusActive, PaidUntilSeconds: secondsAt(time.Hour)}, referenceTime)
	if !visible.Visible || visible.Reason != "" {
		t.Fatalf("expected visible board, got %+v", visible)
	}

	expired := Evaluate(Pinboard{Status: StatusTrial, TrialEndsAtSeconds: secondsAt(-time.Minute)}, referenceTime)
	if expired.Visible || expired.Reason != ReasonExpired {
		t.Fatalf("expected expired reason, got %+v", expired)
	}

	removed := Evaluate(Pinboard{Status: StatusRemoved}, referenceTime)
	if removed.Visible || removed.Reason != ReasonRemoved {
		t.Fatalf("expected removed reason, got %+v", removed)
	}

	suspended := Evaluate(Pinboard{Status: StatusSuspended}, referenceTime)
	if suspended.Visible || suspended.Reason != ReasonSuspended {
		t.Fatalf("expected suspended reason, got %+v", suspended)
	}
}

func TestEvaluateIsTimeDependent(t *testing.T) {
	board := Pinboard{Status: StatusTrial, TrialEndsAtSeconds: secondsAt(time.Hour)}

	before := Evaluate(board, referenceTime)
	if !before.Visible {
		t.Fatalf("expected visible before deadline")
	}
	after := Evaluate(board, referenceTime.Add(2*time.Hour))
	if after.Visible || after.Reason != ReasonExpired {
		t.Fatalf("expected expired after deadline, got %+v", after)
	}
}
