package money

import "testing"

func TestForDurationMatchesHourlyRate(t *testing.T) {
	// 730h/month convention: a full month's duration must reproduce the
	// monthly price exactly, and half the hours half the price (no drift).
	monthly := int64(730_000_000_000)
	if got := ForDuration(monthly, 730); got != monthly {
		t.Fatalf("ForDuration(monthly, 730h) = %d, want %d", got, monthly)
	}
	if got := ForDuration(monthly, 365); got != 365_000_000_000 {
		t.Fatalf("ForDuration(monthly, 365h) = %d, want 365000000000", got)
	}
}

func TestProportionWholeAndHalf(t *testing.T) {
	if got := Proportion(1000, 1, 1); got != 1000 {
		t.Fatalf("Proportion(1000,1,1) = %d, want 1000", got)
	}
	if got := Proportion(1000, 1, 2); got != 500 {
		t.Fatalf("Proportion(1000,1,2) = %d, want 500", got)
	}
	if got := Proportion(100, 0, 10); got != 0 {
		t.Fatalf("Proportion(100,0,10) = %d, want 0", got)
	}
	if got := Proportion(100, 5, 0); got != 0 {
		t.Fatalf("Proportion with zero denominator must not panic, got %d", got)
	}
}

func TestFractionRoundsHalfToEven(t *testing.T) {
	if got := Fraction(100, 0.5); got != 50 {
		t.Fatalf("Fraction(100, 0.5) = %d, want 50", got)
	}
	if got := Fraction(100, 0); got != 0 {
		t.Fatalf("Fraction(100, 0) = %d, want 0", got)
	}
	if got := Fraction(100, 1); got != 100 {
		t.Fatalf("Fraction(100, 1) = %d, want 100", got)
	}
	// 0.25 of 101 = 25.25, not a tie, so it rounds to the nearest integer.
	if got := Fraction(101, 0.25); got != 25 {
		t.Fatalf("Fraction(101, 0.25) = %d, want 25", got)
	}
}
