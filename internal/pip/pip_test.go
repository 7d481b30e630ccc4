package pip_test

import (
	"testing"

	"github.com/idexio/idex-contracts-ikon-sub000/internal/pip"
)

func TestMultiply(t *testing.T) {
	tests := []struct {
		name string
		a, b int64
		mode pip.RoundingMode
		want int64
	}{
		{"one times one", pip.One, pip.One, pip.RoundTowardZero, pip.One},
		{"price times quantity", 2000 * pip.One, 150_000_000, pip.RoundTowardZero, 3000 * pip.One},
		{"truncates toward zero positive", 1, 1, pip.RoundTowardZero, 0},
		{"truncates toward zero negative", -1, 1, pip.RoundTowardZero, 0},
		{"round down negative goes to minus one", -1, 1, pip.RoundDown, -1},
		{"round down positive truncates", 1, 1, pip.RoundDown, 0},
		{"round up positive goes to one", 1, 1, pip.RoundUp, 1},
		{"round up negative truncates", -1, 1, pip.RoundUp, 0},
		{"zero", 0, 123456, pip.RoundTowardZero, 0},
	}
	for _, tt := range tests {
		got := pip.MultiplyRounded(tt.a, tt.b, tt.mode)
		if got != tt.want {
			t.Errorf("%s: MultiplyRounded(%d, %d) = %d, want %d", tt.name, tt.a, tt.b, got, tt.want)
		}
	}
}

func TestMultiplyOverflowPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on overflow")
		}
	}()
	pip.Multiply(1<<62, 1<<62)
}

func TestDivide(t *testing.T) {
	if got := pip.Divide(3000*pip.One, 2000*pip.One, pip.RoundTowardZero); got != 150_000_000 {
		t.Errorf("Divide = %d, want %d", got, int64(150_000_000))
	}
	// 1 / 3 with eight decimals truncates to 0.33333333
	if got := pip.Divide(pip.One, 3*pip.One, pip.RoundTowardZero); got != 33_333_333 {
		t.Errorf("Divide = %d, want 33333333", got)
	}
	if got := pip.Divide(pip.One, 3*pip.One, pip.RoundUp); got != 33_333_334 {
		t.Errorf("Divide round up = %d, want 33333334", got)
	}
	if got := pip.Divide(-pip.One, 3*pip.One, pip.RoundDown); got != -33_333_334 {
		t.Errorf("Divide round down = %d, want -33333334", got)
	}
}

func TestDivideByZeroPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on division by zero")
		}
	}()
	pip.Divide(pip.One, 0, pip.RoundTowardZero)
}

func TestMultiplyFraction(t *testing.T) {
	// 100 * 1/3, truncated
	if got := pip.MultiplyFraction(100, 1, 3, pip.RoundTowardZero); got != 33 {
		t.Errorf("MultiplyFraction = %d, want 33", got)
	}
	if got := pip.MultiplyFraction(-100, 1, 3, pip.RoundDown); got != -34 {
		t.Errorf("MultiplyFraction round down = %d, want -34", got)
	}
}

func TestAddSubOverflow(t *testing.T) {
	if got := pip.Add(1, 2); got != 3 {
		t.Errorf("Add = %d, want 3", got)
	}
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on addition overflow")
		}
	}()
	pip.Add(1<<63-1, 1)
}

func TestFromDecimal(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"1", pip.One, false},
		{"1.5", 150_000_000, false},
		{"-0.00000001", -1, false},
		{"0.000000019", 1, false},  // ninth digit truncated toward zero
		{"-0.000000019", -1, false}, // truncation is toward zero, not down
		{"2000.12345678", 200012345678, false},
		{"", 0, true},
		{"abc", 0, true},
		{"99999999999999999999", 0, true},
	}
	for _, tt := range tests {
		got, err := pip.FromDecimal(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("FromDecimal(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if err == nil && got != tt.want {
			t.Errorf("FromDecimal(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestString(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{pip.One, "1"},
		{150_000_000, "1.5"},
		{-1, "-0.00000001"},
		{0, "0"},
		{200012345678, "2000.12345678"},
	}
	for _, tt := range tests {
		if got := pip.String(tt.in); got != tt.want {
			t.Errorf("String(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDecimalRoundTrip(t *testing.T) {
	for _, v := range []int64{0, 1, -1, pip.One, -pip.One, 123456789012345} {
		s := pip.String(v)
		back, err := pip.FromDecimal(s)
		if err != nil {
			t.Fatalf("FromDecimal(%q): %v", s, err)
		}
		if back != v {
			t.Errorf("round trip %d -> %q -> %d", v, s, back)
		}
	}
}
