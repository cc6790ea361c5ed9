package money

import "testing"

func TestFromFloat(t *testing.T) {
	tests := []struct {
		dollars float64
		want    Cents
	}{
		{0, 0},
		{231.50, 23150},
		{0.01, 1},
		{0.005, 1}, // rounds half away from zero
		{-12.34, -1234},
		{99.999, 10000},
	}

	for _, tt := range tests {
		if got := FromFloat(tt.dollars); got != tt.want {
			t.Errorf("FromFloat(%v) = %d, want %d", tt.dollars, got, tt.want)
		}
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		want    Cents
		wantErr bool
	}{
		{"231.50", 23150, false},
		{"231.5", 23150, false},
		{"231", 23100, false},
		{"0.01", 1, false},
		{".50", 50, false},
		{"-12.34", -1234, false},
		{"231.509", 23151, false}, // extra precision rounds like FromFloat
		{"231.504", 23150, false},
		{"1.999", 200, false},
		{"-1.999", -200, false},
		{"0.005", 1, false},
		{"", 0, true},
		{"abc", 0, true},
		{"12.x", 0, true},
	}

	for _, tt := range tests {
		got, err := Parse(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("Parse(%q) expected error, got %d", tt.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("Parse(%q) unexpected error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Parse(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestString(t *testing.T) {
	tests := []struct {
		in   Cents
		want string
	}{
		{23150, "231.50"},
		{1, "0.01"},
		{0, "0.00"},
		{-1234, "-12.34"},
		{100, "1.00"},
	}

	for _, tt := range tests {
		if got := tt.in.String(); got != tt.want {
			t.Errorf("Cents(%d).String() = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRoundTripEquality(t *testing.T) {
	// Two float values rendering the same price must compare equal in cents
	a := FromFloat(231.5)
	b := FromFloat(231.49999999999997)
	if a != b {
		t.Errorf("equivalent prices compare unequal: %d vs %d", a, b)
	}
}
