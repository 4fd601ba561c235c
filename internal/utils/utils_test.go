package utils

import "testing"

func TestIsNumeric(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"46986414", true},
		{"7", true},
		{"", false},
		{"46986414x", false},
		{"-7", false},
		{"4.5", false},
	}
	for _, c := range cases {
		if got := IsNumeric(c.in); got != c.want {
			t.Errorf("IsNumeric(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestIsSetCode(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"SDK", true},
		{"LOB-EN001", true},
		{"sdk", true},
		{"ab12", true},
		{"A", false},
		{"TOOLONG", false},
		{"LOB-", false},
		{"L B", false},
	}
	for _, c := range cases {
		if got := IsSetCode(c.in); got != c.want {
			t.Errorf("IsSetCode(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestNormalizeToken(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"  Dark   Magician ", "dark magician"},
		{"KURIBOH", "kuriboh"},
		{"7", "7"},
		{"", ""},
	}
	for _, c := range cases {
		if got := NormalizeToken(c.in); got != c.want {
			t.Errorf("NormalizeToken(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
