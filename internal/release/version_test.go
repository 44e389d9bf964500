package release

import "testing"

func TestCanonical(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"0.7.2", "v0.7.2"},
		{"v0.7.2", "v0.7.2"},
		{"1.0.0-rc.1", "v1.0.0-rc.1"},
	}
	for _, tt := range tests {
		if got := Canonical(tt.in); got != tt.want {
			t.Errorf("Canonical(%q) = %q; want %q", tt.in, got, tt.want)
		}
	}
}

func TestSame(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"v0.7.2", "0.7.2", true},
		{"0.7.2", "0.7.2", true},
		{"v0.7.2", "v0.7.3", false},
		{"unknown", "v0.7.2", false},
		{"unknown", "unknown", true},
		{"", "v0.7.2", false},
	}
	for _, tt := range tests {
		if got := Same(tt.a, tt.b); got != tt.want {
			t.Errorf("Same(%q, %q) = %v; want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestIsValid(t *testing.T) {
	if !IsValid("1.2.3") {
		t.Error("IsValid(1.2.3) should be true")
	}
	if IsValid("latest") {
		t.Error("IsValid(latest) should be false")
	}
}
