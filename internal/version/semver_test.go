package version

import "testing"

func TestParseSemver(t *testing.T) {
	tests := []struct {
		input string
		want  [3]int
	}{
		{"v1.2.3", [3]int{1, 2, 3}},
		{"1.2.3", [3]int{1, 2, 3}},
		{"v2.0.0-rc.1", [3]int{2, 0, 0}},
		{"v1.0.0+build123", [3]int{1, 0, 0}},
		{"v1.0.0-beta+build123", [3]int{1, 0, 0}},
		{"2.0", [3]int{2, 0, 0}},
		{"v5", [3]int{5, 0, 0}},
		{"", [3]int{0, 0, 0}},
		{"invalid", [3]int{0, 0, 0}},
		{"no.numbers.here", [3]int{0, 0, 0}},
		{"v99.99.99", [3]int{99, 99, 99}},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseSemver(tt.input); got != tt.want {
				t.Errorf("parseSemver(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestIsNewer(t *testing.T) {
	tests := []struct {
		latest, current string
		want            bool
	}{
		{"v1.0.0", "v0.9.9", true},
		{"v0.10.0", "v0.9.0", true},
		{"v0.1.10", "v0.1.9", true},
		{"v1.2.3", "v1.2.3", false},
		{"v0.1.0", "v0.2.0", false},
		{"v1.0.0-beta", "v1.0.0", false},
		{"v1.0.0", "v1.0.0-beta", false},
		{"v2.0.0-rc.1", "v1.9.9", true},
		{"v1.0.0+build1", "v1.0.0+build2", false},
		{"1.0.0", "v0.9.9", true},
	}
	for _, tt := range tests {
		t.Run(tt.latest+"_vs_"+tt.current, func(t *testing.T) {
			if got := isNewer(tt.latest, tt.current); got != tt.want {
				t.Errorf("isNewer(%q, %q) = %v, want %v", tt.latest, tt.current, got, tt.want)
			}
		})
	}
}
