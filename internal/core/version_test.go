package core

import "testing"

func TestFormatVersion(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"v1.2.3", "1.2.3"},
		{"1.2.3", "1.2.3"},
		{"devel-abc1234", "devel-abc1234"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := FormatVersion(tt.in); got != tt.want {
			t.Errorf("FormatVersion(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestVersionNotEmpty(t *testing.T) {
	if Version == "" {
		t.Error("Version must never be empty")
	}
}
