package scheduler

import "testing"

func TestCronSpec(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"08:00", "0 8 * * *"},
		{"12:30", "30 12 * * *"},
		{"04:00", "0 4 * * *"},
		{"22:05", "5 22 * * *"},
	}
	for _, tt := range tests {
		got, err := cronSpec(tt.in)
		if err != nil {
			t.Fatalf("cronSpec(%q): %v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("cronSpec(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	for _, bad := range []string{"", "8", "25:00", "08:61", "ab:cd"} {
		if _, err := cronSpec(bad); err == nil {
			t.Fatalf("cronSpec(%q) accepted invalid input", bad)
		}
	}
}
