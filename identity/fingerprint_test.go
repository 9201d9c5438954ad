package identity

import "testing"

func intp(n int) *int { return &n }

func TestFingerprintFormat(t *testing.T) {
	gen := NewGenerator("Iasi")

	got := gen.Fingerprint("Pacurari", intp(2), intp(3), 54)
	if got != "pacurari_2cam_et3_54mp" {
		t.Fatalf("fingerprint = %q, want pacurari_2cam_et3_54mp", got)
	}
}

func TestFingerprintSurfaceBucket(t *testing.T) {
	gen := NewGenerator("Iasi")

	// Odd surfaces land in the even bucket below, so postings that
	// differ by a single square metre still collide.
	a := gen.Fingerprint("Pacurari", intp(2), intp(3), 54)
	b := gen.Fingerprint("Pacurari", intp(2), intp(3), 55)
	if a != b {
		t.Fatalf("54 and 55 sqm diverged: %q vs %q", a, b)
	}

	c := gen.Fingerprint("Pacurari", intp(2), intp(3), 56)
	if a == c {
		t.Fatalf("54 and 56 sqm collided: %q", a)
	}
}

func TestFingerprintMissingAttributes(t *testing.T) {
	gen := NewGenerator("Iasi")

	got := gen.Fingerprint("Copou", nil, nil, 40)
	if got != "copou_0cam_etx_40mp" {
		t.Fatalf("fingerprint = %q, want copou_0cam_etx_40mp", got)
	}

	// Unknown floor must stay distinct from ground floor.
	ground := gen.Fingerprint("Copou", nil, intp(0), 40)
	if ground == got {
		t.Fatalf("etx collided with et0: %q", got)
	}
}

func TestZoneToken(t *testing.T) {
	gen := NewGenerator("Iasi")

	tests := []struct {
		in   string
		want string
	}{
		{"Păcurari", "pacurari"},
		{"Pacurari, Iasi", "pacurari"},
		{"Iasi Tatarasi", "tatarasi"},
		{"Iași", "iasi"},
		{"", "iasi"},
	}

	for _, tt := range tests {
		if got := gen.ZoneToken(tt.in); got != tt.want {
			t.Fatalf("ZoneToken(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
