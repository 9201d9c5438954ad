package extract

import "testing"

func intp(n int) *int { return &n }

func TestParseRooms(t *testing.T) {
	tests := []struct {
		text string
		want *int
	}{
		{"Apartament 2 camere decomandat Pacurari", intp(2)},
		{"Vand ap 3 cam Tatarasi", intp(3)},
		{"Garsoniera moderna Copou", intp(1)},
		{"Spatiu comercial central", nil},
		{"Apartament 11 camere", nil},
	}

	for _, tt := range tests {
		got := Parse(tt.text).Rooms
		if (got == nil) != (tt.want == nil) {
			t.Fatalf("%q: rooms = %v, want %v", tt.text, got, tt.want)
		}
		if got != nil && *got != *tt.want {
			t.Fatalf("%q: rooms = %d, want %d", tt.text, *got, *tt.want)
		}
	}
}

func TestParseFloor(t *testing.T) {
	tests := []struct {
		text string
		want *int
	}{
		{"Apartament etaj 3 din 8", intp(3)},
		{"Etajul 5, bloc nou", intp(5)},
		{"Apartament la parter cu gradina", intp(0)},
		{"Demisol inalt, luminos", intp(-1)},
		{"Apartament 2 camere 3/8 Nicolina", intp(3)},
		{"Apartament 9/4", nil},
		{"Apartament 2 camere Pacurari", nil},
	}

	for _, tt := range tests {
		got := Parse(tt.text).Floor
		if (got == nil) != (tt.want == nil) {
			t.Fatalf("%q: floor = %v, want %v", tt.text, got, tt.want)
		}
		if got != nil && *got != *tt.want {
			t.Fatalf("%q: floor = %d, want %d", tt.text, *got, *tt.want)
		}
	}
}

func TestParseYear(t *testing.T) {
	tests := []struct {
		text string
		want *int
	}{
		{"Bloc 1985, reabilitat termic", intp(1985)},
		{"Constructie 2018, finisaje premium", intp(2018)},
		{"An constructie 2005", intp(2005)},
		{"Apartament nou, 2022", intp(2022)},
		// Prices and surfaces must never be read as years.
		{"Pret 2020 euro negociabil", nil},
		{"Teren 2023 mp in Bucium", nil},
		{"Apartament 52023 euro", nil},
		{"Bloc 1850", nil},
	}

	for _, tt := range tests {
		got := Parse(tt.text).YearBuilt
		if (got == nil) != (tt.want == nil) {
			t.Fatalf("%q: year = %v, want %v", tt.text, got, tt.want)
		}
		if got != nil && *got != *tt.want {
			t.Fatalf("%q: year = %d, want %d", tt.text, *got, *tt.want)
		}
	}
}

func TestParseLayout(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"Apartament semidecomandat Canta", "semidecomandat"},
		{"2 camere nedecomandat", "nedecomandat"},
		{"3 camere decomandat Dacia", "decomandat"},
		{"Garsoniera Podu Ros", ""},
	}

	for _, tt := range tests {
		if got := Parse(tt.text).Layout; got != tt.want {
			t.Fatalf("%q: layout = %q, want %q", tt.text, got, tt.want)
		}
	}
}

func TestParseSqM(t *testing.T) {
	tests := []struct {
		text string
		want float64
		ok   bool
	}{
		{"Apartament 54 mp utili", 54, true},
		{"Suprafata 62,5 mp", 62.5, true},
		{"Garsoniera 31m2", 31, true},
		{"ap 48 m² Galata", 48, true},
		{"Teren 900 mp", 0, false},
		{"Apartament 2 camere", 0, false},
	}

	for _, tt := range tests {
		got := Parse(tt.text).SqM
		if tt.ok != (got != nil) {
			t.Fatalf("%q: sqm = %v, want ok=%v", tt.text, got, tt.ok)
		}
		if got != nil && *got != tt.want {
			t.Fatalf("%q: sqm = %v, want %v", tt.text, *got, tt.want)
		}
	}
}

func TestFold(t *testing.T) {
	if got := Fold("Păcurari Iași Țesătura"); got != "pacurari iasi tesatura" {
		t.Fatalf("Fold = %q", got)
	}
}
