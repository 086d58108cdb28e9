package roomkey

import "testing"

func TestGenerateFormat(t *testing.T) {
	for i := 0; i < 100; i++ {
		key := Generate()
		if len(key) != Length {
			t.Fatalf("Expected length %d, got %q", Length, key)
		}
		if !Validate(key) {
			t.Fatalf("Generated key fails its own validation: %q", key)
		}
	}
}

func TestGenerateDispersion(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		seen[Generate()] = true
	}
	// 36^6 keys; 1000 draws colliding down to under 990 distinct would
	// indicate a broken generator, not bad luck.
	if len(seen) < 990 {
		t.Errorf("Expected near-unique keys, got %d distinct out of 1000", len(seen))
	}
}

func TestGlyphDistributionIsUniform(t *testing.T) {
	// Every accepted random byte must map to a glyph, and the acceptance set
	// must divide evenly across the alphabet; otherwise front glyphs would be
	// more likely and keys easier to guess.
	counts := make(map[byte]int)
	accepted := 0
	for b := 0; b < 256; b++ {
		if byte(b) >= maxRandByte {
			continue
		}
		counts[alphabet[b%len(alphabet)]]++
		accepted++
	}

	if accepted%len(alphabet) != 0 {
		t.Fatalf("Acceptance set of %d bytes does not divide evenly across %d glyphs", accepted, len(alphabet))
	}
	want := accepted / len(alphabet)
	for i := 0; i < len(alphabet); i++ {
		if got := counts[alphabet[i]]; got != want {
			t.Errorf("Glyph %c drawn from %d byte values, expected %d", alphabet[i], got, want)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		key   string
		valid bool
	}{
		{"ABC123", true},
		{"ZZZZZZ", true},
		{"000000", true},
		{"abc123", false}, // lowercase is the caller's job to normalize
		{"ABC12", false},
		{"ABC1234", false},
		{"ABC 12", false},
		{"AB-123", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := Validate(tt.key); got != tt.valid {
			t.Errorf("Validate(%q) = %v, expected %v", tt.key, got, tt.valid)
		}
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"abc123", "ABC123"},
		{"  ABC123  ", "ABC123"},
		{"\tqW3rT9\n", "QW3RT9"},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, expected %q", tt.in, got, tt.want)
		}
	}
}
