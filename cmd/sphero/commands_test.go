package main

import "testing"

func TestParseRGB(t *testing.T) {
	tests := []struct {
		in      string
		r, g, b uint8
		wantErr bool
	}{
		{"ff8000", 0xFF, 0x80, 0x00, false},
		{"#00FF7f", 0x00, 0xFF, 0x7F, false},
		{"fff", 0, 0, 0, true},
		{"zzzzzz", 0, 0, 0, true},
		{"ff800000", 0, 0, 0, true},
	}
	for _, tt := range tests {
		r, g, b, err := parseRGB(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseRGB(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if r != tt.r || g != tt.g || b != tt.b {
			t.Errorf("parseRGB(%q) = %02x%02x%02x, want %02x%02x%02x", tt.in, r, g, b, tt.r, tt.g, tt.b)
		}
	}
}

func TestDisplayName(t *testing.T) {
	if got := displayName(""); got != "(unnamed)" {
		t.Errorf("displayName(\"\") = %q, want %q", got, "(unnamed)")
	}
	if got := displayName("BB-8"); got != "BB-8" {
		t.Errorf("displayName(\"BB-8\") = %q, want %q", got, "BB-8")
	}
}
