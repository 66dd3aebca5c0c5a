package otp

import (
	"testing"
)

func TestGenerate(t *testing.T) {
	tests := []struct {
		name    string
		length  int
		wantErr bool
	}{
		{name: "default length", length: DefaultLength},
		{name: "single digit", length: 1},
		{name: "max length", length: MaxLength},
		{name: "zero length", length: 0, wantErr: true},
		{name: "negative length", length: -3, wantErr: true},
		{name: "too long", length: MaxLength + 1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, err := Generate(tt.length)

			if tt.wantErr {
				if err == nil {
					t.Errorf("Generate(%d) expected error but got %q", tt.length, code)
				}
				return
			}

			if err != nil {
				t.Fatalf("Generate(%d) error = %v", tt.length, err)
			}
			if len(code) != tt.length {
				t.Errorf("len(code) = %d, want %d", len(code), tt.length)
			}
			for _, r := range code {
				if r < '0' || r > '9' {
					t.Fatalf("code %q contains non-digit %q", code, r)
				}
			}
		})
	}
}

func TestGenerateDistribution(t *testing.T) {
	const draws = 2000

	seen := make(map[string]struct{}, draws)
	var firstDigit [10]int
	for i := 0; i < draws; i++ {
		code, err := Generate(DefaultLength)
		if err != nil {
			t.Fatalf("Generate() error = %v", err)
		}
		seen[code] = struct{}{}
		firstDigit[code[0]-'0']++
	}

	// 2000 draws from 10^6 values: collisions are expected only a handful of times.
	if len(seen) < draws-50 {
		t.Errorf("too many repeated codes: %d unique out of %d", len(seen), draws)
	}

	// Zero padding means '0' must show up as a leading digit.
	for d, count := range firstDigit {
		if count == 0 {
			t.Errorf("leading digit %d never generated", d)
		}
	}
}
