package expense

import "testing"

func TestIsKnownCurrency(t *testing.T) {
	tests := []struct {
		code string
		want bool
	}{
		{"USD", true},
		{"EUR", true},
		{"THB", true},
		{"usd", true},
		{" eur ", true},
		{"XYZ", false},
		{"US", false},
		{"DOLLARS", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			if got := IsKnownCurrency(tt.code); got != tt.want {
				t.Errorf("IsKnownCurrency(%q) = %v, want %v", tt.code, got, tt.want)
			}
		})
	}
}

func TestNormalizeCurrency(t *testing.T) {
	if got := NormalizeCurrency(" usd "); got != "USD" {
		t.Errorf("NormalizeCurrency = %q, want USD", got)
	}
}
