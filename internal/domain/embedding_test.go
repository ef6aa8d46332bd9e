package domain

import "testing"

func TestEmbedText(t *testing.T) {
	tests := []struct {
		name        string
		productName string
		description string
		expected    string
	}{
		{"name and description", "Zapatillas Runner", "Ligeras y transpirables", "Zapatillas Runner. Ligeras y transpirables"},
		{"name only", "Zapatillas Runner", "", "Zapatillas Runner"},
		{"whitespace description", "Zapatillas Runner", "   ", "Zapatillas Runner"},
		{"trims both sides", "  Camiseta  ", " Algodón ", "Camiseta. Algodón"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := EmbedText(tc.productName, tc.description); got != tc.expected {
				t.Errorf("EmbedText(%q, %q) = %q, want %q", tc.productName, tc.description, got, tc.expected)
			}
		})
	}
}
