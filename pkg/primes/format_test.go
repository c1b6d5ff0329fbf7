package primes

import "testing"

func TestFormat(t *testing.T) {
	tests := []struct {
		name    string
		ps      []int
		perLine int
		want    string
	}{
		{"empty", nil, 10, ""},
		{"single", []int{2}, 10, "2"},
		{"one line", []int{2, 3, 5, 7}, 0, "2 3 5 7"},
		{"wrapped", []int{2, 3, 5, 7, 11}, 2, "2 3\n5 7\n11"},
		{"exact rows", []int{2, 3, 5, 7}, 2, "2 3\n5 7"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Format(tt.ps, tt.perLine); got != tt.want {
				t.Errorf("Format(%v, %d) = %q, want %q", tt.ps, tt.perLine, got, tt.want)
			}
		})
	}
}
