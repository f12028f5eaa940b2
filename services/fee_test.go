package services

import "testing"

func TestCalculateFee(t *testing.T) {
	cases := []struct {
		name         string
		contributors int
		want         int64
	}{
		{"no co-authors", 0, 150000},
		{"one co-author", 1, 300000},
		{"two co-authors", 2, 450000},
		{"large group", 9, 1500000},
		{"negative count clamps to zero", -3, 150000},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CalculateFee(tc.contributors); got != tc.want {
				t.Fatalf("CalculateFee(%d) = %d, want %d", tc.contributors, got, tc.want)
			}
		})
	}
}
