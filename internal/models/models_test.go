package models

import "testing"

func TestParsePassengerCount(t *testing.T) {
	cases := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"1", 1, false},
		{"4", 4, false},
		{" 3 ", 3, false},
		{"5", 4, false},
		{"12", 4, false},
		{"0", 0, true},
		{"-2", 0, true},
		{"two", 0, true},
		{"", 0, true},
	}
	for _, tc := range cases {
		got, err := ParsePassengerCount(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("input %q: expected error, got %d", tc.in, got)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Fatalf("input %q: got %d err=%v, want %d", tc.in, got, err, tc.want)
		}
	}
}
