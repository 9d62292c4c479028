package keypad

import (
	"errors"
	"testing"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		col, row int
		want     string
	}{
		{0, 0, "1"},
		{1, 0, "2"},
		{3, 0, "A"},
		{1, 1, "5"},
		{3, 2, "C"},
		{0, 3, "*"},
		{1, 3, "0"},
		{2, 3, "#"},
		{3, 3, "D"},
	}
	for _, tt := range tests {
		got, err := Resolve(tt.col, tt.row)
		if err != nil {
			t.Errorf("Resolve(%d, %d): unexpected error: %v", tt.col, tt.row, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Resolve(%d, %d) = %q, want %q", tt.col, tt.row, got, tt.want)
		}
	}
}

func TestResolveOutOfRange(t *testing.T) {
	for _, c := range [][2]int{{-1, 0}, {0, -1}, {4, 0}, {0, 4}, {9, 9}} {
		_, err := Resolve(c[0], c[1])
		var le *LogicError
		if !errors.As(err, &le) {
			t.Errorf("Resolve(%d, %d): expected LogicError, got %v", c[0], c[1], err)
			continue
		}
		if le.Col != c[0] || le.Row != c[1] {
			t.Errorf("LogicError = %+v, want col %d row %d", le, c[0], c[1])
		}
	}
}

func TestKeys(t *testing.T) {
	keys := Keys()
	want := "123A456B789C*0#D"
	if len(keys) != len(want) {
		t.Fatalf("expected %d keys, got %d", len(want), len(keys))
	}
	seen := make(map[string]bool)
	for i, k := range keys {
		if k != string(want[i]) {
			t.Errorf("keys[%d] = %q, want %q", i, k, string(want[i]))
		}
		if seen[k] {
			t.Errorf("duplicate key %q", k)
		}
		seen[k] = true
	}
}
