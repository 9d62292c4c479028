package keypad

// layout is the printed face of the keypad, one entry per row.
//
//	+---+---+---+---+
//	| 1 | 2 | 3 | A |
//	| 4 | 5 | 6 | B |
//	| 7 | 8 | 9 | C |
//	| * | 0 | # | D |
//	+---+---+---+---+
var layout = [Rows][Cols]string{
	{"1", "2", "3", "A"},
	{"4", "5", "6", "B"},
	{"7", "8", "9", "C"},
	{"*", "0", "#", "D"},
}

// Resolve returns the key at (col, row).
func Resolve(col, row int) (string, error) {
	if col < 0 || col >= Cols || row < 0 || row >= Rows {
		return "", &LogicError{Col: col, Row: row}
	}
	return layout[row][col], nil
}

// Keys returns all sixteen keys in row-major order.
func Keys() []string {
	keys := make([]string, 0, Rows*Cols)
	for _, row := range layout {
		keys = append(keys, row[:]...)
	}
	return keys
}
