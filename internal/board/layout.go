package board

// Starting layouts per board size. Attackers outnumber defenders two to
// one in every classic tafl array; the king starts on the throne.
var startingLayouts = map[int][]string{
	7: {
		"...A...",
		"...A...",
		"...D...",
		"AADKDAA",
		"...D...",
		"...A...",
		"...A...",
	},
	9: {
		"...AAA...",
		"....A....",
		"....D....",
		"A...D...A",
		"AADDKDDAA",
		"A...D...A",
		"....D....",
		"....A....",
		"...AAA...",
	},
	11: {
		"...AAAAA...",
		".....A.....",
		"...........",
		"A....D....A",
		"A...DDD...A",
		"AA.DDKDD.AA",
		"A...DDD...A",
		"A....D....A",
		"...........",
		".....A.....",
		"...AAAAA...",
	},
	13: {
		"....AAAAA....",
		".....AAA.....",
		".............",
		"A.....D.....A",
		"A.....D.....A",
		"A....DDD....A",
		"AA.DDDKDDD.AA",
		"A....DDD....A",
		"A.....D.....A",
		"A.....D.....A",
		".............",
		".....AAA.....",
		"....AAAAA....",
	},
}

func startingRows(size int) ([]string, error) {
	rows, ok := startingLayouts[size]
	if !ok {
		return nil, ErrBadBoardSize
	}
	return rows, nil
}

// SupportedSizes lists the board sizes with a starting layout, ascending.
func SupportedSizes() []int {
	return []int{7, 9, 11, 13}
}
