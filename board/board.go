// board/board.go
package board

// Symbol 是格子上的标记
type Symbol string

const (
	Empty Symbol = ""
	X     Symbol = "X"
	O     Symbol = "O"
)

// Size is the number of cells on the grid.
const Size = 9

// OutcomeKind 表示对局结果的类型
type OutcomeKind int

const (
	None OutcomeKind = iota
	Winner
	Draw
)

// Outcome is the result of inspecting a board. Symbol is only set for Winner.
type Outcome struct {
	Kind   OutcomeKind
	Symbol Symbol
}

// lines are checked in this order: rows, columns, diagonals.
var lines = [8][3]int{
	{0, 1, 2}, {3, 4, 5}, {6, 7, 8},
	{0, 3, 6}, {1, 4, 7}, {2, 5, 8},
	{0, 4, 8}, {2, 4, 6},
}

// Board 是 3x3 棋盘，按行展开为 9 个格子
type Board struct {
	cells [Size]Symbol
}

// New 创建空棋盘
func New() *Board {
	return &Board{}
}

// Place puts s at position. It reports false, leaving the board untouched,
// when the position is out of range, the cell is taken or s is Empty.
func (b *Board) Place(position int, s Symbol) bool {
	if position < 0 || position >= Size || s == Empty {
		return false
	}
	if b.cells[position] != Empty {
		return false
	}
	b.cells[position] = s
	return true
}

// At returns the symbol at position, Empty for out of range positions.
func (b *Board) At(position int) Symbol {
	if position < 0 || position >= Size {
		return Empty
	}
	return b.cells[position]
}

// Outcome 检查胜负：返回第一条连成一线的符号，棋盘满则平局
func (b *Board) Outcome() Outcome {
	for _, line := range lines {
		s := b.cells[line[0]]
		if s != Empty && s == b.cells[line[1]] && s == b.cells[line[2]] {
			return Outcome{Kind: Winner, Symbol: s}
		}
	}
	if b.Full() {
		return Outcome{Kind: Draw}
	}
	return Outcome{Kind: None}
}

// Full 棋盘是否已满
func (b *Board) Full() bool {
	for _, c := range b.cells {
		if c == Empty {
			return false
		}
	}
	return true
}

// Reset 清空棋盘
func (b *Board) Reset() {
	b.cells = [Size]Symbol{}
}

// Cells returns a copy of the grid.
func (b *Board) Cells() [Size]Symbol {
	return b.cells
}
