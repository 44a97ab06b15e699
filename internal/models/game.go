package models

// Tic-tac-toe game document. One document exists per conversation at a time,
// shared by both players, last-writer-wins. The turn discipline keeps
// concurrent writes out in practice; no locking is attempted.

// Game status values.
const (
	GameStatusActive    = "active"
	GameStatusWon       = "won"
	GameStatusDraw      = "draw"
	GameStatusForfeited = "forfeited"
)

// Player symbols. The inviter always plays X and moves first.
const (
	SymbolX = "X"
	SymbolO = "O"
)

// TicTacToeState is the shared mutable game document.
type TicTacToeState struct {
	Board       [9]string       `json:"board"`
	Turn        uint            `json:"turn"` // player id, 0 when terminal
	Status      string          `json:"status"`
	Players     map[uint]string `json:"players"` // id -> symbol
	StartedBy   uint            `json:"started_by"`
	Winner      uint            `json:"winner,omitempty"` // 0 for draw
	WinningLine []int           `json:"winning_line,omitempty"`
}

// NewTicTacToe builds the initial document after an invitation is accepted.
func NewTicTacToe(inviter, invitee uint) *TicTacToeState {
	return &TicTacToeState{
		Turn:      inviter,
		Status:    GameStatusActive,
		Players:   map[uint]string{inviter: SymbolX, invitee: SymbolO},
		StartedBy: inviter,
	}
}

// Symbol returns the symbol assigned to the given player, or "".
func (g *TicTacToeState) Symbol(playerID uint) string {
	return g.Players[playerID]
}

// Opponent returns the other participant's id.
func (g *TicTacToeState) Opponent(playerID uint) uint {
	for id := range g.Players {
		if id != playerID {
			return id
		}
	}
	return 0
}

// winLines are the eight tic-tac-toe win conditions: three rows, three
// columns, two diagonals.
var winLines = [8][3]int{
	{0, 1, 2}, {3, 4, 5}, {6, 7, 8},
	{0, 3, 6}, {1, 4, 7}, {2, 5, 8},
	{0, 4, 8}, {2, 4, 6},
}

// CheckWinner scans the board. It returns the winning symbol and line, or
// done=true with an empty symbol when the board is full (draw). A game still
// in progress returns done=false.
func CheckWinner(board [9]string) (symbol string, line []int, done bool) {
	for _, l := range winLines {
		p := board[l[0]]
		if p != "" && p == board[l[1]] && p == board[l[2]] {
			return p, []int{l[0], l[1], l[2]}, true
		}
	}
	for _, cell := range board {
		if cell == "" {
			return "", nil, false
		}
	}
	return "", nil, true
}

// ApplyMove mutates the board for the given player and resolves the outcome.
// The caller is responsible for turn/cell/status validation.
func (g *TicTacToeState) ApplyMove(playerID uint, cell int) {
	g.Board[cell] = g.Players[playerID]

	symbol, winLine, done := CheckWinner(g.Board)
	switch {
	case done && symbol != "":
		g.Status = GameStatusWon
		g.WinningLine = winLine
		g.Turn = 0
		for id, s := range g.Players {
			if s == symbol {
				g.Winner = id
			}
		}
	case done:
		g.Status = GameStatusDraw
		g.Turn = 0
	default:
		g.Turn = g.Opponent(playerID)
	}
}

// Forfeit ends the game in the opponent's favor.
func (g *TicTacToeState) Forfeit(playerID uint) {
	g.Status = GameStatusForfeited
	g.Winner = g.Opponent(playerID)
	g.Turn = 0
}
