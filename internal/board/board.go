// Package board defines the observed-snapshot data model shared by the
// validator, the move tracker and the notation assembler. A Snapshot is a
// pure value: 64 cells indexed by square, no history, cell-wise equality.
package board

import (
	"errors"
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"
)

// ErrMalformedSnapshot indicates an upstream collaborator defect (wrong cell
// count or an unknown piece symbol), not a tracking ambiguity.
var ErrMalformedSnapshot = errors.New("board: malformed snapshot")

// Snapshot is a complete observed piece placement, indexed by nchess.Square
// (A1 == 0). Empty cells hold nchess.NoPiece. Snapshots are array values and
// copy on assignment, so callers can never alias "previous" and "current".
type Snapshot [64]nchess.Piece

// Piece returns the occupant of sq, or nchess.NoPiece.
func (s Snapshot) Piece(sq nchess.Square) nchess.Piece {
	if sq < 0 || int(sq) >= len(s) {
		return nchess.NoPiece
	}
	return s[sq]
}

// Equal reports cell-wise equality.
func (s Snapshot) Equal(other Snapshot) bool { return s == other }

// Change records one square whose occupant differs between two snapshots.
type Change struct {
	Square nchess.Square
	Before nchess.Piece
	After  nchess.Piece
}

// Diff returns the squares whose occupant differs between prev and next, in
// ascending square order. The result is transient; it is recomputed per
// comparison and never stored.
func Diff(prev, next Snapshot) []Change {
	var changes []Change
	for sq := nchess.A1; sq <= nchess.H8; sq++ {
		if prev[sq] != next[sq] {
			changes = append(changes, Change{Square: sq, Before: prev[sq], After: next[sq]})
		}
	}
	return changes
}

var symbolToPiece = map[string]nchess.Piece{
	"K": nchess.WhiteKing, "Q": nchess.WhiteQueen, "R": nchess.WhiteRook,
	"B": nchess.WhiteBishop, "N": nchess.WhiteKnight, "P": nchess.WhitePawn,
	"k": nchess.BlackKing, "q": nchess.BlackQueen, "r": nchess.BlackRook,
	"b": nchess.BlackBishop, "n": nchess.BlackKnight, "p": nchess.BlackPawn,
}

var pieceToSymbol = func() map[nchess.Piece]string {
	m := make(map[nchess.Piece]string, len(symbolToPiece))
	for sym, p := range symbolToPiece {
		m[p] = sym
	}
	return m
}()

// ParseCells builds a Snapshot from 64 piece symbols in square order
// (a1, b1, ..., h8). Empty cells are "" or ".". Any other shape is a
// precondition violation reported as ErrMalformedSnapshot.
func ParseCells(cells []string) (Snapshot, error) {
	var s Snapshot
	if len(cells) != len(s) {
		return s, fmt.Errorf("%w: got %d cells, want %d", ErrMalformedSnapshot, len(cells), len(s))
	}
	for i, sym := range cells {
		sym = strings.TrimSpace(sym)
		if sym == "" || sym == "." {
			s[i] = nchess.NoPiece
			continue
		}
		p, ok := symbolToPiece[sym]
		if !ok {
			return Snapshot{}, fmt.Errorf("%w: unknown piece symbol %q at cell %d", ErrMalformedSnapshot, sym, i)
		}
		s[i] = p
	}
	return s, nil
}

// Cells is the inverse of ParseCells: 64 symbols in square order with ""
// for empty cells.
func (s Snapshot) Cells() []string {
	cells := make([]string, len(s))
	for i, p := range s {
		if p != nchess.NoPiece {
			cells[i] = pieceToSymbol[p]
		}
	}
	return cells
}

// FromPosition captures the piece placement of a rules-engine position.
func FromPosition(pos *nchess.Position) Snapshot {
	var s Snapshot
	b := pos.Board()
	for sq := nchess.A1; sq <= nchess.H8; sq++ {
		s[sq] = b.Piece(sq)
	}
	return s
}

// FromFEN captures the piece placement encoded by a FEN string.
func FromFEN(fen string) (Snapshot, error) {
	opt, err := nchess.FEN(fen)
	if err != nil {
		return Snapshot{}, fmt.Errorf("board: parse fen: %w", err)
	}
	return FromPosition(nchess.NewGame(opt).Position()), nil
}

// StartingPosition returns the standard initial placement.
func StartingPosition() Snapshot {
	return FromPosition(nchess.StartingPosition())
}

// FEN encodes the snapshot as a full FEN record with the given side to move.
// Castling rights are granted per side when the king and the respective rook
// still stand on their home squares; there is no way to tell from a single
// observation whether they have moved before, and granting keeps castling
// visible to the legal-move fallback. En passant and the move counters are
// unknowable from one frame and default to "- 0 1".
func (s Snapshot) FEN(turn nchess.Color) string {
	var sb strings.Builder
	for rank := nchess.Rank8; ; rank-- {
		empty := 0
		for file := nchess.FileA; file <= nchess.FileH; file++ {
			p := s[nchess.NewSquare(file, rank)]
			if p == nchess.NoPiece {
				empty++
				continue
			}
			if empty > 0 {
				fmt.Fprintf(&sb, "%d", empty)
				empty = 0
			}
			sb.WriteString(pieceToSymbol[p])
		}
		if empty > 0 {
			fmt.Fprintf(&sb, "%d", empty)
		}
		if rank == nchess.Rank1 {
			break
		}
		sb.WriteByte('/')
	}

	sb.WriteByte(' ')
	if turn == nchess.Black {
		sb.WriteByte('b')
	} else {
		sb.WriteByte('w')
	}

	sb.WriteByte(' ')
	rights := s.castlingRights()
	if rights == "" {
		rights = "-"
	}
	sb.WriteString(rights)

	sb.WriteString(" - 0 1")
	return sb.String()
}

func (s Snapshot) castlingRights() string {
	var sb strings.Builder
	if s[nchess.E1] == nchess.WhiteKing {
		if s[nchess.H1] == nchess.WhiteRook {
			sb.WriteByte('K')
		}
		if s[nchess.A1] == nchess.WhiteRook {
			sb.WriteByte('Q')
		}
	}
	if s[nchess.E8] == nchess.BlackKing {
		if s[nchess.H8] == nchess.BlackRook {
			sb.WriteByte('k')
		}
		if s[nchess.A8] == nchess.BlackRook {
			sb.WriteByte('q')
		}
	}
	return sb.String()
}

// Count returns the number of pieces of the given type and color.
func (s Snapshot) Count(pt nchess.PieceType, color nchess.Color) int {
	n := 0
	for _, p := range s {
		if p != nchess.NoPiece && p.Type() == pt && p.Color() == color {
			n++
		}
	}
	return n
}
