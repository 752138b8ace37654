// Package tracker infers legal chess moves from consecutive accepted board
// snapshots and accumulates them in an append-only game record.
//
// Inference diffs the previously accepted snapshot against the new one and
// classifies the diff shape: two changed squares are an ordinary move or
// capture (possibly a promotion), four are a castling candidate, three an en
// passant candidate. Every classification is verified against the rules
// engine before it is trusted; anything that fails verification falls back
// to an exhaustive scan of the legal moves at the previous position.
package tracker

import (
	"errors"
	"fmt"

	nchess "github.com/corentings/chess/v2"
	"github.com/google/uuid"

	"github.com/chesslens/chesslens/internal/board"
)

// ErrUnresolved reports that no legal move explains the observed transition.
// The caller treats the frame as noise and retries on the next snapshot; the
// record is left untouched.
var ErrUnresolved = errors.New("tracker: no legal move explains the observed position")

// MoveKind classifies how a move was recognized.
type MoveKind uint8

const (
	KindNormal MoveKind = iota
	KindCastle
	KindEnPassant
	KindPromotion
)

func (k MoveKind) String() string {
	switch k {
	case KindCastle:
		return "castle"
	case KindEnPassant:
		return "en_passant"
	case KindPromotion:
		return "promotion"
	default:
		return "normal"
	}
}

// Move is one inferred move. Immutable once constructed.
type Move struct {
	From  nchess.Square
	To    nchess.Square
	Promo nchess.PieceType // NoPieceType unless Kind == KindPromotion
	Kind  MoveKind
}

var promoLetters = map[nchess.PieceType]string{
	nchess.Queen:  "q",
	nchess.Rook:   "r",
	nchess.Bishop: "b",
	nchess.Knight: "n",
}

// UCI renders the move in coordinate notation, e.g. "e2e4" or "e7e8q".
func (m Move) UCI() string {
	s := m.From.String() + m.To.String()
	if m.Promo != nchess.NoPieceType {
		s += promoLetters[m.Promo]
	}
	return s
}

func (m Move) String() string { return m.UCI() }

// Record is the accumulated state of one tracked game: the initial snapshot,
// the ordered accepted moves, and the most recently accepted snapshot. It is
// the only mutable entity in the pipeline and assumes sequential
// single-writer access; moves are never rolled back once appended.
type Record struct {
	id         string
	initial    board.Snapshot
	initialFEN string
	accepted   board.Snapshot
	moves      []Move
	game       *nchess.Game
}

// NewRecord starts a record from the first accepted snapshot. turn is the
// side to move in that position (White for a game observed from the start).
func NewRecord(initial board.Snapshot, turn nchess.Color) (*Record, error) {
	fen := initial.FEN(turn)
	opt, err := nchess.FEN(fen)
	if err != nil {
		return nil, fmt.Errorf("tracker: initial snapshot not playable: %w", err)
	}
	return &Record{
		id:         uuid.NewString(),
		initial:    initial,
		initialFEN: fen,
		accepted:   initial,
		game:       nchess.NewGame(opt),
	}, nil
}

func (r *Record) ID() string                { return r.id }
func (r *Record) Initial() board.Snapshot   { return r.initial }
func (r *Record) InitialFEN() string        { return r.initialFEN }
func (r *Record) Accepted() board.Snapshot  { return r.accepted }
func (r *Record) Turn() nchess.Color        { return r.game.Position().Turn() }
func (r *Record) MoveCount() int            { return len(r.moves) }

// Moves returns a copy of the accepted move sequence.
func (r *Record) Moves() []Move {
	return append([]Move(nil), r.moves...)
}

// UCIMoves returns the accepted moves in coordinate notation, in order.
func (r *Record) UCIMoves() []string {
	out := make([]string, len(r.moves))
	for i, m := range r.moves {
		out[i] = m.UCI()
	}
	return out
}

// Track infers the move explaining the transition from the accepted snapshot
// to next and appends it. A nil move with nil error means next repeats the
// accepted snapshot (no mutation). ErrUnresolved performs no mutation.
func (r *Record) Track(next board.Snapshot) (*Move, error) {
	mv, err := Infer(r.game.Position(), next)
	if err != nil {
		return nil, err
	}
	if mv == nil {
		return nil, nil
	}
	if err := r.game.PushNotationMove(mv.UCI(), nchess.UCINotation{}, nil); err != nil {
		// Infer only returns verified moves, so this indicates a defect in
		// the rules engine wiring rather than observation noise.
		return nil, fmt.Errorf("tracker: apply inferred move %s: %w", mv.UCI(), err)
	}
	r.moves = append(r.moves, *mv)
	r.accepted = next
	return mv, nil
}

// Infer determines the single legal move that transforms pos's piece
// placement into next. Pure: neither input is mutated. Returns (nil, nil)
// for an empty diff and ErrUnresolved when nothing matches.
func Infer(pos *nchess.Position, next board.Snapshot) (*Move, error) {
	prev := board.FromPosition(pos)
	changes := board.Diff(prev, next)
	if len(changes) == 0 {
		return nil, nil
	}

	if mv := classify(changes); mv != nil {
		if verified := verify(pos, mv, next); verified != nil {
			return verified, nil
		}
	}

	// Exhaustive fallback: short-circuiting scan over the legal moves,
	// each applied to a working copy and compared cell by cell. When more
	// than one candidate reproduces next (possible only in adversarial
	// synthetic data) the first in enumeration order wins; the order is
	// implementation-defined and carries no meaning.
	for _, vm := range pos.ValidMoves() {
		np := pos.Update(&vm)
		if np != nil && board.FromPosition(np).Equal(next) {
			return moveFromValid(&vm), nil
		}
	}
	return nil, ErrUnresolved
}

// classify maps a diff shape onto a move candidate without consulting the
// rules engine. The candidate is only trusted after verify confirms it is
// legal and reproduces the observed position.
func classify(changes []board.Change) *Move {
	switch len(changes) {
	case 2:
		return classifyPair(changes)
	case 3:
		return classifyEnPassant(changes)
	case 4:
		return classifyCastle(changes)
	default:
		return nil
	}
}

func classifyPair(changes []board.Change) *Move {
	var from, to *board.Change
	for i := range changes {
		c := &changes[i]
		switch {
		case c.Before != nchess.NoPiece && c.After == nchess.NoPiece:
			from = c
		case c.After != nchess.NoPiece:
			to = c
		}
	}
	if from == nil || to == nil {
		return nil
	}
	moving := from.Before
	if to.After.Color() != moving.Color() {
		return nil
	}
	if moving.Type() == nchess.Pawn && to.Square.Rank() == promotionRank(moving.Color()) {
		promo := to.After.Type()
		if promo == nchess.Pawn || promo == nchess.King {
			return nil
		}
		return &Move{From: from.Square, To: to.Square, Promo: promo, Kind: KindPromotion}
	}
	return &Move{From: from.Square, To: to.Square, Kind: KindNormal}
}

func classifyCastle(changes []board.Change) *Move {
	var kingFrom, kingTo nchess.Square = nchess.NoSquare, nchess.NoSquare
	var rookFrom, rookTo nchess.Square = nchess.NoSquare, nchess.NoSquare
	for _, c := range changes {
		switch {
		case c.Before != nchess.NoPiece && c.Before.Type() == nchess.King && c.After == nchess.NoPiece:
			kingFrom = c.Square
		case c.Before == nchess.NoPiece && c.After != nchess.NoPiece && c.After.Type() == nchess.King:
			kingTo = c.Square
		case c.Before != nchess.NoPiece && c.Before.Type() == nchess.Rook && c.After == nchess.NoPiece:
			rookFrom = c.Square
		case c.Before == nchess.NoPiece && c.After != nchess.NoPiece && c.After.Type() == nchess.Rook:
			rookTo = c.Square
		}
	}
	if kingFrom == nchess.NoSquare || kingTo == nchess.NoSquare ||
		rookFrom == nchess.NoSquare || rookTo == nchess.NoSquare {
		return nil
	}
	if fileDistance(kingFrom, kingTo) != 2 {
		return nil
	}
	// The move is keyed by the king's displacement; the rules engine places
	// the rook from castling rules, not from the diff.
	return &Move{From: kingFrom, To: kingTo, Kind: KindCastle}
}

func classifyEnPassant(changes []board.Change) *Move {
	var from, to, captured *board.Change
	for i := range changes {
		c := &changes[i]
		switch {
		case c.Before != nchess.NoPiece && c.Before.Type() == nchess.Pawn && c.After != nchess.NoPiece &&
			c.After.Type() == nchess.Pawn && c.Before != c.After:
			// same square flipping pawn color is not an en passant shape
			return nil
		case c.Before == nchess.NoPiece && c.After != nchess.NoPiece && c.After.Type() == nchess.Pawn:
			to = c
		case c.Before != nchess.NoPiece && c.Before.Type() == nchess.Pawn && c.After == nchess.NoPiece:
			// Two pawns vanish in an en passant: the mover and the victim.
			// The victim is the one on the destination file at the origin
			// rank; assign the other vanished pawn as the origin.
			if from == nil {
				from = c
			} else {
				captured = c
			}
		}
	}
	if from == nil || to == nil || captured == nil {
		return nil
	}
	// The origin/victim split above is positional guesswork; fix it up from
	// geometry: the captured pawn shares the destination's file and the
	// origin's rank.
	if from.Square.File() == to.Square.File() {
		from, captured = captured, from
	}
	if fileDistance(from.Square, to.Square) != 1 {
		return nil
	}
	if captured.Square.File() != to.Square.File() || captured.Square.Rank() != from.Square.Rank() {
		return nil
	}
	if from.Before.Color() != to.After.Color() || captured.Before.Color() == to.After.Color() {
		return nil
	}
	return &Move{From: from.Square, To: to.Square, Kind: KindEnPassant}
}

// verify confirms a classified candidate against the rules engine: it must
// decode as a legal move at pos and its application must reproduce next
// exactly. Returns nil when either test fails, sending the caller to the
// exhaustive fallback.
func verify(pos *nchess.Position, mv *Move, next board.Snapshot) *Move {
	decoded, err := nchess.UCINotation{}.Decode(pos, mv.UCI())
	if err != nil {
		return nil
	}
	legal := false
	for _, vm := range pos.ValidMoves() {
		if vm.S1() == decoded.S1() && vm.S2() == decoded.S2() && vm.Promo() == decoded.Promo() {
			legal = true
			break
		}
	}
	if !legal {
		return nil
	}
	np := pos.Update(decoded)
	if np == nil || !board.FromPosition(np).Equal(next) {
		return nil
	}
	return mv
}

func moveFromValid(vm *nchess.Move) *Move {
	m := &Move{From: vm.S1(), To: vm.S2(), Promo: vm.Promo()}
	switch {
	case vm.HasTag(nchess.KingSideCastle) || vm.HasTag(nchess.QueenSideCastle):
		m.Kind = KindCastle
	case vm.HasTag(nchess.EnPassant):
		m.Kind = KindEnPassant
	case vm.Promo() != nchess.NoPieceType:
		m.Kind = KindPromotion
	default:
		m.Kind = KindNormal
	}
	return m
}

func promotionRank(c nchess.Color) nchess.Rank {
	if c == nchess.White {
		return nchess.Rank8
	}
	return nchess.Rank1
}

func fileDistance(a, b nchess.Square) int {
	d := int(a.File()) - int(b.File())
	if d < 0 {
		d = -d
	}
	return d
}
