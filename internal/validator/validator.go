// Package validator screens raw board snapshots before they are trusted as
// input to move tracking. It is the trust boundary between the external
// vision collaborator and the game record: structurally impossible positions
// are rejected here, everything downstream may assume a sane board.
package validator

import (
	"errors"
	"fmt"

	nchess "github.com/corentings/chess/v2"
	"github.com/dylhunn/dragontoothmg"
	"github.com/hashicorp/go-multierror"

	"github.com/chesslens/chesslens/internal/board"
)

// Category labels the check that raised an issue.
type Category string

const (
	CategoryKingCount  Category = "king_count"
	CategoryMaterial   Category = "material"
	CategoryPawnRank   Category = "pawn_rank"
	CategoryCheckState Category = "check_state"
)

// Issue is one diagnostic raised against a snapshot. A snapshot is accepted
// iff it raises zero issues.
type Issue struct {
	Category Category
	Message  string
}

func (i Issue) String() string {
	return fmt.Sprintf("%s: %s", i.Category, i.Message)
}

// IssuesError folds issues into a single error value for logging. Returns
// nil for an empty list.
func IssuesError(issues []Issue) error {
	var errs error
	for _, issue := range issues {
		errs = multierror.Append(errs, errors.New(issue.String()))
	}
	return errs
}

const (
	// DefaultMaterialImbalanceLimit is the plausibility threshold: a snapshot
	// whose material totals differ by more than this is flagged as a likely
	// misdetection.
	DefaultMaterialImbalanceLimit = 15

	maxPawns      = 8
	maxMinors     = 10 // knights/bishops/rooks, accounting for promotions
	maxQueens     = 9
	maxSidePieces = 16
)

var pieceValues = map[nchess.PieceType]int{
	nchess.Pawn:   1,
	nchess.Knight: 3,
	nchess.Bishop: 3,
	nchess.Rook:   5,
	nchess.Queen:  9,
}

// Config carries the validator's tunables. Passed in at construction so
// independent tracking sessions do not share ambient state.
type Config struct {
	MaterialImbalanceLimit int
}

func (c Config) withDefaults() Config {
	if c.MaterialImbalanceLimit <= 0 {
		c.MaterialImbalanceLimit = DefaultMaterialImbalanceLimit
	}
	return c
}

type Validator struct {
	cfg Config
}

func New(cfg Config) *Validator {
	return &Validator{cfg: cfg.withDefaults()}
}

// Validate decides whether a snapshot is structurally plausible. turn is the
// side to move in the position the snapshot is believed to represent; it only
// matters for the check-state test. Pure and total: never fails, always
// returns the issues it raised. Evaluation short-circuits once a check group
// reports a fatal issue, but every issue raised up to that point is returned.
func (v *Validator) Validate(s board.Snapshot, turn nchess.Color) (bool, []Issue) {
	var issues []Issue

	if issues = v.checkKings(s, issues); len(issues) > 0 {
		return false, issues
	}
	if issues = v.checkMaterialCeiling(s, issues); len(issues) > 0 {
		return false, issues
	}
	if issues = v.checkPawnPlacement(s, issues); len(issues) > 0 {
		return false, issues
	}
	if issues = v.checkCheckState(s, turn, issues); len(issues) > 0 {
		return false, issues
	}
	return true, nil
}

func (v *Validator) checkKings(s board.Snapshot, issues []Issue) []Issue {
	if n := s.Count(nchess.King, nchess.White); n != 1 {
		issues = append(issues, Issue{CategoryKingCount, fmt.Sprintf("invalid white king count: %d", n)})
	}
	if n := s.Count(nchess.King, nchess.Black); n != 1 {
		issues = append(issues, Issue{CategoryKingCount, fmt.Sprintf("invalid black king count: %d", n)})
	}
	return issues
}

func (v *Validator) checkMaterialCeiling(s board.Snapshot, issues []Issue) []Issue {
	type ceiling struct {
		pt    nchess.PieceType
		max   int
		label string
	}
	ceilings := []ceiling{
		{nchess.Pawn, maxPawns, "pawns"},
		{nchess.Knight, maxMinors, "knights"},
		{nchess.Bishop, maxMinors, "bishops"},
		{nchess.Rook, maxMinors, "rooks"},
		{nchess.Queen, maxQueens, "queens"},
	}
	for _, color := range []nchess.Color{nchess.White, nchess.Black} {
		total := 0
		for pt := nchess.King; pt <= nchess.Pawn; pt++ {
			total += s.Count(pt, color)
		}
		for _, c := range ceilings {
			if n := s.Count(c.pt, color); n > c.max {
				issues = append(issues, Issue{CategoryMaterial,
					fmt.Sprintf("too many %s %s: %d", colorName(color), c.label, n)})
			}
		}
		if total > maxSidePieces {
			issues = append(issues, Issue{CategoryMaterial,
				fmt.Sprintf("too many %s pieces: %d", colorName(color), total)})
		}
	}
	return issues
}

func (v *Validator) checkPawnPlacement(s board.Snapshot, issues []Issue) []Issue {
	for _, rank := range []nchess.Rank{nchess.Rank1, nchess.Rank8} {
		for file := nchess.FileA; file <= nchess.FileH; file++ {
			sq := nchess.NewSquare(file, rank)
			if p := s.Piece(sq); p != nchess.NoPiece && p.Type() == nchess.Pawn {
				edge := "first"
				if rank == nchess.Rank8 {
					edge = "last"
				}
				issues = append(issues, Issue{CategoryPawnRank,
					fmt.Sprintf("pawn on %s rank at %s", edge, sq.String())})
			}
		}
	}
	return issues
}

// checkCheckState rejects positions where the side that is not to move is in
// check: the mover could capture the king, which no legal game reaches. The
// predicate is evaluated by re-encoding the snapshot with the side-to-move
// flag toggled and asking the movegen library whether the (now) side to move
// is in check.
func (v *Validator) checkCheckState(s board.Snapshot, turn nchess.Color, issues []Issue) []Issue {
	b := dragontoothmg.ParseFen(s.FEN(turn.Other()))
	if b.OurKingInCheck() {
		issues = append(issues, Issue{CategoryCheckState, "side not to move is in check"})
	}
	return issues
}

// Plausible is a soft heuristic, separate from acceptance: it flags
// snapshots whose material imbalance exceeds the configured limit as likely
// misdetections. Callers use it as a warning signal, never as a rejection.
func (v *Validator) Plausible(s board.Snapshot) bool {
	if s.Count(nchess.King, nchess.White) != 1 || s.Count(nchess.King, nchess.Black) != 1 {
		return false
	}
	diff := v.materialTotal(s, nchess.White) - v.materialTotal(s, nchess.Black)
	if diff < 0 {
		diff = -diff
	}
	return diff <= v.cfg.MaterialImbalanceLimit
}

func (v *Validator) materialTotal(s board.Snapshot, color nchess.Color) int {
	total := 0
	for pt, value := range pieceValues {
		total += s.Count(pt, color) * value
	}
	return total
}

func colorName(c nchess.Color) string {
	if c == nchess.White {
		return "white"
	}
	return "black"
}
