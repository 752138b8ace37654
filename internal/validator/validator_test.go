package validator

import (
	"testing"

	nchess "github.com/corentings/chess/v2"

	"github.com/chesslens/chesslens/internal/board"
)

func snapFromFEN(t *testing.T, fen string) board.Snapshot {
	t.Helper()
	s, err := board.FromFEN(fen)
	if err != nil {
		t.Fatalf("FromFEN(%q): %v", fen, err)
	}
	return s
}

func hasCategory(issues []Issue, c Category) bool {
	for _, issue := range issues {
		if issue.Category == c {
			return true
		}
	}
	return false
}

func TestValidateStartingPosition(t *testing.T) {
	ok, issues := New(Config{}).Validate(board.StartingPosition(), nchess.White)
	if !ok || len(issues) != 0 {
		t.Fatalf("expected clean acceptance, got issues %v", issues)
	}
}

func TestValidateMissingKing(t *testing.T) {
	s := board.StartingPosition()
	s[nchess.E8] = nchess.NoPiece

	ok, issues := New(Config{}).Validate(s, nchess.White)
	if ok {
		t.Fatal("expected rejection for missing black king")
	}
	if !hasCategory(issues, CategoryKingCount) {
		t.Fatalf("expected %s issue, got %v", CategoryKingCount, issues)
	}
}

func TestValidateDuplicateKing(t *testing.T) {
	s := board.StartingPosition()
	s[nchess.D4] = nchess.WhiteKing

	ok, issues := New(Config{}).Validate(s, nchess.White)
	if ok || !hasCategory(issues, CategoryKingCount) {
		t.Fatalf("expected %s issue, got ok=%v issues=%v", CategoryKingCount, ok, issues)
	}
}

func TestValidateTooManyPawns(t *testing.T) {
	s := board.StartingPosition()
	s[nchess.A3] = nchess.WhitePawn

	ok, issues := New(Config{}).Validate(s, nchess.White)
	if ok || !hasCategory(issues, CategoryMaterial) {
		t.Fatalf("expected %s issue, got ok=%v issues=%v", CategoryMaterial, ok, issues)
	}
}

func TestValidatePawnOnBackRank(t *testing.T) {
	s := board.StartingPosition()
	s[nchess.A1] = nchess.WhitePawn
	s[nchess.A2] = nchess.NoPiece

	ok, issues := New(Config{}).Validate(s, nchess.White)
	if ok || !hasCategory(issues, CategoryPawnRank) {
		t.Fatalf("expected %s issue, got ok=%v issues=%v", CategoryPawnRank, ok, issues)
	}
}

func TestValidateSideNotToMoveInCheck(t *testing.T) {
	// White queen gives check to the black king. With White to move that
	// means the mover could capture the king, which no legal game reaches.
	s := snapFromFEN(t, "4k3/4Q3/8/8/8/8/8/4K3 b - - 0 1")

	ok, issues := New(Config{}).Validate(s, nchess.White)
	if ok || !hasCategory(issues, CategoryCheckState) {
		t.Fatalf("expected %s issue, got ok=%v issues=%v", CategoryCheckState, ok, issues)
	}

	// With Black to move the same placement is a normal check.
	ok, issues = New(Config{}).Validate(s, nchess.Black)
	if !ok {
		t.Fatalf("expected acceptance with black to move, got %v", issues)
	}
}

func TestPlausibleMaterialImbalance(t *testing.T) {
	v := New(Config{})
	if !v.Plausible(board.StartingPosition()) {
		t.Fatal("starting position should be plausible")
	}

	// Full white army against a lone king: legal shape, implausible capture
	// history for mid-game footage.
	s := snapFromFEN(t, "4k3/8/8/8/8/8/PPPPPPPP/RNBQKBNR w - - 0 1")
	if v.Plausible(s) {
		t.Fatal("expected implausible material imbalance")
	}
	if ok, issues := v.Validate(s, nchess.White); !ok {
		t.Fatalf("imbalance alone must not reject, got %v", issues)
	}

	loose := New(Config{MaterialImbalanceLimit: 40})
	if !loose.Plausible(s) {
		t.Fatal("expected plausibility under a loosened limit")
	}
}
