package pipeline

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	nchess "github.com/corentings/chess/v2"

	"github.com/chesslens/chesslens/internal/archive"
	"github.com/chesslens/chesslens/internal/board"
	"github.com/chesslens/chesslens/internal/notation"
	"github.com/chesslens/chesslens/internal/tracker"
	"github.com/chesslens/chesslens/internal/validator"
	"github.com/chesslens/chesslens/pkg/visiondto"
)

func newTestRunner(t *testing.T, repo archive.Repository) *Runner {
	t.Helper()
	record, err := tracker.NewRecord(board.StartingPosition(), nchess.White)
	if err != nil {
		t.Fatalf("NewRecord: %v", err)
	}
	runner, err := NewRunner(context.Background(), Deps{
		Validator: validator.New(validator.Config{}),
		Record:    record,
		Assembler: notation.NewAssembler(notation.Config{}),
		Archive:   repo,
		Source:    "test",
	})
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	return runner
}

func frameAfterUCI(t *testing.T, index int, ucis ...string) visiondto.Frame {
	t.Helper()
	game := nchess.NewGame()
	for _, u := range ucis {
		if err := game.PushNotationMove(u, nchess.UCINotation{}, nil); err != nil {
			t.Fatalf("push %s: %v", u, err)
		}
	}
	return visiondto.Frame{Index: index, Cells: board.FromPosition(game.Position()).Cells()}
}

func TestProcessFrameOutcomes(t *testing.T) {
	runner := newTestRunner(t, nil)
	ctx := context.Background()

	// A clean move.
	out, err := runner.ProcessFrame(ctx, frameAfterUCI(t, 1, "e2e4"))
	if err != nil || out != OutcomeMove {
		t.Fatalf("expected move outcome, got %v err=%v", out, err)
	}

	// The same snapshot again: no change, no mutation.
	out, err = runner.ProcessFrame(ctx, frameAfterUCI(t, 2, "e2e4"))
	if err != nil || out != OutcomeNoChange {
		t.Fatalf("expected no_change outcome, got %v err=%v", out, err)
	}

	// A snapshot with the black king missing is rejected by validation.
	bad := frameAfterUCI(t, 3, "e2e4")
	bad.Cells[int(nchess.E8)] = ""
	out, err = runner.ProcessFrame(ctx, bad)
	if err != nil || out != OutcomeRejected {
		t.Fatalf("expected rejected outcome, got %v err=%v", out, err)
	}

	// Valid placement that no legal move reaches: unresolved.
	scatter := board.StartingPosition()
	scatter[nchess.A2] = nchess.NoPiece
	scatter[nchess.H2] = nchess.NoPiece
	out, err = runner.ProcessFrame(ctx, visiondto.Frame{Index: 4, Cells: scatter.Cells()})
	if err != nil || out != OutcomeUnresolved {
		t.Fatalf("expected unresolved outcome, got %v err=%v", out, err)
	}

	stats := runner.Stats()
	if stats.Frames != 4 || stats.Moves != 1 || stats.NoChange != 1 || stats.Rejected != 1 || stats.Unresolved != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if runner.Record().MoveCount() != 1 {
		t.Fatalf("record advanced by a non-move frame: %d", runner.Record().MoveCount())
	}
}

func TestRunJSONLAndFinalize(t *testing.T) {
	repo := archive.NewMemoryRepository()
	runner := newTestRunner(t, repo)
	ctx := context.Background()

	line := []string{"e2e4", "e7e5", "g1f3"}
	path := filepath.Join(t.TempDir(), "frames.jsonl")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create frames file: %v", err)
	}
	enc := json.NewEncoder(f)
	for i := range line {
		if err := enc.Encode(frameAfterUCI(t, i+1, line[:i+1]...)); err != nil {
			t.Fatalf("encode frame: %v", err)
		}
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close frames file: %v", err)
	}

	if err := runner.RunJSONL(ctx, path); err != nil {
		t.Fatalf("RunJSONL: %v", err)
	}

	analysis, err := runner.Finalize(ctx)
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if analysis.Result != "*" || len(analysis.MovesUCI) != 3 || analysis.Frames != 3 {
		t.Fatalf("unexpected analysis: %+v", analysis)
	}
	if analysis.MovesSAN[2] != "Nf3" {
		t.Fatalf("unexpected SAN: %v", analysis.MovesSAN)
	}

	stored, err := repo.GetAnalysisBySession(ctx, analysis.SessionUUID)
	if err != nil {
		t.Fatalf("GetAnalysisBySession: %v", err)
	}
	if stored == nil || stored.ID != analysis.ID {
		t.Fatalf("analysis not archived: %+v", stored)
	}
}

func TestUnresolvedScatterOfFiveSquares(t *testing.T) {
	runner := newTestRunner(t, nil)

	scatter := board.StartingPosition()
	scatter[nchess.A2] = nchess.NoPiece
	scatter[nchess.C2] = nchess.NoPiece
	scatter[nchess.E2] = nchess.NoPiece
	scatter[nchess.G2] = nchess.NoPiece
	scatter[nchess.B7] = nchess.NoPiece

	out, err := runner.ProcessFrame(context.Background(), visiondto.Frame{Index: 1, Cells: scatter.Cells()})
	if err != nil || out != OutcomeUnresolved {
		t.Fatalf("expected unresolved outcome, got %v err=%v", out, err)
	}
	if runner.Record().MoveCount() != 0 {
		t.Fatal("record mutated by unresolved frame")
	}
}
