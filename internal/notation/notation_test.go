package notation

import (
	"strings"
	"testing"

	nchess "github.com/corentings/chess/v2"
	"github.com/stretchr/testify/require"

	"github.com/chesslens/chesslens/internal/board"
	"github.com/chesslens/chesslens/internal/tracker"
)

// recordFromLine builds a tracked record by feeding one observed snapshot
// per move, the way the pipeline does.
func recordFromLine(t *testing.T, ucis ...string) *tracker.Record {
	t.Helper()
	r, err := tracker.NewRecord(board.StartingPosition(), nchess.White)
	require.NoError(t, err)

	game := nchess.NewGame()
	for _, u := range ucis {
		require.NoError(t, game.PushNotationMove(u, nchess.UCINotation{}, nil))
		mv, trackErr := r.Track(board.FromPosition(game.Position()))
		require.NoError(t, trackErr)
		require.NotNil(t, mv)
	}
	return r
}

func TestMoveListSAN(t *testing.T) {
	r := recordFromLine(t, "e2e4", "e7e5", "g1f3")

	sans, err := NewAssembler(Config{}).MoveList(r)
	require.NoError(t, err)
	require.Equal(t, []string{"e4", "e5", "Nf3"}, sans)
}

func TestFormattedMoveList(t *testing.T) {
	asm := NewAssembler(Config{})

	r := recordFromLine(t, "e2e4", "e7e5", "g1f3")
	got, err := asm.FormattedMoveList(r)
	require.NoError(t, err)
	require.Equal(t, "1. e4 e5 2. Nf3", got)

	empty := recordFromLine(t)
	got, err = asm.FormattedMoveList(empty)
	require.NoError(t, err)
	require.Equal(t, "", got)
}

func TestFENAtMoveIndex(t *testing.T) {
	asm := NewAssembler(Config{})
	r := recordFromLine(t, "e2e4", "e7e5", "g1f3")

	initial, err := asm.FEN(r, 0)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(initial, "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w"))

	afterOne, err := asm.FEN(r, 1)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(afterOne, "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b"))

	all, err := asm.FEN(r, -1)
	require.NoError(t, err)
	clamped, err := asm.FEN(r, 99)
	require.NoError(t, err)
	require.Equal(t, all, clamped)
}

func TestResultOngoing(t *testing.T) {
	r := recordFromLine(t, "e2e4", "e7e5")

	result, err := NewAssembler(Config{}).Result(r)
	require.NoError(t, err)
	require.Equal(t, "*", result)
}

func TestResultCheckmate(t *testing.T) {
	asm := NewAssembler(Config{})
	r := recordFromLine(t, "e2e4", "e7e5", "d1h5", "b8c6", "f1c4", "g8f6", "h5f7")

	result, err := asm.Result(r)
	require.NoError(t, err)
	require.Equal(t, "1-0", result)

	method, err := asm.ResultMethod(r)
	require.NoError(t, err)
	require.Equal(t, "checkmate", method)
}

func TestResultStalemate(t *testing.T) {
	initial, err := board.FromFEN("7k/8/1Q6/8/8/8/8/4K3 w - - 0 1")
	require.NoError(t, err)
	r, err := tracker.NewRecord(initial, nchess.White)
	require.NoError(t, err)

	next, err := board.FromFEN("7k/8/6Q1/8/8/8/8/4K3 b - - 0 1")
	require.NoError(t, err)
	mv, err := r.Track(next)
	require.NoError(t, err)
	require.Equal(t, "b6g6", mv.UCI())

	asm := NewAssembler(Config{})
	result, err := asm.Result(r)
	require.NoError(t, err)
	require.Equal(t, "1/2-1/2", result)

	method, err := asm.ResultMethod(r)
	require.NoError(t, err)
	require.Equal(t, "stalemate", method)
}

func TestPGNHeadersAndResult(t *testing.T) {
	asm := NewAssembler(Config{Headers: Headers{
		Event: "Club footage",
		White: "Camera Left",
		Black: "Camera Right",
	}})
	r := recordFromLine(t, "e2e4", "e7e5", "d1h5", "b8c6", "f1c4", "g8f6", "h5f7")

	pgn, err := asm.PGN(r, true)
	require.NoError(t, err)
	require.Contains(t, pgn, `[Event "Club footage"]`)
	require.Contains(t, pgn, `[White "Camera Left"]`)
	require.Contains(t, pgn, `[Result "1-0"]`)
	require.Contains(t, pgn, "\n\n1. e4 e5 2. Qh5 Nc6 3. Bc4 Nf6 4. Qxf7# 1-0\n")
}

func TestPGNWithoutHeaders(t *testing.T) {
	r := recordFromLine(t, "e2e4", "e7e5")

	pgn, err := NewAssembler(Config{}).PGN(r, false)
	require.NoError(t, err)
	require.Equal(t, "1. e4 e5 *\n", pgn)
}
