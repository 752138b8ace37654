// Package notation renders a tracked game record as standard chess text:
// SAN move lists, FEN position strings, and PGN transcripts. Every renderer
// replays the record's moves from the initial position through the rules
// engine, because SAN depends on the position a move is played from.
package notation

import (
	"fmt"
	"strings"
	"time"

	nchess "github.com/corentings/chess/v2"

	"github.com/chesslens/chesslens/internal/tracker"
)

// Headers are the PGN seven-tag-roster values. Zero fields fall back to the
// defaults at construction.
type Headers struct {
	Event  string
	Site   string
	Date   string
	Round  string
	White  string
	Black  string
	Result string
}

// DefaultHeaders returns the export defaults, dated today.
func DefaultHeaders() Headers {
	return Headers{
		Event:  "Chess Video Analysis",
		Site:   "Unknown",
		Date:   time.Now().Format("2006.01.02"),
		Round:  "?",
		White:  "?",
		Black:  "?",
		Result: "*",
	}
}

func (h Headers) withDefaults() Headers {
	def := DefaultHeaders()
	if h.Event == "" {
		h.Event = def.Event
	}
	if h.Site == "" {
		h.Site = def.Site
	}
	if h.Date == "" {
		h.Date = def.Date
	}
	if h.Round == "" {
		h.Round = def.Round
	}
	if h.White == "" {
		h.White = def.White
	}
	if h.Black == "" {
		h.Black = def.Black
	}
	if h.Result == "" {
		h.Result = def.Result
	}
	return h
}

// Config carries the assembler's header defaults; passed at construction so
// concurrent sessions can render under different metadata.
type Config struct {
	Headers Headers
}

// Assembler renders game records. All methods are pure functions of the
// record's move sequence and initial snapshot; none mutate the record.
type Assembler struct {
	headers Headers
}

func NewAssembler(cfg Config) *Assembler {
	return &Assembler{headers: cfg.Headers.withDefaults()}
}

// replay pushes the first upto recorded moves through a fresh rules-engine
// game seeded with the record's initial position, collecting SAN as it goes.
func (a *Assembler) replay(r *tracker.Record, upto int) (*nchess.Game, []string, error) {
	opt, err := nchess.FEN(r.InitialFEN())
	if err != nil {
		return nil, nil, fmt.Errorf("notation: initial position: %w", err)
	}
	game := nchess.NewGame(opt)

	moves := r.Moves()
	if upto < 0 || upto > len(moves) {
		upto = len(moves)
	}
	sans := make([]string, 0, upto)
	for i := 0; i < upto; i++ {
		pos := game.Position()
		decoded, err := nchess.UCINotation{}.Decode(pos, moves[i].UCI())
		if err != nil {
			return nil, nil, fmt.Errorf("notation: decode move %d (%s): %w", i+1, moves[i].UCI(), err)
		}
		sans = append(sans, nchess.AlgebraicNotation{}.Encode(pos, decoded))
		if err := game.Move(decoded, nil); err != nil {
			return nil, nil, fmt.Errorf("notation: replay move %d (%s): %w", i+1, moves[i].UCI(), err)
		}
	}
	return game, sans, nil
}

// MoveList returns the record's moves in standard algebraic notation.
func (a *Assembler) MoveList(r *tracker.Record) ([]string, error) {
	_, sans, err := a.replay(r, -1)
	return sans, err
}

// FormattedMoveList groups the moves into numbered pairs, e.g.
// "1. e4 e5 2. Nf3". A trailing lone white move renders without a black
// reply.
func (a *Assembler) FormattedMoveList(r *tracker.Record) (string, error) {
	sans, err := a.MoveList(r)
	if err != nil {
		return "", err
	}
	return formatPairs(sans), nil
}

func formatPairs(sans []string) string {
	var parts []string
	for i := 0; i < len(sans); i += 2 {
		num := i/2 + 1
		if i+1 < len(sans) {
			parts = append(parts, fmt.Sprintf("%d. %s %s", num, sans[i], sans[i+1]))
		} else {
			parts = append(parts, fmt.Sprintf("%d. %s", num, sans[i]))
		}
	}
	return strings.Join(parts, " ")
}

// FEN returns the position string after replaying moves [0, moveIndex).
// A negative index means "after all moves"; an index past the end is clamped
// to the recorded move count.
func (a *Assembler) FEN(r *tracker.Record, moveIndex int) (string, error) {
	game, _, err := a.replay(r, moveIndex)
	if err != nil {
		return "", err
	}
	return game.FEN(), nil
}

// Result derives the terminal game result from the final replayed position:
// checkmate favors the mating side, the draw rules (stalemate, insufficient
// material, fifty-move, repetition) yield 1/2-1/2, anything else is ongoing.
func (a *Assembler) Result(r *tracker.Record) (string, error) {
	game, _, err := a.replay(r, -1)
	if err != nil {
		return "", err
	}
	return resultOf(game), nil
}

// ResultMethod names how a decided game ended (Checkmate, Stalemate,
// InsufficientMaterial, ...). Empty for games still in progress.
func (a *Assembler) ResultMethod(r *tracker.Record) (string, error) {
	game, _, err := a.replay(r, -1)
	if err != nil {
		return "", err
	}
	return methodName(game.Method()), nil
}

func methodName(m nchess.Method) string {
	if m == nchess.NoMethod {
		return ""
	}
	return strings.ToLower(m.String())
}

func resultOf(game *nchess.Game) string {
	switch game.Outcome() {
	case nchess.WhiteWon, nchess.BlackWon, nchess.Draw:
		return game.Outcome().String()
	}
	for _, m := range game.EligibleDraws() {
		if m == nchess.FiftyMoveRule || m == nchess.ThreefoldRepetition {
			return nchess.Draw.String()
		}
	}
	return nchess.NoOutcome.String()
}

// PGN renders the full transcript: the tag-pair block (when requested)
// followed by the numbered move list and the trailing result token. A
// derived terminal result overrides the configured Result header.
func (a *Assembler) PGN(r *tracker.Record, includeHeaders bool) (string, error) {
	game, sans, err := a.replay(r, -1)
	if err != nil {
		return "", err
	}

	result := a.headers.Result
	if derived := resultOf(game); derived != nchess.NoOutcome.String() {
		result = derived
	}

	var sb strings.Builder
	if includeHeaders {
		for _, tag := range []struct{ key, value string }{
			{"Event", a.headers.Event},
			{"Site", a.headers.Site},
			{"Date", a.headers.Date},
			{"Round", a.headers.Round},
			{"White", a.headers.White},
			{"Black", a.headers.Black},
			{"Result", result},
		} {
			fmt.Fprintf(&sb, "[%s %q]\n", tag.key, tag.value)
		}
		sb.WriteByte('\n')
	}
	if movetext := formatPairs(sans); movetext != "" {
		sb.WriteString(movetext)
		sb.WriteByte(' ')
	}
	sb.WriteString(result)
	sb.WriteByte('\n')
	return sb.String(), nil
}
