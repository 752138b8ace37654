// Package pipeline drives one analysis run: frames come in from a file or a
// live stream, each one is validated, diffed against the accepted board and
// folded into the game record, and the finished run is summarized, exported
// and archived.
package pipeline

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/chesslens/chesslens/internal/archive"
	"github.com/chesslens/chesslens/internal/board"
	"github.com/chesslens/chesslens/internal/domain"
	"github.com/chesslens/chesslens/internal/export"
	"github.com/chesslens/chesslens/internal/notation"
	"github.com/chesslens/chesslens/internal/obslog"
	"github.com/chesslens/chesslens/internal/render"
	"github.com/chesslens/chesslens/internal/session"
	"github.com/chesslens/chesslens/internal/tracker"
	"github.com/chesslens/chesslens/internal/validator"
	"github.com/chesslens/chesslens/pkg/visiondto"
)

// Outcome labels what one processed frame contributed to the record.
type Outcome string

const (
	OutcomeMove       Outcome = "move"
	OutcomeNoChange   Outcome = "no_change"
	OutcomeRejected   Outcome = "rejected"
	OutcomeUnresolved Outcome = "unresolved"
)

type Stats struct {
	Frames     int
	Moves      int
	NoChange   int
	Rejected   int
	Unresolved int
}

// Deps carries the collaborators a Runner needs. Validator and Record are
// required; everything else is optional and skipped when nil.
type Deps struct {
	Validator *validator.Validator
	Record    *tracker.Record
	Assembler *notation.Assembler

	Sessions *session.Store
	Archive  archive.Repository
	Renderer *render.Renderer
	Writer   *export.Writer

	// ExportPGN and ExportFEN opt in to artifact files at finalize time;
	// the transcript itself is always assembled regardless.
	ExportPGN bool
	ExportFEN bool

	Source string
}

type Runner struct {
	deps      Deps
	sessionID string
	stats     Stats
	startedAt time.Time
}

func NewRunner(ctx context.Context, deps Deps) (*Runner, error) {
	if deps.Validator == nil || deps.Record == nil || deps.Assembler == nil {
		return nil, errors.New("pipeline: validator, record and assembler are required")
	}

	r := &Runner{deps: deps, startedAt: time.Now()}
	if deps.Sessions != nil {
		st, err := deps.Sessions.Create(ctx, deps.Record.InitialFEN())
		if err != nil {
			return nil, fmt.Errorf("create session: %w", err)
		}
		r.sessionID = st.ID
	}
	return r, nil
}

func (r *Runner) Stats() Stats            { return r.stats }
func (r *Runner) SessionID() string       { return r.sessionID }
func (r *Runner) Record() *tracker.Record { return r.deps.Record }

// ProcessFrame folds one vision frame into the record. Invalid boards are
// rejected without touching tracking state; snapshots that match no legal
// move are counted as unresolved and likewise skipped.
func (r *Runner) ProcessFrame(ctx context.Context, frame visiondto.Frame) (Outcome, error) {
	r.stats.Frames++
	log := obslog.L().With(zap.Int("frame", frame.Index))

	snap, err := board.ParseCells(frame.Cells)
	if err != nil {
		r.stats.Rejected++
		log.Warn("frame rejected", zap.String("reason", "malformed"), zap.Error(err))
		r.mirror(ctx, session.OutcomeRejected, "")
		return OutcomeRejected, nil
	}

	if ok, issues := r.deps.Validator.Validate(snap, r.deps.Record.Turn()); !ok {
		r.stats.Rejected++
		log.Warn("frame rejected",
			zap.String("reason", "implausible"),
			zap.Error(validator.IssuesError(issues)))
		r.mirror(ctx, session.OutcomeRejected, "")
		return OutcomeRejected, nil
	}

	if !r.deps.Validator.Plausible(snap) {
		log.Warn("frame plausibility warning", zap.String("reason", "material imbalance"))
	}

	mv, err := r.deps.Record.Track(snap)
	switch {
	case errors.Is(err, tracker.ErrUnresolved):
		r.stats.Unresolved++
		log.Warn("frame unresolved", zap.Int("move_count", r.deps.Record.MoveCount()))
		r.mirror(ctx, session.OutcomeUnresolved, "")
		return OutcomeUnresolved, nil
	case err != nil:
		return "", fmt.Errorf("track frame %d: %w", frame.Index, err)
	case mv == nil:
		r.stats.NoChange++
		r.mirror(ctx, session.OutcomeNoChange, "")
		return OutcomeNoChange, nil
	}

	r.stats.Moves++
	log.Info("move accepted",
		zap.String("uci", mv.UCI()),
		zap.String("kind", mv.Kind.String()),
		zap.Int("move_count", r.deps.Record.MoveCount()))
	r.mirror(ctx, session.OutcomeMove, mv.UCI())
	r.renderFrame(ctx, snap, frame.Index, mv.UCI())
	return OutcomeMove, nil
}

// RunJSONL reads newline-delimited frame objects from path and processes
// them in order.
func (r *Runner) RunJSONL(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open frames: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var frame visiondto.Frame
		if err := json.Unmarshal(raw, &frame); err != nil {
			return fmt.Errorf("frames line %d: %w", line, err)
		}
		if frame.Index == 0 {
			frame.Index = line
		}
		if _, err := r.ProcessFrame(ctx, frame); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read frames: %w", err)
	}
	return nil
}

// RunChannel drains frames until the channel closes or the context ends.
func (r *Runner) RunChannel(ctx context.Context, frames <-chan visiondto.Frame) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case frame, ok := <-frames:
			if !ok {
				return nil
			}
			if _, err := r.ProcessFrame(ctx, frame); err != nil {
				return err
			}
		}
	}
}

// Finalize assembles the completed run: result and transcript from the
// record, export files when a writer is configured, an archive row when a
// repository is configured, and the session marked finished.
func (r *Runner) Finalize(ctx context.Context) (*domain.Analysis, error) {
	rec := r.deps.Record
	asm := r.deps.Assembler

	result, err := asm.Result(rec)
	if err != nil {
		return nil, fmt.Errorf("derive result: %w", err)
	}
	method, err := asm.ResultMethod(rec)
	if err != nil {
		return nil, fmt.Errorf("derive result method: %w", err)
	}
	sans, err := asm.MoveList(rec)
	if err != nil {
		return nil, fmt.Errorf("assemble moves: %w", err)
	}
	pgn, err := asm.PGN(rec, true)
	if err != nil {
		return nil, fmt.Errorf("assemble pgn: %w", err)
	}
	finalFEN, err := asm.FEN(rec, -1)
	if err != nil {
		return nil, fmt.Errorf("assemble fen: %w", err)
	}

	ended := time.Now()
	analysis := &domain.Analysis{
		SessionUUID:  r.sessionID,
		Source:       r.deps.Source,
		Result:       result,
		ResultMethod: method,
		MovesUCI:     rec.UCIMoves(),
		MovesSAN:     sans,
		PGN:          pgn,
		FinalFEN:     finalFEN,
		Frames:       r.stats.Frames,
		Rejected:     r.stats.Rejected,
		Unresolved:   r.stats.Unresolved,
		StartedAt:    r.startedAt,
		EndedAt:      ended,
		Duration:     ended.Sub(r.startedAt),
	}
	if analysis.SessionUUID == "" {
		analysis.SessionUUID = rec.ID()
	}

	if r.deps.Writer != nil {
		name := "game-" + rec.ID()
		if r.deps.ExportPGN {
			if _, err := r.deps.Writer.WritePGN(name, pgn); err != nil {
				obslog.L().Error("pgn export failed", zap.Error(err))
			}
		}
		if r.deps.ExportFEN {
			if _, err := r.deps.Writer.WriteFEN(name, finalFEN); err != nil {
				obslog.L().Error("fen export failed", zap.Error(err))
			}
		}
		if movetext, mlErr := asm.FormattedMoveList(rec); mlErr == nil && movetext != "" {
			if _, err := r.deps.Writer.WriteMoveList(name, movetext); err != nil {
				obslog.L().Error("move list export failed", zap.Error(err))
			}
		}
	}

	if r.deps.Archive != nil {
		if id, err := r.deps.Archive.InsertAnalysis(ctx, analysis); err != nil {
			obslog.L().Error("archive insert failed", zap.Error(err))
		} else {
			analysis.ID = id
		}
	}

	if r.deps.Sessions != nil && r.sessionID != "" {
		if _, err := r.deps.Sessions.Finish(ctx, r.sessionID, result); err != nil {
			obslog.L().Warn("session finish failed", zap.Error(err))
		}
	}

	obslog.L().Info("analysis complete",
		zap.String("session", analysis.SessionUUID),
		zap.String("result", result),
		zap.Int("moves", len(analysis.MovesUCI)),
		zap.Int("frames", r.stats.Frames),
		zap.Int("rejected", r.stats.Rejected),
		zap.Int("unresolved", r.stats.Unresolved))
	return analysis, nil
}

func (r *Runner) mirror(ctx context.Context, outcome session.FrameOutcome, uci string) {
	if r.deps.Sessions == nil || r.sessionID == "" {
		return
	}
	if _, err := r.deps.Sessions.RecordFrame(ctx, r.sessionID, outcome, uci); err != nil {
		obslog.L().Warn("session mirror failed", zap.Error(err))
	}
}

func (r *Runner) renderFrame(ctx context.Context, snap board.Snapshot, index int, uci string) {
	if r.deps.Renderer == nil || r.deps.Writer == nil {
		return
	}
	caption := fmt.Sprintf("#%d %s", r.deps.Record.MoveCount(), uci)
	data, err := r.deps.Renderer.RenderPNG(ctx, snap, caption)
	if err != nil {
		obslog.L().Warn("frame render failed", zap.Int("frame", index), zap.Error(err))
		return
	}
	name := fmt.Sprintf("move-%03d", r.deps.Record.MoveCount())
	if _, err := r.deps.Writer.WriteFrame(name, data); err != nil {
		obslog.L().Warn("frame write failed", zap.Int("frame", index), zap.Error(err))
	}
}
