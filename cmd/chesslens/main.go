package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	nchess "github.com/corentings/chess/v2"
	"go.uber.org/zap"

	"github.com/chesslens/chesslens/internal/archive"
	"github.com/chesslens/chesslens/internal/board"
	appcfg "github.com/chesslens/chesslens/internal/config"
	"github.com/chesslens/chesslens/internal/export"
	"github.com/chesslens/chesslens/internal/ingest"
	"github.com/chesslens/chesslens/internal/notation"
	"github.com/chesslens/chesslens/internal/obslog"
	"github.com/chesslens/chesslens/internal/pipeline"
	"github.com/chesslens/chesslens/internal/render"
	"github.com/chesslens/chesslens/internal/session"
	"github.com/chesslens/chesslens/internal/tracker"
	"github.com/chesslens/chesslens/internal/validator"
	"github.com/chesslens/chesslens/pkg/visiondto"
)

func main() {
	var (
		framesPath = flag.String("frames", "", "path to a JSONL file of board frames")
		useWS      = flag.Bool("ws", false, "subscribe to the vision websocket stream")
		usePoll    = flag.Bool("poll", false, "poll the vision HTTP endpoint for frames")
		initialFEN = flag.String("fen", "", "starting position as FEN (default: standard)")
		outputDir  = flag.String("output", "", "directory for exported artifacts")
		exportPGN  = flag.Bool("save-pgn", false, "write the game transcript as a .pgn file")
		exportFEN  = flag.Bool("save-fen", false, "write the final position as a .fen file")
		saveFrames = flag.Bool("save-frames", false, "render a PNG diagram per accepted move")
		noSession  = flag.Bool("no-session", false, "skip the Redis session mirror")
		noArchive  = flag.Bool("no-archive", false, "skip the Postgres archive")
		pollEvery  = flag.Duration("poll-interval", time.Second, "poll cadence when -poll is set")
	)
	flag.Parse()

	if *framesPath == "" && !*useWS && !*usePoll {
		fmt.Fprintln(os.Stderr, "one of -frames, -ws or -poll is required")
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer obslog.Sync()

	initial, turn, err := resolveStart(*initialFEN, cfg.InitialTurn)
	if err != nil {
		log.Fatalf("starting position error: %v", err)
	}

	record, err := tracker.NewRecord(initial, turn)
	if err != nil {
		log.Fatalf("record init error: %v", err)
	}

	deps := pipeline.Deps{
		Validator: validator.New(validator.Config{MaterialImbalanceLimit: cfg.MaterialImbalanceLimit}),
		Record:    record,
		Assembler: notation.NewAssembler(notation.Config{Headers: headersFromConfig(cfg)}),
		ExportPGN: *exportPGN,
		ExportFEN: *exportFEN,
		Source:    sourceName(*framesPath, *useWS, *usePoll),
	}

	if !*noSession && cfg.RedisURL != "" {
		store, err := session.NewStore(cfg.RedisURL, time.Duration(cfg.SessionTTLSec)*time.Second)
		if err != nil {
			obslog.L().Warn("session store unavailable", zap.Error(err))
		} else {
			deps.Sessions = store
			defer store.Close()
		}
	}

	if !*noArchive && cfg.DatabaseURL != "" {
		repo, err := archive.NewRepository(cfg.DatabaseURL)
		if err != nil {
			obslog.L().Warn("archive unavailable", zap.Error(err))
		} else {
			deps.Archive = repo
		}
	}

	dir := *outputDir
	if dir == "" {
		dir = cfg.OutputDir
	}
	writer, err := export.NewWriter(dir)
	if err != nil {
		log.Fatalf("output dir error: %v", err)
	}
	deps.Writer = writer
	if *saveFrames {
		deps.Renderer = render.New(render.Options{SquareSize: 48, Coordinates: true})
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runner, err := pipeline.NewRunner(ctx, deps)
	if err != nil {
		log.Fatalf("pipeline init error: %v", err)
	}

	switch {
	case *framesPath != "":
		err = runner.RunJSONL(ctx, *framesPath)
	case *useWS:
		err = runWebSocket(ctx, runner, cfg.VisionWSURL)
	default:
		err = runPoll(ctx, runner, cfg.VisionBaseURL, *pollEvery)
	}
	if err != nil && ctx.Err() == nil {
		obslog.L().Error("run failed", zap.Error(err))
	}

	analysis, err := runner.Finalize(context.Background())
	if err != nil {
		log.Fatalf("finalize error: %v", err)
	}

	movetext, err := deps.Assembler.FormattedMoveList(record)
	if err == nil && movetext != "" {
		fmt.Println(movetext)
	}
	fmt.Printf("result: %s  moves: %d  frames: %d  rejected: %d  unresolved: %d\n",
		analysis.Result, len(analysis.MovesUCI), analysis.Frames, analysis.Rejected, analysis.Unresolved)
	fmt.Printf("artifacts written to %s\n", writer.Dir())
}

func runWebSocket(ctx context.Context, runner *pipeline.Runner, url string) error {
	if url == "" {
		return fmt.Errorf("VISION_WS_URL is not set")
	}
	frames := make(chan visiondto.Frame, 16)
	stream := ingest.NewStream(url)
	stream.OnFrame(func(f visiondto.Frame) {
		select {
		case frames <- f:
		case <-ctx.Done():
		}
	})

	cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	err := stream.Connect(cctx)
	cancel()
	if err != nil {
		return fmt.Errorf("ws connect: %w", err)
	}
	defer stream.Close()

	return runner.RunChannel(ctx, frames)
}

func runPoll(ctx context.Context, runner *pipeline.Runner, baseURL string, interval time.Duration) error {
	if baseURL == "" {
		return fmt.Errorf("VISION_BASE_URL is not set")
	}
	client := ingest.NewClient(baseURL)
	if _, err := client.Health(ctx); err != nil {
		return fmt.Errorf("vision health: %w", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			frame, err := client.NextFrame(ctx)
			if err != nil {
				obslog.L().Warn("frame poll failed", zap.Error(err))
				continue
			}
			if frame == nil {
				continue
			}
			if _, err := runner.ProcessFrame(ctx, *frame); err != nil {
				return err
			}
		}
	}
}

func resolveStart(fen, configuredTurn string) (board.Snapshot, nchess.Color, error) {
	turn := nchess.White
	if strings.EqualFold(configuredTurn, "black") {
		turn = nchess.Black
	}

	if fen == "" {
		return board.StartingPosition(), turn, nil
	}

	snap, err := board.FromFEN(fen)
	if err != nil {
		return board.Snapshot{}, turn, err
	}
	fields := strings.Fields(fen)
	if len(fields) >= 2 {
		switch fields[1] {
		case "w":
			turn = nchess.White
		case "b":
			turn = nchess.Black
		}
	}
	return snap, turn, nil
}

func headersFromConfig(cfg *appcfg.AppConfig) notation.Headers {
	h := notation.DefaultHeaders()
	if cfg.HeaderEvent != "" {
		h.Event = cfg.HeaderEvent
	}
	if cfg.HeaderSite != "" {
		h.Site = cfg.HeaderSite
	}
	if cfg.HeaderRound != "" {
		h.Round = cfg.HeaderRound
	}
	if cfg.HeaderWhite != "" {
		h.White = cfg.HeaderWhite
	}
	if cfg.HeaderBlack != "" {
		h.Black = cfg.HeaderBlack
	}
	return h
}

func sourceName(framesPath string, ws, poll bool) string {
	switch {
	case framesPath != "":
		return "file:" + framesPath
	case ws:
		return "ws"
	case poll:
		return "poll"
	default:
		return "unknown"
	}
}
