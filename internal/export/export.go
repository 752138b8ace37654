// Package export writes analysis artifacts to disk. Failures here are
// reported to the caller but never touch the tracked game state.
package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

type Writer struct {
	dir string
}

func NewWriter(dir string) (*Writer, error) {
	if dir == "" {
		dir = "output"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir %s: %w", dir, err)
	}
	return &Writer{dir: dir}, nil
}

func (w *Writer) Dir() string { return w.dir }

// WritePGN stores the full game text under name.pgn.
func (w *Writer) WritePGN(name, pgn string) (string, error) {
	return w.writeText(name+".pgn", pgn)
}

// WriteFEN stores a single FEN line under name.fen.
func (w *Writer) WriteFEN(name, fen string) (string, error) {
	return w.writeText(name+".fen", fen+"\n")
}

// WriteMoveList stores formatted movetext under name.txt.
func (w *Writer) WriteMoveList(name, moves string) (string, error) {
	return w.writeText(name+".txt", moves+"\n")
}

// WriteFrame stores a rendered board diagram under frames/.
func (w *Writer) WriteFrame(name string, png []byte) (string, error) {
	frameDir := filepath.Join(w.dir, "frames")
	if err := os.MkdirAll(frameDir, 0o755); err != nil {
		return "", fmt.Errorf("create frame dir: %w", err)
	}
	path := filepath.Join(frameDir, sanitizeName(name)+".png")
	if err := os.WriteFile(path, png, 0o644); err != nil {
		return "", fmt.Errorf("write frame %s: %w", path, err)
	}
	return path, nil
}

func (w *Writer) writeText(filename, content string) (string, error) {
	path := filepath.Join(w.dir, sanitizeName(filename))
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}

func sanitizeName(name string) string {
	replacer := strings.NewReplacer("/", "_", "\\", "_", "..", "_", " ", "_")
	return replacer.Replace(name)
}
