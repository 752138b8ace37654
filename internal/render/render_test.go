package render

import (
	"bytes"
	"context"
	"image/png"
	"testing"

	"github.com/chesslens/chesslens/internal/board"
)

func TestRenderPNGStartingPosition(t *testing.T) {
	r := New(Options{SquareSize: 24, Coordinates: true})

	data, err := r.RenderPNG(context.Background(), board.StartingPosition(), "1. e4")
	if err != nil {
		t.Fatalf("RenderPNG: %v", err)
	}

	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode png: %v", err)
	}
	bounds := img.Bounds()
	if bounds.Dx() < 24*8 || bounds.Dy() < 24*8 {
		t.Fatalf("diagram too small: %v", bounds)
	}
}

func TestRenderPNGEmptyBoard(t *testing.T) {
	r := New(Options{SquareSize: 16})

	var empty board.Snapshot
	data, err := r.RenderPNG(context.Background(), empty, "")
	if err != nil {
		t.Fatalf("RenderPNG: %v", err)
	}
	if _, err := png.Decode(bytes.NewReader(data)); err != nil {
		t.Fatalf("decode png: %v", err)
	}
}
