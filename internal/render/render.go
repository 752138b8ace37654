// Package render draws board snapshots as PNG diagrams, one per accepted
// frame, so a run can be reviewed square by square afterwards.
package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	imagedraw "image/draw"
	"image/png"

	nchess "github.com/corentings/chess/v2"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/chesslens/chesslens/internal/board"
)

type Options struct {
	SquareSize  int
	Coordinates bool
	Caption     string
}

type Renderer struct {
	squareSize  int
	coordinates bool
}

func New(opts Options) *Renderer {
	size := opts.SquareSize
	if size <= 0 {
		size = 48
	}
	return &Renderer{squareSize: size, coordinates: opts.Coordinates}
}

var (
	lightSquare  = color.RGBA{233, 207, 163, 255}
	darkSquare   = color.RGBA{187, 136, 96, 255}
	marginColor  = color.RGBA{40, 40, 44, 255}
	captionColor = color.NRGBA{R: 236, G: 239, B: 255, A: 255}
	coordColor   = color.NRGBA{R: 220, G: 220, B: 220, A: 255}
)

// RenderPNG rasterizes the snapshot into an 8x8 diagram with rank 8 at the
// top, matching how the cell grid itself is oriented.
func (r *Renderer) RenderPNG(ctx context.Context, s board.Snapshot, caption string) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	margin := 0
	captionHeight := 0
	if r.coordinates {
		margin = r.squareSize / 2
	}
	if caption != "" {
		captionHeight = 18
	}
	boardSize := r.squareSize * 8
	totalW := boardSize + margin*2
	totalH := boardSize + margin*2 + captionHeight
	origin := image.Point{X: margin, Y: margin + captionHeight}

	img := image.NewRGBA(image.Rect(0, 0, totalW, totalH))
	imagedraw.Draw(img, img.Bounds(), image.NewUniform(marginColor), image.Point{}, imagedraw.Src)

	r.drawSquares(img, origin)
	if err := r.drawPieces(img, s, origin); err != nil {
		return nil, err
	}
	if r.coordinates {
		r.drawCoordinates(img, origin, margin)
	}
	if caption != "" {
		drawText(img, caption, margin, 13, captionColor)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func (r *Renderer) drawSquares(img *image.RGBA, origin image.Point) {
	for row := 0; row < 8; row++ {
		for col := 0; col < 8; col++ {
			sq := nchess.NewSquare(nchess.File(col), nchess.Rank(7-row))
			x := origin.X + col*r.squareSize
			y := origin.Y + row*r.squareSize
			imagedraw.Draw(img,
				image.Rect(x, y, x+r.squareSize, y+r.squareSize),
				image.NewUniform(squareColor(sq)), image.Point{}, imagedraw.Src)
		}
	}
}

func (r *Renderer) drawPieces(img *image.RGBA, s board.Snapshot, origin image.Point) error {
	for row := 0; row < 8; row++ {
		for col := 0; col < 8; col++ {
			sq := nchess.NewSquare(nchess.File(col), nchess.Rank(7-row))
			piece := s.Piece(sq)
			if piece == nchess.NoPiece {
				continue
			}
			glyph, err := renderPieceImage(piece, r.squareSize)
			if err != nil {
				return err
			}
			x := origin.X + col*r.squareSize
			y := origin.Y + row*r.squareSize
			imagedraw.Draw(img,
				image.Rect(x, y, x+r.squareSize, y+r.squareSize),
				glyph, image.Point{}, imagedraw.Over)
		}
	}
	return nil
}

func (r *Renderer) drawCoordinates(img *image.RGBA, origin image.Point, margin int) {
	for row := 0; row < 8; row++ {
		rank := nchess.Rank(7 - row)
		y := origin.Y + row*r.squareSize + r.squareSize/2 + 4
		drawText(img, rank.String(), margin/2-3, y, coordColor)
	}
	bottom := origin.Y + 8*r.squareSize + margin/2 + 4
	for col := 0; col < 8; col++ {
		file := nchess.File(col)
		x := origin.X + col*r.squareSize + r.squareSize/2 - 3
		drawText(img, file.String(), x, bottom, coordColor)
	}
}

func drawText(img *image.RGBA, text string, x, baseline int, clr color.Color) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(clr),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, baseline),
	}
	d.DrawString(text)
}

func squareColor(sq nchess.Square) color.Color {
	if (int(sq.File())+int(sq.Rank()))%2 == 0 {
		return darkSquare
	}
	return lightSquare
}
