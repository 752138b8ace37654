package render

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"strings"
	"sync"

	nchess "github.com/corentings/chess/v2"
	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
)

type pieceCacheKey struct {
	piece nchess.Piece
	size  int
}

var (
	pieceCache   = map[pieceCacheKey]image.Image{}
	pieceCacheMu sync.RWMutex
)

// Glyph outlines on a 44x44 viewBox. Deliberately simple silhouettes;
// the diagrams only need pieces to be tellable apart at thumbnail size.
var pieceGlyphs = map[nchess.PieceType]string{
	nchess.Pawn:   `<circle cx="22" cy="15" r="7" %s/><path d="M 14 38 L 30 38 L 26 24 L 18 24 Z" %s/>`,
	nchess.Rook:   `<path d="M 12 38 L 32 38 L 32 30 L 29 27 L 29 14 L 32 14 L 32 7 L 27 7 L 27 10 L 24 10 L 24 7 L 20 7 L 20 10 L 17 10 L 17 7 L 12 7 L 12 14 L 15 14 L 15 27 L 12 30 Z" %s/>`,
	nchess.Knight: `<path d="M 13 38 L 32 38 L 32 24 C 32 12 24 6 16 6 L 18 11 L 12 18 L 14 22 L 20 18 C 20 26 15 28 13 33 Z" %s/>`,
	nchess.Bishop: `<path d="M 22 5 C 28 11 30 16 30 22 C 30 28 26 31 22 31 C 18 31 14 28 14 22 C 14 16 16 11 22 5 Z" %s/><path d="M 13 38 L 31 38 L 28 33 L 16 33 Z" %s/>`,
	nchess.Queen:  `<path d="M 10 38 L 34 38 L 36 14 L 29 22 L 26 8 L 22 20 L 18 8 L 15 22 L 8 14 Z" %s/>`,
	nchess.King:   `<path d="M 20 4 L 24 4 L 24 8 L 28 8 L 28 12 L 24 12 L 24 16 L 20 16 L 20 12 L 16 12 L 16 8 L 20 8 Z" %s/><path d="M 12 38 L 32 38 L 30 18 L 14 18 Z" %s/>`,
}

func pieceSVG(piece nchess.Piece) string {
	var fill, stroke string
	if piece.Color() == nchess.White {
		fill, stroke = "#f8f8f2", "#1c1c1c"
	} else {
		fill, stroke = "#1c1c1c", "#e8e8e8"
	}
	style := fmt.Sprintf(`fill="%s" stroke="%s" stroke-width="1.6"`, fill, stroke)

	glyph := pieceGlyphs[piece.Type()]
	n := strings.Count(glyph, "%s")
	args := make([]any, n)
	for i := range args {
		args[i] = style
	}
	body := fmt.Sprintf(glyph, args...)
	return `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 44 44">` + body + `</svg>`
}

func renderPieceImage(piece nchess.Piece, size int) (image.Image, error) {
	key := pieceCacheKey{piece: piece, size: size}

	pieceCacheMu.RLock()
	if img, ok := pieceCache[key]; ok {
		pieceCacheMu.RUnlock()
		return img, nil
	}
	pieceCacheMu.RUnlock()

	icon, err := oksvg.ReadIconStream(strings.NewReader(pieceSVG(piece)))
	if err != nil {
		return nil, fmt.Errorf("parse piece svg: %w", err)
	}
	icon.SetTarget(0, 0, float64(size), float64(size))

	img := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.Transparent), image.Point{}, draw.Src)

	scanner := rasterx.NewScannerGV(size, size, img, img.Bounds())
	raster := rasterx.NewDasher(size, size, scanner)
	icon.Draw(raster, 1.0)

	pieceCacheMu.Lock()
	pieceCache[key] = img
	pieceCacheMu.Unlock()

	return img, nil
}
