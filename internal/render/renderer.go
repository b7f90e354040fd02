// Package render turns a position layout into a PNG board image. It knows
// nothing about chess rules: input is the piece placement string plus an
// orientation flag, output is image bytes for the transport to attach.
package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	imagedraw "image/draw"
	"image/png"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/chesschat/chesschat-bot/internal/engine"
)

// BoardRenderer renders a layout snapshot to PNG bytes.
type BoardRenderer interface {
	RenderPNG(ctx context.Context, layout engine.Layout) ([]byte, error)
}

type svgBoardRenderer struct{}

func NewSVGBoardRenderer() BoardRenderer {
	return &svgBoardRenderer{}
}

var (
	lightSquare         = color.RGBA{233, 207, 163, 255}
	darkSquare          = color.RGBA{187, 136, 96, 255}
	marginColor         = color.RGBA{40, 36, 33, 255}
	coordinateTextColor = color.NRGBA{R: 222, G: 214, B: 196, A: 255}
)

const (
	squareSize   = 64
	boardSquares = 8
	boardSize    = squareSize * boardSquares
	margin       = 24
)

func (r *svgBoardRenderer) RenderPNG(ctx context.Context, layout engine.Layout) ([]byte, error) {
	grid, err := expandPlacement(layout.Placement)
	if err != nil {
		return nil, err
	}
	if !layout.WhitePOV {
		flipGrid(&grid)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	total := boardSize + 2*margin
	img := image.NewRGBA(image.Rect(0, 0, total, total))
	imagedraw.Draw(img, img.Bounds(), image.NewUniform(marginColor), image.Point{}, imagedraw.Src)

	origin := image.Point{X: margin, Y: margin}
	drawSquares(img, origin)
	if err := drawPieces(img, grid, origin); err != nil {
		return nil, err
	}
	drawCoordinates(img, origin, layout.WhitePOV)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// expandPlacement decodes the FEN placement field into an 8x8 rune grid,
// row 0 being the rank drawn at the top for a white-oriented board.
func expandPlacement(placement string) ([boardSquares][boardSquares]rune, error) {
	var grid [boardSquares][boardSquares]rune
	row, col := 0, 0
	for _, c := range placement {
		switch {
		case c == '/':
			if col != boardSquares {
				return grid, fmt.Errorf("placement rank %d has %d files", row+1, col)
			}
			row++
			col = 0
		case c >= '1' && c <= '8':
			for i := 0; i < int(c-'0'); i++ {
				if col >= boardSquares {
					return grid, fmt.Errorf("placement rank %d overflows", row+1)
				}
				grid[row][col] = ' '
				col++
			}
		default:
			if row >= boardSquares || col >= boardSquares {
				return grid, fmt.Errorf("placement out of bounds at %q", c)
			}
			grid[row][col] = c
			col++
		}
	}
	if row != boardSquares-1 || col != boardSquares {
		return grid, fmt.Errorf("placement has wrong shape: %q", placement)
	}
	return grid, nil
}

// flipGrid rotates the board 180 degrees for the black point of view.
func flipGrid(grid *[boardSquares][boardSquares]rune) {
	for r := 0; r < boardSquares/2; r++ {
		for c := 0; c < boardSquares; c++ {
			grid[r][c], grid[boardSquares-1-r][boardSquares-1-c] = grid[boardSquares-1-r][boardSquares-1-c], grid[r][c]
		}
	}
}

func drawSquares(dst imagedraw.Image, origin image.Point) {
	for row := 0; row < boardSquares; row++ {
		for col := 0; col < boardSquares; col++ {
			clr := lightSquare
			if (row+col)%2 == 1 {
				clr = darkSquare
			}
			x := origin.X + col*squareSize
			y := origin.Y + row*squareSize
			imagedraw.Draw(dst, image.Rect(x, y, x+squareSize, y+squareSize), image.NewUniform(clr), image.Point{}, imagedraw.Src)
		}
	}
}

func drawPieces(dst imagedraw.Image, grid [boardSquares][boardSquares]rune, origin image.Point) error {
	for row := 0; row < boardSquares; row++ {
		for col := 0; col < boardSquares; col++ {
			p := grid[row][col]
			if p == ' ' || p == 0 {
				continue
			}
			img, err := renderPieceImage(p, squareSize)
			if err != nil {
				return err
			}
			x := origin.X + col*squareSize
			y := origin.Y + row*squareSize
			imagedraw.Draw(dst, image.Rect(x, y, x+squareSize, y+squareSize), img, image.Point{}, imagedraw.Over)
		}
	}
	return nil
}

func drawCoordinates(img *image.RGBA, origin image.Point, whitePOV bool) {
	face := basicfont.Face7x13
	drawer := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(coordinateTextColor),
		Face: face,
	}
	for i := 0; i < boardSquares; i++ {
		file := byte('a' + i)
		rank := byte('8' - i)
		if !whitePOV {
			file = byte('h' - i)
			rank = byte('1' + i)
		}
		// file letters along the bottom margin
		fx := origin.X + i*squareSize + squareSize/2 - 3
		fy := origin.Y + boardSize + margin/2 + 4
		drawer.Dot = fixed.P(fx, fy)
		drawer.DrawString(string(file))
		// rank digits along the left margin
		rx := origin.X - margin/2 - 3
		ry := origin.Y + i*squareSize + squareSize/2 + 4
		drawer.Dot = fixed.P(rx, ry)
		drawer.DrawString(string(rank))
	}
}
