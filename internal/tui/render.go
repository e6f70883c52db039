package tui

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strings"

	"github.com/charmbracelet/lipgloss"

	cursorcache "github.com/wolfeidau/cursor-cache"
)

// alphaCutoff is the alpha below which a pixel is drawn as terminal background.
const alphaCutoff = 128

const (
	upperHalf = "▀"
	lowerHalf = "▄"
)

// RenderDataURL decodes a PNG data URL and renders it cols cells wide.
func RenderDataURL(d cursorcache.DataURL, cols int) (string, error) {
	mime, data, err := d.Decode()
	if err != nil {
		return "", err
	}
	if mime != cursorcache.MIMEPNG {
		return "", fmt.Errorf("render: unsupported media type %q", mime)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("render: decoding png: %w", err)
	}
	return RenderImage(img, cols), nil
}

// RenderImage draws img as rows of half-block cells, two pixel rows per
// terminal row, sampled nearest-neighbour to cols cells wide. Rows are
// joined with newlines and have no trailing newline.
func RenderImage(img image.Image, cols int) string {
	b := img.Bounds()
	if cols <= 0 || b.Dx() == 0 || b.Dy() == 0 {
		return ""
	}

	// Terminal cells are roughly twice as tall as wide, and each cell holds
	// two pixel rows, so a square image maps to cols x cols/2 cells.
	pxRows := b.Dy() * cols / b.Dx()
	if pxRows < 2 {
		pxRows = 2
	}
	pxRows += pxRows % 2

	sample := func(x, y int) (color.NRGBA, bool) {
		sx := b.Min.X + x*b.Dx()/cols
		sy := b.Min.Y + y*b.Dy()/pxRows
		c := color.NRGBAModel.Convert(img.At(sx, sy)).(color.NRGBA)
		return c, c.A >= alphaCutoff
	}

	var sb strings.Builder
	for y := 0; y < pxRows; y += 2 {
		if y > 0 {
			sb.WriteByte('\n')
		}
		for x := range cols {
			top, topOK := sample(x, y)
			bottom, bottomOK := sample(x, y+1)
			sb.WriteString(cell(top, topOK, bottom, bottomOK))
		}
	}
	return sb.String()
}

func cell(top color.NRGBA, topOK bool, bottom color.NRGBA, bottomOK bool) string {
	switch {
	case topOK && bottomOK:
		return lipgloss.NewStyle().
			Foreground(hex(top)).
			Background(hex(bottom)).
			Render(upperHalf)
	case topOK:
		return lipgloss.NewStyle().Foreground(hex(top)).Render(upperHalf)
	case bottomOK:
		return lipgloss.NewStyle().Foreground(hex(bottom)).Render(lowerHalf)
	default:
		return " "
	}
}

func hex(c color.NRGBA) lipgloss.Color {
	return lipgloss.Color(fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B))
}
