// Package export renders recorded trajectories as SVG.
package export

import (
	"fmt"
	"io"
	"strings"
)

// Series is one variable of a trajectory.
type Series struct {
	Name   string
	Times  []float64
	Values []float64
}

var palette = []string{"#00ff9c", "#ffd000", "#ff5fd7", "#5fafff", "#ff8700"}

// TrajectorySVG plots every series over time in one chart and marks each
// event time with a vertical line.
func TrajectorySVG(w io.Writer, series []Series, events []float64, width, height int) error {
	if len(series) == 0 {
		return fmt.Errorf("export: nothing to plot")
	}

	minX, maxX := 0.0, 0.0
	minY, maxY := 0.0, 0.0
	first := true
	for _, s := range series {
		if len(s.Times) != len(s.Values) {
			return fmt.Errorf("export: %s has %d times and %d values", s.Name, len(s.Times), len(s.Values))
		}
		for i := range s.Times {
			x, y := s.Times[i], s.Values[i]
			if first {
				minX, maxX, minY, maxY = x, x, y, y
				first = false
				continue
			}
			minX, maxX = min(minX, x), max(maxX, x)
			minY, maxY = min(minY, y), max(maxY, y)
		}
	}
	if first {
		return fmt.Errorf("export: nothing to plot")
	}

	rangeX := maxX - minX
	rangeY := maxY - minY
	if rangeX == 0 {
		rangeX = 1
	}
	if rangeY == 0 {
		rangeY = 1
	}
	minY -= rangeY * 0.1
	maxY += rangeY * 0.1
	rangeY = maxY - minY

	px := func(x float64) float64 { return (x - minX) / rangeX * float64(width) }
	py := func(y float64) float64 { return float64(height) - (y-minY)/rangeY*float64(height) }

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">
<rect width="100%%" height="100%%" fill="#0a0a0a"/>
`, width, height, width, height))

	if minY < 0 && maxY > 0 {
		sb.WriteString(fmt.Sprintf(`<line x1="0" y1="%.1f" x2="%d" y2="%.1f" stroke="#333333"/>
`, py(0), width, py(0)))
	}
	for _, t := range events {
		sb.WriteString(fmt.Sprintf(`<line x1="%.1f" y1="0" x2="%.1f" y2="%d" stroke="#ff3030" stroke-dasharray="4 3"/>
`, px(t), px(t), height))
	}

	for i, s := range series {
		if len(s.Times) < 2 {
			continue
		}
		color := palette[i%len(palette)]
		sb.WriteString(fmt.Sprintf(`<path fill="none" stroke="%s" stroke-width="1.5" d="M`, color))
		for j := range s.Times {
			if j > 0 {
				sb.WriteString(" L")
			}
			sb.WriteString(fmt.Sprintf("%.1f,%.1f", px(s.Times[j]), py(s.Values[j])))
		}
		sb.WriteString(fmt.Sprintf(`"><title>%s</title></path>
`, escape(s.Name)))
		sb.WriteString(fmt.Sprintf(`<text x="8" y="%d" fill="%s" font-family="monospace" font-size="12">%s</text>
`, 16*(i+1), color, escape(s.Name)))
	}
	sb.WriteString("</svg>\n")

	_, err := io.WriteString(w, sb.String())
	return err
}

func escape(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	return r.Replace(s)
}
