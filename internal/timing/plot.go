package timing

import (
	"fmt"
	"image/color"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// Plot builds an interval-versus-sequence plot. Each point is the gap before
// that frame in milliseconds; epoch frames are overlaid as red dots.
func Plot(title string, entries []Entry, markers []Marker) (*plot.Plot, error) {
	if len(entries) < 2 {
		return nil, fmt.Errorf("need at least two frames to plot intervals, got %d", len(entries))
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Frame"
	p.Y.Label.Text = "Interval (ms)"

	pts := make(plotter.XYs, 0, len(entries)-1)
	gapBefore := make(map[uint64]float64, len(entries))
	for i := 1; i < len(entries); i++ {
		ms := float64(entries[i].Time.Sub(entries[i-1].Time).Microseconds()) / 1000
		pts = append(pts, plotter.XY{X: float64(entries[i].Sequence), Y: ms})
		gapBefore[entries[i].Sequence] = ms
	}

	line, err := plotter.NewLine(pts)
	if err != nil {
		return nil, err
	}
	line.Width = vg.Points(1)
	line.Color = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	p.Add(line)
	p.Legend.Add("interval", line)

	var epochPts plotter.XYs
	for _, m := range markers {
		if ms, ok := gapBefore[m.Sequence]; ok {
			epochPts = append(epochPts, plotter.XY{X: float64(m.Sequence), Y: ms})
		}
	}
	if len(epochPts) > 0 {
		sc, err := plotter.NewScatter(epochPts)
		if err != nil {
			return nil, err
		}
		sc.GlyphStyle.Color = color.RGBA{R: 214, G: 39, B: 40, A: 255}
		sc.GlyphStyle.Radius = vg.Points(2)
		p.Add(sc)
		p.Legend.Add("epoch", sc)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	return p, nil
}

// SavePlot writes the interval plot to file; the format follows the file
// extension.
func SavePlot(file, title string, entries []Entry, markers []Marker) error {
	p, err := Plot(title, entries, markers)
	if err != nil {
		return err
	}
	return p.Save(14*vg.Inch, 6*vg.Inch, file)
}

// WritePlotPNG renders the interval plot as PNG to w.
func WritePlotPNG(w io.Writer, title string, entries []Entry, markers []Marker) error {
	p, err := Plot(title, entries, markers)
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(14*vg.Inch, 6*vg.Inch, "png")
	if err != nil {
		return err
	}
	_, err = wt.WriteTo(w)
	return err
}
