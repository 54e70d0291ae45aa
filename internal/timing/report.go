package timing

import (
	"fmt"
	"io"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// HistogramBins is the number of interval buckets in the report histogram.
const HistogramBins = 20

// Report is the input to RenderHTML.
type Report struct {
	Title    string
	Subtitle string
	Entries  []Entry
	Markers  []Marker
	Stats    Stats

	// AssetsHost overrides where the echarts javascript is loaded from.
	AssetsHost string
}

// RenderHTML writes an HTML page with the interval series, an interval
// histogram and per-code epoch counts.
func RenderHTML(w io.Writer, r Report) error {
	if len(r.Entries) < 2 {
		return fmt.Errorf("need at least two frames for a report, got %d", len(r.Entries))
	}

	page := components.NewPage()
	page.SetPageTitle(r.Title)
	if r.AssetsHost != "" {
		page.SetAssetsHost(r.AssetsHost)
	}
	page.AddCharts(r.intervalChart(), r.histogramChart())
	if len(r.Markers) > 0 {
		page.AddCharts(r.epochChart())
	}
	return page.Render(w)
}

func (r Report) initOpts() opts.Initialization {
	o := opts.Initialization{PageTitle: r.Title, Width: "100%", Height: "480px"}
	if r.AssetsHost != "" {
		o.AssetsHost = r.AssetsHost
	}
	return o
}

func (r Report) intervalChart() *charts.Line {
	x := make([]string, 0, len(r.Entries)-1)
	y := make([]opts.LineData, 0, len(r.Entries)-1)
	for i := 1; i < len(r.Entries); i++ {
		x = append(x, strconv.FormatUint(r.Entries[i].Sequence, 10))
		ms := float64(r.Entries[i].Time.Sub(r.Entries[i-1].Time).Microseconds()) / 1000
		y = append(y, opts.LineData{Value: ms})
	}

	subtitle := fmt.Sprintf("mean %v  sd %v  p95 %v  late %d",
		r.Stats.MeanInterval, r.Stats.StdDevInterval, r.Stats.P95Interval, r.Stats.LateFrames)
	if r.Subtitle != "" {
		subtitle = r.Subtitle + "  |  " + subtitle
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(r.initOpts()),
		charts.WithTitleOpts(opts.Title{Title: r.Title, Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Frame", NameLocation: "middle", NameGap: 30}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Interval (ms)"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider"}),
	)
	line.SetXAxis(x).AddSeries("interval", y)
	return line
}

// histogram buckets intervals (ms) into HistogramBins equal-width bins.
func histogram(iv []float64) (labels []string, counts []int) {
	if len(iv) == 0 {
		return nil, nil
	}
	lo, hi := iv[0], iv[0]
	for _, v := range iv {
		lo = min(lo, v)
		hi = max(hi, v)
	}
	width := (hi - lo) / HistogramBins
	if width == 0 {
		return []string{fmt.Sprintf("%.3f", lo)}, []int{len(iv)}
	}
	counts = make([]int, HistogramBins)
	for _, v := range iv {
		i := int((v - lo) / width)
		if i >= HistogramBins {
			i = HistogramBins - 1
		}
		counts[i]++
	}
	labels = make([]string, HistogramBins)
	for i := range labels {
		labels[i] = fmt.Sprintf("%.3f", lo+width*float64(i))
	}
	return labels, counts
}

func (r Report) histogramChart() *charts.Bar {
	iv := Intervals(r.Entries)
	for i := range iv {
		iv[i] *= 1000
	}
	labels, counts := histogram(iv)
	data := make([]opts.BarData, len(counts))
	for i, c := range counts {
		data[i] = opts.BarData{Value: c}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(r.initOpts()),
		charts.WithTitleOpts(opts.Title{Title: "Interval distribution"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Interval (ms)", NameLocation: "middle", NameGap: 30}),
	)
	bar.SetXAxis(labels).AddSeries("frames", data)
	return bar
}

func (r Report) epochChart() *charts.Bar {
	byCode := map[int]int{}
	maxCode := 0
	for _, m := range r.Markers {
		byCode[m.Code]++
		maxCode = max(maxCode, m.Code)
	}
	var (
		labels []string
		data   []opts.BarData
	)
	for code := 1; code <= maxCode; code++ {
		labels = append(labels, strconv.Itoa(code))
		data = append(data, opts.BarData{Value: byCode[code]})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(r.initOpts()),
		charts.WithTitleOpts(opts.Title{Title: "Epoch codes", Subtitle: fmt.Sprintf("%d epoch frames", len(r.Markers))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Code", NameLocation: "middle", NameGap: 30}),
	)
	bar.SetXAxis(labels).AddSeries("frames", data,
		charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
	)
	return bar
}
