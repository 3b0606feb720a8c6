package plot

import (
	"fmt"
	"image/color"

	"gonum.org/v1/gonum/stat"
	gplot "gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// Smoothing windows for the two curves.
const (
	RewardWindow  = 20
	SuccessWindow = 50
)

var (
	rawColor    = color.RGBA{R: 31, G: 119, B: 180, A: 60}
	smoothColor = color.RGBA{R: 255, G: 127, B: 14, A: 255}
)

// RollingMean averages each value with up to window-1 predecessors. The
// first values use whatever history exists.
func RollingMean(values []float64, window int) []float64 {
	if window < 1 {
		window = 1
	}
	out := make([]float64, len(values))
	for i := range values {
		start := i - window + 1
		if start < 0 {
			start = 0
		}
		out[i] = stat.Mean(values[start:i+1], nil)
	}
	return out
}

// Rewards renders per-episode reward and its rolling mean from a monitor log.
func Rewards(monitorPath, out string) error {
	rows, err := ReadMonitor(monitorPath)
	if err != nil {
		return err
	}
	rewards := make([]float64, len(rows))
	for i, r := range rows {
		rewards[i] = r.Reward
	}
	return render(out, "Training Reward", "Reward", rewards, RewardWindow, "episodic reward")
}

// SuccessRate renders per-episode success and its rolling rate from a
// success log.
func SuccessRate(successPath, out string) error {
	records, err := ReadSuccess(successPath)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return fmt.Errorf("%w in success log %s", ErrNoData, successPath)
	}
	grouped := SuccessByEpisode(records)
	rates := make([]float64, len(grouped))
	for i, g := range grouped {
		rates[i] = g.Rate
	}
	return render(out, "Success Rate Over Training", "Success (0/1)", rates, SuccessWindow, "success per episode")
}

func render(out, title, yLabel string, values []float64, window int, rawLabel string) error {
	p := gplot.New()
	p.Title.Text = title
	p.X.Label.Text = "Episode"
	p.Y.Label.Text = yLabel

	raw, err := plotter.NewLine(series(values))
	if err != nil {
		return fmt.Errorf("failed to build %s line: %w", rawLabel, err)
	}
	raw.LineStyle.Color = rawColor

	smoothed, err := plotter.NewLine(series(RollingMean(values, window)))
	if err != nil {
		return fmt.Errorf("failed to build smoothed line: %w", err)
	}
	smoothed.LineStyle.Color = smoothColor
	smoothed.LineStyle.Width = vg.Points(1.5)

	p.Add(raw, smoothed)
	p.Legend.Add(rawLabel, raw)
	p.Legend.Add(fmt.Sprintf("smoothed (win=%d)", window), smoothed)
	p.Legend.Top = true

	if err := p.Save(10*vg.Inch, 6*vg.Inch, out); err != nil {
		return fmt.Errorf("failed to save %s: %w", out, err)
	}
	return nil
}

func series(values []float64) plotter.XYs {
	pts := make(plotter.XYs, len(values))
	for i, v := range values {
		pts[i].X = float64(i)
		pts[i].Y = v
	}
	return pts
}
