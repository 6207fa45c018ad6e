package scope

import (
	"fmt"
	"image/color"
	"math"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"

	"github.com/embeddedlinuxer/razor/pkg/sample"
)

var (
	gridColor    = color.RGBA{R: 40, G: 40, B: 40, A: 255}
	labelColor   = color.RGBA{R: 150, G: 150, B: 150, A: 255}
	traceColor   = color.RGBA{R: 255, G: 165, B: 0, A: 255}
	failureColor = color.RGBA{R: 200, G: 40, B: 40, A: 255}
	phaseColor   = color.RGBA{R: 0, G: 100, B: 200, A: 255}
	statusColor  = color.RGBA{R: 200, G: 200, B: 200, A: 255}
)

type trendRenderer struct {
	trend *TrendWidget

	bg      *canvas.Rectangle
	objects []fyne.CanvasObject

	lastSize fyne.Size
}

// plot is the drawing area inside the axis margins.
type plot struct {
	x, y, w, h float32
	yMin, yMax float64
	xMin, xMax time.Time
}

func (p plot) pos(t time.Time, v float64) fyne.Position {
	span := p.xMax.Sub(p.xMin).Seconds()
	fx := float32(0)
	if span > 0 {
		fx = float32(t.Sub(p.xMin).Seconds() / span)
	}
	fy := float32((v - p.yMin) / (p.yMax - p.yMin))
	return fyne.NewPos(p.x+fx*p.w, p.y+p.h-fy*p.h)
}

func (r *trendRenderer) MinSize() fyne.Size {
	return fyne.NewSize(400, 300)
}

func (r *trendRenderer) Layout(size fyne.Size) {
	r.bg.Resize(size)
	if r.lastSize != size {
		r.lastSize = size
		r.trend.BaseWidget.Refresh()
	}
}

func (r *trendRenderer) Refresh() {
	t := r.trend
	t.mu.RLock()
	points := append([]sample.Point(nil), t.display...)
	events := append([]Event(nil), t.events...)
	status := t.status
	p := plot{yMin: t.yMin, yMax: t.yMax, xMin: t.xMin, xMax: t.xMax}
	t.mu.RUnlock()

	size := t.Size()
	if size.Width == 0 || size.Height == 0 {
		return
	}

	const marginLeft, marginRight, marginTop, marginBottom = 60, 20, 30, 40
	p.x, p.y = marginLeft, marginTop
	p.w = size.Width - marginLeft - marginRight
	p.h = size.Height - marginTop - marginBottom
	if p.yMax <= p.yMin {
		p.yMin, p.yMax = 0, 100
	}

	r.objects = []fyne.CanvasObject{r.bg}
	r.drawGrid(p)
	r.drawEvents(p, events)
	r.drawTrace(p, points)
	r.drawStatus(p, status)
}

func (r *trendRenderer) drawGrid(p plot) {
	const rows, cols = 5, 6
	for i := range rows + 1 {
		y := p.y + float32(i)*p.h/rows
		r.line(gridColor, 1, fyne.NewPos(p.x, y), fyne.NewPos(p.x+p.w, y))

		v := p.yMax - float64(i)*(p.yMax-p.yMin)/rows
		r.text(fmt.Sprintf("%.1f%%", v), labelColor, 10, fyne.TextAlignTrailing, fyne.NewPos(p.x-5, y-6))
	}

	span := p.xMax.Sub(p.xMin)
	for i := range cols + 1 {
		x := p.x + float32(i)*p.w/cols
		r.line(gridColor, 1, fyne.NewPos(x, p.y), fyne.NewPos(x, p.y+p.h))

		ago := span - time.Duration(i)*span/cols
		r.text(formatAgo(ago), labelColor, 10, fyne.TextAlignCenter, fyne.NewPos(x-20, p.y+p.h+5))
	}
}

// drawTrace connects consecutive valid points. A failed cycle breaks the line.
func (r *trendRenderer) drawTrace(p plot, points []sample.Point) {
	for i := 1; i < len(points); i++ {
		a, b := points[i-1], points[i]
		if math.IsNaN(a.Value) || math.IsNaN(b.Value) {
			continue
		}
		r.line(traceColor, 1.5, p.pos(a.Timestamp, a.Value), p.pos(b.Timestamp, b.Value))
	}
}

func (r *trendRenderer) drawEvents(p plot, events []Event) {
	for _, e := range events {
		c := phaseColor
		if e.Kind == EventFailure {
			c = failureColor
		}
		top := p.pos(e.At, p.yMax)
		r.line(c, 1, top, fyne.NewPos(top.X, p.y+p.h))
		if e.Kind == EventPhase {
			r.text(e.Label, c, 10, fyne.TextAlignLeading, fyne.NewPos(top.X+3, p.y))
		}
	}
}

func (r *trendRenderer) drawStatus(p plot, s Status) {
	var line string
	if math.IsNaN(s.Watercut) {
		line = fmt.Sprintf("--.-- %%  %s  %.2f mA", s.Phase, s.Drive)
	} else {
		line = fmt.Sprintf("%.2f %%  %s  %.2f mA", s.Watercut, s.Phase, s.Drive)
	}
	c := color.Color(statusColor)
	if s.Alarm {
		line += "  ALARM " + s.Errors
		c = failureColor
	} else if s.Errors != "OK" && s.Errors != "" {
		line += "  " + s.Errors
	}
	r.text(line, c, 12, fyne.TextAlignLeading, fyne.NewPos(p.x, 6))
}

func (r *trendRenderer) line(c color.Color, width float32, from, to fyne.Position) {
	l := canvas.NewLine(c)
	l.Position1 = from
	l.Position2 = to
	l.StrokeWidth = width
	r.objects = append(r.objects, l)
}

func (r *trendRenderer) text(s string, c color.Color, size float32, align fyne.TextAlign, at fyne.Position) {
	t := canvas.NewText(s, c)
	t.TextSize = size
	t.Alignment = align
	t.Move(at)
	r.objects = append(r.objects, t)
}

func (r *trendRenderer) Objects() []fyne.CanvasObject {
	return r.objects
}

func (r *trendRenderer) Destroy() {}

// formatAgo renders an axis offset from now, e.g. "-2m30s" or "now".
func formatAgo(d time.Duration) string {
	if d <= 0 {
		return "now"
	}
	return "-" + d.Round(time.Second).String()
}
