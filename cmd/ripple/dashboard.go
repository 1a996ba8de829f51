package main

import (
	"fmt"
	"strconv"

	"github.com/vango-dev/ripple/pkg/reactive"
	"github.com/vango-dev/ripple/pkg/widget"
)

const rowHeight = 20

// dashboard is the sample tree driven by bench and serve: a header scope
// over the title and the total, one row per counter and a summary scope.
type dashboard struct {
	title *reactive.Cell[string]
	rows  []*reactive.Cell[int]
	total *reactive.Computed[int]
	root  *widget.Node
}

func newDashboard(bridge *reactive.Bridge, title string, rows int) *dashboard {
	d := &dashboard{
		title: reactive.NewCell(title, reactive.OnUI(bridge), reactive.Named("title")),
	}

	rowNodes := make([]*widget.Node, rows)
	for i := range rows {
		c := reactive.NewCell(0, reactive.OnUI(bridge), reactive.Named("row"+strconv.Itoa(i)))
		d.rows = append(d.rows, c)
		rowNodes[i] = widget.New("row"+strconv.Itoa(i),
			widget.WithMeasurer(fixedRow),
			widget.WithPainter(counterPainter{tag: "value"}),
		).SetProp("value", c).PaintDependsOn("value")
	}
	list := widget.New("rows", widget.WithChildren(rowNodes...), widget.WithMeasurer(column))

	d.total = reactive.NewComputed(func(f *reactive.Frame) int {
		sum := 0
		for _, r := range d.rows {
			sum += r.Get(f)
		}
		return sum
	}, reactive.Named("total"))

	d.root = widget.NewComposable("dashboard", func(b *widget.Build) []*widget.Node {
		header := b.Scope("header", func(f *reactive.Frame) *widget.Node {
			return widget.New("header:"+d.title.Get(f), widget.WithMeasurer(fixedRow))
		})
		summary := b.Scope("summary", func(f *reactive.Frame) *widget.Node {
			return widget.New(fmt.Sprintf("total:%d", d.total.Get(f)), widget.WithMeasurer(fixedRow))
		})
		return []*widget.Node{header, list, summary}
	}, widget.WithMeasurer(column))
	return d
}

var fixedRow = widget.MeasureFunc(func(n *widget.Node, c widget.Constraints) widget.Size {
	return c.Clamp(widget.Size{W: c.MaxW, H: rowHeight})
})

var column = widget.MeasureFunc(func(n *widget.Node, c widget.Constraints) widget.Size {
	var s widget.Size
	for _, child := range n.Children() {
		cs := child.Layout(c)
		s.H += cs.H
		s.W = max(s.W, cs.W)
	}
	return c.Clamp(s)
})

// counterPainter paints an int prop as text.
type counterPainter struct {
	tag string
}

func (p counterPainter) ContentKey(n *widget.Node) string {
	v, _ := widget.PropValue[int](n, p.tag)
	return strconv.Itoa(v)
}

func (p counterPainter) Paint(n *widget.Node) widget.Picture {
	return widget.Picture{Ops: []string{"text " + p.ContentKey(n)}}
}
