package viztrail

import (
	"encoding/json"

	"github.com/vizierdb/vizier/src/internal/datastore"
)

// Output types.
const (
	OutputText     = "text/plain"
	OutputHTML     = "text/html"
	OutputMarkdown = "text/markdown"
	OutputChart    = "chart/view"
	OutputDataset  = "dataset/view"
)

// OutputObject is one typed entry on a module's stdout or stderr.  Structured outputs (charts,
// dataset views) carry their JSON encoding in Value.
type OutputObject struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// TextOutput returns a plain text output.
func TextOutput(s string) OutputObject { return OutputObject{Type: OutputText, Value: s} }

// MarkdownOutput returns a markdown output.
func MarkdownOutput(s string) OutputObject { return OutputObject{Type: OutputMarkdown, Value: s} }

// HTMLOutput returns an html output.
func HTMLOutput(s string) OutputObject { return OutputObject{Type: OutputHTML, Value: s} }

// DatasetView is the value of a dataset/view output.
type DatasetView struct {
	Name       string                `json:"name"`
	Descriptor *datastore.Descriptor `json:"descriptor"`
}

// DatasetOutput returns a dataset/view output for the named dataset.
func DatasetOutput(name string, d *datastore.Descriptor) OutputObject {
	b, _ := json.Marshal(DatasetView{Name: name, Descriptor: d})
	return OutputObject{Type: OutputDataset, Value: string(b)}
}

// ChartSeries is one data series of a chart.  The range bounds are inclusive row positions.
type ChartSeries struct {
	Column     int64  `json:"column"`
	Label      string `json:"label"`
	RangeStart *int   `json:"rangeStart,omitempty"`
	RangeEnd   *int   `json:"rangeEnd,omitempty"`
}

// ChartView is the value of a chart/view output.  Rows hold one value per series; XAxis is the
// index of the series that labels the x-axis, if any.
type ChartView struct {
	Dataset string          `json:"dataset"`
	Name    string          `json:"name"`
	Type    string          `json:"chartType"`
	Grouped bool            `json:"grouped"`
	XAxis   *int            `json:"xAxis,omitempty"`
	Series  []ChartSeries   `json:"series"`
	Rows    [][]interface{} `json:"rows"`
}

// ChartOutput returns a chart/view output.
func ChartOutput(v *ChartView) OutputObject {
	b, _ := json.Marshal(v)
	return OutputObject{Type: OutputChart, Value: string(b)}
}

// Outputs are the stdout and stderr of a module.
type Outputs struct {
	Stdout []OutputObject `json:"stdout"`
	Stderr []OutputObject `json:"stderr"`
}

// Error appends the text of err to stderr.
func (o *Outputs) Error(err error) {
	o.Stderr = append(o.Stderr, TextOutput(err.Error()))
}

// Print appends text to stdout.
func (o *Outputs) Print(s string) {
	o.Stdout = append(o.Stdout, TextOutput(s))
}

// Clone returns a copy of o.
func (o Outputs) Clone() Outputs {
	return Outputs{
		Stdout: append([]OutputObject(nil), o.Stdout...),
		Stderr: append([]OutputObject(nil), o.Stderr...),
	}
}
