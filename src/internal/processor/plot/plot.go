// Package plot builds chart views over dataset columns.
package plot

import (
	"context"
	"strconv"
	"strings"

	"github.com/vizierdb/vizier/src/internal/datastore"
	"github.com/vizierdb/vizier/src/internal/errors"
	"github.com/vizierdb/vizier/src/internal/processor"
	"github.com/vizierdb/vizier/src/internal/viztrail"
)

// PackageID is the identifier plot commands are declared under.
const PackageID = "plot"

// Chart types.
const (
	AreaChart   = "Area Chart"
	BarChart    = "Bar Chart"
	LineChart   = "Line Chart"
	ScatterPlot = "Scatter Plot"
)

// Processor executes plot commands.  Charts read their dataset and write nothing.
type Processor struct{}

var _ processor.Processor = (*Processor)(nil)

// New returns a plot processor.
func New() *Processor {
	return &Processor{}
}

// Compute implements processor.Processor.
func (p *Processor) Compute(ctx context.Context, commandID string, args viztrail.Record, tc *processor.TaskContext) (processor.Result, error) {
	if commandID != "chart" {
		return nil, errors.Errorf("unknown plot command %q", commandID)
	}
	name, err := args.String("dataset")
	if err != nil {
		return nil, err
	}
	ds, err := tc.Dataset(ctx, name)
	if err != nil {
		return tc.Failure(err), nil
	}
	view, err := newView(name, args, &ds.Descriptor)
	if err != nil {
		return tc.Failure(err), nil
	}
	if view.Rows, err = query(ds, view); err != nil {
		return tc.Failure(err), nil
	}
	tc.Output(viztrail.ChartOutput(view))
	return tc.Success(), nil
}

func newView(dataset string, args viztrail.Record, d *datastore.Descriptor) (*viztrail.ChartView, error) {
	chartName, err := args.StringOr("name", "")
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(chartName) == "" {
		chartName = dataset + " Plot"
	}
	view := &viztrail.ChartView{Dataset: dataset, Name: chartName, Type: BarChart}
	if args.Has("chart") {
		chart, err := args.Record("chart")
		if err != nil {
			return nil, err
		}
		if view.Type, err = chart.StringOr("chartType", BarChart); err != nil {
			return nil, err
		}
		if chart.Has("chartGrouped") {
			if view.Grouped, err = chart.Bool("chartGrouped"); err != nil {
				return nil, err
			}
		}
	}
	if args.Has("xaxis") {
		xaxis, err := args.Record("xaxis")
		if err != nil {
			return nil, err
		}
		if xaxis.Has("column") {
			s, err := newSeries(xaxis, d)
			if err != nil {
				return nil, errors.Wrap(err, "x-axis")
			}
			view.Series = append(view.Series, s)
			zero := 0
			view.XAxis = &zero
		}
	}
	series, err := args.List("series")
	if err != nil {
		return nil, err
	}
	if len(series) == 0 {
		return nil, errors.New("chart without data series")
	}
	for i, v := range series {
		rec, ok := v.(viztrail.Record)
		if !ok {
			return nil, errors.Errorf("series %d is not a record", i)
		}
		s, err := newSeries(rec, d)
		if err != nil {
			return nil, errors.Wrapf(err, "series %d", i)
		}
		view.Series = append(view.Series, s)
	}
	return view, nil
}

func newSeries(args viztrail.Record, d *datastore.Descriptor) (viztrail.ChartSeries, error) {
	id, err := args.Int("column")
	if err != nil {
		return viztrail.ChartSeries{}, err
	}
	i := d.ColumnIndex(id)
	if i < 0 {
		return viztrail.ChartSeries{}, errors.Errorf("unknown column identifier %d", id)
	}
	s := viztrail.ChartSeries{Column: id, Label: d.Columns[i].Name}
	label, err := args.StringOr("label", "")
	if err != nil {
		return s, err
	}
	if strings.TrimSpace(label) != "" {
		s.Label = label
	}
	r, err := args.StringOr("range", "")
	if err != nil {
		return s, err
	}
	s.RangeStart, s.RangeEnd, err = parseRange(r)
	return s, err
}

// parseRange parses "start:end" or a single row position.  An empty range covers every row.
func parseRange(r string) (*int, *int, error) {
	r = strings.TrimSpace(r)
	if r == "" {
		return nil, nil, nil
	}
	invalid := errors.Errorf("invalid range %q", r)
	first, last, isInterval := strings.Cut(r, ":")
	start, err := strconv.Atoi(strings.TrimSpace(first))
	if err != nil {
		return nil, nil, invalid
	}
	end := start
	if isInterval {
		if end, err = strconv.Atoi(strings.TrimSpace(last)); err != nil {
			return nil, nil, invalid
		}
	}
	if start < 0 || end < start {
		return nil, nil, invalid
	}
	return &start, &end, nil
}

// query collects the values of every series.  Series shorter than the longest one are padded
// with nulls.  Values of series other than the x-axis are converted to numbers where possible.
func query(ds *datastore.Dataset, view *viztrail.ChartView) ([][]interface{}, error) {
	columns := make([][]interface{}, len(view.Series))
	longest := 0
	for si, s := range view.Series {
		ci := ds.ColumnIndex(s.Column)
		if ci < 0 {
			return nil, errors.Errorf("unknown column identifier %d", s.Column)
		}
		start, end := 0, len(ds.Rows)-1
		if s.RangeStart != nil {
			start, end = *s.RangeStart, *s.RangeEnd
		}
		numeric := view.XAxis == nil || *view.XAxis != si
		for ri := start; ri <= end && ri < len(ds.Rows); ri++ {
			var v interface{}
			if values := ds.Rows[ri].Values; ci < len(values) {
				v = values[ci]
			}
			if numeric {
				v = toNumber(v)
			}
			columns[si] = append(columns[si], v)
		}
		if len(columns[si]) > longest {
			longest = len(columns[si])
		}
	}
	rows := make([][]interface{}, longest)
	for ri := range rows {
		rows[ri] = make([]interface{}, len(columns))
		for si, col := range columns {
			if ri < len(col) {
				rows[ri][si] = col[ri]
			}
		}
	}
	return rows, nil
}

func toNumber(v interface{}) interface{} {
	s, ok := v.(string)
	if !ok {
		return v
	}
	if n, err := strconv.ParseInt(strings.ReplaceAll(s, ",", ""), 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return v
}
