// Copyright © 2018 One Concern

package metrics

import (
	"go.opencensus.io/stats/view"
	"go.uber.org/zap"
)

// LogExporter exports view data as structured log entries
func LogExporter(l *zap.Logger) view.Exporter {
	return &logExporter{l: l}
}

type logExporter struct {
	l *zap.Logger
}

func (e *logExporter) ExportView(vd *view.Data) {
	for _, row := range vd.Rows {
		fields := make([]zap.Field, 0, len(row.Tags)+2)
		fields = append(fields, zap.String("metric", vd.View.Name))
		for _, t := range row.Tags {
			fields = append(fields, zap.String(t.Key.Name(), t.Value))
		}
		switch data := row.Data.(type) {
		case *view.SumData:
			fields = append(fields, zap.Float64("sum", data.Value))
		case *view.CountData:
			fields = append(fields, zap.Int64("count", data.Value))
		case *view.DistributionData:
			fields = append(fields,
				zap.Int64("count", data.Count),
				zap.Float64("mean", data.Mean),
				zap.Float64("max", data.Max),
			)
		case *view.LastValueData:
			fields = append(fields, zap.Float64("value", data.Value))
		}
		e.l.Info("metric", fields...)
	}
}
