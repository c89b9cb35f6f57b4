package metrics

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opencensus.io/stats/view"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

var (
	testCounter = NewCounter("modelcrawler/test/count", "number of tests", "kind")
	testLatency = NewLatency("modelcrawler/test/latency", "test latency", "kind")
)

type captureExporter struct {
	mu   sync.Mutex
	seen map[string]int
}

func (c *captureExporter) ExportView(vd *view.Data) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seen[vd.View.Name] += len(vd.Rows)
}

func TestMetrics(t *testing.T) {
	exporter := &captureExporter{seen: make(map[string]int)}
	Init(WithExporter(exporter))

	Inc(testCounter, map[string]string{"kind": "unit"})
	Int64(testCounter, 2, map[string]string{"kind": "unit"})
	Since(time.Now().Add(-time.Millisecond), testLatency, map[string]string{"kind": "unit"})

	rows, err := view.RetrieveData("modelcrawler/test/count")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	sum, ok := rows[0].Data.(*view.SumData)
	require.True(t, ok)
	assert.Equal(t, float64(3), sum.Value)

	rows, err = view.RetrieveData("modelcrawler/test/latency")
	require.NoError(t, err)
	require.Len(t, rows, 1)

	Flush()
	exporter.mu.Lock()
	defer exporter.mu.Unlock()
	assert.Equal(t, 1, exporter.seen["modelcrawler/test/count"])
}

func TestLogExporter(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	exp := LogExporter(zap.New(core))

	Inc(testCounter, map[string]string{"kind": "log"})
	rows, err := view.RetrieveData("modelcrawler/test/count")
	require.NoError(t, err)

	exp.ExportView(&view.Data{View: &view.View{Name: "modelcrawler/test/count"}, Rows: rows})
	require.NotZero(t, logs.Len())
	assert.Equal(t, "modelcrawler/test/count", logs.All()[0].ContextMap()["metric"])
}
