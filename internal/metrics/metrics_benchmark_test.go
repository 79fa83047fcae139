package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func BenchmarkRecordCommand(b *testing.B) {
	m := NewMetrics(prometheus.NewRegistry())

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		m.RecordCommand("sandbox run", time.Millisecond, "")
	}
}

func BenchmarkRecordReplay(b *testing.B) {
	m := NewMetrics(prometheus.NewRegistry())
	runs := []int{0, 1, 2}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		m.RecordReplay(runs, time.Second, "success")
	}
}
