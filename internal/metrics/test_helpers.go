package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// ReadValue retrieves the current value of a single counter, gauge or
// histogram sample. For histograms it returns the sample count. Intended
// for tests in any package that asserts on metrics.
func ReadValue(c prometheus.Collector) (float64, error) {
	ch := make(chan prometheus.Metric, 1)
	go func() {
		c.Collect(ch)
		close(ch)
	}()

	var value float64
	for m := range ch {
		pb := &dto.Metric{}
		if err := m.Write(pb); err != nil {
			return 0, err
		}
		switch {
		case pb.Gauge != nil:
			value = pb.Gauge.GetValue()
		case pb.Counter != nil:
			value = pb.Counter.GetValue()
		case pb.Histogram != nil:
			value = float64(pb.Histogram.GetSampleCount())
		}
	}
	return value, nil
}
