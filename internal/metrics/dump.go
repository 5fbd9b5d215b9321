package metrics

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

// WriteText writes the gathered families whose names start with prefix in
// the Prometheus text exposition format. An empty prefix writes everything.
func WriteText(w io.Writer, g prometheus.Gatherer, prefix string) error {
	families, err := g.Gather()
	if err != nil {
		return fmt.Errorf("gathering metrics: %w", err)
	}

	enc := expfmt.NewEncoder(w, expfmt.FmtText)
	for _, mf := range filterFamilies(families, prefix) {
		if err := enc.Encode(mf); err != nil {
			return fmt.Errorf("encoding %s: %w", mf.GetName(), err)
		}
	}
	return nil
}

// DumpFile writes this tool's metrics to path, replacing any existing file.
func DumpFile(path string, g prometheus.Gatherer) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteText(f, g, namespace+"_"); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func filterFamilies(families []*dto.MetricFamily, prefix string) []*dto.MetricFamily {
	if prefix == "" {
		return families
	}
	out := families[:0:0]
	for _, mf := range families {
		if strings.HasPrefix(mf.GetName(), prefix) {
			out = append(out, mf)
		}
	}
	return out
}
