package handlers

import (
	"bytes"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"github.com/valyala/fasthttp"

	"dolphinpod/internal/metrics"
)

// exportedPrefixes are the metric families served on /metrics.
var exportedPrefixes = []string{metrics.Namespace + "_", "go_", "process_"}

func exported(mf *dto.MetricFamily) bool {
	for _, p := range exportedPrefixes {
		if strings.HasPrefix(mf.GetName(), p) {
			return true
		}
	}
	return false
}

// MetricsHandler serves the gatherer's families in the Prometheus text
// format.
func MetricsHandler(gatherer prometheus.Gatherer) fasthttp.RequestHandler {
	format := expfmt.NewFormat(expfmt.TypeTextPlain)
	return func(ctx *fasthttp.RequestCtx) {
		families, err := gatherer.Gather()
		if err != nil && len(families) == 0 {
			ctx.SetStatusCode(fasthttp.StatusInternalServerError)
			ctx.SetBodyString("failed to gather metrics")
			return
		}

		var buf bytes.Buffer
		encoder := expfmt.NewEncoder(&buf, format)
		for _, mf := range families {
			if !exported(mf) {
				continue
			}
			if err := encoder.Encode(mf); err != nil {
				ctx.SetStatusCode(fasthttp.StatusInternalServerError)
				ctx.SetBodyString("failed to encode metrics")
				return
			}
		}

		ctx.SetContentType(string(format))
		ctx.Response.Header.Set("Cache-Control", "no-store")
		ctx.SetBody(buf.Bytes())
	}
}

// NewRegistry returns a registry holding the service metrics and the Go
// runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	metrics.Register(reg)
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}
