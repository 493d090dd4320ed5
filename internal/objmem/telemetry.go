package objmem

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/talkvm/core/internal/runtime/netstack"
)

// TelemetryExporter streams a Snapshot to a collector endpoint after each
// audited GC cycle, over HTTP/3 so a high-frequency embedded collector
// doesn't pay TCP head-of-line blocking for a burst of small post-cycle
// reports.
type TelemetryExporter struct {
	client   *http.Client
	endpoint string
}

// NewTelemetryExporter dials endpoint with an HTTP/3 client. tlsCfg may be
// nil to use the default TLS 1.3 config; pass a config built from
// netstack.LoadTLSConfig when the collector expects a pinned certificate.
func NewTelemetryExporter(endpoint string, tlsCfg *tls.Config, timeout time.Duration) *TelemetryExporter {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return &TelemetryExporter{
		client:   netstack.HTTP3Client(tlsCfg, timeout),
		endpoint: endpoint,
	}
}

// Export posts snap as JSON to the collector endpoint.
func (t *TelemetryExporter) Export(ctx context.Context, snap Snapshot) error {
	body, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("objmem: marshal snapshot: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("objmem: build telemetry request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("objmem: export snapshot: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("objmem: collector rejected snapshot: status %s", resp.Status)
	}

	return nil
}

// Close releases the underlying HTTP/3 transport.
func (t *TelemetryExporter) Close() {
	netstack.ShutdownHTTP3(t.client)
}

// ExportAfterCycle is a convenience wired from Heap: take a snapshot
// stamped at, and export it, swallowing export errors into the trace
// stream rather than propagating them — a down collector must never fail
// a GC cycle.
func (h *Heap) ExportAfterCycle(ctx context.Context, exporter *TelemetryExporter, at time.Time) {
	if exporter == nil {
		return
	}

	snap := h.TakeSnapshot(at)
	if err := exporter.Export(ctx, snap); err != nil {
		h.trace.Printf("objmem: telemetry export failed: %v", err)
	}
}
