// Package detect decides which protocol an endpoint speaks. Candidates are
// probed strictly one at a time: each gets a bounded full connect/handshake
// attempt, and a failing candidate is completely torn down before the next
// is tried so two probes never contend for one physical endpoint.
package detect

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/IceNet-01/Mesh-Bridge-GUI-sub003/adapter"
	"github.com/IceNet-01/Mesh-Bridge-GUI-sub003/errors"
	"github.com/IceNet-01/Mesh-Bridge-GUI-sub003/metric"
)

const defaultProbeTimeout = 30 * time.Second

// Options tunes the detector.
type Options struct {
	// ProbeTimeout bounds each candidate's connect/handshake attempt.
	ProbeTimeout time.Duration
	Logger       *slog.Logger
	Metrics      *metric.Metrics

	// Classify overrides endpoint classification, mainly for tests.
	Classify func(endpoint string) []string
}

// Detector probes endpoints against registered protocol factories.
type Detector struct {
	registry     *adapter.Registry
	probeTimeout time.Duration
	logger       *slog.Logger
	metrics      *metric.Metrics
	classify     func(endpoint string) []string
}

// New creates a detector over a protocol registry.
func New(registry *adapter.Registry, opts Options) *Detector {
	if opts.ProbeTimeout == 0 {
		opts.ProbeTimeout = defaultProbeTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Classify == nil {
		opts.Classify = Classify
	}
	return &Detector{
		registry:     registry,
		probeTimeout: opts.ProbeTimeout,
		logger:       opts.Logger.With("component", "detect"),
		metrics:      opts.Metrics,
		classify:     opts.Classify,
	}
}

// Detect finds the protocol the endpoint speaks and returns the connected
// adapter. A non-empty pinned protocol bypasses detection entirely and that
// single adapter is connected directly. If every candidate fails, the error
// names all attempted protocols and nothing is left connected.
func (d *Detector) Detect(ctx context.Context, deps adapter.Deps, pinned string) (adapter.Adapter, error) {
	candidates := d.classify(deps.Endpoint)
	if pinned != "" {
		candidates = []string{pinned}
		d.logger.Info("protocol pinned, skipping detection",
			"endpoint", deps.Endpoint, "protocol", pinned)
	}

	var attempted []string
	for _, protocol := range candidates {
		a, err := d.probe(ctx, deps, protocol)
		if err == nil {
			d.record(protocol, "detected")
			d.logger.Info("protocol detected",
				"endpoint", deps.Endpoint, "protocol", protocol)
			return a, nil
		}

		d.record(protocol, "failed")
		attempted = append(attempted, protocol)
		d.logger.Warn("candidate failed",
			"endpoint", deps.Endpoint, "protocol", protocol, "error", err)

		if pinned != "" && stderrors.Is(err, errors.ErrUnknownProtocol) {
			// A pinned protocol with no registered factory is a config
			// problem; exhaustion would hide that from the caller.
			return nil, err
		}

		if ctx.Err() != nil {
			return nil, errors.WrapTransient(ctx.Err(), "Detector", "Detect", "probing cancelled")
		}
	}

	return nil, errors.WrapFatal(
		fmt.Errorf("%w: endpoint %s, tried [%s]",
			errors.ErrDetectionExhausted, deps.Endpoint, strings.Join(attempted, ", ")),
		"Detector", "Detect", "candidate probing")
}

// probe runs one candidate's full connect sequence under the per-candidate
// timeout. Failure tears the adapter down completely before returning.
func (d *Detector) probe(ctx context.Context, deps adapter.Deps, protocol string) (adapter.Adapter, error) {
	a, err := d.registry.Create(protocol, deps)
	if err != nil {
		return nil, err
	}

	probeCtx, cancel := context.WithTimeout(ctx, d.probeTimeout)
	defer cancel()

	if err := a.Connect(probeCtx); err != nil {
		// A failed handshake may still hold partial resources.
		_ = a.Disconnect()
		return nil, err
	}
	return a, nil
}

func (d *Detector) record(protocol, outcome string) {
	if d.metrics != nil {
		d.metrics.RecordDetection(protocol, outcome)
	}
}
