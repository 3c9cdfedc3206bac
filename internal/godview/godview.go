// Package godview is the top-level facade: it wires the Trust verifier,
// the Spatial Index, the Track Manager, Metrics, and Telemetry into the
// inbound detection interface and outbound track-update subscription
// named in spec §6, modeled on the teacher's cmd/nysus wiring of its
// control plane, DTN, and security subsystems.
package godview

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"log"
	"time"

	"github.com/asgard/godview/internal/config"
	"github.com/asgard/godview/internal/metrics"
	"github.com/asgard/godview/internal/spatial"
	"github.com/asgard/godview/internal/telemetry"
	"github.com/asgard/godview/internal/trackmgr"
	"github.com/asgard/godview/internal/trust"
	"github.com/asgard/godview/internal/wire"
	"github.com/google/uuid"
)

// Core wires every actor together and exposes the two external interfaces
// named in §6: inbound detections in, outbound track deltas out.
type Core struct {
	cfg      *config.Config
	signer   *trust.Signer
	verifier *trust.Verifier
	keys     *trust.TrustedKeyStore
	index    *spatial.Index
	manager  *trackmgr.Manager
	metrics  *metrics.Metrics
	tracer   *telemetry.Tracer
}

// Option configures a Core at construction time.
type Option func(*coreOptions)

type coreOptions struct {
	requiredScopes []string
	tracer         *telemetry.Tracer
	metrics        *metrics.Metrics
}

// WithRequiredScopes restricts the Trust verifier to the given capability
// scopes (§4.3); omit for a collaborator that accepts any declared scope.
func WithRequiredScopes(scopes ...string) Option {
	return func(o *coreOptions) { o.requiredScopes = scopes }
}

// WithTracer installs a telemetry.Tracer; defaults to telemetry.NewNoop().
func WithTracer(t *telemetry.Tracer) Option {
	return func(o *coreOptions) { o.tracer = t }
}

// WithMetrics installs a metrics.Metrics; defaults to metrics.Get().
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *coreOptions) { o.metrics = m }
}

// New builds a Core from cfg, the local signing key, and the initial
// trusted key set (loaded by the caller from a trust.KeyProvider per §6
// "Persisted state").
func New(cfg *config.Config, signingKey ed25519.PrivateKey, trusted []ed25519.PublicKey, opts ...Option) *Core {
	o := coreOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.tracer == nil {
		o.tracer = telemetry.NewNoop()
	}
	if o.metrics == nil {
		o.metrics = metrics.Get()
	}

	idx := spatial.NewIndex(cfg.SpatialConfig())
	mgr := trackmgr.NewManager(cfg.TrackManagerConfig(), idx, o.metrics)

	return &Core{
		cfg:      cfg,
		signer:   trust.NewSigner(signingKey),
		verifier: trust.NewVerifier(o.requiredScopes...),
		keys:     trust.NewTrustedKeyStore(trust.NewKeySet(trusted)),
		index:    idx,
		manager:  mgr,
		metrics:  o.metrics,
		tracer:   o.tracer,
	}
}

// Start launches the Track Manager's actors (ingest, reconciliation, idle
// retirement). Cancel ctx to stop them, or call Stop.
func (c *Core) Start(ctx context.Context) {
	log.Printf("[godview] starting fusion core")
	c.manager.Start(ctx)
}

// Stop halts every actor started by Start.
func (c *Core) Stop() {
	c.manager.Stop()
	log.Printf("[godview] fusion core stopped")
}

// SwapTrustedKeys installs a new trusted key set, replacing the prior
// snapshot wholesale (§5 "Shared resources").
func (c *Core) SwapTrustedKeys(trusted []ed25519.PublicKey) {
	c.keys.Swap(trust.NewKeySet(trusted))
}

// Submit is the inbound detection interface (§6): accepts an Entity,
// measurement-noise covariance, and producing-agent-id, and enqueues it
// for the Track Manager. Returns immediately.
func (c *Core) Submit(entity wire.Entity, cov []float64, agentID string) error {
	return c.manager.Submit(wire.Measurement{Entity: entity, Cov: cov, AgentID: agentID})
}

// Events is the outbound track-update subscription (§6).
func (c *Core) Events() <-chan wire.TrackDelta {
	return c.manager.Events()
}

// TombstoneSurvivor resolves a possibly merged-away UUID to its current
// surviving track, for callers that cached an older UUID.
func (c *Core) TombstoneSurvivor(id uuid.UUID) uuid.UUID {
	return c.manager.TombstoneSurvivor(id)
}

// SignMeasurement signs a measurement payload for transmission over the
// wire protocol (§6), optionally scoped by a capability grant.
func (c *Core) SignMeasurement(m wire.Measurement, capability *wire.Capability) (wire.SignedPacket, error) {
	payload, err := wire.WrapMeasurementPayload(m)
	if err != nil {
		return wire.SignedPacket{}, fmt.Errorf("godview: wrap measurement: %w", err)
	}
	return c.signer.Sign(payload, capability), nil
}

// IngestSignedPacket verifies an inbound SignedPacket (§4.3, §5 suspension
// point b) and, if it carries a Measurement, submits it to the Track
// Manager. TrackDelta and Capability-grant payloads are decoded and then
// ignored: the method returns nil for them and does not hand them on.
func (c *Core) IngestSignedPacket(ctx context.Context, p wire.SignedPacket) error {
	_, span := c.tracer.StartVerify(ctx, trust.KeyIDOf(p.KeyID))
	defer span.End()

	payload, err := c.verifier.Verify(p, c.keys.Snapshot(), time.Now().UTC(), c.cfg.TrustFreshnessWindow())
	if err != nil {
		c.metrics.RecordVerifyFailure(err.Error())
		return fmt.Errorf("godview: verify packet: %w", err)
	}

	tag, measurement, _, _, err := wire.DispatchPayload(payload)
	if err != nil {
		if err == wire.ErrUnknownPayloadTag {
			log.Printf("[godview] dropping packet with unknown payload tag %d", tag)
			return nil
		}
		return fmt.Errorf("godview: dispatch payload: %w", err)
	}
	if measurement == nil {
		return nil
	}
	if err := c.manager.Submit(*measurement); err != nil {
		return fmt.Errorf("godview: submit measurement: %w", err)
	}
	return nil
}
