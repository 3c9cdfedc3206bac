package godview

import (
	"context"
	"crypto/ed25519"
	"math"
	"testing"
	"time"

	"github.com/asgard/godview/internal/config"
	"github.com/asgard/godview/internal/wire"
	"github.com/google/uuid"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	for _, k := range []string{
		"GODVIEW_ENV", "GODVIEW_HISTORY_DEPTH", "GODVIEW_HEX_RESOLUTION",
		"GODVIEW_VOXEL_HEIGHT_M", "GODVIEW_FRESHNESS_WINDOW_NS",
		"GODVIEW_ASSIGNMENT_GATE_CHI2", "GODVIEW_MAX_ASSOCIATION_RADIUS_M",
		"GODVIEW_RECONCILIATION_PERIOD_MS", "GODVIEW_IDLE_TIMEOUT_MS",
		"GODVIEW_TOMBSTONE_CAPACITY", "GODVIEW_PROCESS_NOISE_Q_SCALE",
		"GODVIEW_MEASUREMENT_NOISE_R_DEFAULT",
	} {
		t.Setenv(k, "")
	}
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("config.Load failed: %v", err)
	}
	return cfg
}

func posCov9() []float64 {
	cov := make([]float64, 9)
	for i := 0; i < 3; i++ {
		cov[i*3+i] = 0.1
	}
	return cov
}

func entityAt(x, y, z float64, tMs int64) wire.Entity {
	return wire.Entity{
		ID:          uuid.New(),
		Position:    wire.Vector3{X: x, Y: y, Z: z},
		Class:       "vehicle",
		TimestampMS: tMs,
		Confidence:  0.9,
	}
}

func TestSubmitAndObserveConvergence(t *testing.T) {
	cfg := testConfig(t)
	_, priv, _ := ed25519.GenerateKey(nil)
	core := New(cfg, priv, []ed25519.PublicKey{priv.Public().(ed25519.PublicKey)})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	core.Start(ctx)
	defer core.Stop()

	for i := int64(0); i < 10; i++ {
		if err := core.Submit(entityAt(float64(i), 0, 0, i*100), posCov9(), "agentA"); err != nil {
			t.Fatalf("submit failed: %v", err)
		}
	}

	var last wire.TrackDelta
	seen := 0
	deadline := time.After(2 * time.Second)
	for seen < 10 {
		select {
		case ev := <-core.Events():
			last = ev
			seen++
		case <-deadline:
			t.Fatalf("timed out waiting for track events, saw %d", seen)
		}
	}

	if math.Abs(last.State[0]-9.0) > 0.3 {
		t.Fatalf("expected final x near 9.0, got %v", last.State[0])
	}
}

func TestIngestSignedPacketRejectsSpoofedSigner(t *testing.T) {
	cfg := testConfig(t)
	_, legitPriv, _ := ed25519.GenerateKey(nil)
	_, attackerPriv, _ := ed25519.GenerateKey(nil)

	// Core only trusts the legitimate key; the attacker signs with a key
	// of its own, never admitted into the trusted set.
	core := New(cfg, legitPriv, []ed25519.PublicKey{legitPriv.Public().(ed25519.PublicKey)})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	core.Start(ctx)
	defer core.Stop()

	payload, err := wire.WrapMeasurementPayload(wire.Measurement{
		Entity:  entityAt(0, 0, 0, 0),
		Cov:     posCov9(),
		AgentID: "attacker",
	})
	if err != nil {
		t.Fatalf("wrap payload failed: %v", err)
	}
	spoofed := wire.SignedPacket{
		Payload:    payload,
		KeyID:      []byte(attackerPriv.Public().(ed25519.PublicKey)),
		IssuedAtNS: time.Now().UnixNano(),
	}
	spoofed.Signature = ed25519.Sign(attackerPriv, spoofed.SigningBytes())

	if err := core.IngestSignedPacket(ctx, spoofed); err == nil {
		t.Fatal("expected spoofed packet to be rejected")
	}

	select {
	case ev := <-core.Events():
		t.Fatalf("expected no track event from a rejected packet, got %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestIngestSignedPacketAcceptsLegitimatePacket(t *testing.T) {
	cfg := testConfig(t)
	pub, priv, _ := ed25519.GenerateKey(nil)
	core := New(cfg, priv, []ed25519.PublicKey{pub})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	core.Start(ctx)
	defer core.Stop()

	packet, err := core.SignMeasurement(wire.Measurement{
		Entity:  entityAt(1, 2, 3, 0),
		Cov:     posCov9(),
		AgentID: "agentA",
	}, nil)
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}

	if err := core.IngestSignedPacket(ctx, packet); err != nil {
		t.Fatalf("expected legitimate packet to be accepted, got %v", err)
	}

	select {
	case ev := <-core.Events():
		if ev.Class != "vehicle" {
			t.Fatalf("unexpected track class %q", ev.Class)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for track event from legitimate packet")
	}
}
