// Package main is the godview fusion core process: it loads configuration
// and key material, wires the facade, serves /metrics, and runs until a
// shutdown signal arrives.
package main

import (
	"context"
	"crypto/ed25519"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/asgard/godview/internal/config"
	"github.com/asgard/godview/internal/godview"
	"github.com/asgard/godview/internal/metrics"
	"github.com/asgard/godview/internal/telemetry"
	"github.com/asgard/godview/internal/trust"
)

func main() {
	metricsAddr := flag.String("metrics-addr", ":9090", "Prometheus /metrics listen address")
	keyFile := flag.String("key-file", "", "path to the encrypted signing-key file")
	keyPassphrase := flag.String("key-passphrase", "", "passphrase for -key-file (or GODVIEW_KEY_PASSPHRASE)")
	flag.Parse()

	log.Println("=== GodView Fusion Core ===")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	signingKey, trustedKeys, err := loadKeyMaterial(*keyFile, *keyPassphrase)
	if err != nil {
		log.Fatalf("key material load failed: %v", err)
	}

	tracer, shutdownTracing, err := telemetry.New("godview", os.Stderr)
	if err != nil {
		log.Printf("tracing disabled: %v", err)
		tracer = telemetry.NewNoop()
	} else {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTracing(ctx); err != nil {
				log.Printf("tracing shutdown error: %v", err)
			}
		}()
	}

	core := godview.New(cfg, signingKey, trustedKeys,
		godview.WithTracer(tracer),
		godview.WithMetrics(metrics.Get()),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	core.Start(ctx)
	defer core.Stop()

	metricsServer := &http.Server{Addr: *metricsAddr, Handler: metrics.Handler()}
	go func() {
		log.Printf("serving /metrics on %s", *metricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server error: %v", err)
		}
	}()

	log.Println("godview is ready")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Println("shutting down godview...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("metrics server shutdown error: %v", err)
	}
	log.Println("godview stopped")
}

// loadKeyMaterial opens the encrypted key file named by keyFile (falling
// back to GODVIEW_KEY_FILE), sealed under passphrase (falling back to
// GODVIEW_KEY_PASSPHRASE), and returns the local signing key plus the
// trusted public key set (§6 "Persisted state": key material comes from a
// supplied key-provider, never generated by the core itself).
func loadKeyMaterial(keyFile, passphrase string) (ed25519.PrivateKey, []ed25519.PublicKey, error) {
	if keyFile == "" {
		keyFile = os.Getenv("GODVIEW_KEY_FILE")
	}
	if passphrase == "" {
		passphrase = os.Getenv("GODVIEW_KEY_PASSPHRASE")
	}
	provider := trust.NewFileKeyProvider(keyFile, passphrase)

	signingKey, err := provider.LoadSigningKey()
	if err != nil {
		return nil, nil, err
	}
	trustedKeys, err := provider.LoadTrustedKeys()
	if err != nil {
		return nil, nil, err
	}
	return signingKey, trustedKeys, nil
}
