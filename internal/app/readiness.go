package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// OracleHealth reports whether the model oracle is fit to serve lookups.
type OracleHealth interface{ Healthy() bool }

// BuildReadinessChecks returns two readiness checks: the model oracle and the
// snapshot store. The oracle check consults the breaker state instead of
// issuing a live lookup, so probes never spend upstream requests. The store
// check writes and removes a probe file in the data directory.
func BuildReadinessChecks(oracle OracleHealth, dataDir string) (
	func(ctx context.Context) error,
	func(ctx context.Context) error,
) {
	oracleCheck := func(_ context.Context) error {
		if oracle == nil {
			return fmt.Errorf("oracle not configured")
		}
		if !oracle.Healthy() {
			return fmt.Errorf("model oracle unhealthy")
		}
		return nil
	}
	storeCheck := func(_ context.Context) error {
		if dataDir == "" {
			return fmt.Errorf("data dir not configured")
		}
		if err := os.MkdirAll(dataDir, 0o750); err != nil {
			return fmt.Errorf("data dir: %w", err)
		}
		probe := filepath.Join(dataDir, ".readyz")
		if err := os.WriteFile(probe, []byte("ok"), 0o600); err != nil {
			return fmt.Errorf("data dir not writable: %w", err)
		}
		_ = os.Remove(probe)
		return nil
	}
	return oracleCheck, storeCheck
}
