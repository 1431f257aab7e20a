//go:build contract

// Package contract contains Pact contract testing infrastructure for the
// aicostmanager-go SDK's HTTP surface. Contract tests verify that
// httpdispatcher's /track and /triggered-limits requests match what the
// AICM ingestion API actually expects and returns.
//
// Prerequisites:
//   - Install Pact FFI: go install github.com/pact-foundation/pact-go/v2/command/pact-go@latest && pact-go install
//
// Run all: go test -tags contract ./test/contract/...
// Provider verification also needs PACT_PROVIDER_TEST=true and a reachable
// PROVIDER_BASE_URL, or PACT_BROKER_URL for verification against a broker.
package contract

import (
	"os"
	"path/filepath"
)

const (
	// ProviderName is the name of the remote service this SDK consumes.
	ProviderName = "aicm-api"

	// DefaultConsumerName is the default consumer name for tests.
	DefaultConsumerName = "aicostmanager-go"

	// PactDir is the directory where generated pact files are stored.
	PactDir = "./pacts"
)

// PactConfig holds configuration for Pact tests.
type PactConfig struct {
	// Consumer is the name of the consumer application.
	Consumer string
	// Provider is the name of the provider application.
	Provider string
	// PactDir is the directory to write pact files.
	PactDir string
	// LogLevel controls Pact logging verbosity (TRACE, DEBUG, INFO, WARN, ERROR, NONE).
	LogLevel string
}

// DefaultConfig returns a PactConfig with sensible defaults.
func DefaultConfig() PactConfig {
	logLevel := os.Getenv("PACT_LOG_LEVEL")
	if logLevel == "" {
		logLevel = "WARN"
	}

	return PactConfig{
		Consumer: DefaultConsumerName,
		Provider: ProviderName,
		PactDir:  getPactDir(),
		LogLevel: logLevel,
	}
}

// getPactDir returns the absolute path to the pacts directory.
func getPactDir() string {
	if wd, err := os.Getwd(); err == nil {
		pactDir := filepath.Join(wd, "pacts")
		if _, err := os.Stat(pactDir); err == nil {
			return pactDir
		}
		if err := os.MkdirAll(pactDir, 0755); err == nil {
			return pactDir
		}
	}
	return "./pacts"
}
