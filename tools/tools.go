//go:build tools
// +build tools

// Package tools documents development tool dependencies with pinned versions.
// Install the CLIs with go install at these versions:
//   - mockgen: v0.6.0 (go.uber.org/mock/mockgen)
//   - goose: v3.26.0 (github.com/pressly/goose/v3/cmd/goose)
//
// Note: CLI tools cannot be imported as packages, so the imports below name
// the importable library package of each tool's module.
package tools

import (
	_ "github.com/pressly/goose/v3"
	_ "go.uber.org/mock/gomock"
)
