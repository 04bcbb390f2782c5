//go:build tools

// Package tools pins the lint and vulnerability tooling run in CI, e.g.
// go run -modfile=tools/go.mod github.com/golangci/golangci-lint/cmd/golangci-lint run ./...
package tools

import (
	_ "github.com/golangci/golangci-lint/cmd/golangci-lint"
	_ "golang.org/x/vuln/cmd/govulncheck"
	_ "honnef.co/go/tools/cmd/staticcheck"
	_ "mvdan.cc/gofumpt"
)
