// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"log/slog"

	"github.com/storycut/storycut/pkg/registry"
)

// NewRegistry builds a node registry with every built-in node type registered.
func NewRegistry(logger *slog.Logger) *registry.Registry {
	reg := registry.NewRegistry(logger)

	if err := reg.RegisterDefaultNodes(); err != nil {
		panic(err)
	}

	return reg
}
