// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"log/slog"

	"github.com/orchonhq/orchon/pkg/actions/email"
	logaction "github.com/orchonhq/orchon/pkg/actions/log"
	"github.com/orchonhq/orchon/pkg/actions/noop"
	"github.com/orchonhq/orchon/pkg/actions/updaterecord"
	"github.com/orchonhq/orchon/pkg/actions/webhook"
	"github.com/orchonhq/orchon/pkg/registry"
)

// NewRegistry builds the action registry with every native action type
// registered.
func NewRegistry(log *slog.Logger) *registry.Registry {
	reg := registry.NewRegistry(log)

	registerNativeActions(reg)

	return reg
}

func registerNativeActions(reg *registry.Registry) {
	reg.RegisterAction(webhook.NewActionFactory())
	reg.RegisterAction(email.NewActionFactory())
	reg.RegisterAction(updaterecord.NewActionFactory())
	reg.RegisterAction(logaction.NewActionFactory())
	reg.RegisterAction(noop.NewActionFactory())
}
