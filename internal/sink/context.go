//go:build cgo

package sink

import (
	"log/slog"

	"github.com/gen2brain/malgo"
)

// deviceContext wraps malgo.AllocatedContext with lifecycle logging
type deviceContext struct {
	ctx *malgo.AllocatedContext
}

func newDeviceContext() (*deviceContext, error) {
	slog.Debug("initializing audio context")

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		slog.Debug("malgo internal", "message", message)
	})
	if err != nil {
		slog.Error("failed to initialize audio context", "error", err)
		return nil, err
	}
	return &deviceContext{ctx: ctx}, nil
}

func (c *deviceContext) close() error {
	if c == nil || c.ctx == nil {
		return nil
	}
	// malgo requires both Uninit() and Free()
	if err := c.ctx.Uninit(); err != nil {
		slog.Error("failed to uninitialize audio context", "error", err)
		return err
	}
	c.ctx.Free()
	c.ctx = nil
	slog.Debug("audio context closed")
	return nil
}
