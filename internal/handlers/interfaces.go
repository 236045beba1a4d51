package handlers

import (
	"context"

	"safenet/internal/keys"
	"safenet/internal/tunnel"
)

// TunnelController is the part of *tunnel.Supervisor the API drives.
type TunnelController interface {
	Start(ctx context.Context, spec tunnel.InterfaceSpec, name string) error
	Stop(ctx context.Context, name string, opts ...tunnel.StopOption) (tunnel.StopReport, error)
	Status(ctx context.Context, name string) (tunnel.Status, error)
}

// KeyGenerator creates device key pairs. keys.Generate in production.
type KeyGenerator func() (keys.Pair, error)
