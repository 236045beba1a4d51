// Package registry stores enrolled devices and hands out their tunnel
// addresses. Only public keys are ever stored.
package registry

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("device not found")
	ErrExists   = errors.New("device already exists")
)

// Device is one enrolled peer of the server tunnel.
type Device struct {
	ID        string    `json:"device_id"`
	Name      string    `json:"device_name"`
	Address   string    `json:"assigned_ip"`
	PublicKey string    `json:"public_key"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is implemented by MemoryStore and PostgresStore.
type Store interface {
	// Create fills in ID and CreatedAt when they are unset. It returns
	// ErrExists if the name, address or public key is already taken.
	Create(ctx context.Context, d *Device) error
	Get(ctx context.Context, name string) (*Device, error)
	// List returns devices ordered by creation time.
	List(ctx context.Context) ([]Device, error)
	Delete(ctx context.Context, name string) error
	// Addresses returns every address currently assigned.
	Addresses(ctx context.Context) ([]string, error)
}
