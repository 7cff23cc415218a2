// Package di provides dependency injection container
package di

import (
	"fmt"
	"log/slog"

	"github.com/ssargent/filekv/pkg/api" //nolint:depguard
	"github.com/ssargent/filekv/pkg/codec"
	"github.com/ssargent/filekv/pkg/config"
	"github.com/ssargent/filekv/pkg/store"
)

// StoreOpener opens the store a configuration points at
type StoreOpener interface {
	OpenStore(cfg config.Store, logger *slog.Logger) (*store.Store, error)
}

// DefaultStoreOpener opens store files on the local filesystem
type DefaultStoreOpener struct{}

// OpenStore resolves the codec and opens the store
func (DefaultStoreOpener) OpenStore(cfg config.Store, logger *slog.Logger) (*store.Store, error) {
	format, err := codec.ParseFormat(cfg.Format)
	if err != nil {
		return nil, err
	}
	c, err := codec.New(format)
	if err != nil {
		return nil, err
	}
	kv, err := store.Open(cfg.Path, c, store.Options{
		ReadOnly:      cfg.ReadOnly,
		LockPath:      cfg.LockPath,
		Logger:        logger,
		MaxRecordSize: cfg.MaxRecordSize,
	})
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", cfg.Path, err)
	}
	return kv, nil
}

// Container holds all the dependencies for the application
type Container struct {
	storeOpener   StoreOpener
	serverFactory api.ServerFactory
}

// NewContainer creates a new dependency injection container
func NewContainer() *Container {
	return &Container{
		storeOpener:   DefaultStoreOpener{},
		serverFactory: api.NewServerFactory(),
	}
}

// GetStoreOpener returns the store opener
func (c *Container) GetStoreOpener() StoreOpener {
	return c.storeOpener
}

// GetServerFactory returns the server factory
func (c *Container) GetServerFactory() api.ServerFactory {
	return c.serverFactory
}

// SetStoreOpener allows overriding the store opener (for testing)
func (c *Container) SetStoreOpener(opener StoreOpener) {
	c.storeOpener = opener
}

// SetServerFactory allows overriding the server factory (for testing)
func (c *Container) SetServerFactory(factory api.ServerFactory) {
	c.serverFactory = factory
}
