package api

import (
	"log/slog"

	"github.com/ssargent/filekv/pkg/store"
)

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// KeyValueResponse is returned when reading a key
type KeyValueResponse struct {
	Key   string      `json:"key"`
	Value interface{} `json:"value"`
}

// ListResponse is returned when reading a list
type ListResponse struct {
	Name  string        `json:"name"`
	Items []interface{} `json:"items"`
}

// ServerConfig holds configuration for the API server
type ServerConfig struct {
	Bind string
	Port int
	// APIKey protects /api/v1 when set
	APIKey string
	// MaxBodyBytes limits request bodies (default 8 MiB)
	MaxBodyBytes int64
	Logger       *slog.Logger
}

// IKVStore defines the store operations the API serves
type IKVStore interface {
	Create(key string, value any) error
	Read(key string, out any) error
	Update(key string, value any) error
	Delete(key string) error
	ListPrefix(prefix string) ([]string, error)

	LCreate(name string) error
	LExtend(name string, values ...any) error
	LItems(name string) ([]store.ListItem, error)
	LRemList(name string) (int, error)

	Compact() (*store.CompactionResult, error)
	Stats() (*store.StoreStats, error)
}

var _ IKVStore = (*store.Store)(nil)
