// Package history stores completed stays for the parking service.
package history

import (
	"context"
	"fmt"

	"parking-lot/internal/config"
	"parking-lot/internal/parking"
)

const defaultLimit = 20

// Store is a recorder that can also list what it kept.
type Store interface {
	parking.HistoryRecorder
	parking.HistoryLister
	Close() error
}

// Open picks the store named by cfg.Driver. The "none" driver returns a
// nil Store, which the parking system treats as discard.
func Open(ctx context.Context, cfg config.HistoryConfig) (Store, error) {
	switch cfg.Driver {
	case "none", "":
		return nil, nil
	case "file":
		return OpenFile(cfg.Path)
	case "postgres":
		return OpenPostgres(ctx, cfg.DatabaseURL)
	default:
		return nil, fmt.Errorf("unknown history driver %q", cfg.Driver)
	}
}
