package main

import (
	"context"

	"go.uber.org/zap"

	"facturas/pkg/config"
	"facturas/pkg/store"
)

// openStore connects to postgres, migrates when db.auto_migrate is set and
// seeds the roles and the admin account. An empty DSN returns nil: the
// server then runs without history or accounts.
func openStore(ctx context.Context, cfg *config.Config) (*store.Store, error) {
	if cfg.DB.DSN == "" {
		zap.L().Info("db.dsn is empty, scan history and accounts are disabled")
		return nil, nil
	}
	st, err := store.Open(cfg.DB.DSN)
	if err != nil {
		return nil, err
	}
	if cfg.DB.AutoMigrate {
		st.Migrate(ctx)
	}
	if err := st.Seed(ctx, cfg.Auth.AdminPassword); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}
