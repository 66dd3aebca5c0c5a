package main

import (
	"context"
	"fmt"

	"hdnotes-server/internal/config"
	"hdnotes-server/internal/logging"
	"hdnotes-server/internal/repository"
	"hdnotes-server/internal/repository/mongostore"

	_ "github.com/go-kivik/kivik/v4/couchdb"

	"github.com/go-kivik/kivik/v4"
)

type store struct {
	accounts repository.AccountRepository
	notes    repository.NoteRepository
	close    func(ctx context.Context) error
}

func openStore(ctx context.Context, cfg *config.Config, logger logging.Logger) (*store, error) {
	switch cfg.Database.Driver {
	case config.DriverMongoDB:
		return openMongo(ctx, cfg, logger)
	default:
		return openCouch(ctx, cfg, logger)
	}
}

func openCouch(ctx context.Context, cfg *config.Config, logger logging.Logger) (*store, error) {
	client, err := kivik.New("couch", cfg.Database.CouchURL())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to couchdb: %w", err)
	}

	created, err := repository.EnsureCouchDB(ctx, client, cfg.Database.Name)
	if err != nil {
		return nil, err
	}
	if created {
		logger.Info(ctx, "created database", "name", cfg.Database.Name)
	}
	logger.Info(ctx, "connected to couchdb", "host", cfg.Database.Host, "port", cfg.Database.Port)

	return &store{
		accounts: repository.NewAccountRepository(client, cfg.Database.Name, cfg.Database.Timeout),
		notes:    repository.NewNoteRepository(client, cfg.Database.Name, cfg.Database.Timeout),
		close: func(context.Context) error {
			return client.Close()
		},
	}, nil
}

func openMongo(ctx context.Context, cfg *config.Config, logger logging.Logger) (*store, error) {
	client, err := mongostore.Connect(ctx, cfg.Database.MongoURI, cfg.Database.Timeout)
	if err != nil {
		return nil, err
	}

	db := client.Database(cfg.Database.Name)
	if err := mongostore.EnsureIndexes(ctx, db); err != nil {
		client.Disconnect(ctx)
		return nil, err
	}
	logger.Info(ctx, "connected to mongodb", "database", cfg.Database.Name)

	return &store{
		accounts: mongostore.NewAccountRepository(db, cfg.Database.Timeout),
		notes:    mongostore.NewNoteRepository(db, cfg.Database.Timeout),
		close:    client.Disconnect,
	}, nil
}
