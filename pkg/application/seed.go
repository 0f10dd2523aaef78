package application

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/sirupsen/logrus"

	"github.com/foreverif/laf/pkg/domain"
)

// DocumentInserter is implemented by in-memory databases that accept seed documents
type DocumentInserter interface {
	Insert(collName string, doc domain.Document) (string, error)
	Count(collName string) int
}

// InserterProvider returns the database that seeds of app are written to
type InserterProvider func(app *domain.Application) DocumentInserter

// ApplySeeds inserts seed documents into collections that are still empty, so seeding a
// database restored from disk does not duplicate documents.
func ApplySeeds(ctx context.Context, r *MemoryRegistry, provider InserterProvider, logger logrus.FieldLogger) error {
	for _, appid := range r.AppIDs() {
		seeds := r.Seeds(appid)
		if len(seeds) == 0 {
			continue
		}
		app, err := r.GetApplicationByAppid(ctx, appid)
		if err != nil {
			return err
		}
		db := provider(app)
		for collName, docs := range seeds {
			if db.Count(collName) > 0 {
				continue
			}
			for _, doc := range docs {
				if _, err := db.Insert(collName, doc); err != nil {
					return goerr.Wrap(err, "failed to seed document",
						goerr.V("appid", appid), goerr.V("collection", collName))
				}
			}
			logger.WithFields(logrus.Fields{
				"appid":      appid,
				"collection": collName,
				"documents":  len(docs),
			}).Info("seeded collection")
		}
	}
	return nil
}
