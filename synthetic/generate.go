package synthetic

import (
	"context"
	"flag"
	"fmt"
	"time"

	"crmbridge/migrator/appcontext"
	"crmbridge/migrator/config"
	"crmbridge/migrator/datalake/routing"
	"crmbridge/migrator/storage"
)

// RunGenerateSyntheticData generates CRM-shaped records for local testing.
func RunGenerateSyntheticData(ctx context.Context, args []string, cfg *config.Config, table *config.EntityTable) error {
	logger := appcontext.LoggerFromContext(ctx)

	genFlagSet := flag.NewFlagSet("generate-synthetic-data", flag.ContinueOnError)
	rows := genFlagSet.Int("rows", cfg.SyntheticDataRows, "Number of records to generate")
	dir := genFlagSet.String("dir", cfg.SyntheticDataDir, "Directory to write synthetic data to")
	entity := genFlagSet.String("entity", "ONotice__c", "CRM object the records imitate")
	seed := genFlagSet.Int64("seed", 1, "Random seed")
	persistToMongo := genFlagSet.Bool("persist-to-mongo", false, "Route and upsert the records into MongoDB")
	if err := genFlagSet.Parse(args); err != nil {
		return fmt.Errorf("failed to parse flags: %w", err)
	}

	selected, err := table.Select([]string{*entity})
	if err != nil {
		return err
	}
	field := selected[0].ClassificationField
	records := GenerateRecords(*entity, field, *rows, time.Now().Add(-time.Duration(*rows)*time.Second), *seed)

	if !*persistToMongo {
		logger.InfoContext(ctx, "Generating synthetic data", "entity", *entity, "rows", *rows)
		path, err := GenerateSyntheticData(*entity, records, *dir)
		if err != nil {
			return fmt.Errorf("failed to generate synthetic data: %w", err)
		}
		logger.InfoContext(ctx, "Synthetic data generated successfully", "file", path)
		return nil
	}

	client, err := storage.ConnectToMongoDBFunc(ctx, cfg.MongoURI)
	if err != nil {
		return fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	defer func() {
		if deferErr := client.Disconnect(ctx); deferErr != nil {
			logger.ErrorContext(ctx, "Error disconnecting from MongoDB", "error", deferErr)
		}
	}()

	router := routing.Router{
		ClassificationField: field,
		AllowList:           table.Classification.AllowList,
		DefaultLabel:        table.Classification.DefaultLabel,
	}
	repo := storage.NewMongoRepository(storage.NewMongoProvider(client, cfg.MongoDatabase))
	written, err := PersistSyntheticData(ctx, repo, router, *entity, records)
	if err != nil {
		return fmt.Errorf("failed to persist synthetic data: %w", err)
	}
	logger.InfoContext(ctx, "Synthetic data persisted successfully", "entity", *entity, "written", written)

	return nil
}
