package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	apiclient "crmbridge/migrator/apiClient"
	bcontext "crmbridge/migrator/appcontext"
	"crmbridge/migrator/config"
	"crmbridge/migrator/datalake/soql"
	"crmbridge/migrator/ingest"
	"crmbridge/migrator/synthetic"
)

const usage = "Usage: migrator <sync|transfer|generate-synthetic-data> [options]"

func main() {
	logger := bcontext.NewLogger(config.LoadLogSettings())

	if len(os.Args) < 2 {
		logger.Error(usage)
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	if err := run(logger, command, args); err != nil {
		logger.Error("Application terminated with an error", "error", fmt.Sprintf("%+v", err))
		os.Exit(1)
	}
}

func run(logger *slog.Logger, command string, args []string) error {
	ctx, _ := bcontext.WithRunID(bcontext.WithLogger(context.Background(), logger))
	logger = bcontext.LoggerFromContext(ctx)
	logger.InfoContext(ctx, "Begin run", "command", command)

	cfg := config.LoadConfig(ctx, logger)
	table, err := config.LoadEntities(cfg.EntitiesFile)
	if err != nil {
		return err
	}

	switch command {
	case "sync":
		return runSync(ctx, args, cfg, table)
	case "transfer":
		return runTransfer(ctx, args, cfg, table)
	case "generate-synthetic-data":
		return synthetic.RunGenerateSyntheticData(ctx, args, cfg, table)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

func runSync(ctx context.Context, args []string, cfg *config.Config, table *config.EntityTable) error {
	fs := flag.NewFlagSet("sync", flag.ContinueOnError)
	entities := fs.String("entities", "", "Comma-separated CRM objects to sync (default: all)")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("failed to parse flags: %w", err)
	}

	sink := ingest.NewSink(ingest.SinkDependencies{Config: cfg, Entities: table})
	return sink.Sync(ctx, splitList(*entities))
}

func runTransfer(ctx context.Context, args []string, cfg *config.Config, table *config.EntityTable) error {
	fs := flag.NewFlagSet("transfer", flag.ContinueOnError)
	start := fs.String("start", "", "First creation day, YYYY-MM-DD")
	end := fs.String("end", "", "Last creation day, YYYY-MM-DD (inclusive)")
	minSize := fs.Int64("min-size", cfg.MinFileSize, "Only files larger than this many bytes")
	object := fs.String("object", "", "Only files linked to records of this object")
	field := fs.String("classification-field", "Vertical__c", "Classification field on -object")
	vertical := fs.String("vertical", "", "Only files whose parent has this classification")
	listVerticals := fs.Bool("list-verticals", false, "Print the classifications of -object and exit")
	writeBack := fs.Bool("write-back", false, "Record each transferred file in the CRM and flag its parent")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("failed to parse flags: %w", err)
	}

	sink := ingest.NewSink(ingest.SinkDependencies{Config: cfg, Entities: table})

	if *listVerticals {
		if *object == "" {
			return errors.New("-list-verticals requires -object")
		}
		values, err := sink.Classifications(ctx, *object, *field)
		if err != nil {
			return err
		}
		for _, v := range values {
			fmt.Println(v)
		}
		return nil
	}

	window, err := soql.ParseDateWindow(*start, *end)
	if err != nil {
		return err
	}

	req := ingest.TransferRequest{Window: window, MinSize: *minSize, WriteBack: *writeBack}
	if *object != "" {
		req.Filter = &apiclient.ParentFilter{
			Object:              *object,
			ClassificationField: *field,
			Classification:      *vertical,
		}
	}

	return sink.Transfer(ctx, req)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
