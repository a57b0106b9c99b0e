// Package ingest wires configuration, storage and the CRM client into sync and transfer runs.
package ingest

import (
	"context"
	"fmt"
	"io"
	"net/http"

	apiclient "crmbridge/migrator/apiClient"
	"crmbridge/migrator/appcontext"
	"crmbridge/migrator/config"
	"crmbridge/migrator/datalake"
	"crmbridge/migrator/datalake/model"
	"crmbridge/migrator/datalake/reconcile"
	"crmbridge/migrator/datalake/soql"
	"crmbridge/migrator/staging"
	"crmbridge/migrator/storage"
	"crmbridge/migrator/transfer"
)

// CRM is the part of the CRM client the runs depend on.
type CRM interface {
	QueryAll(ctx context.Context, query string) ([]model.Record, error)
	UpdateRecords(ctx context.Context, sobject string, ids []string, fields map[string]any) ([]model.SaveResult, error)
	CreateRecord(ctx context.Context, sobject string, fields map[string]any) (string, error)
	DownloadVersionData(ctx context.Context, versionID string) (io.ReadCloser, error)
	EligibleAttachments(ctx context.Context, window soql.DateWindow, minSize int64, filter *apiclient.ParentFilter) ([]model.Attachment, error)
	DistinctValues(ctx context.Context, object, field string) ([]string, error)
}

// ConnectCRMFunc authenticates against the CRM; tests swap it out.
var ConnectCRMFunc = ConnectCRM

// ConnectCRM builds and authenticates the CRM client.
func ConnectCRM(ctx context.Context, cfg config.SalesforceSettings) (CRM, error) {
	sf := apiclient.NewSalesforce(&http.Client{}, apiclient.SalesforceConfig{
		LoginURL:        apiclient.LoginURLForDomain(cfg.Domain),
		Username:        cfg.Username,
		Password:        cfg.Password,
		SecurityToken:   cfg.SecurityToken,
		ClientID:        cfg.ClientID,
		ClientSecret:    cfg.ClientSecret,
		AccessToken:     cfg.AccessToken,
		InstanceURL:     cfg.InstanceURL,
		APIVersion:      cfg.APIVersion,
		RateLimit:       cfg.RateLimit,
		DownloadTimeout: cfg.DownloadTimeout,
	})
	if err := sf.Authenticate(ctx); err != nil {
		return nil, err
	}
	return sf, nil
}

// SinkDependencies holds all the dependencies for the Sink.
type SinkDependencies struct {
	Config   *config.Config
	Entities *config.EntityTable
}

// Sink runs sync and transfer jobs against live systems.
type Sink struct {
	deps SinkDependencies
}

// NewSink creates a new Sink instance.
func NewSink(deps SinkDependencies) *Sink {
	if deps.Entities == nil {
		deps.Entities = config.DefaultEntities()
	}
	return &Sink{deps: deps}
}

// TransferRequest selects the files of one transfer run.
type TransferRequest struct {
	Window  soql.DateWindow
	MinSize int64
	Filter  *apiclient.ParentFilter
	// WriteBack records each transferred file in the CRM, on top of the YAML setting.
	WriteBack bool
}

// Sync copies the named entities (all when names is empty) into the document store.
func (s *Sink) Sync(ctx context.Context, names []string) error {
	logger := appcontext.LoggerFromContext(ctx)
	logger.DebugContext(ctx, "Starting sync")

	entities, err := s.deps.Entities.Select(names)
	if err != nil {
		return err
	}

	client, crm, err := s.connect(ctx)
	if err != nil {
		return err
	}
	defer disconnect(ctx, client)

	provider := storage.NewMongoProvider(client, s.deps.Config.MongoDatabase)
	var marker datalake.Marker
	if s.hasReconciledEntity(entities) {
		marker = reconcile.NewReconciler(crm, s.deps.Entities.ReconcileField, s.deps.Config.ReconcileChunkSize)
	}

	syncer := datalake.NewClient(
		crm,
		storage.NewMongoCheckpointStore(provider),
		storage.NewMongoRepository(provider),
		storage.NewMongoErrorLog(provider),
		marker,
		datalake.Options{
			AllowList:    s.deps.Entities.Classification.AllowList,
			DefaultLabel: s.deps.Entities.Classification.DefaultLabel,
			Builder:      soql.NewBuilder(),
		},
	)

	stats := syncer.SyncAll(ctx, SyncEntities(entities))
	logger.InfoContext(ctx, "Sync completed")
	stats.Log(logger)

	return nil
}

// Transfer pushes eligible CRM files to the DMS.
func (s *Sink) Transfer(ctx context.Context, req TransferRequest) error {
	logger := appcontext.LoggerFromContext(ctx)
	cfg := s.deps.Config

	dms, err := apiclient.NewDMS(&http.Client{}, apiclient.DMSConfig{
		Endpoint:   cfg.DMS.Endpoint,
		AuthHeader: cfg.DMS.AuthHeader,
		Timeout:    cfg.DMS.Timeout,
	})
	if err != nil {
		return fmt.Errorf("invalid DMS endpoint: %w", err)
	}

	stager, err := NewStager(ctx, cfg)
	if err != nil {
		return err
	}

	client, crm, err := s.connect(ctx)
	if err != nil {
		return err
	}
	defer disconnect(ctx, client)

	tracker := storage.NewMongoFileTracker(storage.NewMongoProvider(client, cfg.MongoDatabase))
	if err = tracker.EnsureIndexes(ctx); err != nil {
		return err
	}

	filter := req.Filter
	if filter == nil && s.deps.Entities.TransferFilter.Object != "" {
		f := s.deps.Entities.TransferFilter
		filter = &apiclient.ParentFilter{
			Object:              f.Object,
			ClassificationField: f.ClassificationField,
			Classification:      f.Classification,
		}
	}

	attachments, err := crm.EligibleAttachments(ctx, req.Window, req.MinSize, filter)
	if err != nil {
		return fmt.Errorf("listing eligible files failed: %w", err)
	}
	if len(attachments) == 0 {
		logger.InfoContext(ctx, "No files to transfer")
		return nil
	}

	pipeline := transfer.NewPipeline(tracker, crm, dms, stager, MetadataDefaults(s.deps.Entities.DMSMetadata))
	if wb := s.deps.Entities.WriteBack; req.WriteBack || wb.Enabled {
		logger.InfoContext(ctx, "Recording transferred files in the CRM")
		pipeline.WithRecorder(transfer.NewWriteBack(crm, WriteBackSettings(wb)))
	}
	stats := pipeline.Run(ctx, attachments)
	logger.InfoContext(ctx, "Transfer completed")
	stats.Log(logger)

	return nil
}

// Classifications lists the distinct values of field on object, e.g. the verticals a transfer can filter on.
func (s *Sink) Classifications(ctx context.Context, object, field string) ([]string, error) {
	crm, err := ConnectCRMFunc(ctx, s.deps.Config.Salesforce)
	if err != nil {
		return nil, fmt.Errorf("connection to CRM failed: %w", err)
	}
	return crm.DistinctValues(ctx, object, field)
}

// connect opens the document store and authenticates the CRM. Either failure ends the run.
func (s *Sink) connect(ctx context.Context) (storage.MongoClient, CRM, error) {
	logger := appcontext.LoggerFromContext(ctx)

	client, err := storage.ConnectToMongoDBFunc(ctx, s.deps.Config.MongoURI)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to connect to MongoDB", "error", err)
		return nil, nil, fmt.Errorf("connection to MongoDB failed: %w", err)
	}
	logger.InfoContext(ctx, "Successfully connected to MongoDB.")

	crm, err := ConnectCRMFunc(ctx, s.deps.Config.Salesforce)
	if err != nil {
		disconnect(ctx, client)
		logger.ErrorContext(ctx, "Failed to authenticate to the CRM", "error", err)
		return nil, nil, fmt.Errorf("connection to CRM failed: %w", err)
	}

	return client, crm, nil
}

func disconnect(ctx context.Context, client storage.MongoClient) {
	if err := client.Disconnect(ctx); err != nil {
		appcontext.LoggerFromContext(ctx).ErrorContext(ctx, "Error disconnecting from MongoDB", "error", err)
	}
}

func (s *Sink) hasReconciledEntity(entities []config.EntityConfig) bool {
	for _, e := range entities {
		if e.Reconcile {
			return true
		}
	}
	return false
}

// SyncEntities converts configured entities into sync jobs.
func SyncEntities(entities []config.EntityConfig) []datalake.Entity {
	out := make([]datalake.Entity, 0, len(entities))
	for _, e := range entities {
		out = append(out, datalake.Entity{
			Name:                e.Name,
			Query:               e.Query,
			ClassificationField: e.ClassificationField,
			Reconcile:           e.Reconcile,
		})
	}
	return out
}

// MetadataDefaults overlays the configured DMS metadata on the built-in defaults.
func MetadataDefaults(c config.DMSMetadataConfig) transfer.MetadataDefaults {
	d := transfer.DefaultMetadata()
	overlay := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	overlay(&d.Vertical, c.Vertical)
	overlay(&d.SourceSys, c.SourceSys)
	overlay(&d.Module, c.Module)
	overlay(&d.LatLong, c.LatLong)
	overlay(&d.ImageSrc, c.ImageSrc)
	overlay(&d.ImageSrcID, c.ImageSrcID)
	overlay(&d.ImageCategory, c.ImageCategory)
	overlay(&d.ImageSubCategory, c.ImageSubCategory)
	overlay(&d.Stage, c.Stage)
	overlay(&d.Status, c.Status)
	overlay(&d.BranchCode, c.BranchCode)
	overlay(&d.Branch, c.Branch)
	overlay(&d.KeyID, c.KeyID)
	return d
}

// WriteBackSettings converts the YAML write-back section.
func WriteBackSettings(c config.WriteBackConfig) transfer.WriteBackConfig {
	return transfer.WriteBackConfig{
		FileObject:      c.FileObject,
		ParentFlagField: c.ParentFlagField,
		FlaggedParents:  c.FlaggedParents,
	}
}

// NewStager picks MinIO staging when an endpoint is configured, otherwise a local directory.
func NewStager(ctx context.Context, cfg *config.Config) (staging.Stager, error) {
	logger := appcontext.LoggerFromContext(ctx)

	if cfg.Minio.Endpoint == "" {
		stager, err := staging.NewDirStager(cfg.StagingDir)
		if err != nil {
			return nil, err
		}
		logger.DebugContext(ctx, "Staging files on disk", "dir", stager.Dir())
		return stager, nil
	}

	stager, err := staging.NewMinioStager(staging.MinioConfig{
		Endpoint:  cfg.Minio.Endpoint,
		AccessKey: cfg.Minio.AccessKey,
		SecretKey: cfg.Minio.SecretKey,
		Bucket:    cfg.Minio.Bucket,
		UseSSL:    cfg.Minio.UseSSL,
		Prefix:    "transfer",
	})
	if err != nil {
		return nil, err
	}
	if err = stager.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	logger.DebugContext(ctx, "Staging files in object store", "endpoint", cfg.Minio.Endpoint, "bucket", cfg.Minio.Bucket)

	return stager, nil
}
