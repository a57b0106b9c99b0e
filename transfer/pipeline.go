// Package transfer moves large CRM attachments into the document-management service.
package transfer

import (
	"bytes"
	"context"
	"crypto/sha1" //nolint:gosec // the DMS verifies uploads with SHA-1
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"time"

	"github.com/gabriel-vasile/mimetype"

	apiclient "crmbridge/migrator/apiClient"
	bcontext "crmbridge/migrator/appcontext"
	"crmbridge/migrator/datalake/model"
	"crmbridge/migrator/datalake/repository"
	"crmbridge/migrator/staging"
)

// sniffLen is how much of the file head is kept for content type detection.
const sniffLen = 3072

// Downloader streams a file version from the CRM.
type Downloader interface {
	DownloadVersionData(ctx context.Context, versionID string) (io.ReadCloser, error)
}

// Uploader sends one file to the DMS and returns its id.
type Uploader interface {
	Upload(ctx context.Context, metadata any, fileName, contentType string, content io.Reader) (string, error)
}

// Recorder reports a successful transfer back to the CRM.
type Recorder interface {
	Record(ctx context.Context, att model.Attachment, dmsID string) error
}

// Pipeline transfers attachments one at a time.
type Pipeline struct {
	tracker    repository.FileTracker
	downloader Downloader
	uploader   Uploader
	stager     staging.Stager
	defaults   MetadataDefaults
	recorder   Recorder
	now        func() time.Time
}

// NewPipeline wires a transfer pipeline.
func NewPipeline(
	tracker repository.FileTracker,
	downloader Downloader,
	uploader Uploader,
	stager staging.Stager,
	defaults MetadataDefaults,
) *Pipeline {
	return &Pipeline{
		tracker:    tracker,
		downloader: downloader,
		uploader:   uploader,
		stager:     stager,
		defaults:   defaults,
		now:        time.Now,
	}
}

// WithRecorder enables the CRM write-back after each tracked success.
func (p *Pipeline) WithRecorder(r Recorder) *Pipeline {
	p.recorder = r
	return p
}

// Run transfers every attachment. A failing file never stops the loop.
func (p *Pipeline) Run(ctx context.Context, attachments []model.Attachment) *Stats {
	logger := bcontext.LoggerFromContext(ctx)
	stats := &Stats{}

	for i, att := range attachments {
		state := p.Transfer(ctx, att)
		stats.Add(state)
		logger.InfoContext(ctx, "File processed",
			"index", i+1, "total", len(attachments), "file_id", att.ID, "state", state.String())
	}

	return stats
}

// staged describes downloaded content held by the stager.
type staged struct {
	key         string
	size        int64
	checksum    string
	contentType string
}

// Transfer moves one attachment and returns its final state.
func (p *Pipeline) Transfer(ctx context.Context, att model.Attachment) State {
	logger := bcontext.LoggerFromContext(ctx).With("file_id", att.ID, "file", att.FileName())

	existing, err := p.tracker.Get(ctx, att.ID)
	if err != nil {
		return p.trackException(ctx, att, staged{}, fmt.Errorf("tracking lookup: %w", err))
	}
	if existing != nil && existing.Status == model.TransferSuccess {
		logger.InfoContext(ctx, "Skipping already transferred file", "dms_id", existing.DestinationFileID)
		return StateSkipped
	}

	file, err := p.download(ctx, att)
	defer p.removeStaged(ctx, att.ID)
	if err != nil {
		return p.trackException(ctx, att, file, err)
	}
	logger.InfoContext(ctx, "Downloaded file",
		"state", StateDownloaded.String(), "bytes", file.size, "content_type", file.contentType)

	dmsID, err := p.upload(ctx, att, file)
	var rejected *apiclient.DMSError
	switch {
	case errors.As(err, &rejected):
		logger.WarnContext(ctx, "DMS rejected file",
			"state", StateUploadFailed.String(), "status", rejected.StatusCode, "body", rejected.Body)
		rec := p.trackingRecord(att, file, model.TransferFailed)
		rec.Response = rejected.Body
		rec.ErrorMessage = rejected.Error()
		return p.save(ctx, rec, StateTrackedFailure)
	case err != nil:
		return p.trackException(ctx, att, file, err)
	}

	logger.InfoContext(ctx, "Uploaded file", "state", StateUploaded.String(), "dms_id", dmsID)
	rec := p.trackingRecord(att, file, model.TransferSuccess)
	rec.DestinationFileID = dmsID
	rec.Response = dmsID
	state := p.save(ctx, rec, StateTrackedSuccess)
	if state != StateTrackedSuccess || p.recorder == nil {
		return state
	}

	if err = p.recorder.Record(ctx, att, dmsID); err != nil {
		logger.WarnContext(ctx, "CRM write-back failed", "dms_id", dmsID, "error", err)
		rec.ErrorMessage = fmt.Sprintf("crm write-back: %v", err)
		return p.save(ctx, rec, StateTrackedSuccess)
	}

	return state
}

// download streams the file into the stager while hashing it and keeping its head.
func (p *Pipeline) download(ctx context.Context, att model.Attachment) (staged, error) {
	file := staged{key: att.ID}

	body, err := p.downloader.DownloadVersionData(ctx, att.ID)
	if err != nil {
		return file, fmt.Errorf("download: %w", err)
	}
	defer body.Close()

	hash := sha1.New() //nolint:gosec // see import
	head := &headBuffer{limit: sniffLen}
	size, err := p.stager.Put(ctx, file.key, io.TeeReader(body, io.MultiWriter(hash, head)))
	if err != nil {
		return file, fmt.Errorf("stage: %w", err)
	}

	file.size = size
	file.checksum = hex.EncodeToString(hash.Sum(nil))
	file.contentType = detectContentType(head.Bytes(), att.FileName())

	return file, nil
}

func (p *Pipeline) upload(ctx context.Context, att model.Attachment, file staged) (string, error) {
	content, err := p.stager.Open(ctx, file.key)
	if err != nil {
		return "", fmt.Errorf("open staged file: %w", err)
	}
	defer content.Close()

	meta := BuildMetadata(p.defaults, att, file.size, file.checksum)

	return p.uploader.Upload(ctx, meta, att.FileName(), file.contentType, content)
}

func (p *Pipeline) trackingRecord(att model.Attachment, file staged, status model.TransferStatus) model.FileTrackingRecord {
	return model.FileTrackingRecord{
		SourceFileID:      att.ID,
		ContentDocumentID: att.ContentDocumentID,
		FileName:          att.FileName(),
		LinkedEntityID:    att.LinkedEntityID,
		Classification:    att.Classification,
		Checksum:          file.checksum,
		Status:            status,
	}
}

func (p *Pipeline) trackException(ctx context.Context, att model.Attachment, file staged, err error) State {
	bcontext.LoggerFromContext(ctx).ErrorContext(ctx, "File transfer failed", "file_id", att.ID, "error", err)

	rec := p.trackingRecord(att, file, model.TransferException)
	rec.ErrorMessage = err.Error()
	return p.save(ctx, rec, StateTrackedException)
}

// save writes the tracking record. If it cannot be stored the file counts as an exception.
func (p *Pipeline) save(ctx context.Context, rec model.FileTrackingRecord, state State) State {
	if err := p.tracker.Save(ctx, rec); err != nil {
		bcontext.LoggerFromContext(ctx).ErrorContext(ctx, "Failed to save tracking record",
			"file_id", rec.SourceFileID, "status", rec.Status, "error", err)
		return StateTrackedException
	}
	return state
}

func (p *Pipeline) removeStaged(ctx context.Context, key string) {
	if err := p.stager.Remove(ctx, key); err != nil {
		bcontext.LoggerFromContext(ctx).WarnContext(ctx, "Failed to remove staged file", "key", key, "error", err)
	}
}

// detectContentType sniffs the head bytes and falls back to the file extension.
func detectContentType(head []byte, fileName string) string {
	if len(head) > 0 {
		if mt := mimetype.Detect(head); mt != nil && !mt.Is("application/octet-stream") {
			return mt.String()
		}
	}
	if byExt := mime.TypeByExtension(filepath.Ext(fileName)); byExt != "" {
		return byExt
	}
	return "application/octet-stream"
}

// headBuffer keeps the first limit bytes written to it.
type headBuffer struct {
	bytes.Buffer
	limit int
}

func (h *headBuffer) Write(p []byte) (int, error) {
	if room := h.limit - h.Len(); room > 0 {
		if len(p) < room {
			room = len(p)
		}
		h.Buffer.Write(p[:room])
	}
	return len(p), nil
}
