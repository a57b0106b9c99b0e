package transfer

import (
	"context"
	"crypto/sha1" //nolint:gosec // matches the production checksum
	"encoding/hex"
	"errors"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apiclient "crmbridge/migrator/apiClient"
	"crmbridge/migrator/datalake/model"
	"crmbridge/migrator/staging"
)

type memoryTracker struct {
	records map[string]model.FileTrackingRecord
	getErr  error
	saveErr error
}

func newMemoryTracker() *memoryTracker {
	return &memoryTracker{records: map[string]model.FileTrackingRecord{}}
}

func (m *memoryTracker) Get(_ context.Context, id string) (*model.FileTrackingRecord, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	rec, ok := m.records[id]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m *memoryTracker) Save(_ context.Context, rec model.FileTrackingRecord) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.records[rec.SourceFileID] = rec
	return nil
}

type fakeDownloader struct {
	calls int
	files map[string]string
	err   error
}

func (d *fakeDownloader) DownloadVersionData(_ context.Context, id string) (io.ReadCloser, error) {
	d.calls++
	if d.err != nil {
		return nil, d.err
	}
	return io.NopCloser(strings.NewReader(d.files[id])), nil
}

type upload struct {
	meta        Metadata
	fileName    string
	contentType string
	body        string
}

type fakeUploader struct {
	uploads []upload
	err     error
}

func (u *fakeUploader) Upload(_ context.Context, metadata any, fileName, contentType string, content io.Reader) (string, error) {
	body, err := io.ReadAll(content)
	if err != nil {
		return "", err
	}
	u.uploads = append(u.uploads, upload{
		meta:        metadata.(Metadata),
		fileName:    fileName,
		contentType: contentType,
		body:        string(body),
	})
	if u.err != nil {
		return "", u.err
	}
	return "DMS-" + metadata.(Metadata).UniqueID, nil
}

const pdfBody = "%PDF-1.7\n1 0 obj\n<< /Type /Catalog >>\nendobj\n"

func agreement() model.Attachment {
	return model.Attachment{
		ID:                "068A",
		ContentDocumentID: "069A",
		Title:             "agreement",
		FileExtension:     "PDF",
		ContentSize:       int64(len(pdfBody)),
		CreatedDate:       time.Date(2025, 1, 10, 8, 30, 0, 0, time.UTC),
		CreatedBy:         "Ops User",
		LinkedEntityID:    "a0N1",
	}
}

type fixture struct {
	tracker    *memoryTracker
	downloader *fakeDownloader
	uploader   *fakeUploader
	stager     *staging.DirStager
	pipeline   *Pipeline
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	stager, err := staging.NewDirStager(t.TempDir())
	require.NoError(t, err)

	f := &fixture{
		tracker:    newMemoryTracker(),
		downloader: &fakeDownloader{files: map[string]string{"068A": pdfBody, "068B": "plain text notes"}},
		uploader:   &fakeUploader{},
		stager:     stager,
	}
	f.pipeline = NewPipeline(f.tracker, f.downloader, f.uploader, f.stager, DefaultMetadata())
	return f
}

func (f *fixture) stagedFiles(t *testing.T) []os.DirEntry {
	t.Helper()
	entries, err := os.ReadDir(f.stager.Dir())
	require.NoError(t, err)
	return entries
}

func TestTransfer_Success(t *testing.T) {
	f := newFixture(t)

	state := f.pipeline.Transfer(context.Background(), agreement())

	assert.Equal(t, StateTrackedSuccess, state)
	require.Len(t, f.uploader.uploads, 1)
	up := f.uploader.uploads[0]
	assert.Equal(t, "agreement.PDF", up.fileName)
	assert.Equal(t, "application/pdf", up.contentType)
	assert.Equal(t, pdfBody, up.body)

	sum := sha1.Sum([]byte(pdfBody)) //nolint:gosec // test
	checksum := hex.EncodeToString(sum[:])
	assert.Equal(t, checksum, up.meta.CheckSum)
	assert.Equal(t, "10/01/2025", up.meta.CreatedDate)
	assert.Equal(t, "pdf", up.meta.Format)
	assert.Equal(t, "069A", up.meta.ImageID)
	assert.Equal(t, []string{"agreement"}, up.meta.KeyValue)
	assert.Nil(t, up.meta.AppID)

	rec := f.tracker.records["068A"]
	assert.Equal(t, model.TransferSuccess, rec.Status)
	assert.Equal(t, "DMS-068A", rec.DestinationFileID)
	assert.Equal(t, checksum, rec.Checksum)
	assert.Empty(t, f.stagedFiles(t), "staged content is removed")
}

func TestTransfer_SkipsTrackedSuccess(t *testing.T) {
	f := newFixture(t)
	f.tracker.records["068A"] = model.FileTrackingRecord{SourceFileID: "068A", Status: model.TransferSuccess}

	state := f.pipeline.Transfer(context.Background(), agreement())

	assert.Equal(t, StateSkipped, state)
	assert.Zero(t, f.downloader.calls)
	assert.Empty(t, f.uploader.uploads)
}

func TestTransfer_RetriesPreviousFailure(t *testing.T) {
	f := newFixture(t)
	f.tracker.records["068A"] = model.FileTrackingRecord{SourceFileID: "068A", Status: model.TransferFailed}

	state := f.pipeline.Transfer(context.Background(), agreement())

	assert.Equal(t, StateTrackedSuccess, state)
	assert.Equal(t, 1, f.downloader.calls)
}

func TestTransfer_RejectedUploadIsTrackedWithBody(t *testing.T) {
	f := newFixture(t)
	f.uploader.err = &apiclient.DMSError{StatusCode: 400, Body: `{"message":"invalid vertical"}`}

	state := f.pipeline.Transfer(context.Background(), agreement())

	assert.Equal(t, StateTrackedFailure, state)
	rec := f.tracker.records["068A"]
	assert.Equal(t, model.TransferFailed, rec.Status)
	assert.Equal(t, `{"message":"invalid vertical"}`, rec.Response)
	assert.Empty(t, rec.DestinationFileID)
	assert.Empty(t, f.stagedFiles(t))
}

func TestTransfer_DownloadErrorIsException(t *testing.T) {
	f := newFixture(t)
	f.downloader.err = errors.New("context deadline exceeded")

	state := f.pipeline.Transfer(context.Background(), agreement())

	assert.Equal(t, StateTrackedException, state)
	rec := f.tracker.records["068A"]
	assert.Equal(t, model.TransferException, rec.Status)
	assert.Contains(t, rec.ErrorMessage, "context deadline exceeded")
	assert.Empty(t, f.uploader.uploads)
}

func TestTransfer_TrackingWriteFailure(t *testing.T) {
	f := newFixture(t)
	f.tracker.saveErr = errors.New("no primary")

	state := f.pipeline.Transfer(context.Background(), agreement())

	assert.Equal(t, StateTrackedException, state)
}

func TestRun_ContinuesAfterException(t *testing.T) {
	f := newFixture(t)
	notes := model.Attachment{ID: "068B", ContentDocumentID: "069B", Title: "notes", FileExtension: "txt"}
	missing := model.Attachment{ID: "068C", ContentDocumentID: "069C", Title: "scan", FileExtension: "jpg"}
	f.tracker.records["068A"] = model.FileTrackingRecord{SourceFileID: "068A", Status: model.TransferSuccess}
	f.uploader.err = nil

	stats := f.pipeline.Run(context.Background(), []model.Attachment{agreement(), missing, notes})

	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, 2, stats.Succeeded, "empty download is still uploaded")
	require.Len(t, f.uploader.uploads, 2)
	assert.Equal(t, "text/plain; charset=utf-8", f.uploader.uploads[1].contentType)
}

func TestDetectContentType_FallsBackToExtension(t *testing.T) {
	assert.Equal(t, "image/jpeg", detectContentType(nil, "scan.jpg"))
	assert.Equal(t, "application/octet-stream", detectContentType([]byte{0x00, 0x01, 0x02}, "blob"))
}

func TestHeadBuffer(t *testing.T) {
	h := &headBuffer{limit: 4}
	n, err := h.Write([]byte("abc"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	n, err = h.Write([]byte("defg"))
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, "abcd", h.String())
}

type fakeRecorder struct {
	recorded []string
	err      error
}

func (r *fakeRecorder) Record(_ context.Context, att model.Attachment, dmsID string) error {
	r.recorded = append(r.recorded, att.ID+"="+dmsID)
	return r.err
}

func TestTransfer_ParentClassificationIsTheVertical(t *testing.T) {
	f := newFixture(t)
	att := agreement()
	att.Classification = "SME"

	state := f.pipeline.Transfer(context.Background(), att)

	assert.Equal(t, StateTrackedSuccess, state)
	require.Len(t, f.uploader.uploads, 1)
	assert.Equal(t, "SME", f.uploader.uploads[0].meta.Vertical)
	assert.Equal(t, "SME", f.tracker.records["068A"].Classification)
}

func TestTransfer_ConfiguredVerticalWithoutParentClassification(t *testing.T) {
	f := newFixture(t)

	f.pipeline.Transfer(context.Background(), agreement())

	require.Len(t, f.uploader.uploads, 1)
	assert.Equal(t, DefaultMetadata().Vertical, f.uploader.uploads[0].meta.Vertical)
	assert.Empty(t, f.tracker.records["068A"].Classification)
}

func TestTransfer_RecordsSuccessInCRM(t *testing.T) {
	f := newFixture(t)
	recorder := &fakeRecorder{}
	f.pipeline.WithRecorder(recorder)

	state := f.pipeline.Transfer(context.Background(), agreement())

	assert.Equal(t, StateTrackedSuccess, state)
	assert.Equal(t, []string{"068A=DMS-068A"}, recorder.recorded)
	assert.Empty(t, f.tracker.records["068A"].ErrorMessage)
}

func TestTransfer_CRMRecordFailureKeepsSuccess(t *testing.T) {
	f := newFixture(t)
	f.pipeline.WithRecorder(&fakeRecorder{err: errors.New("REQUIRED_FIELD_MISSING")})

	state := f.pipeline.Transfer(context.Background(), agreement())

	assert.Equal(t, StateTrackedSuccess, state)
	rec := f.tracker.records["068A"]
	assert.Equal(t, model.TransferSuccess, rec.Status)
	assert.Equal(t, "DMS-068A", rec.DestinationFileID)
	assert.Contains(t, rec.ErrorMessage, "REQUIRED_FIELD_MISSING")
}

func TestTransfer_NoCRMRecordWithoutSuccess(t *testing.T) {
	f := newFixture(t)
	recorder := &fakeRecorder{}
	f.pipeline.WithRecorder(recorder)
	f.tracker.records["068B"] = model.FileTrackingRecord{SourceFileID: "068B", Status: model.TransferSuccess}
	f.uploader.err = &apiclient.DMSError{StatusCode: 400, Body: "bad"}

	f.pipeline.Run(context.Background(), []model.Attachment{
		agreement(),
		{ID: "068B", ContentDocumentID: "069B", Title: "notes", FileExtension: "txt"},
	})

	assert.Empty(t, recorder.recorded)
}
