package apiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	bcontext "crmbridge/migrator/appcontext"
)

const (
	// DefaultUploadTimeout bounds one DMS upload.
	DefaultUploadTimeout = 300 * time.Second

	metadataPart = "data"
	contentPart  = "image"
)

// DMSError is returned when the DMS answers with anything but 200 or 201.
type DMSError struct {
	StatusCode int
	Body       string
}

func (e *DMSError) Error() string {
	return fmt.Sprintf("dms upload rejected: status %d: %s", e.StatusCode, e.Body)
}

// DMSConfig holds the upload endpoint settings.
type DMSConfig struct {
	Endpoint string
	// AuthHeader is sent verbatim as the Authorization header.
	AuthHeader string
	Timeout    time.Duration
}

// DMS uploads files to the document-management service.
type DMS struct {
	HTTPClient *http.Client
	endpoint   *url.URL
	authHeader string
	timeout    time.Duration
}

// NewDMS creates a DMS client.
func NewDMS(httpClient *http.Client, cfg DMSConfig) (*DMS, error) {
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	endpoint, err := url.Parse(cfg.Endpoint)
	if err != nil || endpoint.Host == "" {
		return nil, HTTPBasePathFormattingError(cfg.Endpoint)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultUploadTimeout
	}

	return &DMS{
		HTTPClient: httpClient,
		endpoint:   endpoint,
		authHeader: strings.Trim(cfg.AuthHeader, `"`),
		timeout:    timeout,
	}, nil
}

// Upload posts the metadata and file content as one multipart request and
// returns the DMS id. A rejected upload is reported as *DMSError.
func (d *DMS) Upload(
	ctx context.Context,
	metadata any,
	fileName string,
	contentType string,
	content io.Reader,
) (string, error) {
	logger := bcontext.LoggerFromContext(ctx)

	meta, err := json.Marshal(metadata)
	if err != nil {
		return "", fmt.Errorf("error marshaling metadata: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	pr, pw := io.Pipe()
	defer pr.Close()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeUploadBody(mw, meta, fileName, contentType, content))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint.String(), pr)
	if err != nil {
		return "", fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if d.authHeader != "" {
		req.Header.Set("Authorization", d.authHeader)
	}

	resp, err := d.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("error sending request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("error reading response body: %w", err)
	}
	text := strings.TrimSpace(string(body))

	logger.DebugContext(ctx, "DMS responded", "file", fileName, "status", resp.StatusCode)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", &DMSError{StatusCode: resp.StatusCode, Body: text}
	}

	return text, nil
}

func writeUploadBody(mw *multipart.Writer, meta []byte, fileName, contentType string, content io.Reader) error {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"`, metadataPart))
	h.Set("Content-Type", "application/json")
	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	if _, err = part.Write(meta); err != nil {
		return err
	}

	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h = make(textproto.MIMEHeader)
	h.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="%s"; filename="%s"`, contentPart, quoteEscaper.Replace(fileName)))
	h.Set("Content-Type", contentType)
	part, err = mw.CreatePart(h)
	if err != nil {
		return err
	}
	if _, err = io.Copy(part, content); err != nil {
		return err
	}

	return mw.Close()
}

var quoteEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)
