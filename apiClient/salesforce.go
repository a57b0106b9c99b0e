package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	bcontext "crmbridge/migrator/appcontext"
	"crmbridge/migrator/datalake/model"
	"crmbridge/migrator/datalake/soql"
)

const (
	// DefaultAPIVersion is the REST API version used when none is configured.
	DefaultAPIVersion = "v59.0"
	// DefaultLoginURL is the production login host.
	DefaultLoginURL = "https://login.salesforce.com"
	// SandboxLoginURL is used when the configured domain is "test".
	SandboxLoginURL = "https://test.salesforce.com"
	// DefaultDownloadTimeout bounds one file download.
	DefaultDownloadTimeout = 300 * time.Second
)

// SalesforceConfig holds the CRM credentials and client settings.
type SalesforceConfig struct {
	// LoginURL is the OAuth host. Domain "test" selects the sandbox host.
	LoginURL      string
	Username      string
	Password      string
	SecurityToken string
	ClientID      string
	ClientSecret  string
	// AccessToken and InstanceURL skip the login call when both are set.
	AccessToken string
	InstanceURL string

	APIVersion string
	// RateLimit is the request rate in requests per second. Zero disables pacing.
	RateLimit       float64
	RateBurst       int
	DownloadTimeout time.Duration
}

// LoginURLForDomain maps the CRM domain setting ("login", "test" or a host) to a login URL.
func LoginURLForDomain(domain string) string {
	switch strings.ToLower(strings.TrimSpace(domain)) {
	case "", "login":
		return DefaultLoginURL
	case "test":
		return SandboxLoginURL
	default:
		if strings.HasPrefix(domain, "http://") || strings.HasPrefix(domain, "https://") {
			return strings.TrimSuffix(domain, "/")
		}
		return "https://" + strings.TrimSuffix(domain, "/") + ".my.salesforce.com"
	}
}

// Salesforce is a minimal CRM REST client.
type Salesforce struct {
	// a pointer to the http client to use.
	HTTPClient *http.Client

	config      SalesforceConfig
	limiter     *rate.Limiter
	instanceURL *url.URL
	accessToken string
}

// NewSalesforce creates a client. Call Authenticate before any other method.
func NewSalesforce(httpClient *http.Client, cfg SalesforceConfig) *Salesforce {
	// Use a default http client if none is provided.
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = DefaultAPIVersion
	}
	if cfg.LoginURL == "" {
		cfg.LoginURL = DefaultLoginURL
	}
	if cfg.DownloadTimeout <= 0 {
		cfg.DownloadTimeout = DefaultDownloadTimeout
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	return &Salesforce{
		HTTPClient: httpClient,
		config:     cfg,
		limiter:    limiter,
	}
}

type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	InstanceURL      string `json:"instance_url"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// Authenticate establishes a session, either from the configured access token or
// through the OAuth username-password flow.
func (s *Salesforce) Authenticate(ctx context.Context) error {
	logger := bcontext.LoggerFromContext(ctx)

	if s.config.AccessToken != "" && s.config.InstanceURL != "" {
		return s.setSession(s.config.AccessToken, s.config.InstanceURL)
	}

	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("client_id", s.config.ClientID)
	form.Set("client_secret", s.config.ClientSecret)
	form.Set("username", s.config.Username)
	form.Set("password", s.config.Password+s.config.SecurityToken)

	tokenURL := strings.TrimSuffix(s.config.LoginURL, "/") + "/services/oauth2/token"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		return AuthenticationError(err.Error())
	}
	defer resp.Body.Close()

	var token tokenResponse
	if err = decodeJSON(resp, &token); err != nil {
		return AuthenticationError(err.Error())
	}
	if resp.StatusCode != http.StatusOK {
		return AuthenticationError(fmt.Sprintf("%d %s: %s", resp.StatusCode, token.Error, token.ErrorDescription))
	}

	if err = s.setSession(token.AccessToken, token.InstanceURL); err != nil {
		return err
	}
	logger.InfoContext(ctx, "Connected to CRM", "instance", s.instanceURL.Host, "api_version", s.config.APIVersion)

	return nil
}

func (s *Salesforce) setSession(token, instance string) error {
	if token == "" || instance == "" {
		return AuthenticationError("empty session")
	}
	u, err := url.Parse(strings.TrimSuffix(instance, "/"))
	if err != nil || u.Host == "" {
		return HTTPBasePathFormattingError(instance)
	}
	s.accessToken = token
	s.instanceURL = u
	return nil
}

// queryResponse is one page of a query result.
type queryResponse struct {
	TotalSize      int            `json:"totalSize"`
	Done           bool           `json:"done"`
	NextRecordsURL string         `json:"nextRecordsUrl"`
	Records        []model.Record `json:"records"`
}

// QueryAll runs the query and follows nextRecordsUrl until the result is done.
func (s *Salesforce) QueryAll(ctx context.Context, query string) ([]model.Record, error) {
	logger := bcontext.LoggerFromContext(ctx)

	q := url.Values{}
	q.Set("q", query)
	next := s.dataPath("/query") + "?" + q.Encode()

	var records []model.Record
	for page := 1; next != ""; page++ {
		var result queryResponse
		if err := s.doJSON(ctx, http.MethodGet, next, nil, &result); err != nil {
			return nil, fmt.Errorf("query page %d: %w", page, err)
		}
		records = append(records, result.Records...)
		logger.DebugContext(ctx, "Fetched query page", "page", page, "records", len(result.Records), "total", result.TotalSize)

		next = ""
		if !result.Done {
			next = result.NextRecordsURL
		}
	}

	return records, nil
}

type collectionRecord map[string]any

type collectionRequest struct {
	AllOrNone bool               `json:"allOrNone"`
	Records   []collectionRecord `json:"records"`
}

// UpdateRecords sets the same fields on every id with one sObject collection request.
// Partial success is allowed; the result holds one entry per id.
func (s *Salesforce) UpdateRecords(
	ctx context.Context,
	sobject string,
	ids []string,
	fields map[string]any,
) ([]model.SaveResult, error) {
	body := collectionRequest{Records: make([]collectionRecord, 0, len(ids))}
	for _, id := range ids {
		rec := collectionRecord{
			"attributes": map[string]string{"type": sobject},
			"id":         id,
		}
		for k, v := range fields {
			rec[k] = v
		}
		body.Records = append(body.Records, rec)
	}

	var results []model.SaveResult
	if err := s.doJSON(ctx, http.MethodPatch, s.dataPath("/composite/sobjects"), body, &results); err != nil {
		return nil, err
	}

	return results, nil
}

// CreateRecord inserts one sObject record and returns its id.
func (s *Salesforce) CreateRecord(ctx context.Context, sobject string, fields map[string]any) (string, error) {
	var result model.SaveResult
	if err := s.doJSON(ctx, http.MethodPost, s.dataPath("/sobjects/"+sobject+"/"), fields, &result); err != nil {
		return "", err
	}
	if !result.Success {
		msgs := make([]string, 0, len(result.Errors))
		for _, e := range result.Errors {
			msgs = append(msgs, fmt.Sprintf("%s: %s", e.StatusCode, e.Message))
		}
		return "", CRMAPIError(http.StatusOK, strings.Join(msgs, "; "))
	}

	return result.ID, nil
}

// DownloadVersionData streams the binary of one file version. The returned reader
// must be closed; the download is bounded by the configured timeout.
func (s *Salesforce) DownloadVersionData(ctx context.Context, versionID string) (io.ReadCloser, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.DownloadTimeout)
	path := s.dataPath("/sobjects/ContentVersion/" + url.PathEscape(versionID) + "/VersionData")

	resp, err := s.do(ctx, http.MethodGet, path, nil, "")
	if err != nil {
		cancel()
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer cancel()
		defer resp.Body.Close()
		return nil, crmError(resp)
	}

	return &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}, nil
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	defer c.cancel()
	return c.ReadCloser.Close()
}

// DefaultParentClassificationField is read from an unfiltered attachment's parent record.
const DefaultParentClassificationField = "Vertical__c"

// ParentFilter restricts attachments to those linked to a record of Object
// whose ClassificationField equals Classification.
type ParentFilter struct {
	Object              string
	ClassificationField string
	Classification      string
}

// EligibleAttachments lists the latest file versions created in the window and
// larger than minSize, optionally restricted to one parent object and classification.
func (s *Salesforce) EligibleAttachments(
	ctx context.Context,
	window soql.DateWindow,
	minSize int64,
	filter *ParentFilter,
) ([]model.Attachment, error) {
	logger := bcontext.LoggerFromContext(ctx)

	records, err := s.QueryAll(ctx, soql.AttachmentQuery(window, minSize))
	if err != nil {
		return nil, err
	}
	logger.InfoContext(ctx, "Found candidate files", "count", len(records), "min_size", minSize)

	attachments := make([]model.Attachment, 0, len(records))
	for _, rec := range records {
		att := toAttachment(rec)

		links, err := s.QueryAll(ctx, soql.LinkQuery(att.ContentDocumentID))
		if err != nil {
			return nil, fmt.Errorf("links of %s: %w", att.ContentDocumentID, err)
		}

		parent, ok, err := s.matchParent(ctx, links, filter)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		att.LinkedEntityID = parent.id
		att.LinkedEntityType = parent.object
		att.Classification = parent.classification
		if filter == nil && parent.id != "" {
			att.Classification = s.parentClassification(ctx, parent)
		}
		attachments = append(attachments, att)
	}

	if filter != nil {
		logger.InfoContext(ctx, "Filtered files by parent", "object", filter.Object,
			"classification", filter.Classification, "count", len(attachments))
	}

	return attachments, nil
}

// linkedParent is the record a file is reported against.
type linkedParent struct {
	id             string
	object         string
	classification string
}

// matchParent picks the linked record to report for an attachment. Without a
// filter the first non-user link is used.
func (s *Salesforce) matchParent(ctx context.Context, links []model.Record, filter *ParentFilter) (linkedParent, bool, error) {
	for _, link := range links {
		parentID := stringField(link, "LinkedEntityId")
		if parentID == "" {
			continue
		}
		if filter == nil {
			object := stringField(link, "LinkedEntity.Type")
			if object == "User" {
				continue
			}
			return linkedParent{id: parentID, object: object}, true, nil
		}

		found, err := s.QueryAll(ctx, soql.ParentQuery(filter.Object, parentID, filter.ClassificationField, filter.Classification))
		if err != nil {
			return linkedParent{}, false, fmt.Errorf("parent %s: %w", parentID, err)
		}
		if len(found) > 0 {
			return linkedParent{id: parentID, object: filter.Object, classification: filter.Classification}, true, nil
		}
	}

	return linkedParent{}, filter == nil, nil
}

// parentClassification reads the parent's classification. Parents without the
// field are common, so a failed lookup only leaves the classification empty.
func (s *Salesforce) parentClassification(ctx context.Context, parent linkedParent) string {
	if parent.object == "" {
		return ""
	}

	field := DefaultParentClassificationField
	records, err := s.QueryAll(ctx, soql.FieldQuery(parent.object, parent.id, field))
	if err != nil {
		bcontext.LoggerFromContext(ctx).DebugContext(ctx, "No classification on parent",
			"object", parent.object, "parent_id", parent.id, "error", err)
		return ""
	}
	if len(records) == 0 {
		return ""
	}

	return stringField(records[0], field)
}

// DistinctValues returns the non-null values of field on object.
func (s *Salesforce) DistinctValues(ctx context.Context, object, field string) ([]string, error) {
	records, err := s.QueryAll(ctx, soql.DistinctQuery(object, field))
	if err != nil {
		return nil, err
	}

	values := make([]string, 0, len(records))
	for _, rec := range records {
		if v := stringField(rec, field); v != "" {
			values = append(values, v)
		}
	}

	return values, nil
}

func toAttachment(rec model.Record) model.Attachment {
	att := model.Attachment{
		ID:                rec.ID(),
		ContentDocumentID: stringField(rec, "ContentDocumentId"),
		Title:             stringField(rec, "Title"),
		FileExtension:     stringField(rec, "FileExtension"),
		CreatedBy:         stringField(rec, "CreatedBy.Name"),
		Owner:             stringField(rec, "Owner.Name"),
	}
	if size, ok := rec.Lookup("ContentSize"); ok {
		if f, isNum := size.(float64); isNum {
			att.ContentSize = int64(f)
		}
	}
	if t, ok, err := rec.Time("CreatedDate"); err == nil && ok {
		att.CreatedDate = t
	}

	return att
}

func stringField(rec model.Record, path string) string {
	v, ok := rec.Lookup(path)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

func (s *Salesforce) dataPath(suffix string) string {
	return "/services/data/" + s.config.APIVersion + suffix
}

func (s *Salesforce) ready() error {
	if s.instanceURL == nil || s.accessToken == "" {
		return errNotAuthenticated
	}
	return nil
}

// doJSON sends an optional JSON body and decodes a 2xx JSON response into target.
func (s *Salesforce) doJSON(ctx context.Context, method, path string, body, target any) error {
	if err := s.ready(); err != nil {
		return err
	}

	var reader io.Reader
	contentType := ""
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("error marshaling request body: %w", err)
		}
		reader = bytes.NewReader(bodyBytes)
		contentType = "application/json"
	}

	resp, err := s.do(ctx, method, path, reader, contentType)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return crmError(resp)
	}

	return decodeJSON(resp, target)
}

// do sends a paced, authorized request to a path on the instance.
func (s *Salesforce) do(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Response, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	ref, err := url.Parse(path)
	if err != nil {
		return nil, HTTPBasePathFormattingError(path)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.instanceURL.ResolveReference(ref).String(), body)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.accessToken)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error sending request: %w", err)
	}

	return resp, nil
}
