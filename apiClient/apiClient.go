// Package apiclient provides the HTTP clients for the CRM REST API
// and the document-management service.
package apiclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

var errHTTPUnexpectedStatusCode = errors.New("unexpected http status code")
var errHTTPBasePathFormatting = errors.New("error formatting HTTP base path")
var errHTTPBodyUnmarshall = errors.New("error unmarshalling HTTP response body")
var errCRMAPI = errors.New("error returned from CRM api")
var errAuthentication = errors.New("CRM authentication failed")
var errNotAuthenticated = errors.New("CRM client is not authenticated")

// HTTPUnexpectedStatusCodeError is a error wrapper.
func HTTPUnexpectedStatusCodeError(statusCode int) error {
	return fmt.Errorf("%w, %d", errHTTPUnexpectedStatusCode, statusCode)
}

func HTTPBasePathFormattingError(basePath string) error {
	return fmt.Errorf("%w, %s", errHTTPBasePathFormatting, basePath)
}

func HTTPBodyUnmarshallError(baseErr error) error {
	return fmt.Errorf("%w, %w", errHTTPBodyUnmarshall, baseErr)
}

// CRMAPIError carries the status code and the CRM's own error messages.
func CRMAPIError(statusCode int, messages string) error {
	return fmt.Errorf("%w, %d: %s", errCRMAPI, statusCode, messages)
}

func AuthenticationError(reason string) error {
	return fmt.Errorf("%w: %s", errAuthentication, reason)
}

// crmErrorResponse is one element of the error array the CRM REST API returns.
type crmErrorResponse struct {
	Message   string   `json:"message"`
	ErrorCode string   `json:"errorCode"`
	Fields    []string `json:"fields,omitempty"`
}

// crmError reads an error response body into a CRMAPIError.
func crmError(resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("error reading response body for error: %w", err)
	}

	var errs []crmErrorResponse
	if err = json.Unmarshal(body, &errs); err != nil || len(errs) == 0 {
		return CRMAPIError(resp.StatusCode, strings.TrimSpace(string(body)))
	}

	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		msgs = append(msgs, fmt.Sprintf("%s: %s", e.ErrorCode, e.Message))
	}

	return CRMAPIError(resp.StatusCode, strings.Join(msgs, "; "))
}

// decodeJSON reads the body into target.
func decodeJSON(resp *http.Response, target any) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("error reading response body: %w", err)
	}

	if err = json.Unmarshal(body, target); err != nil {
		return HTTPBodyUnmarshallError(err)
	}

	return nil
}
