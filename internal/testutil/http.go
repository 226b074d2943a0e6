package testutil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// HTTPResult captures HTTP response details for test assertions
type HTTPResult struct {
	Code    int
	Error   error
	Headers http.Header
	Body    []byte
}

// Header represents an HTTP header key-value pair
type Header struct {
	Key   string
	Value string
}

// ContentTypeJSON returns a header for JSON content type
func ContentTypeJSON() Header {
	return Header{
		Key:   "Content-Type",
		Value: "application/json",
	}
}

// Bearer returns an Authorization header carrying token
func Bearer(token string) Header {
	return Header{
		Key:   "Authorization",
		Value: "Bearer " + token,
	}
}

// ExpectStatus validates the HTTP status code and fails the test if it doesn't match
func ExpectStatus(
	t *testing.T,
	expected int,
	result HTTPResult,
) {
	t.Helper()
	if result.Error != nil {
		t.Fatalf("request error: %v", result.Error)
	}
	if result.Code != expected {
		t.Fatalf("expected status %d, got %d. Body: %s", expected, result.Code, string(result.Body))
	}
}

// ExpectDetail validates the status and the {"detail": ...} error body
func ExpectDetail(
	t *testing.T,
	expected int,
	detail string,
	result HTTPResult,
) {
	t.Helper()
	ExpectStatus(t, expected, result)
	body := struct {
		Detail string `json:"detail"`
	}{}
	if err := json.Unmarshal(result.Body, &body); err != nil {
		t.Fatalf("failed to decode error body: %v\n%s", err, string(result.Body))
	}
	if body.Detail != detail {
		t.Fatalf("expected detail %q, got %q", detail, body.Detail)
	}
}

// Do serves one request through router and decodes a JSON reply into
// response when response is non-nil and the body is not empty.
func Do(
	router http.Handler,
	method string,
	url string,
	body string,
	response any,
	headers ...Header,
) HTTPResult {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, url, reader)
	for _, h := range headers {
		req.Header.Set(h.Key, h.Value)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	result := HTTPResult{Code: rec.Code, Headers: rec.Header(), Body: rec.Body.Bytes()}
	if response == nil || len(result.Body) == 0 {
		return result
	}
	if err := json.Unmarshal(result.Body, response); err != nil {
		result.Error = fmt.Errorf("failed to decode JSON: %v\n%s", err, result.Body)
	}
	return result
}

func Get(
	router http.Handler,
	url string,
	response any,
	headers ...Header,
) HTTPResult {
	return Do(router, http.MethodGet, url, "", response, headers...)
}

// PostJSON performs a POST with a JSON body
func PostJSON(
	router http.Handler,
	url string,
	body string,
	response any,
	headers ...Header,
) HTTPResult {
	headers = append([]Header{ContentTypeJSON()}, headers...)
	return Do(router, http.MethodPost, url, body, response, headers...)
}
