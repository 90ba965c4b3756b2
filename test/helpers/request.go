// SPDX-License-Identifier: MIT

package helpers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/ManuGH/xl2wh/internal/platform/httpx"
)

// RequestOptions configures one HTTP request against the test stack.
type RequestOptions struct {
	Method      string
	Path        string
	Body        io.Reader
	ContentType string
	Token       string
	Header      map[string]string
}

// DoRequest executes one request against the stack, setting the API token
// header when given. The caller owns the response body.
func DoRequest(t *testing.T, baseURL string, opts RequestOptions) *http.Response {
	t.Helper()

	req, err := http.NewRequestWithContext(context.Background(), opts.Method, baseURL+opts.Path, opts.Body)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if opts.ContentType != "" {
		req.Header.Set("Content-Type", opts.ContentType)
	}
	if opts.Token != "" {
		req.Header.Set("X-API-Token", opts.Token)
	}
	for k, v := range opts.Header {
		req.Header.Set(k, v)
	}

	resp, err := httpx.NewClient(10 * time.Second).Do(req)
	if err != nil {
		t.Fatalf("execute %s %s: %v", opts.Method, opts.Path, err)
	}
	return resp
}

// DecodeJSON reads and decodes the response body, then closes it.
func DecodeJSON(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

// Drain closes the response body after reading it fully, for tests that only
// care about the status code.
func Drain(t *testing.T, resp *http.Response) {
	t.Helper()
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}

// BuildWorkbook renders rows into a single-sheet xlsx document.
func BuildWorkbook(t *testing.T, rows [][]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatalf("cell name: %v", err)
		}
		if err := f.SetSheetRow("Sheet1", cell, &rows[i]); err != nil {
			t.Fatalf("SetSheetRow failed: %v", err)
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("WriteToBuffer failed: %v", err)
	}
	return buf.Bytes()
}

// MultipartBody builds a multipart form with one part per file under the
// given field name.
func MultipartBody(t *testing.T, field string, files map[string][]byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	for name, content := range files {
		part, err := mw.CreateFormFile(field, name)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := part.Write(content); err != nil {
			t.Fatalf("write part: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	return body, mw.FormDataContentType()
}

// OperationsHeader returns the column header row for operations uploads.
func OperationsHeader() []any {
	return []any{"factory_code", "date", "employee_id", "indicator", "value"}
}

// UploadWorkbook uploads one workbook into the given dataset and returns the
// created batch id.
func UploadWorkbook(t *testing.T, ts *TestServer, token, dataset string, rows [][]any) int64 {
	t.Helper()

	body, contentType := MultipartBody(t, "files", map[string][]byte{
		"batch.xlsx": BuildWorkbook(t, rows),
	})
	resp := DoRequest(t, ts.Server.URL, RequestOptions{
		Method:      http.MethodPost,
		Path:        "/api/uploads?dataset=" + dataset,
		Body:        body,
		ContentType: contentType,
		Token:       token,
	})
	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		t.Fatalf("upload status = %d, body %s", resp.StatusCode, payload)
	}

	var out struct {
		BatchID int64  `json:"batch_id"`
		Status  string `json:"status"`
	}
	DecodeJSON(t, resp, &out)
	if out.BatchID <= 0 {
		t.Fatalf("upload response carries no batch_id: %+v", out)
	}
	return out.BatchID
}
