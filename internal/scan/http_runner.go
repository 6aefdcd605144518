package scan

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// ErrScanRequest — HTTP-вызов scanner-сервиса завершился ошибкой.
var ErrScanRequest = errors.New("scan request failed")

// HTTPRunner — production-реализация Runner поверх HTTP API
// scanner-сервиса.
//
// POST {base_url}/api/v1/scans с телом Request; ответ — Result.
// Таймаут управляется снаружи через ctx (soft timeout scheduler'а).
type HTTPRunner struct {
	baseURL string
	client  *http.Client
}

// NewHTTPRunner создаёт HTTPRunner.
// client == nil — используется http.DefaultClient.
func NewHTTPRunner(baseURL string, client *http.Client) *HTTPRunner {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPRunner{baseURL: baseURL, client: client}
}

// Run отправляет запрос scanner-сервису и ждёт результат.
func (r *HTTPRunner) Run(ctx context.Context, scanReq Request) (*Result, error) {
	body, err := json.Marshal(scanReq)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal request: %v", ErrScanRequest, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/api/v1/scans", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", ErrScanRequest, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrScanRequest, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrScanRequest, err)
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: HTTP %d: %s", ErrScanRequest, resp.StatusCode, truncate(string(respBody), 200))
	}

	var result Result
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("%w: unmarshal response: %v", ErrScanRequest, err)
	}

	return &result, nil
}

// truncate обрезает строку до max символов.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
