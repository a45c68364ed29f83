package remote

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

	"github.com/akarpov87/mealkeep/internal/common"
	"github.com/akarpov87/mealkeep/internal/models"
)

// TokenSource supplies the bearer token attached to outbound requests.
// identity.TokenProvider satisfies it.
type TokenSource interface {
	Token() string
}

// HTTPStore talks JSON to the remote record service.
type HTTPStore struct {
	baseURL string
	tokens  TokenSource
	client  *http.Client
}

// NewHTTPStore builds a store for the service at baseURL
// (e.g. "https://api.example.com").
func NewHTTPStore(baseURL string, tokens TokenSource) *HTTPStore {
	return &HTTPStore{
		baseURL: strings.TrimRight(baseURL, "/"),
		tokens:  tokens,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (s *HTTPStore) FetchAll(ctx context.Context, ownerID string) ([]models.Record, error) {
	var out struct {
		Records []models.Record `json:"records"`
	}
	path := fmt.Sprintf("/api/v1/owners/%s/records", url.PathEscape(ownerID))
	if err := s.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, fmt.Errorf("fetch records: %w", err)
	}
	return out.Records, nil
}

func (s *HTTPStore) Upsert(ctx context.Context, ownerID string, rec *models.Record) error {
	path := fmt.Sprintf("/api/v1/owners/%s/records/%s",
		url.PathEscape(ownerID), url.PathEscape(rec.Id))
	if err := s.do(ctx, http.MethodPut, path, rec, nil); err != nil {
		return fmt.Errorf("upsert record %s: %w", rec.Id, err)
	}
	return nil
}

func (s *HTTPStore) Delete(ctx context.Context, ownerID, recordID string) error {
	path := fmt.Sprintf("/api/v1/owners/%s/records/%s",
		url.PathEscape(ownerID), url.PathEscape(recordID))
	if err := s.do(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return fmt.Errorf("delete record %s: %w", recordID, err)
	}
	return nil
}

func (s *HTTPStore) BatchWrite(ctx context.Context, ownerID string, ops []Op) ([]OpResult, error) {
	if len(ops) > common.MaxBatchOps {
		return nil, fmt.Errorf("batch of %d exceeds %d operations", len(ops), common.MaxBatchOps)
	}
	in := struct {
		Ops []Op `json:"ops"`
	}{Ops: ops}
	var out struct {
		Results []OpResult `json:"results"`
	}
	path := fmt.Sprintf("/api/v1/owners/%s/records:batch", url.PathEscape(ownerID))
	if err := s.do(ctx, http.MethodPost, path, in, &out); err != nil {
		return nil, fmt.Errorf("batch write: %w", err)
	}
	if len(out.Results) != len(ops) {
		return nil, fmt.Errorf("batch write: got %d results for %d ops", len(out.Results), len(ops))
	}
	return out.Results, nil
}

func (s *HTTPStore) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := s.tokens.Token(); token != "" {
		req.Header.Set(common.AuthorizationHeaderName, "Bearer "+token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%w: %s: %s", common.ErrorRemoteRejected, resp.Status, strings.TrimSpace(string(b)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
