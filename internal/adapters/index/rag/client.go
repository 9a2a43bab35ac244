// Package rag is the HTTP client for the external indexing service. Every
// call goes through a circuit breaker; the service is best-effort from the
// engine's point of view and an open circuit just means "skip indexing".
package rag

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"

	"github.com/VeriTeknik/pluggedin-app-sub006/internal/core/circuitbreaker"
	"github.com/VeriTeknik/pluggedin-app-sub006/internal/core/ports"
)

const requestTimeout = 15 * time.Second

type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	breaker *circuitbreaker.CircuitBreaker
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: requestTimeout},
		breaker: circuitbreaker.New("rag-indexer"),
	}
}

type uploadResponse struct {
	UploadID string `json:"upload_id"`
}

// Upload sends content as a multipart file and returns the upload id used
// for status polling.
func (c *Client) Upload(ctx context.Context, content []byte, filename string) (string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("build upload form: %w", err)
	}
	if _, err := part.Write(content); err != nil {
		return "", fmt.Errorf("build upload form: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("build upload form: %w", err)
	}

	var resp uploadResponse
	err = c.breaker.Execute(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload", bytes.NewReader(body.Bytes()))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", writer.FormDataContentType())
		c.auth(req)
		return c.do(req, &resp)
	})
	if err != nil {
		return "", err
	}
	return resp.UploadID, nil
}

// PollStatus asks the indexer where an upload stands.
func (c *Client) PollStatus(ctx context.Context, uploadID string) (ports.UploadStatus, error) {
	var status ports.UploadStatus
	err := c.breaker.Execute(ctx, func() error {
		u := fmt.Sprintf("%s/upload/%s/status", c.baseURL, url.PathEscape(uploadID))
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return err
		}
		c.auth(req)
		return c.do(req, &status)
	})
	return status, err
}

// Remove deletes a document from the index.
func (c *Client) Remove(ctx context.Context, documentID string) error {
	return c.breaker.Execute(ctx, func() error {
		u := fmt.Sprintf("%s/documents/%s", c.baseURL, url.PathEscape(documentID))
		req, err := http.NewRequestWithContext(ctx, http.MethodDelete, u, nil)
		if err != nil {
			return err
		}
		c.auth(req)
		return c.do(req, nil)
	})
}

// Ping reports reachability for health checks, bypassing the breaker so a
// recovered indexer is noticed.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

func (c *Client) auth(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("indexer returned %d: %s", resp.StatusCode, snippet)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
