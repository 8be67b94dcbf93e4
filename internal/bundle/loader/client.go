// Package loader implements C10 of spec.md: orchestrating manifest fetch,
// version comparison against storage, archive download, verification, and
// caching for one bundle origin. Grounded on
// tauri-plugin-appload/src/api/client.rs's ApiClient.
package loader

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hoppscotch/agent/internal/bundle"
	"github.com/hoppscotch/agent/internal/relayerr"
)

const apiVersion = "v1"

// Client talks to one bundle server's /api/v1/* surface.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type apiEnvelope[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data"`
	Error   string `json:"error,omitempty"`
}

type keyResponse struct {
	Key string `json:"key"` // base64(32-byte Ed25519 public key)
}

type manifestFileWire struct {
	Path     string `json:"path"`
	Size     int64  `json:"size"`
	Hash     string `json:"hash"` // base64(32-byte BLAKE3)
	MimeType string `json:"mime_type,omitempty"`
}

type manifestResponse struct {
	Version   string `json:"version"`
	CreatedAt string `json:"created_at"`
	Signature string `json:"signature"` // base64(64)
	Manifest  struct {
		Files []manifestFileWire `json:"files"`
	} `json:"manifest"`
	Properties any `json:"properties,omitempty"`
}

// FetchKey retrieves the bundle server's Ed25519 public key (spec.md §6).
func (c *Client) FetchKey(ctx context.Context) ([]byte, error) {
	var resp keyResponse
	if err := c.getJSON(ctx, "/api/"+apiVersion+"/key", &resp); err != nil {
		return nil, err
	}
	key, err := base64.StdEncoding.DecodeString(resp.Key)
	if err != nil {
		return nil, relayerr.Wrap(relayerr.KindInvalidKeyFormat, "decoding server public key", err)
	}
	if len(key) != 32 {
		return nil, relayerr.New(relayerr.KindInvalidKeyLength, "expected 32-byte public key")
	}
	return key, nil
}

// FetchManifest retrieves the bundle's metadata (spec.md §6).
func (c *Client) FetchManifest(ctx context.Context) (bundle.Metadata, error) {
	var resp manifestResponse
	if err := c.getJSON(ctx, "/api/"+apiVersion+"/manifest", &resp); err != nil {
		return bundle.Metadata{}, err
	}

	sig, err := base64.StdEncoding.DecodeString(resp.Signature)
	if err != nil {
		return bundle.Metadata{}, relayerr.Wrap(relayerr.KindParse, "decoding manifest signature", err)
	}
	createdAt, err := time.Parse(time.RFC3339, resp.CreatedAt)
	if err != nil {
		createdAt = time.Time{}
	}

	entries := make([]bundle.FileEntry, 0, len(resp.Manifest.Files))
	for _, f := range resp.Manifest.Files {
		rawHash, err := base64.StdEncoding.DecodeString(f.Hash)
		if err != nil {
			return bundle.Metadata{}, relayerr.Wrap(relayerr.KindParse, fmt.Sprintf("decoding hash for %s", f.Path), err)
		}
		entries = append(entries, bundle.FileEntry{
			Path:     f.Path,
			Size:     f.Size,
			Hash:     hex.EncodeToString(rawHash),
			MimeType: f.MimeType,
		})
	}

	return bundle.Metadata{
		Version:    resp.Version,
		CreatedAt:  createdAt,
		Signature:  sig,
		Manifest:   entries,
		Properties: resp.Properties,
	}, nil
}

// DownloadBundle fetches the archive's raw zip bytes (spec.md §6).
func (c *Client) DownloadBundle(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/"+apiVersion+"/bundle", nil)
	if err != nil {
		return nil, fmt.Errorf("building download request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, relayerr.Wrap(relayerr.KindNetwork, "bundle download failed", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return io.ReadAll(resp.Body)
	case http.StatusNotFound:
		return nil, relayerr.New(relayerr.KindNetwork, "bundle not found")
	default:
		return nil, relayerr.New(relayerr.KindNetwork, fmt.Sprintf("bundle server returned %d", resp.StatusCode))
	}
}

func (c *Client) getJSON(ctx context.Context, path string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("building request for %s: %w", path, err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return relayerr.Wrap(relayerr.KindNetwork, "request to "+path+" failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return relayerr.New(relayerr.KindNetwork, fmt.Sprintf("%s returned %d", path, resp.StatusCode))
	}

	var envelope apiEnvelope[json.RawMessage]
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return relayerr.Wrap(relayerr.KindParse, "decoding response from "+path, err)
	}
	if !envelope.Success {
		return relayerr.New(relayerr.KindNetwork, envelope.Error)
	}
	if err := json.Unmarshal(envelope.Data, dst); err != nil {
		return relayerr.Wrap(relayerr.KindParse, "decoding data payload from "+path, err)
	}
	return nil
}
