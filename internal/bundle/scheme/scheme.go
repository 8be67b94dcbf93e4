// Package scheme implements C11 of spec.md: resolving app://<host>/<path>
// requests from the embedded webview against the tiered cache, grounded on
// tauri-plugin-appload/src/uri/handler.rs's UriHandler.
package scheme

import (
	"mime"
	"net/url"
	"path"
	"strings"

	"github.com/hoppscotch/agent/internal/bundle/cache"
)

// Response is what the resolver hands back to the webview host for one
// app:// request.
type Response struct {
	Status  int
	Headers map[string]string
	Body    []byte
}

// Resolver answers app:// requests purely from the cache — it never
// reaches into storage directly (spec.md §4.11).
type Resolver struct {
	cache *cache.Cache
	csp   string // empty means "null", per spec.md §4.11
}

func New(c *cache.Cache, csp string) *Resolver {
	return &Resolver{cache: c, csp: csp}
}

// Resolve handles one app://<host>/<path> request.
func (r *Resolver) Resolve(rawURL string) Response {
	host, filePath := splitAppURL(rawURL)

	content, ok, err := r.cache.Get(cache.Key(host, filePath))
	if err != nil || !ok {
		return Response{Status: 404, Body: []byte{}}
	}

	csp := r.csp
	if csp == "" {
		csp = "null"
	}

	return Response{
		Status: 200,
		Headers: map[string]string{
			"Content-Type":                    mimeFor(filePath),
			"Content-Security-Policy":         csp,
			"Access-Control-Allow-Credentials": "true",
			"X-Content-Type-Options":           "nosniff",
			"Cache-Control":                    "no-cache",
		},
		Body: content,
	}
}

// splitAppURL extracts host and a cache-relative path from an app:// URL,
// defaulting an empty or "/" path to index.html (spec.md §4.11).
func splitAppURL(rawURL string) (host, filePath string) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "index.html"
	}
	host = u.Host
	filePath = strings.TrimPrefix(u.Path, "/")
	if filePath == "" {
		filePath = "index.html"
	}
	return host, filePath
}

func mimeFor(filePath string) string {
	if filePath == "index.html" {
		return "text/html; charset=utf-8"
	}
	if ext := path.Ext(filePath); ext != "" {
		if mt := mime.TypeByExtension(ext); mt != "" {
			return mt
		}
	}
	return "application/octet-stream"
}
