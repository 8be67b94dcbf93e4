package relayengine

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hoppscotch/agent/internal/cancelreg"
	"github.com/hoppscotch/agent/internal/relayerr"
)

// maxRedirects caps automatic redirect following when Request.FollowRedirects
// is set, per spec.md §4.4.
const maxRedirects = 10

// cancelPollInterval is how often Execute checks the cancel flag while a
// transfer is in flight. The flag has no channel of its own (cancelreg's
// Flag is a plain polled bool guarded by a mutex), so a bounded cadence is
// the straightforward way to turn it into ctx cancellation.
const cancelPollInterval = 50 * time.Millisecond

// Execute runs the construction → content → security → auth → proxy →
// execution phases of spec.md §4.4 and synthesizes a Response. report, if
// non-nil, is called as the request moves through its lifecycle states.
func Execute(ctx context.Context, flag *cancelreg.Flag, req Request, report func(State)) (*Response, error) {
	emit := func(s State) {
		if report != nil {
			report(s)
		}
	}
	emit(StatePreparing)

	body, err := buildBody(req.Content)
	if err != nil {
		return nil, err
	}

	fullURL, err := withParams(req.URL, req.Params)
	if err != nil {
		return nil, relayerr.Wrap(relayerr.KindBadRequest, "parsing request url", err)
	}

	httpReq, err := http.NewRequest(req.Method, fullURL, body.reader)
	if err != nil {
		return nil, relayerr.Wrap(relayerr.KindBadRequest, "building http request", err)
	}
	for k, vs := range req.Headers {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if body.contentType != "" && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", body.contentType)
	}
	if body.disposition != "" && httpReq.Header.Get("Content-Disposition") == "" {
		httpReq.Header.Set("Content-Disposition", body.disposition)
	}

	tlsCfg, err := buildTLSConfig(req.Security)
	if err != nil {
		return nil, err
	}
	proxyFn, err := buildProxyFunc(req.Proxy)
	if err != nil {
		return nil, err
	}

	transport := &http.Transport{TLSClientConfig: tlsCfg, Proxy: proxyFn}
	client := &http.Client{Transport: transport, CheckRedirect: redirectPolicy(req.FollowRedirects)}

	if err := applyAuth(ctx, client, httpReq, req.Auth); err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if flag != nil {
		go watchCancel(runCtx, cancel, flag)
	}
	httpReq = httpReq.WithContext(runCtx)

	emit(StateExecuting)
	start := time.Now()
	resp, respBody, err := send(client, httpReq, req.Auth)
	elapsed := time.Since(start)

	if err != nil {
		state, relayErr := classifyError(runCtx, err)
		emit(state)
		return nil, relayErr
	}
	defer resp.Body.Close()

	emit(StateSucceeded)
	return synthesizeResponse(req.ID, resp, respBody, start, elapsed), nil
}

func withParams(rawURL string, params map[string][]string) (string, error) {
	if len(params) == 0 {
		return rawURL, nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	for k, vs := range params {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func redirectPolicy(follow bool) func(*http.Request, []*http.Request) error {
	if !follow {
		return func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }
	}
	return func(_ *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirects {
			return relayerr.New(relayerr.KindNetwork, "stopped after 10 redirects")
		}
		return nil
	}
}

func watchCancel(ctx context.Context, cancel context.CancelFunc, flag *cancelreg.Flag) {
	ticker := time.NewTicker(cancelPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if flag.Tripped() {
				cancel()
				return
			}
		}
	}
}

// send performs the request, transparently completing the digest
// handshake (two round trips) when auth.Kind == "digest".
func send(client *http.Client, httpReq *http.Request, auth AuthType) (*http.Response, []byte, error) {
	pending := httpReq.Header.Get(digestPendingHeader)
	httpReq.Header.Del(digestPendingHeader)

	bodyBytes, err := drainBody(httpReq)
	if err != nil {
		return nil, nil, relayerr.Wrap(relayerr.KindInternal, "buffering request body for replay", err)
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, nil, err
	}

	if pending != "" && resp.StatusCode == http.StatusUnauthorized {
		creds := decodeDigestCredentials(pending)
		digestHeader, derr := applyDigestChallenge(creds, httpReq.Method, httpReq.URL.RequestURI(), resp)
		resp.Body.Close()
		if derr != nil {
			return nil, nil, derr
		}
		retry := httpReq.Clone(httpReq.Context())
		if bodyBytes != nil {
			retry.Body = io.NopCloser(bytes.NewReader(bodyBytes))
		}
		retry.Header.Set("Authorization", digestHeader)
		resp, err = client.Do(retry)
		if err != nil {
			return nil, nil, err
		}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		resp.Body.Close()
		return nil, nil, relayerr.Wrap(relayerr.KindNetwork, "reading response body", err)
	}
	return resp, data, nil
}

func drainBody(req *http.Request) ([]byte, error) {
	if req.Body == nil {
		return nil, nil
	}
	data, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, err
	}
	req.Body.Close()
	req.Body = io.NopCloser(bytes.NewReader(data))
	req.ContentLength = int64(len(data))
	return data, nil
}

// classifyError maps a transport-level failure to a lifecycle State and a
// RelayError, per spec.md §4.4 / §7.
func classifyError(ctx context.Context, err error) (State, error) {
	if errors.Is(ctx.Err(), context.Canceled) {
		return StateCancelled, relayerr.Abort("Request cancelled by user")
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return StateTimeout, relayerr.Timeout("request timed out", "execution")
	}
	var certErr *tls.CertificateVerificationError
	var unknownAuthErr x509.UnknownAuthorityError
	var hostErr x509.HostnameError
	if errors.As(err, &certErr) || errors.As(err, &unknownAuthErr) || errors.As(err, &hostErr) {
		return StateCertErr, relayerr.Wrap(relayerr.KindCertificate, "TLS certificate verification failed", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return StateTimeout, relayerr.Timeout("request timed out", "execution")
	}
	return StateNetworkErr, relayerr.Wrap(relayerr.KindNetwork, "performing http request", err)
}

func synthesizeResponse(id int64, resp *http.Response, body []byte, start time.Time, elapsed time.Duration) *Response {
	headers := map[string][]string{}
	headerBytes := 0
	for k, vs := range resp.Header {
		headers[k] = vs
		for _, v := range vs {
			headerBytes += len(k) + len(v)
		}
	}

	content := synthesizeContent(resp.Header.Get("Content-Type"), body)

	return &Response{
		ID:         id,
		Status:     resp.StatusCode,
		StatusText: http.StatusText(resp.StatusCode),
		Version:    resp.Proto,
		Headers:    headers,
		Content:    content,
		Meta: Meta{
			Timing: Timing{StartMS: start.UnixMilli(), EndMS: start.Add(elapsed).UnixMilli()},
			Size:   Size{Headers: headerBytes, Body: len(body), Total: headerBytes + len(body)},
		},
	}
}

// synthesizeContent implements the response half of spec.md §4.4's content
// phase: JSON bodies decode structurally, everything else is carried as
// lossily-decoded UTF-8 text (spec.md is explicit that binary responses are
// not preserved byte-for-byte over this path).
func synthesizeContent(contentType string, body []byte) ResponseContent {
	base, _, _ := strings.Cut(contentType, ";")
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(base)), "application/json") {
		var decoded any
		if err := json.Unmarshal(body, &decoded); err == nil {
			return ResponseContent{Kind: "json", MediaType: contentType, JSONBody: decoded}
		}
	}
	text := body
	if !utf8.Valid(text) {
		text = bytes.ToValidUTF8(text, "�")
	}
	return ResponseContent{Kind: "text", MediaType: "text/plain", Body: string(text)}
}
