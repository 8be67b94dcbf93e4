package relayengine

import (
	"context"
	"crypto/md5"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/hoppscotch/agent/internal/relayerr"
)

// applyAuth implements the auth phase of spec.md §4.4. For oauth2 it may
// perform a token-endpoint round trip before the main request is sent.
func applyAuth(ctx context.Context, client *http.Client, req *http.Request, auth AuthType) error {
	switch auth.Kind {
	case "", "none":
		return nil

	case "basic":
		req.SetBasicAuth(auth.Username, auth.Password)
		return nil

	case "bearer":
		req.Header.Set("Authorization", "Bearer "+auth.Token)
		return nil

	case "digest":
		// The challenge-response handshake needs a first round trip to read
		// the WWW-Authenticate header; send does that lazily, so the auth
		// phase just stashes the credentials.
		req.Header.Set(digestPendingHeader, digestCredentials{auth.Username, auth.Password}.encode())
		return nil

	case "oauth2":
		token, err := resolveOAuth2Token(ctx, client, auth)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
		return nil

	default:
		return relayerr.UnsupportedFeature("auth."+auth.Kind, fmt.Sprintf("unknown auth kind %q", auth.Kind), false)
	}
}

func resolveOAuth2Token(ctx context.Context, client *http.Client, auth AuthType) (string, error) {
	if auth.AccessToken != nil && *auth.AccessToken != "" {
		return *auth.AccessToken, nil
	}

	form := url.Values{}
	if auth.RefreshToken != nil && *auth.RefreshToken != "" {
		form.Set("grant_type", "refresh_token")
		form.Set("refresh_token", *auth.RefreshToken)
		return postTokenRequest(ctx, client, auth.GrantType.TokenEndpoint, form)
	}

	switch auth.GrantType.Kind {
	case "client_credentials":
		form.Set("grant_type", "client_credentials")
		form.Set("client_id", auth.GrantType.ClientID)
		form.Set("client_secret", auth.GrantType.ClientSecret)

	case "password":
		form.Set("grant_type", "password")
		form.Set("username", auth.GrantType.Username)
		form.Set("password", auth.GrantType.Password)

	case "authorization_code", "implicit":
		return "", relayerr.UnsupportedFeature("oauth2."+auth.GrantType.Kind,
			"the "+auth.GrantType.Kind+" grant requires a browser redirect and cannot be completed headlessly", true)

	default:
		return "", relayerr.UnsupportedFeature("oauth2."+auth.GrantType.Kind, "unknown OAuth2 grant type", false)
	}

	return postTokenRequest(ctx, client, auth.GrantType.TokenEndpoint, form)
}

// postTokenRequest performs the token-endpoint round trip shared by every
// OAuth2 grant (and the refresh_token path), parsing
// {access_token, token_type, expires_in?, refresh_token?, scope?}.
func postTokenRequest(ctx context.Context, client *http.Client, tokenEndpoint string, form url.Values) (string, error) {
	tokenReq, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", relayerr.Wrap(relayerr.KindBadRequest, "building oauth2 token request", err)
	}
	tokenReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	tokenReq.Header.Set("Accept", "application/json")

	resp, err := client.Do(tokenReq)
	if err != nil {
		return "", relayerr.Wrap(relayerr.KindNetwork, "fetching oauth2 token", err)
	}
	defer resp.Body.Close()

	var payload struct {
		AccessToken  string `json:"access_token"`
		TokenType    string `json:"token_type"`
		ExpiresIn    int    `json:"expires_in"`
		RefreshToken string `json:"refresh_token"`
		Scope        string `json:"scope"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", relayerr.Wrap(relayerr.KindParse, "decoding oauth2 token response", err)
	}
	if payload.AccessToken == "" {
		return "", relayerr.New(relayerr.KindUnauthorized, "oauth2 token endpoint returned no access_token")
	}
	return payload.AccessToken, nil
}

// --- Digest auth ---
//
// net/http has no built-in digest support, so the engine performs the
// standard two-round-trip handshake: send once unauthenticated, read the
// WWW-Authenticate challenge on a 401, then resend with a computed
// response digest.

const digestPendingHeader = "X-Hoppscotch-Internal-Digest-Pending"

type digestCredentials struct {
	Username, Password string
}

func (c digestCredentials) encode() string { return c.Username + "\x00" + c.Password }

func decodeDigestCredentials(s string) digestCredentials {
	parts := strings.SplitN(s, "\x00", 2)
	if len(parts) != 2 {
		return digestCredentials{}
	}
	return digestCredentials{parts[0], parts[1]}
}

// applyDigestChallenge computes the Authorization header for a digest
// challenge received on resp, per RFC 7616's qop=auth case.
func applyDigestChallenge(creds digestCredentials, method, uri string, resp *http.Response) (string, error) {
	challenge := parseDigestChallenge(resp.Header.Get("WWW-Authenticate"))
	realm, nonce, qop, opaque := challenge["realm"], challenge["nonce"], challenge["qop"], challenge["opaque"]
	if nonce == "" {
		return "", relayerr.New(relayerr.KindUnauthorized, "server sent no digest nonce")
	}

	ha1 := md5Hex(creds.Username + ":" + realm + ":" + creds.Password)
	ha2 := md5Hex(method + ":" + uri)

	nc := "00000001"
	cnonce := randomHex(8)

	var response string
	if qop == "auth" || qop == "auth-int" {
		response = md5Hex(strings.Join([]string{ha1, nonce, nc, cnonce, qop, ha2}, ":"))
	} else {
		response = md5Hex(ha1 + ":" + nonce + ":" + ha2)
	}

	header := fmt.Sprintf(`Digest username="%s", realm="%s", nonce="%s", uri="%s", response="%s"`,
		creds.Username, realm, nonce, uri, response)
	if qop != "" {
		header += fmt.Sprintf(`, qop=%s, nc=%s, cnonce="%s"`, qop, nc, cnonce)
	}
	if opaque != "" {
		header += fmt.Sprintf(`, opaque="%s"`, opaque)
	}
	return header, nil
}

func parseDigestChallenge(header string) map[string]string {
	out := map[string]string{}
	header = strings.TrimPrefix(header, "Digest ")
	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		out[kv[0]] = strings.Trim(kv[1], `"`)
	}
	return out
}

func md5Hex(s string) string { return fmt.Sprintf("%x", md5.Sum([]byte(s))) }

func randomHex(n int) string {
	buf := make([]byte, n)
	_, _ = rand.Read(buf)
	return fmt.Sprintf("%x", buf)
}
