// Package relayengine implements C4 of spec.md: translating a Request
// descriptor into one outbound HTTP transfer and synthesizing a Response,
// including TLS/client-cert/proxy/OAuth2/cancellation handling.
package relayengine

// Request is the inbound descriptor of spec.md §3, decrypted and decoded
// before reaching the engine.
type Request struct {
	ID              int64               `json:"id"`
	URL             string              `json:"url"`
	Method          string              `json:"method"`
	Version         string              `json:"version"`
	Headers         map[string][]string `json:"headers,omitempty"`
	Params          map[string][]string `json:"params,omitempty"`
	Content         ContentType         `json:"content,omitempty"`
	Auth            AuthType            `json:"auth,omitempty"`
	Security        SecurityConfig      `json:"security,omitempty"`
	Proxy           *ProxyConfig        `json:"proxy,omitempty"`
	FollowRedirects bool                `json:"follow_redirects,omitempty"`
}

// ContentType is the tagged union of spec.md §3, discriminated on Kind.
type ContentType struct {
	Kind string `json:"kind,omitempty"` // "text"|"json"|"xml"|"urlencoded"|"form"|"multipart"|"binary"

	// text / xml
	Body      string `json:"body,omitempty" mapstructure:"body"`
	MediaType string `json:"media_type,omitempty" mapstructure:"media_type"`

	// json — carried as a raw value so any JSON shape round-trips.
	JSONBody any `json:"json_body,omitempty" mapstructure:"json_body"`

	// urlencoded / form / multipart
	Fields []MultipartField `json:"fields,omitempty" mapstructure:"fields"`

	// binary
	Data     []byte  `json:"data,omitempty" mapstructure:"data"`
	Filename *string `json:"filename,omitempty" mapstructure:"filename"`
}

// MultipartField is either a text field or a file field, preserving the
// caller's ordering (spec.md §4.4: "Keys and files preserve caller order").
type MultipartField struct {
	Name        string  `json:"name" mapstructure:"name"`
	Value       string  `json:"value,omitempty" mapstructure:"value"` // text fields
	IsFile      bool    `json:"is_file,omitempty" mapstructure:"is_file"`
	Filename    string  `json:"filename,omitempty" mapstructure:"filename"`     // file fields
	ContentType string  `json:"content_type,omitempty" mapstructure:"content_type"`
	Data        []byte  `json:"data,omitempty" mapstructure:"data"`
}

// AuthType is the tagged union of spec.md §3.
type AuthType struct {
	Kind string `json:"kind,omitempty"` // "none"|"basic"|"bearer"|"digest"|"oauth2"

	Username string `json:"username,omitempty" mapstructure:"username"` // basic/digest
	Password string `json:"password,omitempty" mapstructure:"password"` // basic/digest

	Token string `json:"token,omitempty" mapstructure:"token"` // bearer

	GrantType    GrantType `json:"grant_type,omitempty" mapstructure:"grant_type"`
	AccessToken  *string   `json:"access_token,omitempty" mapstructure:"access_token"`
	RefreshToken *string   `json:"refresh_token,omitempty" mapstructure:"refresh_token"`
}

// GrantType is the OAuth2 grant tagged union of spec.md §4.4.
type GrantType struct {
	Kind string `json:"kind,omitempty"` // "client_credentials"|"password"|"authorization_code"|"implicit"

	TokenEndpoint string `json:"token_endpoint,omitempty" mapstructure:"token_endpoint"`
	ClientID      string `json:"client_id,omitempty" mapstructure:"client_id"`
	ClientSecret  string `json:"client_secret,omitempty" mapstructure:"client_secret"`
	Username      string `json:"username,omitempty" mapstructure:"username"`
	Password      string `json:"password,omitempty" mapstructure:"password"`
}

// SecurityConfig carries TLS trust configuration (spec.md §3).
type SecurityConfig struct {
	ClientCert           *ClientCertDef `json:"client_cert,omitempty" mapstructure:"client_cert"`
	CACertificates       []string       `json:"ca_certificates,omitempty" mapstructure:"ca_certificates"` // each a PEM bundle
	ValidateCertificates bool           `json:"validate_certificates,omitempty" mapstructure:"validate_certificates"`
	VerifyHost           bool           `json:"verify_host,omitempty" mapstructure:"verify_host"`
}

// ClientCertDef is the tagged union of spec.md §4.4: PEM or PKCS#12.
type ClientCertDef struct {
	Kind string `json:"kind,omitempty"` // "pem"|"pkcs12"

	Cert []byte `json:"cert,omitempty" mapstructure:"cert"` // pem
	Key  []byte `json:"key,omitempty" mapstructure:"key"`   // pem

	Data     []byte `json:"data,omitempty" mapstructure:"data"`         // pkcs12
	Password string `json:"password,omitempty" mapstructure:"password"` // pkcs12
}

// ProxyConfig describes an upstream HTTP(S) proxy (spec.md §4.4).
type ProxyConfig struct {
	URL  string     `json:"url"`
	Auth *ProxyAuth `json:"auth,omitempty"`
}

type ProxyAuth struct {
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
}

// Response is the outbound descriptor of spec.md §3.
type Response struct {
	ID         int64               `json:"id"`
	Status     int                 `json:"status"`
	StatusText string              `json:"status_text"`
	Version    string              `json:"version"`
	Headers    map[string][]string `json:"headers"`
	Content    ResponseContent     `json:"content"`
	Meta       Meta                `json:"meta"`
}

// ResponseContent is Text or Json per spec.md §4.4 "Response synthesis".
type ResponseContent struct {
	Kind      string `json:"kind"` // "text"|"json"
	MediaType string `json:"media_type"`
	Body      string `json:"body,omitempty"`      // text
	JSONBody  any    `json:"json_body,omitempty"` // json
}

type Meta struct {
	Timing Timing `json:"timing"`
	Size   Size   `json:"size"`
}

type Timing struct {
	StartMS int64 `json:"start_ms"`
	EndMS   int64 `json:"end_ms"`
}

type Size struct {
	Headers int `json:"headers"`
	Body    int `json:"body"`
	Total   int `json:"total"`
}
