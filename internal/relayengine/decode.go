package relayengine

import (
	"encoding/base64"
	"encoding/json"
	"reflect"

	"github.com/go-viper/mapstructure/v2"

	"github.com/hoppscotch/agent/internal/relayerr"
)

// DecodeRequest parses a decrypted request payload into a Request.
//
// The top-level shape decodes with encoding/json directly, but the
// polymorphic sub-objects (content/auth/grant_type/client_cert) arrive as
// a generic map[string]any with a "kind" discriminator — those are routed
// through mapstructure so a single decode path handles every variant
// without a type switch per field.
func DecodeRequest(raw []byte) (Request, error) {
	var wire struct {
		ID              int64               `json:"id"`
		URL             string              `json:"url"`
		Method          string              `json:"method"`
		Version         string              `json:"version"`
		Headers         map[string][]string `json:"headers"`
		Params          map[string][]string `json:"params"`
		Content         map[string]any      `json:"content"`
		Auth            map[string]any      `json:"auth"`
		Security        map[string]any      `json:"security"`
		Proxy           *ProxyConfig        `json:"proxy"`
		FollowRedirects bool                `json:"follow_redirects"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return Request{}, relayerr.Wrap(relayerr.KindParse, "decoding request payload", err)
	}

	req := Request{
		ID:              wire.ID,
		URL:             wire.URL,
		Method:          wire.Method,
		Version:         wire.Version,
		Headers:         wire.Headers,
		Params:          wire.Params,
		Proxy:           wire.Proxy,
		FollowRedirects: wire.FollowRedirects,
	}

	if wire.Content != nil {
		if err := decodeKinded(wire.Content, &req.Content); err != nil {
			return Request{}, relayerr.Wrap(relayerr.KindParse, "decoding request.content", err)
		}
	}
	if wire.Auth != nil {
		if err := decodeKinded(wire.Auth, &req.Auth); err != nil {
			return Request{}, relayerr.Wrap(relayerr.KindParse, "decoding request.auth", err)
		}
	}
	if wire.Security != nil {
		if err := decodeKinded(wire.Security, &req.Security); err != nil {
			return Request{}, relayerr.Wrap(relayerr.KindParse, "decoding request.security", err)
		}
	}

	return req, nil
}

// decodeKinded decodes a generic map into dst, preserving dst's "kind"
// string field and letting mapstructure populate everything else by tag.
// stringToBytesHook lets binary fields (cert/key/data) arrive as base64
// strings, since they travel inside a JSON document.
func decodeKinded(m map[string]any, dst any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           dst,
		WeaklyTypedInput: true,
		DecodeHook:       stringToBytesHook,
	})
	if err != nil {
		return err
	}
	return dec.Decode(m)
}

var byteSliceType = reflect.TypeOf([]byte(nil))

func stringToBytesHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String || to != byteSliceType {
		return data, nil
	}
	s := data.(string)
	if s == "" {
		return []byte(nil), nil
	}
	decoded, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}
	return decoded, nil
}
