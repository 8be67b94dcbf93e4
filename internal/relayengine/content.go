package relayengine

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/url"
	"path"

	"github.com/hoppscotch/agent/internal/relayerr"
)

// builtBody is the outcome of the content phase: a body reader plus the
// Content-Type header it implies (the caller's media type for Text, Xml
// and Binary, with a default when none is given; empty only when there is
// no content).
type builtBody struct {
	reader      io.Reader
	contentType string
	disposition string // Content-Disposition, only set for Binary with a filename
	length      int
}

// buildBody implements the content phase of spec.md §4.4: translating the
// ContentType tagged union into a concrete request body and Content-Type.
func buildBody(ct ContentType) (builtBody, error) {
	switch ct.Kind {
	case "", "none":
		return builtBody{length: 0}, nil

	case "text":
		mt := ct.MediaType
		if mt == "" {
			mt = "text/plain; charset=utf-8"
		}
		return builtBody{reader: bytes.NewReader([]byte(ct.Body)), contentType: mt, length: len(ct.Body)}, nil

	case "xml":
		mt := ct.MediaType
		if mt == "" {
			mt = "application/xml"
		}
		return builtBody{reader: bytes.NewReader([]byte(ct.Body)), contentType: mt, length: len(ct.Body)}, nil

	case "json":
		buf, err := json.Marshal(ct.JSONBody)
		if err != nil {
			return builtBody{}, relayerr.Wrap(relayerr.KindBadRequest, "marshaling json content", err)
		}
		return builtBody{reader: bytes.NewReader(buf), contentType: "application/json", length: len(buf)}, nil

	case "urlencoded":
		vals := url.Values{}
		for _, f := range ct.Fields {
			vals.Add(f.Name, f.Value)
		}
		encoded := vals.Encode()
		return builtBody{reader: bytes.NewReader([]byte(encoded)), contentType: "application/x-www-form-urlencoded", length: len(encoded)}, nil

	case "form", "multipart":
		return buildMultipart(ct.Fields)

	case "binary":
		mt := ct.MediaType
		if mt == "" {
			mt = "application/octet-stream"
		}
		b := builtBody{reader: bytes.NewReader(ct.Data), contentType: mt, length: len(ct.Data)}
		if ct.Filename != nil && *ct.Filename != "" {
			b.disposition = `attachment; filename="` + path.Base(*ct.Filename) + `"`
		}
		return b, nil

	default:
		return builtBody{}, relayerr.UnsupportedFeature("content."+ct.Kind, fmt.Sprintf("unknown content kind %q", ct.Kind), false)
	}
}

// buildMultipart writes fields to a buffer rather than streaming, since
// the whole descriptor already lives in memory by the time it reaches the
// engine (spec.md §4.4: "fields preserve caller order").
func buildMultipart(fields []MultipartField) (builtBody, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, f := range fields {
		if f.IsFile {
			part, err := w.CreateFormFile(f.Name, f.Filename)
			if err != nil {
				return builtBody{}, relayerr.Wrap(relayerr.KindInternal, "creating multipart file part", err)
			}
			if _, err := part.Write(f.Data); err != nil {
				return builtBody{}, relayerr.Wrap(relayerr.KindInternal, "writing multipart file part", err)
			}
			continue
		}
		if err := w.WriteField(f.Name, f.Value); err != nil {
			return builtBody{}, relayerr.Wrap(relayerr.KindInternal, "writing multipart field", err)
		}
	}
	if err := w.Close(); err != nil {
		return builtBody{}, relayerr.Wrap(relayerr.KindInternal, "closing multipart writer", err)
	}
	return builtBody{reader: &buf, contentType: w.FormDataContentType(), length: buf.Len()}, nil
}
