package service

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
)

// ErrBadRequestBody is returned when an inbound body cannot be decoded in
// the wire format its content type declares (malformed JSON is recovered
// instead: it forwards no body).
var ErrBadRequestBody = errors.New("malformed request body")

// TranslateBody re-encodes the inbound body according to its declared
// content type and returns the outgoing bytes plus the content type to set
// on the forwarded request. A nil byte slice means "send no body"; an empty
// contentType return means "leave the inbound Content-Type untouched".
//
// GET and HEAD requests never carry a body regardless of content type.
func TranslateBody(method, contentType string, body io.Reader) ([]byte, string, error) {
	if method == http.MethodGet || method == http.MethodHead {
		return nil, "", nil
	}
	if body == nil {
		return nil, "", nil
	}

	switch {
	case strings.Contains(contentType, "application/json"):
		return translateJSON(body)
	case strings.Contains(contentType, "application/x-www-form-urlencoded"):
		return translateForm(body)
	case strings.Contains(contentType, "multipart/form-data"):
		return rebuildMultipart(contentType, body)
	default:
		return translateRaw(body)
	}
}

// translateJSON parses and re-serializes the payload. A parse failure is
// recovered by forwarding no body; the outgoing content type stays JSON.
func translateJSON(body io.Reader) ([]byte, string, error) {
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, "", fmt.Errorf("read request body: %w", err)
	}

	var v any
	if err := json.Unmarshal(raw, &v); err != nil || v == nil {
		return nil, "application/json", nil
	}

	out, err := json.Marshal(v)
	if err != nil {
		return nil, "application/json", nil
	}
	return out, "application/json", nil
}

// translateForm parses URL-encoded fields and re-encodes them.
func translateForm(body io.Reader) ([]byte, string, error) {
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, "", fmt.Errorf("read request body: %w", err)
	}

	fields, err := url.ParseQuery(string(raw))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrBadRequestBody, err)
	}
	return []byte(fields.Encode()), "application/x-www-form-urlencoded", nil
}

// rebuildMultipart parses the multipart payload (field and file parts alike)
// and rebuilds it with a fresh boundary. The inbound Content-Type header and
// its stale boundary must not survive; the returned content type carries the
// rebuilt writer's boundary.
func rebuildMultipart(contentType string, body io.Reader) ([]byte, string, error) {
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil || params["boundary"] == "" {
		return nil, "", fmt.Errorf("%w: missing multipart boundary", ErrBadRequestBody)
	}

	mr := multipart.NewReader(body, params["boundary"])
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, "", fmt.Errorf("%w: %w", ErrBadRequestBody, err)
		}

		dst, err := mw.CreatePart(part.Header)
		if err != nil {
			return nil, "", fmt.Errorf("rebuild multipart part: %w", err)
		}
		if _, err := io.Copy(dst, part); err != nil {
			return nil, "", fmt.Errorf("%w: %w", ErrBadRequestBody, err)
		}
	}

	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("rebuild multipart: %w", err)
	}
	return buf.Bytes(), mw.FormDataContentType(), nil
}

// translateRaw forwards the payload unmodified, omitting the body entirely
// when it is zero bytes.
func translateRaw(body io.Reader) ([]byte, string, error) {
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, "", fmt.Errorf("read request body: %w", err)
	}
	if len(raw) == 0 {
		return nil, "", nil
	}
	return raw, "", nil
}
