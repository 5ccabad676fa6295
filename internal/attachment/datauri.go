package attachment

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"github.com/starford/luzzle/internal/apperr"
)

// IsDataURI reports whether s is a data: URI.
func IsDataURI(s string) bool {
	return strings.HasPrefix(s, "data:")
}

// decodeDataURI parses a data:<mediatype>;base64,<data> URI. The media type
// only provides the fallback extension; content is sniffed on save.
func (r *Resolver) decodeDataURI(field, uri string) (Value, error) {
	invalid := func(msg string) error {
		return &apperr.ValidationError{Errors: []apperr.FieldError{{Field: field, Message: msg}}}
	}
	rest := strings.TrimPrefix(uri, "data:")
	meta, encoded, ok := strings.Cut(rest, ",")
	if !ok {
		return Value{}, invalid("invalid data URI: missing comma separator")
	}
	if !strings.Contains(meta, ";base64") {
		return Value{}, invalid("only base64 data URIs are supported")
	}
	if r.maxSize > 0 && int64(base64.StdEncoding.DecodedLen(len(encoded))) > r.maxSize+2 {
		return Value{}, invalid(fmt.Sprintf("data URI exceeds %d bytes", r.maxSize))
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(encoded)
		if err != nil {
			return Value{}, invalid(fmt.Sprintf("invalid base64 data: %v", err))
		}
	}

	mime := strings.Split(strings.TrimSuffix(meta, ";base64"), ";")[0]
	return Value{
		Reader: io.NopCloser(bytes.NewReader(data)),
		Name:   "data" + mimeToExt[mime],
	}, nil
}
