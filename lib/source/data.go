// Copyright 2026 The Treasury Authors
// SPDX-License-Identifier: Apache-2.0

package source

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrInvalidDataURL is returned for data: locators that do not decode.
var ErrInvalidDataURL = errors.New("invalid data URL")

// decodeDataURL returns the payload and media type of a data: URL
// (RFC 2397). Base64 payloads may use either alphabet, with or without
// padding.
func decodeDataURL(raw string) ([]byte, string, error) {
	rest, ok := strings.CutPrefix(raw, SchemeData+":")
	if !ok {
		return nil, "", fmt.Errorf("%w: missing data: prefix", ErrInvalidDataURL)
	}
	header, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, "", fmt.Errorf("%w: missing comma", ErrInvalidDataURL)
	}

	mediaType, isBase64 := strings.CutSuffix(header, ";base64")
	if mediaType == "" {
		mediaType = "text/plain;charset=US-ASCII"
	}

	if !isBase64 {
		decoded, err := url.PathUnescape(payload)
		if err != nil {
			return nil, "", fmt.Errorf("%w: %v", ErrInvalidDataURL, err)
		}
		return []byte(decoded), mediaType, nil
	}

	// Payloads can arrive percent-encoded when the URL passed through
	// a URL parser.
	unescaped, err := url.PathUnescape(payload)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidDataURL, err)
	}
	for _, encoding := range []*base64.Encoding{
		base64.RawURLEncoding,
		base64.URLEncoding,
		base64.StdEncoding,
		base64.RawStdEncoding,
	} {
		if decoded, err := encoding.DecodeString(unescaped); err == nil {
			return decoded, mediaType, nil
		}
	}
	return nil, "", fmt.Errorf("%w: payload is not base64", ErrInvalidDataURL)
}
