// Copyright 2026 The Treasury Authors
// SPDX-License-Identifier: Apache-2.0

package contentstore

import "testing"

func TestParseCompression(t *testing.T) {
	for _, compression := range encodings {
		parsed, err := ParseCompression(compression.String())
		if err != nil {
			t.Fatalf("ParseCompression(%q) failed: %v", compression, err)
		}
		if parsed != compression {
			t.Errorf("ParseCompression(%q) = %v", compression, parsed)
		}
	}
	if parsed, err := ParseCompression(""); err != nil || parsed != CompressionNone {
		t.Errorf("ParseCompression(\"\") = %v, %v; want none", parsed, err)
	}
	if _, err := ParseCompression("brotli"); err == nil {
		t.Error("ParseCompression accepted brotli")
	}
}
