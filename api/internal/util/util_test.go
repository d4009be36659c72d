package util

import (
	"encoding/base64"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSniffMime(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		http string
		ocr  string
	}{
		{"jpeg", []byte{0xFF, 0xD8, 0xFF, 0xE0}, "image/jpeg", "JPEG"},
		{"png", []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}, "image/png", "PNG"},
		{"webp", []byte("RIFF\x00\x00\x00\x00WEBPVP8 "), "image/webp", ""},
		{"pdf", []byte("%PDF-1.7"), "application/pdf", "PDF"},
		{"junk", []byte("hello"), "application/octet-stream", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SniffMimeHTTP(tt.in); got != tt.http {
				t.Errorf("SniffMimeHTTP = %q, want %q", got, tt.http)
			}
			if got := SniffMimeForOCR(tt.in); got != tt.ocr {
				t.Errorf("SniffMimeForOCR = %q, want %q", got, tt.ocr)
			}
		})
	}
}

func TestDecodeBase64MaybeDataURL(t *testing.T) {
	payload := []byte{0xFF, 0xD8, 1, 2, 3}
	b64 := base64.StdEncoding.EncodeToString(payload)

	got, mime, err := DecodeBase64MaybeDataURL("data:image/jpeg;base64," + b64)
	if err != nil || mime != "image/jpeg" || string(got) != string(payload) {
		t.Fatalf("data url: %v %q %v", got, mime, err)
	}
	got, mime, err = DecodeBase64MaybeDataURL(b64)
	if err != nil || mime != "" || string(got) != string(payload) {
		t.Fatalf("plain: %v %q %v", got, mime, err)
	}
	if _, _, err := DecodeBase64MaybeDataURL("%%%"); err == nil {
		t.Fatal("garbage decoded")
	}
}

func TestStripCodeFences(t *testing.T) {
	if got := StripCodeFences("```json\n[1]\n```"); got != "[1]" {
		t.Fatalf("StripCodeFences = %q", got)
	}
}

func TestSHA256Hex(t *testing.T) {
	const want = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if got := SHA256Hex(nil); got != want {
		t.Fatalf("SHA256Hex(nil) = %s", got)
	}
}

func TestOutputTo(t *testing.T) {
	data := map[string]int{"applied": 2}
	var b strings.Builder
	if err := OutputTo(&b, "yaml", data); err != nil || b.String() != "applied: 2\n" {
		t.Fatalf("yaml = %q, %v", b.String(), err)
	}
	b.Reset()
	if err := OutputTo(&b, "json", data); err != nil || b.String() != "{\n  \"applied\": 2\n}\n" {
		t.Fatalf("json = %q, %v", b.String(), err)
	}
	if err := OutputTo(&b, "xml", data); err == nil {
		t.Fatal("xml accepted")
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name string
		in   string
		n    int
		want string
	}{
		{"short", "abc", 5, "abc"},
		{"ascii", "abcdef", 3, "abc..."},
		{"thai whole rune", "สมชาย", 6, "สม..."},
		{"thai mid rune", "สมชาย", 7, "สม..."},
		{"first rune split", "สมชาย", 2, "..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Truncate(tt.in, tt.n)
			if got != tt.want {
				t.Fatalf("Truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
			}
			if !utf8.ValidString(got) {
				t.Fatalf("Truncate produced invalid UTF-8: %q", got)
			}
		})
	}
}
