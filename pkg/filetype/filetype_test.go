package filetype

import (
	"bytes"
	"strings"
	"testing"
)

func TestDetect(t *testing.T) {
	d := NewDetector(Config{})

	tests := []struct {
		name       string
		content    []byte
		kind       Kind
		encoding   Encoding
		ending     LineEnding
		uncertain  bool
		diffable   bool
		skipEncode bool
	}{
		{name: "empty", content: nil, kind: KindText, encoding: EncodingASCII, ending: LineEndingNone, diffable: true},
		{name: "ascii lf", content: []byte("line1\nline2\n"), kind: KindText, encoding: EncodingASCII, ending: LineEndingLF, diffable: true},
		{name: "ascii crlf", content: []byte("a\r\nb\r\n"), kind: KindText, encoding: EncodingASCII, ending: LineEndingCRLF, diffable: true},
		{name: "no newline", content: []byte("hello"), kind: KindText, encoding: EncodingASCII, ending: LineEndingNone, diffable: true},
		{name: "mixed endings", content: []byte("a\r\nb\n"), kind: KindText, encoding: EncodingASCII, ending: LineEndingMixed, uncertain: true},
		{name: "lone cr", content: []byte("a\rb\r"), kind: KindText, encoding: EncodingASCII, ending: LineEndingMixed, uncertain: true},
		{name: "utf-8", content: []byte("caf\xc3\xa9\n"), kind: KindText, encoding: EncodingUTF8, ending: LineEndingLF, diffable: true},
		{name: "utf-8 bom", content: []byte("\xef\xbb\xbfplain\n"), kind: KindText, encoding: EncodingUTF8, ending: LineEndingLF, diffable: true},
		{name: "latin-1", content: []byte("caf\xe9\n"), kind: KindText, encoding: EncodingLatin1, ending: LineEndingLF, uncertain: true},
		{name: "nul byte", content: []byte("abc\x00def"), kind: KindBinary, skipEncode: true},
		{name: "control heavy", content: []byte("\x01\x02\x03\x04abc"), kind: KindBinary, skipEncode: true},
		{name: "utf-16le", content: []byte{0xFF, 0xFE, 'h', 0, 'i', 0, '\n', 0}, kind: KindText, encoding: EncodingUTF16LE, ending: LineEndingLF, uncertain: true},
		{name: "utf-16be", content: []byte{0xFE, 0xFF, 0, 'h', 0, 'i'}, kind: KindText, encoding: EncodingUTF16BE, ending: LineEndingNone, uncertain: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := d.Detect(tt.content)
			if got.Kind != tt.kind {
				t.Fatalf("Kind = %v, want %v (reason %q)", got.Kind, tt.kind, got.Reason)
			}
			if got.Diffable() != tt.diffable {
				t.Errorf("Diffable() = %v, want %v", got.Diffable(), tt.diffable)
			}
			if tt.skipEncode {
				return
			}
			if got.Encoding != tt.encoding {
				t.Errorf("Encoding = %q, want %q", got.Encoding, tt.encoding)
			}
			if got.LineEnding != tt.ending {
				t.Errorf("LineEnding = %q, want %q", got.LineEnding, tt.ending)
			}
			if got.Uncertain != tt.uncertain {
				t.Errorf("Uncertain = %v, want %v (reason %q)", got.Uncertain, tt.uncertain, got.Reason)
			}
		})
	}
}

func TestDetectSampleWindow(t *testing.T) {
	d := NewDetector(Config{SampleWindow: 16})

	t.Run("binary beyond window is ignored", func(t *testing.T) {
		content := append([]byte(strings.Repeat("a", 16)), 0, 0, 0)
		if got := d.Detect(content); got.Kind != KindText {
			t.Fatalf("Kind = %v, want text", got.Kind)
		}
	})

	t.Run("truncated multi-byte sequence", func(t *testing.T) {
		// 15 ASCII bytes then the first byte of a two-byte rune at the edge.
		content := []byte(strings.Repeat("a", 15) + "\xc3\xa9tail")
		got := d.Detect(content)
		if got.Kind != KindText || got.Encoding != EncodingUTF8 {
			t.Fatalf("got %v/%q, want text/utf-8", got.Kind, got.Encoding)
		}
		if !got.Uncertain {
			t.Error("expected Uncertain for a split rune")
		}
	})

	t.Run("cr at edge is not mixed", func(t *testing.T) {
		content := []byte("abcdef\r\nabcdef\r\nmore")
		got := NewDetector(Config{SampleWindow: 15}).Detect(content)
		if got.LineEnding != LineEndingCRLF || got.Uncertain {
			t.Fatalf("got %q uncertain=%v, want crlf", got.LineEnding, got.Uncertain)
		}
	})
}

func TestDetectThreshold(t *testing.T) {
	content := []byte("\x01\x02abcdefgh")

	strict := NewDetector(Config{BinaryRatioThreshold: 0.1})
	if got := strict.Detect(content); got.Kind != KindBinary {
		t.Errorf("strict: Kind = %v, want binary", got.Kind)
	}

	lenient := NewDetector(Config{BinaryRatioThreshold: 0.5})
	if got := lenient.Detect(content); got.Kind != KindText {
		t.Errorf("lenient: Kind = %v, want text", got.Kind)
	}
}

func TestDetectDeterministic(t *testing.T) {
	d := NewDetector(Config{})
	content := bytes.Repeat([]byte("some text\r\nmore\n"), 100)

	first := d.Detect(content)
	for i := 0; i < 10; i++ {
		if got := d.Detect(content); got != first {
			t.Fatalf("run %d: %+v != %+v", i, got, first)
		}
	}
}

func TestDetectCharsetHint(t *testing.T) {
	got := NewDetector(Config{}).Detect([]byte("plain text\n"))
	if got.MIME != "text/plain" {
		t.Errorf("MIME = %q, want text/plain", got.MIME)
	}
	if got.Charset != "utf-8" {
		t.Errorf("Charset = %q, want utf-8", got.Charset)
	}
}

func TestDetectForeignFormat(t *testing.T) {
	d := NewDetector(Config{})

	pdf := d.Detect([]byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\n"))
	if pdf.Kind != KindText || !pdf.Uncertain || pdf.Diffable() {
		t.Errorf("pdf = %+v, want uncertain text", pdf)
	}
	if pdf.MIME != "application/pdf" {
		t.Errorf("MIME = %q, want application/pdf", pdf.MIME)
	}

	for _, in := range []string{"{\"a\": 1}\n", "#!/bin/sh\necho hi\n", "<html><body>x</body></html>\n"} {
		if got := d.Detect([]byte(in)); !got.Diffable() {
			t.Errorf("Detect(%q) = %+v, want diffable", in, got)
		}
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := NewDetector(Config{}).Config()
	if cfg.SampleWindow != DefaultSampleWindow {
		t.Errorf("SampleWindow = %d", cfg.SampleWindow)
	}
	if cfg.BinaryRatioThreshold != DefaultBinaryRatioThreshold {
		t.Errorf("BinaryRatioThreshold = %v", cfg.BinaryRatioThreshold)
	}
}
