package textdiff

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestSplitLines(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"a", []string{"a"}},
		{"a\n", []string{"a\n"}},
		{"a\nb", []string{"a\n", "b"}},
		{"a\r\nb\r\n", []string{"a\r\n", "b\r\n"}},
		{"\n\n", []string{"\n", "\n"}},
	}

	for _, tt := range tests {
		got := SplitLines([]byte(tt.in))
		if strings.Join(got, "|") != strings.Join(tt.want, "|") || len(got) != len(tt.want) {
			t.Errorf("SplitLines(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		base   string
		target string
	}{
		{"replace middle line", "line1\nline2\n", "line1\nCHANGED\n"},
		{"append", "a\nb\n", "a\nb\nc\n"},
		{"prepend", "b\nc\n", "a\nb\nc\n"},
		{"delete all", "a\nb\n", ""},
		{"from empty", "", "new\n"},
		{"no trailing newline", "a\nb", "a\nb\nc"},
		{"add trailing newline", "a\nb", "a\nb\n"},
		{"crlf", "a\r\nb\r\nc\r\n", "a\r\nB\r\nc\r\n"},
		{"identical", "same\n", "same\n"},
		{"interleaved", "1\n2\n3\n4\n5\n6\n", "1\nx\n3\n4\ny\nz\n6\n7\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Compute([]byte(tt.base), []byte(tt.target))

			encoded, err := Encode(c)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			decoded, err := Decode(encoded)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}

			got, err := decoded.Apply([]byte(tt.base))
			if err != nil {
				t.Fatalf("Apply: %v", err)
			}
			if !bytes.Equal(got, []byte(tt.target)) {
				t.Fatalf("Apply = %q, want %q", got, tt.target)
			}
		})
	}
}

func TestRoundTripInvalidUTF8(t *testing.T) {
	base := []byte("ok\n")
	target := []byte("ok\n\xff\xfe raw\n")

	encoded, err := Encode(Compute(base, target))
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatal(err)
	}
	got, err := decoded.Apply(base)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, target) {
		t.Fatalf("Apply = %q, want %q", got, target)
	}
}

func TestComputeEdits(t *testing.T) {
	c := Compute([]byte("line1\nline2\n"), []byte("line1\nCHANGED\n"))

	if c.BaseLines != 2 {
		t.Errorf("BaseLines = %d, want 2", c.BaseLines)
	}
	if c.BaseDigest != Digest([]byte("line1\nline2\n")) {
		t.Error("BaseDigest does not match base")
	}
	if len(c.Edits) != 1 {
		t.Fatalf("got %d edits, want 1: %+v", len(c.Edits), c.Edits)
	}
	e := c.Edits[0]
	if e.Op != OpReplace || e.Index != 1 || e.Count != 1 || string(e.Lines[0]) != "CHANGED\n" {
		t.Errorf("unexpected edit %+v", e)
	}
	if c.Payload() != len("CHANGED\n") {
		t.Errorf("Payload = %d", c.Payload())
	}
	if c.Empty() {
		t.Error("Empty() = true")
	}

	if !Compute([]byte("x\n"), []byte("x\n")).Empty() {
		t.Error("identical content should produce no edits")
	}
}

func TestApplyWrongBase(t *testing.T) {
	c := Compute([]byte("a\nb\n"), []byte("a\nc\n"))

	if _, err := c.Apply([]byte("a\nz\n")); !errors.Is(err, ErrBaseMismatch) {
		t.Errorf("same size, different content: err = %v, want ErrBaseMismatch", err)
	}
	if _, err := c.Apply([]byte("a\n")); !errors.Is(err, ErrBaseMismatch) {
		t.Errorf("different size: err = %v, want ErrBaseMismatch", err)
	}
}

func TestApplyCorrupt(t *testing.T) {
	base := []byte("a\nb\n")
	c := Compute(base, []byte("a\n"))
	c.Edits = append(c.Edits, Edit{Op: OpDelete, Index: 5, Count: 1})

	if _, err := c.Apply(base); !errors.Is(err, ErrCorrupt) {
		t.Errorf("err = %v, want ErrCorrupt", err)
	}
}

func TestDecodeInvalid(t *testing.T) {
	for _, in := range []string{"", "{", `{"v":99}`} {
		if _, err := Decode([]byte(in)); !errors.Is(err, ErrCorrupt) {
			t.Errorf("Decode(%q) err = %v, want ErrCorrupt", in, err)
		}
	}
}
