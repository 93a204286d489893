// Package textdiff computes, encodes and replays line-level edits between two
// versions of a text file.
//
// Lines keep their terminators, so replaying Changes against the exact base
// reproduces the target byte for byte whatever its line ending convention.
package textdiff

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/zeebo/blake3"
)

// formatVersion is bumped when the encoded layout changes.
const formatVersion = 1

// Op is the kind of one edit.
type Op string

const (
	OpInsert  Op = "insert"
	OpDelete  Op = "delete"
	OpReplace Op = "replace"
)

// Edit changes the base starting at line Index. Delete and Replace remove
// Count base lines; Insert and Replace add Lines.
type Edit struct {
	Op    Op       `json:"op"`
	Index int      `json:"index"`
	Count int      `json:"count,omitempty"`
	Lines [][]byte `json:"lines,omitempty"`
}

// Changes is an ordered edit list over one base version.
type Changes struct {
	Version    int    `json:"v"`
	Encoding   string `json:"encoding,omitempty"`
	LineEnding string `json:"line_ending,omitempty"`
	BaseLines  int    `json:"base_lines"`
	BaseSize   int    `json:"base_size"`
	BaseDigest string `json:"base_digest"`
	Edits      []Edit `json:"edits,omitempty"`
}

// Digest is the content digest recorded for a base (hex BLAKE3-256).
func Digest(data []byte) string {
	sum := blake3.Sum256(data)
	return fmt.Sprintf("%x", sum[:])
}

// SplitLines splits data after every '\n'. The last line has no terminator
// when data does not end with one. Empty data has no lines.
func SplitLines(data []byte) []string {
	if len(data) == 0 {
		return nil
	}
	n := bytes.Count(data, []byte{'\n'})
	if data[len(data)-1] != '\n' {
		n++
	}
	lines := make([]string, 0, n)
	for len(data) > 0 {
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			lines = append(lines, string(data))
			break
		}
		lines = append(lines, string(data[:i+1]))
		data = data[i+1:]
	}
	return lines
}

// Compute returns the edits turning base into target.
func Compute(base, target []byte) *Changes {
	a := SplitLines(base)
	b := SplitLines(target)

	c := &Changes{
		Version:    formatVersion,
		BaseLines:  len(a),
		BaseSize:   len(base),
		BaseDigest: Digest(base),
	}

	m := difflib.NewMatcher(a, b)
	for _, op := range m.GetOpCodes() {
		switch op.Tag {
		case 'r':
			c.Edits = append(c.Edits, Edit{Op: OpReplace, Index: op.I1, Count: op.I2 - op.I1, Lines: toBytes(b[op.J1:op.J2])})
		case 'd':
			c.Edits = append(c.Edits, Edit{Op: OpDelete, Index: op.I1, Count: op.I2 - op.I1})
		case 'i':
			c.Edits = append(c.Edits, Edit{Op: OpInsert, Index: op.I1, Lines: toBytes(b[op.J1:op.J2])})
		}
	}
	return c
}

func toBytes(lines []string) [][]byte {
	out := make([][]byte, len(lines))
	for i, l := range lines {
		out[i] = []byte(l)
	}
	return out
}

// Payload is the number of inserted bytes, the part of a diff that grows with
// the size of the change.
func (c *Changes) Payload() int {
	n := 0
	for _, e := range c.Edits {
		for _, l := range e.Lines {
			n += len(l)
		}
	}
	return n
}

// Empty reports whether the changes leave the base untouched.
func (c *Changes) Empty() bool {
	return len(c.Edits) == 0
}

// Apply replays the edits against base. It fails with ErrBaseMismatch if base
// is not the version the changes were computed against and with ErrCorrupt if
// the edit list is malformed.
func (c *Changes) Apply(base []byte) ([]byte, error) {
	if len(base) != c.BaseSize || (c.BaseDigest != "" && Digest(base) != c.BaseDigest) {
		return nil, ErrBaseMismatch
	}

	lines := SplitLines(base)
	if len(lines) != c.BaseLines {
		return nil, ErrBaseMismatch
	}

	var out bytes.Buffer
	out.Grow(len(base) + c.Payload())

	cursor := 0
	for _, e := range c.Edits {
		if e.Index < cursor || e.Index > len(lines) || e.Count < 0 || e.Index+e.Count > len(lines) {
			return nil, fmt.Errorf("%w: edit at line %d out of range", ErrCorrupt, e.Index)
		}
		for _, l := range lines[cursor:e.Index] {
			out.WriteString(l)
		}
		cursor = e.Index

		switch e.Op {
		case OpInsert:
			if e.Count != 0 {
				return nil, fmt.Errorf("%w: insert removes lines", ErrCorrupt)
			}
		case OpDelete:
			if len(e.Lines) != 0 {
				return nil, fmt.Errorf("%w: delete adds lines", ErrCorrupt)
			}
		case OpReplace:
		default:
			return nil, fmt.Errorf("%w: unknown op %q", ErrCorrupt, e.Op)
		}

		for _, l := range e.Lines {
			out.Write(l)
		}
		cursor += e.Count
	}
	for _, l := range lines[cursor:] {
		out.WriteString(l)
	}
	return out.Bytes(), nil
}

// Encode serializes changes for storage in a block.
func Encode(c *Changes) ([]byte, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode text changes: %w", err)
	}
	return data, nil
}

// Decode parses changes written by Encode.
func Decode(data []byte) (*Changes, error) {
	var c Changes
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if c.Version != formatVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, c.Version)
	}
	return &c, nil
}
