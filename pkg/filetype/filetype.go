// Package filetype classifies file content as text or binary and reports the
// properties that decide whether a file can be stored as a line diff.
//
// Detection only looks at a bounded prefix of the content (the sample window)
// and is deterministic: the same bytes always produce the same Result.
package filetype

import (
	"bytes"
	"mime"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/text/encoding/unicode"
)

// Default detection thresholds.
const (
	DefaultSampleWindow         = 8 * 1024
	DefaultBinaryRatioThreshold = 0.30
)

// Kind is the coarse classification of content.
type Kind int

const (
	KindText Kind = iota
	KindBinary
)

// String returns the kind name.
func (k Kind) String() string {
	if k == KindBinary {
		return "binary"
	}
	return "text"
}

// Encoding is the detected character encoding of text content.
type Encoding string

const (
	EncodingASCII   Encoding = "ascii"
	EncodingUTF8    Encoding = "utf-8"
	EncodingUTF16LE Encoding = "utf-16le"
	EncodingUTF16BE Encoding = "utf-16be"
	EncodingLatin1  Encoding = "latin-1"
)

// LineEnding is the line terminator convention of text content.
type LineEnding string

const (
	LineEndingNone  LineEnding = "none"
	LineEndingLF    LineEnding = "lf"
	LineEndingCRLF  LineEnding = "crlf"
	LineEndingMixed LineEnding = "mixed"
)

// Result describes one detection.
type Result struct {
	Kind       Kind
	Encoding   Encoding
	LineEnding LineEnding

	// Uncertain is set when the sample is text but a property could not be
	// established reliably. Uncertain content is never diffed.
	Uncertain bool

	// Reason names the rule that decided Kind or Uncertain.
	Reason string

	// MIME and Charset come from content sniffing. Text that sniffs as a
	// known non-text format is flagged Uncertain.
	MIME    string
	Charset string
}

// Diffable reports whether content with this result may be stored as a line
// diff: certain text in a byte-oriented encoding.
func (r Result) Diffable() bool {
	if r.Kind != KindText || r.Uncertain {
		return false
	}
	return r.Encoding == EncodingASCII || r.Encoding == EncodingUTF8
}

// Config holds the detection thresholds.
type Config struct {
	// SampleWindow is the number of leading bytes inspected.
	SampleWindow int

	// BinaryRatioThreshold is the fraction of non-printable bytes above which
	// the sample is binary.
	BinaryRatioThreshold float64
}

func (c Config) window() int {
	if c.SampleWindow <= 0 {
		return DefaultSampleWindow
	}
	return c.SampleWindow
}

func (c Config) threshold() float64 {
	if c.BinaryRatioThreshold <= 0 {
		return DefaultBinaryRatioThreshold
	}
	return c.BinaryRatioThreshold
}

// Detector classifies content. It is stateless and safe for concurrent use.
type Detector struct {
	cfg Config
}

// NewDetector creates a detector. Zero config fields take the defaults.
func NewDetector(cfg Config) *Detector {
	return &Detector{cfg: cfg}
}

// Config returns the effective configuration.
func (d *Detector) Config() Config {
	return Config{SampleWindow: d.cfg.window(), BinaryRatioThreshold: d.cfg.threshold()}
}

// Detect classifies content by its first SampleWindow bytes.
func (d *Detector) Detect(content []byte) Result {
	sample := content
	truncated := false
	if w := d.cfg.window(); len(sample) > w {
		sample = sample[:w]
		truncated = true
	}

	if len(sample) == 0 {
		return Result{
			Kind:       KindText,
			Encoding:   EncodingASCII,
			LineEnding: LineEndingNone,
			Reason:     "empty",
		}
	}

	res := d.detect(sample, truncated)
	sniffed := mimetype.Detect(sample)
	res.MIME, res.Charset = mediaType(sniffed)
	if res.Kind == KindText && !res.Uncertain && foreign(sniffed) {
		res.Uncertain = true
		res.Reason = "non-text format " + res.MIME
	}
	return res
}

func (d *Detector) detect(sample []byte, truncated bool) Result {
	switch {
	case bytes.HasPrefix(sample, []byte{0xFF, 0xFE}):
		return detectUTF16(sample, truncated, unicode.LittleEndian, EncodingUTF16LE)
	case bytes.HasPrefix(sample, []byte{0xFE, 0xFF}):
		return detectUTF16(sample, truncated, unicode.BigEndian, EncodingUTF16BE)
	}

	if bytes.IndexByte(sample, 0) >= 0 {
		return Result{Kind: KindBinary, Reason: "nul byte"}
	}

	text := bytes.TrimPrefix(sample, []byte{0xEF, 0xBB, 0xBF})
	hasBOM := len(text) != len(sample)

	encoding, uncertain, reason := classifyEncoding(text, truncated)
	if hasBOM && encoding == EncodingASCII {
		encoding = EncodingUTF8
	}

	if ratio := nonPrintableRatio(text, encoding); ratio > d.cfg.threshold() {
		return Result{Kind: KindBinary, Reason: "non-printable ratio"}
	}

	ending, mixed := lineEnding(text, truncated)
	if mixed {
		uncertain = true
		if reason == "" {
			reason = "mixed line endings"
		}
	}

	return Result{
		Kind:       KindText,
		Encoding:   encoding,
		LineEnding: ending,
		Uncertain:  uncertain,
		Reason:     reason,
	}
}

// classifyEncoding picks ascii, utf-8 or latin-1 for a NUL-free sample.
func classifyEncoding(text []byte, truncated bool) (Encoding, bool, string) {
	ascii := true
	for _, b := range text {
		if b >= 0x80 {
			ascii = false
			break
		}
	}
	if ascii {
		return EncodingASCII, false, ""
	}

	if utf8.Valid(text) {
		return EncodingUTF8, false, ""
	}

	// A window edge may split a multi-byte sequence.
	if truncated {
		for cut := 1; cut <= utf8.UTFMax-1 && cut < len(text); cut++ {
			head := text[:len(text)-cut]
			if utf8.Valid(head) && !utf8.FullRune(text[len(text)-cut:]) {
				return EncodingUTF8, true, "truncated multi-byte sequence"
			}
		}
	}

	return EncodingLatin1, true, "not valid utf-8"
}

// nonPrintableRatio is the fraction of control bytes in the sample. Common
// whitespace and escape characters count as printable. In latin-1 the C1
// control range is non-printable as well.
func nonPrintableRatio(text []byte, encoding Encoding) float64 {
	if len(text) == 0 {
		return 0
	}
	n := 0
	for _, b := range text {
		switch {
		case b == '\t', b == '\n', b == '\r', b == '\f', b == '\v', b == '\b', b == 0x1B:
		case b < 0x20, b == 0x7F:
			n++
		case encoding == EncodingLatin1 && b >= 0x80 && b < 0xA0:
			n++
		}
	}
	return float64(n) / float64(len(text))
}

// lineEnding reports the terminator convention. A CR at the window edge may be
// the first half of a CRLF and is ignored.
func lineEnding(text []byte, truncated bool) (LineEnding, bool) {
	if truncated && len(text) > 0 && text[len(text)-1] == '\r' {
		text = text[:len(text)-1]
	}

	var lf, crlf, cr int
	for i, b := range text {
		switch b {
		case '\n':
			if i > 0 && text[i-1] == '\r' {
				crlf++
			} else {
				lf++
			}
		case '\r':
			if i+1 >= len(text) || text[i+1] != '\n' {
				cr++
			}
		}
	}

	switch {
	case cr > 0 || (lf > 0 && crlf > 0):
		return LineEndingMixed, true
	case crlf > 0:
		return LineEndingCRLF, false
	case lf > 0:
		return LineEndingLF, false
	default:
		return LineEndingNone, false
	}
}

// detectUTF16 decodes a BOM-prefixed sample and classifies the decoded text.
// UTF-16 text is reported but flagged uncertain: line diffs are byte oriented.
func detectUTF16(sample []byte, truncated bool, order unicode.Endianness, enc Encoding) Result {
	if len(sample)%2 == 1 {
		if !truncated {
			return Result{Kind: KindBinary, Reason: "odd length utf-16"}
		}
		sample = sample[:len(sample)-1]
	}

	decoded, err := unicode.UTF16(order, unicode.ExpectBOM).NewDecoder().Bytes(sample)
	if err != nil {
		return Result{Kind: KindBinary, Reason: "invalid utf-16"}
	}
	if bytes.IndexByte(decoded, 0) >= 0 {
		return Result{Kind: KindBinary, Reason: "nul character"}
	}

	ending, _ := lineEnding(decoded, truncated)
	return Result{
		Kind:       KindText,
		Encoding:   enc,
		LineEnding: ending,
		Uncertain:  true,
		Reason:     "utf-16",
	}
}

// mediaType splits a sniffed type into media type and charset parameter.
func mediaType(m *mimetype.MIME) (string, string) {
	mediaType, params, err := mime.ParseMediaType(m.String())
	if err != nil {
		return m.String(), ""
	}
	return mediaType, params["charset"]
}

// foreign reports whether m is a recognized format outside the text/plain
// family, such as PDF or PostScript. The octet-stream root means nothing was
// recognized.
func foreign(m *mimetype.MIME) bool {
	if m.Parent() == nil {
		return false
	}
	for ; m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return false
		}
	}
	return true
}
