// Package bytesize parses and prints human-readable byte sizes used in
// configuration ("64Ki", "1Gi", "100MB").
package bytesize

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ByteSize is a size in bytes.
//
// Accepted forms: plain numbers ("1024"), binary units Ki/Mi/Gi/Ti with an
// optional trailing B (x1024), decimal units K/M/G/T with an optional
// trailing B (x1000), and a bare B. Fractions are allowed ("1.5Gi").
type ByteSize uint64

const (
	B  ByteSize = 1
	KB ByteSize = 1000
	MB ByteSize = 1000 * KB
	GB ByteSize = 1000 * MB
	TB ByteSize = 1000 * GB

	KiB ByteSize = 1024
	MiB ByteSize = 1024 * KiB
	GiB ByteSize = 1024 * MiB
	TiB ByteSize = 1024 * GiB
)

var byteSizePattern = regexp.MustCompile(`(?i)^\s*(\d+(?:\.\d+)?)\s*([a-z]*)\s*$`)

var unitMultipliers = map[string]ByteSize{
	"": B, "b": B,
	"k": KB, "kb": KB, "m": MB, "mb": MB, "g": GB, "gb": GB, "t": TB, "tb": TB,
	"ki": KiB, "kib": KiB, "mi": MiB, "mib": MiB, "gi": GiB, "gib": GiB, "ti": TiB, "tib": TiB,
}

// binaryUnits drives String, largest first.
var binaryUnits = []struct {
	size   ByteSize
	suffix string
}{
	{TiB, "Ti"}, {GiB, "Gi"}, {MiB, "Mi"}, {KiB, "Ki"},
}

// ParseByteSize parses a human-readable byte size.
func ParseByteSize(s string) (ByteSize, error) {
	if strings.TrimSpace(s) == "" {
		return 0, fmt.Errorf("empty byte size string")
	}

	m := byteSizePattern.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("invalid byte size format: %q", s)
	}

	multiplier, ok := unitMultipliers[strings.ToLower(m[2])]
	if !ok {
		return 0, fmt.Errorf("unknown byte size unit: %q", m[2])
	}

	if !strings.Contains(m[1], ".") {
		n, err := strconv.ParseUint(m[1], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid number in byte size: %q", m[1])
		}
		return ByteSize(n) * multiplier, nil
	}

	f, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number in byte size: %q", m[1])
	}
	return ByteSize(f * float64(multiplier)), nil
}

// UnmarshalText implements encoding.TextUnmarshaler, so viper/mapstructure
// and YAML decode "64Ki" directly into a ByteSize field.
func (b *ByteSize) UnmarshalText(text []byte) error {
	size, err := ParseByteSize(string(text))
	if err != nil {
		return err
	}
	*b = size
	return nil
}

// MarshalText implements encoding.TextMarshaler. Exact multiples of a binary
// unit are written with that unit, everything else as plain bytes, so the
// output always parses back to the same value.
func (b ByteSize) MarshalText() ([]byte, error) {
	for _, u := range binaryUnits {
		if b >= u.size && b%u.size == 0 {
			return []byte(strconv.FormatUint(uint64(b/u.size), 10) + u.suffix), nil
		}
	}
	return []byte(strconv.FormatUint(uint64(b), 10)), nil
}

// String returns a rounded human-readable representation ("1.50GiB").
func (b ByteSize) String() string {
	for _, u := range binaryUnits {
		if b >= u.size {
			return fmt.Sprintf("%.2f%sB", float64(b)/float64(u.size), u.suffix)
		}
	}
	return fmt.Sprintf("%dB", uint64(b))
}

// Uint64 returns the size as a uint64.
func (b ByteSize) Uint64() uint64 {
	return uint64(b)
}

// Int returns the size as an int, saturating at the platform maximum.
func (b ByteSize) Int() int {
	const maxInt = int(^uint(0) >> 1)
	if uint64(b) > uint64(maxInt) {
		return maxInt
	}
	return int(b)
}
