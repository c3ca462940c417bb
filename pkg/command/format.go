package command

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/sigurn/crc16"
)

// ChecksumDigits is the width of the rendered checksum.
const ChecksumDigits = 4

// ErrChecksumMismatch indicates a device line whose checksum is missing,
// malformed or wrong.
var ErrChecksumMismatch = errors.New("checksum mismatch")

var arcTable = crc16.MakeTable(crc16.CRC16_ARC)

// Checksum returns the CRC-16/ARC of data.
func Checksum(data []byte) uint16 {
	return crc16.Checksum(data, arcTable)
}

// ChecksumHex returns the checksum of s as four lowercase hex digits.
func ChecksumHex(s string) string {
	return fmt.Sprintf("%04x", Checksum([]byte(s)))
}

// Format builds the device line "action-value-crc\n".
func Format(action, value string) []byte {
	base := action + Separator + value
	line := make([]byte, 0, len(base)+len(Separator)+ChecksumDigits+1)
	line = append(line, base...)
	line = append(line, Separator...)
	line = append(line, ChecksumHex(base)...)
	return append(line, '\n')
}

// ParseLine checks a device line and returns the command it carries. The
// checksum follows the last separator and is matched case-insensitively.
func ParseLine(line []byte) (Command, error) {
	s := strings.TrimSuffix(string(line), "\n")
	idx := strings.LastIndex(s, Separator)
	if idx < 0 {
		return Command{}, fmt.Errorf("%w: no checksum in %q", ErrChecksumMismatch, s)
	}
	base, sum := s[:idx], s[idx+1:]
	if len(sum) != ChecksumDigits {
		return Command{}, fmt.Errorf("%w: checksum %q is not %d hex digits", ErrChecksumMismatch, sum, ChecksumDigits)
	}
	got, err := strconv.ParseUint(sum, 16, 16)
	if err != nil {
		return Command{}, fmt.Errorf("%w: checksum %q: %w", ErrChecksumMismatch, sum, err)
	}
	if want := Checksum([]byte(base)); uint16(got) != want {
		return Command{}, fmt.Errorf("%w: got %04x, want %04x", ErrChecksumMismatch, got, want)
	}
	return Split([]byte(base))
}

// Verify checks the checksum of a device line.
func Verify(line []byte) error {
	_, err := ParseLine(line)
	return err
}
