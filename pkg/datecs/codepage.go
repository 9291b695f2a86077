// pkg/datecs/codepage.go
package datecs

import (
	"golang.org/x/text/encoding/charmap"
)

// DecodeCP1251 decodes a Windows-1251 byte string into UTF-8, the
// encoding Datecs devices use for Cyrillic text in status/error fields
// and receipt text (spec.md §4.5, "Encoding" in ModelProfile).
func DecodeCP1251(b []byte) (string, error) {
	out, err := charmap.Windows1251.NewDecoder().Bytes(b)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// EncodeCP1251 encodes a UTF-8 string into Windows-1251 for transmission
// to a device whose ModelProfile selects that encoding.
func EncodeCP1251(s string) ([]byte, error) {
	return charmap.Windows1251.NewEncoder().Bytes([]byte(s))
}
