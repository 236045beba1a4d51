package xexec

import (
	"fmt"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

// EncodingFor maps a code page name to a decoder. Windows console tools such
// as sc.exe write in the OEM code page rather than UTF-8.
func EncodingFor(name string) (encoding.Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "utf-8", "utf8", "65001":
		return unicode.UTF8, nil
	case "437", "cp437":
		return charmap.CodePage437, nil
	case "850", "cp850":
		return charmap.CodePage850, nil
	case "1252", "cp1252", "windows-1252":
		return charmap.Windows1252, nil
	default:
		return nil, fmt.Errorf("unsupported code page %q", name)
	}
}

// decode never fails: undecodable input is replaced with U+FFFD.
func (d *Driver) decode(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	out, err := d.encoding.NewDecoder().Bytes(b)
	if err != nil {
		return strings.ToValidUTF8(string(b), "\uFFFD")
	}
	return strings.ToValidUTF8(string(out), "\uFFFD")
}
