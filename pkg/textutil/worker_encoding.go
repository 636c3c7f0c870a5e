// Package textutil normalizes provider text into storable UTF-8.
package textutil

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/gogs/chardet"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
)

// fallbacks are tried in order when neither the declared charset nor
// detection produce valid UTF-8. Western single-byte sets come first.
var fallbacks = []encoding.Encoding{
	charmap.Windows1252,
	charmap.ISO8859_1,
	charmap.ISO8859_15,
}

// ToUTF8 decodes data declared as charset into clean UTF-8 text. An empty or
// unknown charset falls back to detection. The result never holds NUL bytes
// or invalid sequences.
func ToUTF8(data []byte, charset string) string {
	return Clean(decode(data, charset))
}

func decode(data []byte, charset string) string {
	if enc := lookup(charset); enc != nil && !isUTF8Name(charset) {
		if out, err := enc.NewDecoder().Bytes(data); err == nil && utf8.Valid(out) {
			return string(out)
		}
	}
	if utf8.Valid(data) {
		return string(data)
	}

	minConfidence := 30
	if len(data) > 50 {
		minConfidence = 50
	}
	if res, err := chardet.NewTextDetector().DetectBest(data); err == nil && res.Confidence >= minConfidence {
		if enc := lookup(res.Charset); enc != nil {
			out, err := enc.NewDecoder().Bytes(data)
			if err == nil && utf8.Valid(out) && !bytes.ContainsRune(out, utf8.RuneError) {
				return string(out)
			}
		}
	}

	for _, enc := range fallbacks {
		if out, err := enc.NewDecoder().Bytes(data); err == nil && utf8.Valid(out) {
			return string(out)
		}
	}
	return string(data)
}

// Clean replaces invalid UTF-8 with U+FFFD and drops NUL bytes, which
// Postgres text columns reject.
func Clean(s string) string {
	if utf8.ValidString(s) && !strings.ContainsRune(s, 0) {
		return s
	}
	var sb strings.Builder
	sb.Grow(len(s))
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		switch {
		case r == utf8.RuneError && size == 1:
			sb.WriteRune(utf8.RuneError)
		case r == 0:
		default:
			sb.WriteRune(r)
		}
		i += size
	}
	return sb.String()
}

// CharsetReader converts input in charset to UTF-8. It fits
// mime.WordDecoder.CharsetReader.
func CharsetReader(charset string, input io.Reader) (io.Reader, error) {
	if isUTF8Name(charset) {
		return input, nil
	}
	enc := lookup(charset)
	if enc == nil {
		return nil, fmt.Errorf("unsupported charset %q", charset)
	}
	return transform.NewReader(input, enc.NewDecoder()), nil
}

func lookup(name string) encoding.Encoding {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil
	}
	return enc
}

func isUTF8Name(name string) bool {
	n := strings.ToLower(strings.TrimSpace(name))
	return n == "utf-8" || n == "utf8" || n == "us-ascii" || n == "ascii"
}
