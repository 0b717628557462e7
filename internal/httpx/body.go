package httpx

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/andybalholm/brotli"
	"github.com/pkg/errors"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/transform"
)

const DefaultMaxBodyBytes int64 = 2 << 20

// ReadBody reads at most limit bytes of resp's body, undoes any content
// encoding the transport left in place and returns the text as UTF-8.
// Invalid byte sequences are replaced, never reported.
func ReadBody(resp *http.Response, limit int64) (string, error) {
	if limit <= 0 {
		limit = DefaultMaxBodyBytes
	}

	r, err := decompress(resp.Body, resp.Header.Get("Content-Encoding"))
	if err != nil {
		return "", err
	}
	raw, err := io.ReadAll(io.LimitReader(r, limit))
	if err != nil && len(raw) == 0 {
		return "", errors.Wrap(err, "read body")
	}
	return Decode(raw, resp.Header.Get("Content-Type")), nil
}

func decompress(body io.Reader, encoding string) (io.Reader, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", "identity":
		return body, nil
	case "gzip", "x-gzip":
		zr, err := gzip.NewReader(body)
		if err != nil {
			return nil, errors.Wrap(err, "gzip body")
		}
		return zr, nil
	case "deflate":
		// Servers send both zlib-wrapped and raw deflate under this name.
		head := make([]byte, 2)
		n, _ := io.ReadFull(body, head)
		head = head[:n]
		r := io.MultiReader(bytes.NewReader(head), body)
		if isZlibHeader(head) {
			zr, err := zlib.NewReader(r)
			if err != nil {
				return nil, errors.Wrap(err, "deflate body")
			}
			return zr, nil
		}
		return flate.NewReader(r), nil
	case "br":
		return brotli.NewReader(body), nil
	default:
		return body, nil
	}
}

// Decode transcodes raw to UTF-8 using the declared or sniffed charset.
func Decode(raw []byte, contentType string) string {
	enc, name, certain := charset.DetermineEncoding(raw, contentType)
	if name == "utf-8" || enc == nil || (!certain && utf8.Valid(raw)) {
		return strings.ToValidUTF8(string(raw), "\uFFFD")
	}
	if out, _, err := transform.Bytes(enc.NewDecoder(), raw); err == nil {
		raw = out
	}
	return strings.ToValidUTF8(string(raw), "\uFFFD")
}

func isZlibHeader(h []byte) bool {
	return len(h) == 2 && h[0]&0x0f == 8 && (uint16(h[0])<<8|uint16(h[1]))%31 == 0
}
