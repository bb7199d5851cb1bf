package egress

import (
	"io"
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
	kflate "github.com/klauspost/compress/flate"
	kgzip "github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

const acceptEncoding = "gzip, deflate, br, zstd"

// compressedTransport advertises gzip, deflate, br and zstd and decodes the
// response body. It also fills the default client headers when absent.
type compressedTransport struct {
	base     http.RoundTripper
	defaults http.Header
}

func newCompressedTransport(base http.RoundTripper, cfg ClientConfig) http.RoundTripper {
	defaults := http.Header{}
	if cfg.UserAgent != "" {
		defaults.Set("User-Agent", cfg.UserAgent)
	}
	if cfg.AcceptLanguage != "" {
		defaults.Set("Accept-Language", cfg.AcceptLanguage)
	}
	if !cfg.DisableCompression {
		defaults.Set("Accept-Encoding", acceptEncoding)
	}
	return &compressedTransport{base: base, defaults: defaults}
}

func (t *compressedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	var missing []string
	for k := range t.defaults {
		if req.Header.Get(k) == "" {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		req = req.Clone(req.Context())
		for _, k := range missing {
			req.Header.Set(k, t.defaults.Get(k))
		}
	}

	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	ce := strings.ToLower(resp.Header.Get("Content-Encoding"))
	if ce == "" {
		return resp, nil
	}

	var reader io.ReadCloser
	switch ce {
	case "gzip":
		r, err := kgzip.NewReader(resp.Body)
		if err != nil {
			return resp, nil
		}
		reader = &decompressReader{reader: r, closer: resp.Body}
	case "deflate":
		reader = &decompressReader{reader: kflate.NewReader(resp.Body), closer: resp.Body}
	case "br":
		reader = &decompressReader{reader: brotli.NewReader(resp.Body), closer: resp.Body}
	case "zstd":
		r, err := zstd.NewReader(resp.Body)
		if err != nil {
			return resp, nil
		}
		reader = &zstdReadCloser{decoder: r, body: resp.Body}
	default:
		return resp, nil
	}

	resp.Body = reader
	resp.Header.Del("Content-Encoding")
	resp.Header.Del("Content-Length")
	resp.ContentLength = -1
	resp.Uncompressed = true
	return resp, nil
}

type decompressReader struct {
	reader io.Reader
	closer io.Closer
}

func (d *decompressReader) Read(p []byte) (int, error) {
	return d.reader.Read(p)
}

func (d *decompressReader) Close() error {
	if c, ok := d.reader.(io.Closer); ok {
		_ = c.Close()
	}
	return d.closer.Close()
}

type zstdReadCloser struct {
	decoder *zstd.Decoder
	body    io.Closer
}

func (z *zstdReadCloser) Read(p []byte) (int, error) {
	return z.decoder.Read(p)
}

func (z *zstdReadCloser) Close() error {
	z.decoder.Close()
	return z.body.Close()
}
