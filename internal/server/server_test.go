package server

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	thumbnailer "github.com/menta2k/image-thumbnailer"
	"github.com/menta2k/image-thumbnailer/internal/config"
	"github.com/menta2k/image-thumbnailer/internal/storage/fs"
	"github.com/menta2k/image-thumbnailer/pkg/client"
	"github.com/menta2k/image-thumbnailer/pkg/imageinfo"
	"github.com/menta2k/image-thumbnailer/pkg/types"
)

// fakeFetcher serves canned responses by URL and records every fetch.
type fakeFetcher struct {
	mu        sync.Mutex
	responses map[string]*client.Response
	err       error
	calls     []string
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) (*client.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, url)
	if f.err != nil {
		return nil, f.err
	}
	if resp, ok := f.responses[url]; ok {
		return resp, nil
	}
	return &client.Response{StatusCode: http.StatusNotFound, Header: http.Header{}, Body: []byte("not found")}, nil
}

func (f *fakeFetcher) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func createTestPNG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{uint8(x), uint8(y), 128, 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// createOversizedPNG encodes a small image and rewrites its IHDR to claim
// width x height.
func createOversizedPNG(t *testing.T, width, height uint32) []byte {
	t.Helper()
	data := createTestPNG(t, 8, 8)
	binary.BigEndian.PutUint32(data[16:20], width)
	binary.BigEndian.PutUint32(data[20:24], height)
	return data
}

func okResponse(body []byte) *client.Response {
	return &client.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": []string{"image/png"}},
		Body:       body,
	}
}

func newTestServer(t *testing.T, f *fakeFetcher, opts ...func(*Options)) http.Handler {
	t.Helper()
	o := Options{
		Config:  config.Default(),
		Fetcher: f,
		Logger:  zerolog.Nop(),
	}
	for _, fn := range opts {
		fn(&o)
	}
	s := New(o)
	s.now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	return s.Handler()
}

func do(t *testing.T, h http.Handler, target string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for k, vv := range header {
		for _, v := range vv {
			req.Header.Add(k, v)
		}
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestThumbnail(t *testing.T) {
	f := &fakeFetcher{responses: map[string]*client.Response{
		"http://9folds.s3.amazonaws.com/users/1/photo.png": okResponse(createTestPNG(t, 800, 400)),
	}}
	h := newTestServer(t, f)

	rec := do(t, h, "/125x125/users/1/photo.png", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	if got := rec.Header().Get("Content-Type"); got != "image/jpeg" {
		t.Errorf("Expected image/jpeg, got %q", got)
	}
	if got := rec.Header().Get("Cache-Control"); got != "public, max-age=31536000" {
		t.Errorf("Unexpected Cache-Control %q", got)
	}
	if got := rec.Header().Get("Expires"); got != "Tue, 31 Dec 2024 00:00:00 GMT" {
		t.Errorf("Unexpected Expires %q", got)
	}
	if got := rec.Header().Get("ETag"); got != `"users/1/photo.png"` {
		t.Errorf("Unexpected ETag %q", got)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("Expected a generated request id")
	}

	info := imageinfo.Sniff(rec.Body.Bytes())
	if info.Format != imageinfo.JPEG || info.Width != 125 || info.Height != 125 {
		t.Errorf("Expected jpeg 125x125, got %+v", info)
	}
}

func TestThumbnailWidthOnlyAndDomain(t *testing.T) {
	f := &fakeFetcher{responses: map[string]*client.Response{
		"http://9foldsdev.s3.amazonaws.com/a.png": okResponse(createTestPNG(t, 400, 300)),
	}}
	h := newTestServer(t, f)

	rec := do(t, h, "/200x0/a.png?domain=9foldsdev.s3.amazonaws.com", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	info := imageinfo.Sniff(rec.Body.Bytes())
	if info.Width != 200 || info.Height != 150 {
		t.Errorf("Expected 200x150, got %dx%d", info.Width, info.Height)
	}
}

func TestThumbnailBareWidthUsesDefaultHeight(t *testing.T) {
	f := &fakeFetcher{responses: map[string]*client.Response{
		"http://9folds.s3.amazonaws.com/a.png": okResponse(createTestPNG(t, 800, 400)),
	}}

	rec := do(t, newTestServer(t, f), "/200/a.png", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if info := imageinfo.Sniff(rec.Body.Bytes()); info.Width != 200 || info.Height != 125 {
		t.Errorf("Expected 200x125, got %dx%d", info.Width, info.Height)
	}

	// a zero default height turns a bare width into width-only scaling
	cfg := config.Default()
	cfg.Thumbnail.DefaultHeight = 0
	h := newTestServer(t, f, func(o *Options) { o.Config = cfg })
	rec = do(t, h, "/200/a.png", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if info := imageinfo.Sniff(rec.Body.Bytes()); info.Width != 200 || info.Height != 100 {
		t.Errorf("Expected 200x100, got %dx%d", info.Width, info.Height)
	}
}

func TestThumbnailNotModified(t *testing.T) {
	for _, hdr := range []string{"If-Modified-Since", "If-None-Match"} {
		t.Run(hdr, func(t *testing.T) {
			f := &fakeFetcher{}
			rec := do(t, newTestServer(t, f), "/125x125/a.png", http.Header{hdr: []string{"x"}})
			if rec.Code != http.StatusNotModified {
				t.Errorf("Expected 304, got %d", rec.Code)
			}
			if rec.Header().Get("Cache-Control") == "" {
				t.Error("Expected cache headers on 304")
			}
			if len(f.Calls()) != 0 {
				t.Errorf("Expected no fetch, got %v", f.Calls())
			}
		})
	}
}

func TestThumbnailInvalidDomain(t *testing.T) {
	f := &fakeFetcher{}
	rec := do(t, newTestServer(t, f), "/125x125/a.png?domain=evil.example.com", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", rec.Code)
	}
	if got := rec.Body.String(); got != "Bad Request. Invalid domain evil.example.com" {
		t.Errorf("Unexpected body %q", got)
	}
	if len(f.Calls()) != 0 {
		t.Errorf("Expected no fetch, got %v", f.Calls())
	}
}

func TestThumbnailUpstreamPassthrough(t *testing.T) {
	f := &fakeFetcher{responses: map[string]*client.Response{
		"http://9folds.s3.amazonaws.com/gone.png": {
			StatusCode: http.StatusForbidden,
			Header:     http.Header{"Content-Type": []string{"application/xml"}, "X-Amz-Request-Id": []string{"abc"}},
			Body:       []byte("<Error>AccessDenied</Error>"),
		},
	}}
	rec := do(t, newTestServer(t, f), "/125x125/gone.png", nil)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("Expected 403, got %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != "application/xml" {
		t.Errorf("Expected upstream content type, got %q", got)
	}
	if got := rec.Header().Get("X-Amz-Request-Id"); got != "abc" {
		t.Errorf("Expected upstream header, got %q", got)
	}
	if rec.Header().Get("ETag") != "" {
		t.Error("Expected no ETag on passthrough")
	}
	if got := rec.Body.String(); got != "<Error>AccessDenied</Error>" {
		t.Errorf("Unexpected body %q", got)
	}
}

func TestThumbnailErrors(t *testing.T) {
	f := &fakeFetcher{responses: map[string]*client.Response{
		"http://9folds.s3.amazonaws.com/img.png":  okResponse(createTestPNG(t, 100, 100)),
		"http://9folds.s3.amazonaws.com/text.png": okResponse([]byte("this is not an image")),
		"http://9folds.s3.amazonaws.com/bare.jpg": okResponse([]byte{0xFF, 0xD8, 0xFF, 0xD9}),
		"http://9folds.s3.amazonaws.com/huge.png": okResponse(createOversizedPNG(t, 65535, 65535)),
	}}
	h := newTestServer(t, f)

	tests := []struct {
		name   string
		target string
		status int
	}{
		{"unparsable size", "/abc/img.png", http.StatusBadRequest},
		{"three fields", "/10x10x1/img.png", http.StatusBadRequest},
		{"zero width", "/0x10/img.png", http.StatusBadRequest},
		{"sub-pixel size", "/0.5x0.5/img.png", http.StatusBadRequest},
		{"sub-pixel width", "/0.5/img.png", http.StatusBadRequest},
		{"sub-pixel height", "/10x0.5/img.png", http.StatusBadRequest},
		{"too many pixels", "/10x10/huge.png", http.StatusUnprocessableEntity},
		{"unknown format", "/10x10/text.png", http.StatusUnsupportedMediaType},
		{"unknown dimensions", "/10x10/bare.jpg", http.StatusUnprocessableEntity},
		{"crop out of bounds", "/10x10x10x10x500x500/img.png", http.StatusUnprocessableEntity},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, h, tc.target, nil)
			if rec.Code != tc.status {
				t.Errorf("Expected %d, got %d: %s", tc.status, rec.Code, rec.Body.String())
			}
			if rec.Header().Get("ETag") != "" {
				t.Error("Expected no ETag on error")
			}
		})
	}
}

func TestThumbnailFetchFailure(t *testing.T) {
	f := &fakeFetcher{err: errors.New("connection refused")}
	rec := do(t, newTestServer(t, f), "/125x125/a.png", nil)
	if rec.Code != http.StatusBadGateway {
		t.Errorf("Expected 502, got %d", rec.Code)
	}
	if got := rec.Header().Get("Cache-Control"); got != "no-store" {
		t.Errorf("Expected no-store on 502, got %q", got)
	}
}

func TestThumbnailCache(t *testing.T) {
	f := &fakeFetcher{responses: map[string]*client.Response{
		"http://9folds.s3.amazonaws.com/a.png": okResponse(createTestPNG(t, 300, 200)),
	}}
	h := newTestServer(t, f, func(o *Options) {
		o.Store = &fs.Store{Root: t.TempDir()}
	})

	first := do(t, h, "/50x50/a.png", nil)
	if first.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", first.Code, first.Body.String())
	}
	second := do(t, h, "/50x50/a.png", nil)
	if second.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", second.Code, second.Body.String())
	}

	if calls := f.Calls(); len(calls) != 1 {
		t.Errorf("Expected one upstream fetch, got %v", calls)
	}
	if !bytes.Equal(first.Body.Bytes(), second.Body.Bytes()) {
		t.Error("Expected cached body to match the rendered one")
	}
	if got := second.Header().Get("ETag"); got != `"a.png"` {
		t.Errorf("Unexpected ETag on cache hit %q", got)
	}

	// an equivalent spelling of the same size shares the key
	if rec := do(t, h, "/50.0x50.00/a.png", nil); rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if calls := f.Calls(); len(calls) != 1 {
		t.Errorf("Expected equivalent size to hit the cache, got %v", calls)
	}

	// a different size is a different key
	if rec := do(t, h, "/60x60/a.png", nil); rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if calls := f.Calls(); len(calls) != 2 {
		t.Errorf("Expected two upstream fetches, got %v", calls)
	}
}

func TestThumbnailWebPOutput(t *testing.T) {
	f := &fakeFetcher{responses: map[string]*client.Response{
		"http://9folds.s3.amazonaws.com/a.png": okResponse(createTestPNG(t, 200, 200)),
	}}
	h := newTestServer(t, f, func(o *Options) {
		o.Thumbnailer = thumbnailer.NewWithConfig(thumbnailer.Config{OutputFormat: types.OutputWebP})
	})

	rec := do(t, h, "/64x64/a.png", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Type"); got != "image/webp" {
		t.Errorf("Expected image/webp, got %q", got)
	}
	if body := rec.Body.Bytes(); len(body) < 12 || string(body[:4]) != "RIFF" || string(body[8:12]) != "WEBP" {
		t.Error("Expected a WebP body")
	}
}

func TestRequestIDEcho(t *testing.T) {
	rec := do(t, newTestServer(t, &fakeFetcher{}), "/healthz", http.Header{"X-Request-ID": []string{"req-42"}})
	if got := rec.Header().Get("X-Request-ID"); got != "req-42" {
		t.Errorf("Expected request id to be echoed, got %q", got)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	h := newTestServer(t, &fakeFetcher{})

	rec := do(t, h, "/healthz", nil)
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Errorf("Unexpected health response %d %q", rec.Code, rec.Body.String())
	}

	rec = do(t, h, "/metrics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "thumbnail_request_duration_ms") {
		t.Error("Expected request duration histogram in metrics output")
	}
}
