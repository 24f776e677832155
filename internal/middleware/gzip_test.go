package middleware

import (
	"bytes"
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoHandler(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	defer r.Body.Close()

	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "text/plain"
	}
	w.Header().Set("Content-Type", contentType)

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("received: " + string(body)))
}

func TestGzipMiddleware(t *testing.T) {
	tests := []struct {
		name            string
		body            string
		compressBody    bool
		acceptEncoding  string
		contentType     string
		wantEncoding    string
		wantBodyContain string
	}{
		{
			name:            "json response is compressed",
			body:            `{"bloodType":"O-"}`,
			acceptEncoding:  "gzip",
			contentType:     "application/json",
			wantEncoding:    "gzip",
			wantBodyContain: `received: {"bloodType":"O-"}`,
		},
		{
			name:            "plain text is not compressed",
			body:            "ping",
			acceptEncoding:  "gzip",
			contentType:     "text/plain",
			wantEncoding:    "",
			wantBodyContain: "received: ping",
		},
		{
			name:            "client without gzip support",
			body:            `{"totalUnits":2}`,
			contentType:     "application/json",
			wantEncoding:    "",
			wantBodyContain: `received: {"totalUnits":2}`,
		},
		{
			name:            "compressed request body",
			body:            `{"unitsDonated":3}`,
			compressBody:    true,
			acceptEncoding:  "gzip",
			contentType:     "application/json",
			wantEncoding:    "gzip",
			wantBodyContain: `received: {"unitsDonated":3}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var reqBody io.Reader = strings.NewReader(tt.body)
			if tt.compressBody {
				var buf bytes.Buffer
				gz := gzip.NewWriter(&buf)
				_, err := gz.Write([]byte(tt.body))
				require.NoError(t, err)
				require.NoError(t, gz.Close())
				reqBody = &buf
			}

			req := httptest.NewRequest(http.MethodPost, "/api/requests", reqBody)
			req.Header.Set("Content-Type", tt.contentType)
			if tt.acceptEncoding != "" {
				req.Header.Set("Accept-Encoding", tt.acceptEncoding)
			}
			if tt.compressBody {
				req.Header.Set("Content-Encoding", "gzip")
			}

			w := httptest.NewRecorder()
			GzipMiddleware(http.HandlerFunc(echoHandler)).ServeHTTP(w, req)

			res := w.Result()
			defer res.Body.Close()

			assert.Equal(t, http.StatusOK, res.StatusCode)
			assert.Equal(t, tt.contentType, res.Header.Get("Content-Type"))
			assert.Equal(t, tt.wantEncoding, res.Header.Get("Content-Encoding"))

			var reader io.Reader = res.Body
			if res.Header.Get("Content-Encoding") == "gzip" {
				gr, err := gzip.NewReader(res.Body)
				require.NoError(t, err)
				defer gr.Close()
				reader = gr
			}
			body, err := io.ReadAll(reader)
			require.NoError(t, err)
			assert.Contains(t, string(body), tt.wantBodyContain)
		})
	}
}

func TestDecompressRequest(t *testing.T) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write([]byte(`{"unitsDonated":2}`))
	require.NoError(t, err)
	require.NoError(t, gz.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/requests/r1/accept", &buf)
	req.Header.Set("Content-Encoding", "gzip")
	req.Header.Set("Accept-Encoding", "gzip")

	var gotEncoding string
	w := httptest.NewRecorder()
	DecompressRequest(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotEncoding = r.Header.Get("Content-Encoding")
		echoHandler(w, r)
	})).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, gotEncoding)
	assert.Empty(t, w.Header().Get("Content-Encoding"), "responses are left to the compressor")
	assert.Equal(t, `received: {"unitsDonated":2}`, w.Body.String())
}

func TestGzipMiddleware_InvalidBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/requests", strings.NewReader("not gzip"))
	req.Header.Set("Content-Encoding", "gzip")

	w := httptest.NewRecorder()
	GzipMiddleware(http.HandlerFunc(echoHandler)).ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
