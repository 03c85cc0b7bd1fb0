package tika

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pdfchat-go/internal/config"
	"pdfchat-go/internal/pipeline"
)

const xhtmlTwoPages = `<html xmlns="http://www.w3.org/1999/xhtml"><head><title>t</title></head>
<body><div class="page"><p>First page line one.</p><p>Line two.</p></div>
<div class="page"><p>Second page.</p></div></body></html>`

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(config.TikaConfig{ServerURL: srv.URL, Timeout: 5 * time.Second})
}

func TestPages_SplitsPageDivs(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/tika", r.URL.Path)
		assert.Equal(t, "text/html", r.Header.Get("Accept"))
		assert.Equal(t, "application/pdf", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "%PDF-fake", string(body))
		_, _ = w.Write([]byte(xhtmlTwoPages))
	})

	pages, err := client.Pages(context.Background(), []byte("%PDF-fake"), "a.pdf")
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Contains(t, pages[0], "First page line one.")
	assert.Contains(t, pages[0], "Line two.")
	assert.Contains(t, pages[1], "Second page.")
}

func TestPages_NoPageMarkersFallsBackToBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><body><p>only body</p></body></html>`))
	})

	pages, err := client.Pages(context.Background(), []byte("x"), "a.pdf")
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Contains(t, pages[0], "only body")
}

func TestPages_UnprocessableDocument(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte("encrypted"))
	})

	_, err := client.Pages(context.Background(), []byte("x"), "a.pdf")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnprocessable))
	assert.True(t, errors.Is(err, pipeline.ErrUndecodable))
}

func TestPages_ServerErrorIsNotADocumentFault(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := client.Pages(context.Background(), []byte("x"), "a.pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
	assert.False(t, errors.Is(err, pipeline.ErrUndecodable))
}

func TestPages_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	client := NewClient(config.TikaConfig{ServerURL: srv.URL, Timeout: time.Second})

	_, err := client.Pages(context.Background(), []byte("x"), "a.pdf")
	require.Error(t, err)
	assert.False(t, errors.Is(err, pipeline.ErrUndecodable))
}

func TestDetectMimeType(t *testing.T) {
	assert.Equal(t, "application/pdf", detectMimeType("doc.pdf"))
	assert.Equal(t, "application/octet-stream", detectMimeType("noext"))
}
