package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer() *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/p/1", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><body><h1>` + r.UserAgent() + `</h1></body></html>`))
	})
	mux.HandleFunc("/gone", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
		w.Write([]byte("late"))
	})
	return httptest.NewServer(mux)
}

func TestFetchReturnsBody(t *testing.T) {
	ts := newTestServer()
	defer ts.Close()

	f := New(Options{UserAgent: "pricewatch-test"})
	body, err := f.Fetch(context.Background(), ts.URL+"/p/1")
	require.NoError(t, err)
	assert.Contains(t, string(body), "<h1>pricewatch-test</h1>")

	// Product pages are fetched again on every run.
	again, err := f.Fetch(context.Background(), ts.URL+"/p/1")
	require.NoError(t, err)
	assert.Equal(t, body, again)
}

func TestFetchStatusFault(t *testing.T) {
	ts := newTestServer()
	defer ts.Close()

	f := New(Options{})
	_, err := f.Fetch(context.Background(), ts.URL+"/gone")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNetwork)

	var ferr *Error
	require.True(t, errors.As(err, &ferr))
	assert.Equal(t, http.StatusNotFound, ferr.StatusCode)
	assert.Equal(t, ts.URL+"/gone", ferr.URL)
}

func TestFetchTimeout(t *testing.T) {
	ts := newTestServer()
	defer ts.Close()

	f := New(Options{Timeout: 50 * time.Millisecond})
	_, err := f.Fetch(context.Background(), ts.URL+"/slow")
	assert.ErrorIs(t, err, ErrNetwork)
}

func TestFetchUnreachableHost(t *testing.T) {
	ts := newTestServer()
	url := ts.URL + "/p/1"
	ts.Close()

	f := New(Options{Timeout: time.Second})
	_, err := f.Fetch(context.Background(), url)
	assert.ErrorIs(t, err, ErrNetwork)
}

func TestFetchCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(Options{}).Fetch(ctx, "http://127.0.0.1:1/never")
	assert.ErrorIs(t, err, ErrNetwork)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFetchConcurrent(t *testing.T) {
	ts := newTestServer()
	defer ts.Close()

	f := New(Options{UserAgent: "ua"})
	errs := make(chan error, 8)
	for i := 0; i < cap(errs); i++ {
		go func() {
			_, err := f.Fetch(context.Background(), ts.URL+"/p/1")
			errs <- err
		}()
	}
	for i := 0; i < cap(errs); i++ {
		assert.NoError(t, <-errs)
	}
}
