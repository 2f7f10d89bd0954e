package collector

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pricewatch/extractor"
	"pricewatch/fetcher"
)

func newTestServer() *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/p/", func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Path[len("/p/"):]
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintf(w, `<html><body>
			<h1 class="name">Product %s</h1>
			<span class="price">%s,99 zł</span>
		</body></html>`, id, id)
	})
	mux.HandleFunc("/redesigned", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><h2>new layout</h2></body></html>`))
	})
	mux.HandleFunc("/down", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	return httptest.NewServer(mux)
}

func TestCollectAllKeepsInputOrderAndPartialFailures(t *testing.T) {
	ts := newTestServer()
	defer ts.Close()

	c := New(
		fetcher.New(fetcher.Options{Timeout: 5 * time.Second}),
		extractor.New(extractor.Selectors{Name: "h1.name", Price: "span.price", CurrencySuffix: " zł"}),
		3, nil,
	)

	urls := []string{
		ts.URL + "/p/10",
		ts.URL + "/down",
		ts.URL + "/p/20",
		ts.URL + "/redesigned",
		ts.URL + "/p/30",
	}
	snap, err := c.CollectAll(context.Background(), urls)
	require.NoError(t, err)
	require.Len(t, snap.Results, len(urls))

	for i, r := range snap.Results {
		assert.Equal(t, urls[i], r.URL)
	}

	assert.Equal(t, "Product 10", snap.Results[0].Name)
	assert.Equal(t, 10.99, snap.Results[0].Price)
	assert.Equal(t, 30.99, snap.Results[4].Price)
	assert.Len(t, snap.Succeeded(), 3)
	require.Len(t, snap.Failed(), 2)

	var cerr *Error
	require.True(t, errors.As(snap.Results[1].Err, &cerr))
	assert.Equal(t, StageFetch, cerr.Stage)
	assert.ErrorIs(t, snap.Results[1].Err, fetcher.ErrNetwork)

	require.True(t, errors.As(snap.Results[3].Err, &cerr))
	assert.Equal(t, StageExtract, cerr.Stage)
	assert.ErrorIs(t, snap.Results[3].Err, extractor.ErrAnchorMissing)
	assert.NotErrorIs(t, snap.Results[3].Err, fetcher.ErrNetwork)
}

type slowFetcher struct {
	inFlight atomic.Int32
	mu       sync.Mutex
	peak     int32
}

func (f *slowFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	f.mu.Lock()
	if n > f.peak {
		f.peak = n
	}
	f.mu.Unlock()

	// Later URLs finish first.
	i, _ := strconv.Atoi(url)
	time.Sleep(time.Duration(20-i) * time.Millisecond)
	return []byte(url), nil
}

type echoExtractor struct{}

func (echoExtractor) Extract(markup []byte) (string, float64, error) {
	f, err := strconv.ParseFloat(string(markup), 64)
	return string(markup), f, err
}

func TestCollectAllIsBoundedAndOrdered(t *testing.T) {
	f := &slowFetcher{}
	c := New(f, echoExtractor{}, 4, nil)

	urls := make([]string, 20)
	for i := range urls {
		urls[i] = strconv.Itoa(i)
	}

	snap, err := c.CollectAll(context.Background(), urls)
	require.NoError(t, err)
	for i, r := range snap.Results {
		require.NoError(t, r.Err)
		assert.Equal(t, float64(i), r.Price)
	}
	assert.LessOrEqual(t, f.peak, int32(4))
}

func TestCollectAllEmpty(t *testing.T) {
	snap, err := New(&slowFetcher{}, echoExtractor{}, 0, nil).CollectAll(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, snap.Results)
	assert.False(t, snap.CollectedAt.IsZero())
}

func TestCollectAllCancelled(t *testing.T) {
	ts := newTestServer()
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := New(fetcher.New(fetcher.Options{}), extractor.New(extractor.Selectors{Name: "h1", Price: "span"}), 2, nil)
	snap, err := c.CollectAll(ctx, []string{ts.URL + "/p/1"})
	assert.ErrorIs(t, err, context.Canceled)
	require.Len(t, snap.Results, 1)
	assert.ErrorIs(t, snap.Results[0].Err, fetcher.ErrNetwork)
}
