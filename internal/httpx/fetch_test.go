package httpx

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crawltpl/crawltpl/crawlerr"
)

func TestFetchParsesHTML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><h1>hi</h1></body></html>`))
	}))
	defer srv.Close()

	f := New(Options{})
	doc, err := f.Fetch(srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "hi", doc.Find("h1").Text())
}

func TestFetchNonRetryableClientError(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := New(Options{Retry: RetryPolicy{MaxRetries: 3, InitialWait: time.Millisecond, MaxWait: 2 * time.Millisecond, Factor: 2}})
	_, err := f.Fetch(srv.URL)
	require.Error(t, err)
	assert.True(t, crawlerr.Is(err, crawlerr.KindHTTPError))
	assert.EqualValues(t, 1, atomic.LoadInt32(&hits), "a 4xx response must not be retried")
}

func TestFetchRetriesServerError(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&hits, 1)
		if n < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`<html><body><h1>recovered</h1></body></html>`))
	}))
	defer srv.Close()

	f := New(Options{Retry: RetryPolicy{MaxRetries: 5, InitialWait: time.Millisecond, MaxWait: 2 * time.Millisecond, Factor: 2}})
	doc, err := f.Fetch(srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "recovered", doc.Find("h1").Text())
	assert.EqualValues(t, 3, atomic.LoadInt32(&hits))
}

func TestFetchGivesUpAfterMaxRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	f := New(Options{Retry: RetryPolicy{MaxRetries: 2, InitialWait: time.Millisecond, MaxWait: 2 * time.Millisecond, Factor: 2}})
	_, err := f.Fetch(srv.URL)
	require.Error(t, err)
	assert.True(t, crawlerr.Is(err, crawlerr.KindHTTPError))
}
