package collyfetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFetchReturnsBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><body><h1>ofertas</h1></body></html>"))
	}))
	defer srv.Close()

	f := New(Config{UserAgent: "test-agent", Timeout: 5 * time.Second})
	body, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Contains(t, body, "ofertas")
}

func TestFetchSendsBrowserHeaders(t *testing.T) {
	t.Parallel()

	var gotAccept, gotLang, gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAccept = r.Header.Get("Accept")
		gotLang = r.Header.Get("Accept-Language")
		gotUA = r.Header.Get("User-Agent")
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := New(Config{UserAgent: "custom-ua", Timeout: 5 * time.Second})
	_, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Contains(t, gotAccept, "text/html")
	require.Contains(t, gotLang, "es-CL")
	require.Equal(t, "custom-ua", gotUA)
}

func TestFetchNonOKStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	f := New(Config{Timeout: 5 * time.Second})
	_, err := f.Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	require.Contains(t, err.Error(), "503")
}

func TestFetchContextCanceled(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	f := New(Config{Timeout: 30 * time.Second})
	_, err := f.Fetch(ctx, srv.URL)
	require.Error(t, err)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFetchDelayRespectsContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := New(Config{Delay: time.Minute})
	start := time.Now()
	_, err := f.Fetch(ctx, "http://127.0.0.1:0/never")
	require.Error(t, err)
	require.Less(t, time.Since(start), time.Second)
}
