package transport

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/dokzlo13/irlightd/internal/config"
)

func testTransportConfig(txType string) config.TransportConfig {
	return config.TransportConfig{
		Type:    txType,
		Topic:   "blaster/test/send",
		URL:     "http://blaster.local/send",
		Timeout: config.Duration(time.Second),
	}
}

func TestHTTPSendPostsPayload(t *testing.T) {
	var (
		mu         sync.Mutex
		gotMethod  string
		gotBody    string
		gotContent string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		gotMethod = r.Method
		gotBody = string(body)
		gotContent = r.Header.Get("Content-Type")
		mu.Unlock()
	}))
	defer srv.Close()

	tx := NewHTTP(srv.URL, time.Second, time.Millisecond)
	defer tx.Close()

	if err := tx.Send(context.Background(), "PAYLOAD"); err != nil {
		t.Fatalf("Send() error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if gotMethod != http.MethodPost {
		t.Errorf("method = %q, want POST", gotMethod)
	}
	if gotBody != "PAYLOAD" {
		t.Errorf("body = %q, want PAYLOAD", gotBody)
	}
	if gotContent != "text/plain" {
		t.Errorf("content type = %q, want text/plain", gotContent)
	}
}

func TestHTTPSendNon2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	tx := NewHTTP(srv.URL, time.Second, time.Millisecond)
	defer tx.Close()

	if err := tx.Send(context.Background(), "PAYLOAD"); err == nil {
		t.Fatal("Send() succeeded on HTTP 500, want error")
	}
}

func TestHTTPSendCancelledContext(t *testing.T) {
	hit := make(chan struct{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hit <- struct{}{}
	}))
	defer srv.Close()

	tx := NewHTTP(srv.URL, time.Second, time.Millisecond)
	defer tx.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := tx.Send(ctx, "PAYLOAD"); err == nil {
		t.Fatal("Send() succeeded with cancelled context, want error")
	}
	select {
	case <-hit:
		t.Error("blaster was contacted despite cancelled context")
	default:
	}
}

// The limiter must space consecutive sends by at least the minimum interval.
func TestHTTPSendSpacing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	const interval = 50 * time.Millisecond
	tx := NewHTTP(srv.URL, time.Second, interval)
	defer tx.Close()

	start := time.Now()
	for i := 0; i < 2; i++ {
		if err := tx.Send(context.Background(), "PAYLOAD"); err != nil {
			t.Fatalf("Send() error: %v", err)
		}
	}

	if elapsed := time.Since(start); elapsed < interval {
		t.Errorf("two sends took %v, want at least %v between them", elapsed, interval)
	}
}

func TestNewTransport(t *testing.T) {
	tests := []struct {
		name    string
		txType  string
		wantErr bool
	}{
		{name: "http", txType: "http", wantErr: false},
		{name: "mqtt_without_client", txType: "mqtt", wantErr: true},
		{name: "unknown_type", txType: "serial", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testTransportConfig(tt.txType)
			tx, err := New(cfg, nil, 100*time.Millisecond)
			if tt.wantErr {
				if err == nil {
					t.Fatal("New() succeeded, want error")
				}
				return
			}
			if err != nil {
				t.Fatalf("New() error: %v", err)
			}
			tx.Close()
		})
	}
}
