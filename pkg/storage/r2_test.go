package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
)

func TestNewR2ClientRequiresCredentials(t *testing.T) {
	tests := []struct {
		name                      string
		account, key, secret, bkt string
	}{
		{"no account", "", "k", "s", "b"},
		{"no key", "a", "", "s", "b"},
		{"no secret", "a", "k", "", "b"},
		{"no bucket", "a", "k", "s", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewR2Client(tt.account, tt.key, tt.secret, tt.bkt); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestNewR2Client(t *testing.T) {
	c, err := NewR2Client("acct", "key", "secret", "primeflare")
	if err != nil {
		t.Fatalf("NewR2Client: %v", err)
	}
	if c.Bucket() != "primeflare" {
		t.Errorf("Bucket() = %q, want primeflare", c.Bucket())
	}
}

// fakeS3 serves path-style PUT and GET for a single bucket.
type fakeS3 struct {
	mu      sync.Mutex
	bucket  string
	objects map[string][]byte
	types   map[string]string
	status  int // when set, every request fails with it
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.status != 0 {
		writeS3Error(w, f.status, "ServiceUnavailable", "try again")
		return
	}
	key, ok := strings.CutPrefix(r.URL.Path, "/"+f.bucket+"/")
	if !ok {
		writeS3Error(w, http.StatusNotFound, "NoSuchBucket", "The specified bucket does not exist.")
		return
	}

	switch r.Method {
	case http.MethodPut:
		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeS3Error(w, http.StatusBadRequest, "IncompleteBody", err.Error())
			return
		}
		f.objects[key] = body
		f.types[key] = r.Header.Get("Content-Type")
		w.Header().Set("ETag", `"1"`)
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		data, ok := f.objects[key]
		if !ok {
			writeS3Error(w, http.StatusNotFound, "NoSuchKey", "The specified key does not exist.")
			return
		}
		w.Header().Set("Content-Type", f.types[key])
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	default:
		writeS3Error(w, http.StatusMethodNotAllowed, "MethodNotAllowed", r.Method)
	}
}

func (f *fakeS3) object(key string) (data []byte, contentType string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.objects[key], f.types[key]
}

func (f *fakeS3) put(key string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = data
}

func (f *fakeS3) fail(status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = status
}

func writeS3Error(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)
	fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>%s</Code><Message>%s</Message></Error>`, code, msg)
}

func newTestClient(t *testing.T) (*R2Client, *fakeS3) {
	t.Helper()
	fake := &fakeS3{
		bucket:  "primeflare",
		objects: make(map[string][]byte),
		types:   make(map[string]string),
	}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	c, err := newR2Client(srv.URL, "key", "secret", "primeflare", func(o *s3.Options) {
		o.RetryMaxAttempts = 1
	})
	if err != nil {
		t.Fatalf("newR2Client: %v", err)
	}
	return c, fake
}

func TestUploadAndDownload(t *testing.T) {
	c, fake := newTestClient(t)
	ctx := context.Background()
	data := []byte("2 3 5 7 11 13 17 19 23 29\n")

	if err := c.Upload(ctx, "primes/upto-30.txt", "text/plain; charset=utf-8", data); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	stored, ct := fake.object("primes/upto-30.txt")
	if !bytes.Contains(stored, data) {
		t.Errorf("server stored %q, want it to contain %q", stored, data)
	}
	if ct != "text/plain; charset=utf-8" {
		t.Errorf("content type = %q", ct)
	}

	fake.put("chats/chat-1/quota.json", []byte(`{"queries":3}`))
	got, err := c.Download(ctx, "chats/chat-1/quota.json")
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if string(got) != `{"queries":3}` {
		t.Errorf("Download = %q", got)
	}
}

func TestDownloadMissingKeyIsNotFound(t *testing.T) {
	c, _ := newTestClient(t)
	_, err := c.Download(context.Background(), "chats/nobody/quota.json")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Download of a missing key = %v, want ErrNotFound", err)
	}
}

func TestServerErrorsAreNotNotFound(t *testing.T) {
	c, fake := newTestClient(t)
	fake.fail(http.StatusServiceUnavailable)
	ctx := context.Background()

	_, err := c.Download(ctx, "chats/chat-1/quota.json")
	if err == nil || errors.Is(err, ErrNotFound) {
		t.Errorf("Download during an outage = %v, want a non-NotFound error", err)
	}
	if err := c.Upload(ctx, "k", "text/plain", []byte("x")); err == nil {
		t.Error("Upload during an outage succeeded")
	}
}
