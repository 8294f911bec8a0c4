package txn

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/brindle-io/httpcore/pkg/cache"
	"github.com/brindle-io/httpcore/pkg/header"
	"github.com/brindle-io/httpcore/pkg/pool"
)

func newTestPool() *pool.Pool {
	return pool.New(pool.Config{
		MaxTotal:       8,
		MaxPerEndpoint: 4,
		MaxWait:        time.Second,
		PollInterval:   10 * time.Millisecond,
		ConnTimeout:    time.Second,
	})
}

func TestMakeRequestRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Served", "yes")
		w.WriteHeader(200)
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	p := newTestPool()
	defer p.Close()
	txn := New(p, nil)

	resp, err := txn.MakeRequest(context.Background(), "GET", srv.URL+"/hello")
	if err != nil {
		t.Fatalf("MakeRequest: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if resp.Headers.Get("X-Served") != "yes" {
		t.Fatalf("missing response header")
	}
	if string(resp.Body.Bytes()) != "ok" {
		t.Fatalf("unexpected body %q", resp.Body.Bytes())
	}
}

func TestMakeRequestCanOnlyBeCalledOnce(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
	}))
	defer srv.Close()

	p := newTestPool()
	defer p.Close()
	txn := New(p, nil)

	if _, err := txn.MakeRequest(context.Background(), "GET", srv.URL); err != nil {
		t.Fatalf("first MakeRequest: %v", err)
	}
	if _, err := txn.MakeRequest(context.Background(), "GET", srv.URL); err == nil {
		t.Fatalf("expected the second MakeRequest on a used Transaction to fail")
	}
}

func TestMakeRequestFollowsRedirects(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/start" {
			http.Redirect(w, r, "/final", http.StatusFound)
			return
		}
		w.Write([]byte("landed"))
	}))
	defer srv.Close()

	p := newTestPool()
	defer p.Close()
	txn := New(p, nil)

	resp, err := txn.MakeRequest(context.Background(), "GET", srv.URL+"/start")
	if err != nil {
		t.Fatalf("MakeRequest: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected final 200 after redirect, got %d", resp.StatusCode)
	}
	if string(resp.Body.Bytes()) != "landed" {
		t.Fatalf("unexpected body %q", resp.Body.Bytes())
	}
}

func TestMakeRequestRewritesToGetOn303(t *testing.T) {
	var sawMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/create" {
			http.Redirect(w, r, "/result", http.StatusSeeOther)
			return
		}
		sawMethod = r.Method
		w.Write([]byte("done"))
	}))
	defer srv.Close()

	p := newTestPool()
	defer p.Close()
	txn := New(p, nil)
	h := header.New()
	h.Set("Content-Length", "0")
	h.Set("Content-Type", "text/plain")
	txn.SetHeaders(h)

	resp, err := txn.MakeRequest(context.Background(), "POST", srv.URL+"/create")
	if err != nil {
		t.Fatalf("MakeRequest: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if sawMethod != "GET" {
		t.Fatalf("expected 303 to rewrite method to GET, server saw %q", sawMethod)
	}
}

func TestMakeRequestExceedingMaxRedirectsFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, r.URL.Path+"x", http.StatusFound)
	}))
	defer srv.Close()

	p := newTestPool()
	defer p.Close()
	txn := New(p, nil)
	txn.SetMaxRedirects(2)

	if _, err := txn.MakeRequest(context.Background(), "GET", srv.URL+"/a"); err == nil {
		t.Fatalf("expected exceeding maxRedirects to fail")
	}
}

func TestMakeRequestUsesCacheOn304(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotModified)
	}))
	defer srv.Close()

	p := newTestPool()
	defer p.Close()
	c := cache.NewFIFO(8, time.Minute)
	c.PutStatus("GET "+srv.URL+"/cached", 200)
	c.PutHeaders("GET "+srv.URL+"/cached", nil)

	txn := New(p, nil)
	txn.UseCache(c)
	txn.UseCachingPolicy(cache.SimpleCachingPolicy{})

	resp, err := txn.MakeRequest(context.Background(), "GET", srv.URL+"/cached")
	if err != nil {
		t.Fatalf("MakeRequest: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected cached 200 to be returned in place of 304, got %d", resp.StatusCode)
	}
}

func TestSendChunksEnforcesCallOrder(t *testing.T) {
	var received []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received, _ = io.ReadAll(r.Body)
		w.WriteHeader(200)
	}))
	defer srv.Close()

	p := newTestPool()
	defer p.Close()
	txn := New(p, nil)

	cs, err := txn.SendChunks(context.Background(), "POST", srv.URL+"/upload")
	if err != nil {
		t.Fatalf("SendChunks: %v", err)
	}

	if err := cs.SendChunk([]byte("too early")); err == nil {
		t.Fatalf("expected SendChunk before Begin to fail")
	}
	if _, err := cs.End(); err == nil {
		t.Fatalf("expected End before Begin to fail")
	}

	if err := cs.Begin(); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := cs.Begin(); err == nil {
		t.Fatalf("expected a second Begin to fail")
	}

	if err := cs.SendChunk([]byte("hello ")); err != nil {
		t.Fatalf("SendChunk: %v", err)
	}
	if err := cs.SendChunk([]byte("world")); err != nil {
		t.Fatalf("SendChunk: %v", err)
	}
	if err := cs.SendChunk(nil); err == nil {
		t.Fatalf("expected an empty chunk payload to be rejected")
	}

	resp, err := cs.End()
	if err != nil {
		t.Fatalf("End: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if string(received) != "hello world" {
		t.Fatalf("expected server to reassemble chunked body, got %q", received)
	}
	if _, err := cs.SendChunk([]byte("late")); err == nil {
		t.Fatalf("expected SendChunk after End to fail")
	}
}

func TestMakeRequestFailsFastOnUnresolvableHost(t *testing.T) {
	p := newTestPool()
	defer p.Close()
	txn := New(p, nil)
	txn.SetConnTimeout(50 * time.Millisecond)

	_, err := txn.MakeRequest(context.Background(), "GET", "http://this-host-does-not-resolve.invalid/")
	if err == nil {
		t.Fatalf("expected connecting to an unresolvable host to fail")
	}
}
