package cache

import (
	"testing"
	"time"

	"github.com/brindle-io/httpcore/pkg/header"
)

func TestFIFOPutGetRoundTrip(t *testing.T) {
	c := NewFIFO(4, time.Minute)
	c.PutStatus("GET /a", 200)
	hdrs := header.New()
	hdrs.Set("Etag", `"abc"`)
	c.PutHeaders("GET /a", hdrs)
	c.PutString("GET /a", "hello")

	if !c.Exists("GET /a") {
		t.Fatalf("expected entry to exist")
	}
	status, ok := c.GetStatus("GET /a")
	if !ok || status != 200 {
		t.Fatalf("expected status 200, got %d (ok=%v)", status, ok)
	}
	body, ok := c.GetString("GET /a")
	if !ok || body != "hello" {
		t.Fatalf("expected body %q, got %q (ok=%v)", "hello", body, ok)
	}
	kind, ok := c.GetType("GET /a")
	if !ok || kind != BodyString {
		t.Fatalf("expected BodyString kind, got %v", kind)
	}
}

func TestFIFOEvictsOldestOnOverflow(t *testing.T) {
	c := NewFIFO(2, time.Minute)
	c.PutStatus("GET /1", 200)
	c.PutStatus("GET /2", 200)
	c.PutStatus("GET /3", 200)

	if c.Exists("GET /1") {
		t.Fatalf("expected oldest entry to be evicted")
	}
	if !c.Exists("GET /2") || !c.Exists("GET /3") {
		t.Fatalf("expected the two most recent entries to survive")
	}
}

func TestFIFOExplicitEvictFreesCapacity(t *testing.T) {
	c := NewFIFO(2, time.Minute)
	c.PutStatus("GET /1", 200)
	c.Evict("GET /1")
	c.PutStatus("GET /2", 200)
	c.PutStatus("GET /3", 200)

	if !c.Exists("GET /2") || !c.Exists("GET /3") {
		t.Fatalf("expected both entries to remain after a pre-evicted queue slot")
	}
}

func TestFIFOExpiresByTTL(t *testing.T) {
	c := NewFIFO(4, time.Nanosecond)
	c.PutStatus("GET /a", 200)
	time.Sleep(time.Millisecond)

	if c.Exists("GET /a") {
		t.Fatalf("expected entry to be expired")
	}
	if _, ok := c.GetStatus("GET /a"); ok {
		t.Fatalf("expected GetStatus to report expired entry as absent")
	}
}

func TestFIFOGetWrongKindReportsAbsent(t *testing.T) {
	c := NewFIFO(4, time.Minute)
	c.PutFile("GET /a", "/tmp/body")

	if _, ok := c.GetString("GET /a"); ok {
		t.Fatalf("expected GetString to miss on a file-backed entry")
	}
	path, ok := c.GetFile("GET /a")
	if !ok || path != "/tmp/body" {
		t.Fatalf("expected file path %q, got %q (ok=%v)", "/tmp/body", path, ok)
	}
}

func TestSimpleCachingPolicyOnlyConsultsCacheOn304(t *testing.T) {
	p := SimpleCachingPolicy{}
	if p.ShouldLookInCacheBeforeRequest() {
		t.Fatalf("expected SimpleCachingPolicy to never look up-front")
	}
	if p.ShouldLookInCacheAfterResponse(200) {
		t.Fatalf("expected 200 to not trigger a cache read")
	}
	if !p.ShouldLookInCacheAfterResponse(304) {
		t.Fatalf("expected 304 to trigger a cache read")
	}
	if !p.ShouldStoreInCache("GET", true) {
		t.Fatalf("expected a cacheable GET response to be stored")
	}
	if p.ShouldStoreInCache("POST", false) {
		t.Fatalf("expected a non-cacheable response to not be stored regardless of method")
	}
}
