package cache

// Policy decides, for a request (and optionally its response), whether the
// Transaction should store the response in the cache or consult it.
// ShouldLookInCacheBeforeRequest is evaluated before a request is sent (to
// decide whether to serve a stored response immediately) and
// ShouldLookInCacheAfterResponse after a response arrives (to decide whether the just-received response — e.g. a 304 —
// should trigger a cache read instead of being returned as-is).
type Policy interface {
	ShouldStoreInCache(method string, responseCacheable bool) bool
	ShouldLookInCacheBeforeRequest() bool
	ShouldLookInCacheAfterResponse(statusCode int) bool
}

// SimpleCachingPolicy implements the default policy: the cache is a
// revalidation fallback, never a primary lookup path. It only gets
// consulted after a 304 Not Modified arrives.
type SimpleCachingPolicy struct{}

func (SimpleCachingPolicy) ShouldStoreInCache(method string, responseCacheable bool) bool {
	return responseCacheable
}

func (SimpleCachingPolicy) ShouldLookInCacheBeforeRequest() bool {
	return false
}

func (SimpleCachingPolicy) ShouldLookInCacheAfterResponse(statusCode int) bool {
	return statusCode == 304
}
