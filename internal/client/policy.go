package client

// FetchPolicy decides whether a query is answered from the cache, the server or both
type FetchPolicy int

const (
	// CacheFirst returns the cached result if the cache has everything, else fetches from the server
	CacheFirst FetchPolicy = iota

	// CacheOnly never uses the server - ErrCacheMiss is returned if the result is not cached
	CacheOnly

	// NetworkOnly always fetches from the server (the result is still written to the cache)
	NetworkOnly

	// NetworkFirst fetches from the server but returns the cached result if the request fails
	NetworkFirst

	// CacheAndNetwork emits the cached result (if any) then the result from the server
	CacheAndNetwork
)

func (p FetchPolicy) String() string {
	switch p {
	case CacheFirst:
		return "CacheFirst"
	case CacheOnly:
		return "CacheOnly"
	case NetworkOnly:
		return "NetworkOnly"
	case NetworkFirst:
		return "NetworkFirst"
	case CacheAndNetwork:
		return "CacheAndNetwork"
	}
	return "FetchPolicy(?)"
}

// CallOption modifies a Call - a FetchPolicy can be used as a CallOption
type CallOption interface {
	apply(*Call)
}

func (p FetchPolicy) apply(c *Call) { c.policy = p }
