// Package classify maps an upstream HTTP status code to the retry/eviction
// decisions ParallelExecutor and IntegrationExecutor act on.
//
// This is the status-code counterpart of the string-sniffing
// classifyErrorReason in the teacher's model-fallback package: here the
// caller already has a real HTTP status (ModelClient surfaces it on every
// ApiError), so there is no need to pattern-match error text.
package classify

// Classification is the pure output of Classify: what a caller should do
// about one failed (key, model) attempt.
type Classification struct {
	// Permanent means this (key, model) pair should not be retried for the
	// remainder of the request.
	Permanent bool
	// EvictKey means the key should be removed from the pool globally.
	EvictKey bool
	// DropModel means the task should be marked failed without further
	// attempts, independent of the key pool.
	DropModel bool
}

// Classify maps an upstream status to what the caller should do next:
//
//	401, 403            -> permanent, evict key
//	404                 -> permanent, drop model
//	other 4xx except 429 -> permanent, drop model
//	429, 5xx, network(0) -> retryable
func Classify(status int) Classification {
	switch {
	case status == 401 || status == 403:
		return Classification{Permanent: true, EvictKey: true}
	case status == 404:
		return Classification{Permanent: true, DropModel: true}
	case status == 429:
		return Classification{}
	case status >= 500:
		return Classification{}
	case status == 0:
		// Network-level failure; no status code was available.
		return Classification{}
	case status >= 400 && status < 500:
		return Classification{Permanent: true, DropModel: true}
	default:
		return Classification{}
	}
}
