package trace

import "peaksandprofiles/internal/digest"

// ComputeTraceHash computes the hash of a canonical trace encoding, as
// returned by ExecutionTrace.CanonicalJSON.
func ComputeTraceHash(canonicalEncoding []byte) string {
	if len(canonicalEncoding) == 0 {
		return ""
	}
	return digest.Bytes(canonicalEncoding)
}
