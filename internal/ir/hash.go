package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// The version suffix leaves room for migrating the algorithm.
const (
	DomainDispatch = "rclgo/dispatch/v1"
	DomainRun      = "rclgo/run/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null separator keeps domain and data from running into each other.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// DispatchID computes the content-addressed ID for one callback invocation.
//
// The ID covers the run, the entity and the start seq. Outcome and timing are
// excluded: the same logical dispatch keeps its ID whether it succeeded or not,
// which makes WriteDispatch idempotent across retries.
func DispatchID(runID, entityID string, seq int64) (string, error) {
	obj := map[string]any{
		"run_id":    runID,
		"entity_id": entityID,
		"seq":       seq,
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("DispatchID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainDispatch, canonical), nil
}

// MustDispatchID is like DispatchID but panics on error.
// Inputs are plain strings and ints, so an error means a programming bug.
func MustDispatchID(runID, entityID string, seq int64) string {
	id, err := DispatchID(runID, entityID, seq)
	if err != nil {
		panic(err)
	}
	return id
}

// TraceHash hashes the canonical form of a dispatch trace. Two runs with the
// same hash dispatched the same callbacks in the same order with the same
// outcomes.
func TraceHash(dispatches []Dispatch) (string, error) {
	items := make([]any, len(dispatches))
	for i, d := range dispatches {
		items[i] = d.TraceMap()
	}
	canonical, err := MarshalCanonical(items)
	if err != nil {
		return "", fmt.Errorf("TraceHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainRun, canonical), nil
}
