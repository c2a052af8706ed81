// Package cache implements the Response Cache (spec §4.4): an in-memory LRU
// tier fronting a durable tier, keyed by a canonical, key-order-insensitive
// hash of the call parameters.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/opencore/mcpgate/internal/storage/model"
)

// ParamHash returns a canonical, key-order-insensitive hash of params.
// encoding/json sorts map keys when marshaling a map, so two maps built in
// different insertion orders already produce byte-identical JSON; nested
// maps get the same treatment recursively, which is all "canonical JSON"
// requires here.
func ParamHash(params map[string]any) (string, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

// Key builds the full cache key for a capability invocation.
func Key(kind model.CapabilityKind, serverID, name, paramHash string) string {
	return string(kind) + ":" + serverID + ":" + name + ":" + paramHash
}

// parseKey splits a key built by Key back into its kind/serverID/name parts,
// used when invalidating by filter without a durable round trip.
func parseKey(key string) (kind model.CapabilityKind, serverID, name string, ok bool) {
	parts := strings.SplitN(key, ":", 4)
	if len(parts) != 4 {
		return "", "", "", false
	}
	return model.CapabilityKind(parts[0]), parts[1], parts[2], true
}
