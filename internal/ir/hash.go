package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed fingerprints.
// The version suffix allows the encoding to change without collisions.
const (
	DomainFunc = "dataflow/func/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Fingerprint returns a content hash of f's canonical encoding.
// Two functions that print identically have the same fingerprint.
func Fingerprint(f *Func) (string, error) {
	data, err := MarshalCanonical(EncodeFunc(f))
	if err != nil {
		return "", fmt.Errorf("fingerprint %s: %w", f.Name, err)
	}
	return hashWithDomain(DomainFunc, data), nil
}
