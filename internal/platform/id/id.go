// Package id generates identifiers for character documents created without
// a caller-supplied id.
//
// Identifiers are UUIDv4 bytes encoded as base32 (RFC 4648) with no
// padding: 26 characters, lowercase, safe in URLs and file paths, and
// stable as sort keys for the registry's deterministic orderings.
package id

import (
	"encoding/base32"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var encoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// NewID returns a new 26-character lowercase identifier.
func NewID() (string, error) {
	raw, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generate uuid: %w", err)
	}
	return strings.ToLower(encoding.EncodeToString(raw[:])), nil
}
