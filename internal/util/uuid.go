package util

import (
	"github.com/google/uuid"
)

// NameUUID returns the name-based (version 5) UUID of name. The same name
// always yields the same UUID.
func NameUUID(name string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()
}

// CanonicalUUID parses s in any form accepted by uuid.Parse and returns it
// lower-cased and hyphenated.
func CanonicalUUID(s string) (string, error) {
	parsed, err := uuid.Parse(s)
	if err != nil {
		return "", err
	}
	return parsed.String(), nil
}
