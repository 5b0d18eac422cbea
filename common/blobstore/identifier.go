package blobstore

import (
	"encoding/base64"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Identifier names one record in a store. It is either the URL-safe
// encoding of a content digest or a random UUID.
type Identifier string

// ContentIdentifier derives the identifier of a record from its digest
func ContentIdentifier(sum []byte) Identifier {
	return Identifier(base64.RawURLEncoding.EncodeToString(sum))
}

// GenerateIdentifier returns a fresh random identifier
func GenerateIdentifier() Identifier {
	return Identifier(uuid.NewString())
}

// ParseIdentifier validates s and returns it as an Identifier
func ParseIdentifier(s string) (Identifier, error) {
	id := Identifier(s)
	if err := id.Validate(); err != nil {
		return "", err
	}
	return id, nil
}

// Validate rejects identifiers that could escape the store root or
// collide with temp files.
func (id Identifier) Validate() error {
	s := string(id)
	switch {
	case s == "", s == ".", s == "..":
		return fmt.Errorf("%w: %q", ErrInvalidIdentifier, s)
	case strings.ContainsAny(s, `/\`+"\x00"):
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidIdentifier, s)
	case strings.HasSuffix(s, tmpSuffix):
		return fmt.Errorf("%w: %q uses the temp suffix", ErrInvalidIdentifier, s)
	case !filepath.IsLocal(s):
		return fmt.Errorf("%w: %q", ErrInvalidIdentifier, s)
	}
	return nil
}

func (id Identifier) String() string {
	return string(id)
}
