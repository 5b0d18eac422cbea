package blobstore

import (
	"context"
	"errors"
	"io"
	"net/url"
)

var (
	// ErrNotFound means no committed record exists for the identifier
	ErrNotFound = errors.New("record not found")
	// ErrInvalidIdentifier means the identifier is not a single path element
	ErrInvalidIdentifier = errors.New("invalid identifier")
	// ErrInvalidPath means a relative path would leave the record directory
	ErrInvalidPath = errors.New("invalid relative path")
	// ErrInvalidMountPath means the public mount path is not a bare path
	ErrInvalidMountPath = errors.New("invalid mount path")
	// ErrWrongMode means the save call does not match the store's identifier mode
	ErrWrongMode = errors.New("operation not supported in this identifier mode")
)

// Mode selects how a store assigns identifiers
type Mode int

const (
	// ModeContent derives identifiers from a digest of the bytes
	ModeContent Mode = iota
	// ModeGenerated takes caller-supplied random identifiers
	ModeGenerated
)

func (m Mode) String() string {
	switch m {
	case ModeContent:
		return "content"
	case ModeGenerated:
		return "generated"
	default:
		return "unknown"
	}
}

// SaveKind tells whether a save created the record
type SaveKind int

const (
	// SaveExisted means a record for the identifier was already committed
	SaveExisted SaveKind = iota + 1
	// SaveNew means this call committed the record
	SaveNew
)

func (k SaveKind) String() string {
	switch k {
	case SaveExisted:
		return "existed"
	case SaveNew:
		return "new"
	default:
		return "unknown"
	}
}

// SaveOutcome is the result of a successful save
type SaveOutcome struct {
	ID   Identifier
	Kind SaveKind
	Size int64 // bytes read from the stream
}

// Store persists raw uploads and their derived artifacts.
type Store interface {
	Exists(ctx context.Context, id Identifier) (bool, error)
	// Save stores r under its content identifier.
	Save(ctx context.Context, r io.Reader) (SaveOutcome, error)
	// SaveAs stores r under a caller-generated identifier.
	SaveAs(ctx context.Context, id Identifier, r io.Reader) (SaveOutcome, error)
	Delete(ctx context.Context, id Identifier) error
	RawFile(ctx context.Context, id Identifier) (string, error)
	DerivedFile(ctx context.Context, id Identifier, rel string) (string, error)
	URL(base *url.URL, id Identifier, rel string) (string, error)
}
