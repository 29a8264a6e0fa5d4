// Package remote defines the remote object store used for cloud sync and its backends.
//
// A Store is one account's private namespace. It only needs to list its files, read a
// file by id and write a file, creating it when no id is given.
package remote

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sentinel errors.
var (
	ErrNotFound     = errors.New("remote file not found")
	ErrUnauthorized = errors.New("remote store rejected credentials")
)

// File describes an object in a namespace.
type File struct {
	ID           string
	Name         string
	ModifiedTime time.Time
}

// Store is one account's private namespace.
type Store interface {
	List(ctx context.Context) ([]File, error)
	Read(ctx context.Context, id string) ([]byte, error)
	// Write stores content under name. With an empty existingID a new file is created;
	// otherwise the file with that id is replaced. It returns the file id.
	Write(ctx context.Context, name string, content []byte, existingID string) (string, error)
}

// Provider opens namespaces.
type Provider interface {
	Open(account, token string) (Store, error)
}

// FindByName returns the first file called name.
func FindByName(files []File, name string) (File, bool) {
	for _, f := range files {
		if f.Name == name {
			return f, true
		}
	}
	return File{}, false
}

// APIError is a non-success response from an HTTP backend.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	return fmt.Sprintf("remote status %d: %s", e.Status, body)
}

// Unwrap maps auth and missing-file statuses onto the package sentinels.
func (e *APIError) Unwrap() error {
	switch e.Status {
	case 401, 403:
		return ErrUnauthorized
	case 404:
		return ErrNotFound
	}
	return nil
}
