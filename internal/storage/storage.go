// Package storage keeps the scratch files of a cut job on local disk and
// optionally publishes finished outputs to S3.
package storage

import (
	"context"
	"io"
	"mime"
	"path"
	"path/filepath"
	"strings"
)

// Storage defines the interface for temporary and persistent file storage.
// Implementations own a scratch directory for decoded audio, rendered parts
// and outputs, and optionally support S3 uploads for delivery.
type Storage interface {
	// TempDir returns the scratch directory shared by a job's intermediate files.
	TempDir() string

	// SaveTemp saves data to a temporary file and returns the file path.
	// The name parameter is used as a hint for the filename.
	SaveTemp(ctx context.Context, name string, data io.Reader) (path string, err error)

	// LoadTemp reads a temporary file and returns a reader.
	// The caller is responsible for closing the returned ReadCloser.
	LoadTemp(ctx context.Context, path string) (io.ReadCloser, error)

	// CleanupTemp removes the specified temporary files.
	// It continues cleanup even if some files fail to delete and reports
	// every failure.
	CleanupTemp(ctx context.Context, paths []string) error

	// UploadToS3 uploads data under key and returns its URL.
	// Returns ErrS3NotConfigured if S3 is not configured.
	UploadToS3(ctx context.Context, key string, data io.Reader, contentType string) (url string, err error)
}

// ObjectKey builds the object key for an output of a job.
func ObjectKey(prefix, jobID, filePath string) string {
	return path.Join(strings.Trim(prefix, "/"), jobID, filepath.Base(filePath))
}

// ContentType guesses the MIME type of an output from its extension.
func ContentType(filePath string) string {
	ext := strings.ToLower(filepath.Ext(filePath))
	switch ext {
	case ".xml":
		return "application/xml"
	case ".mp4", ".m4v":
		return "video/mp4"
	case ".mkv":
		return "video/x-matroska"
	case ".wav":
		return "audio/wav"
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}
