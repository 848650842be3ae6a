// Package blobstore holds uploaded print files and product images addressed
// by path.
package blobstore

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"net/url"
	"strings"
)

var ErrInvalidDataURI = errors.New("invalid data URI")

// allowedTypes are the content types customers and admins may upload.
// Markup and scripts are never accepted.
var allowedTypes = map[string]bool{
	"application/pdf":               true,
	"image/png":                     true,
	"image/jpeg":                    true,
	"image/gif":                     true,
	"image/webp":                    true,
	"text/plain":                    true,
	"application/msword":            true,
	"application/vnd.ms-excel":      true,
	"application/vnd.ms-powerpoint": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   true,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":         true,
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": true,
}

// inlineTypes may be rendered by the browser; everything else is served as
// a download.
var inlineTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/gif":  true,
	"image/webp": true,
}

type Object struct {
	Path        string
	ContentType string
	Data        []byte
}

type Store interface {
	// Put stores data under path, replacing any previous object, and returns
	// its public URL.
	Put(ctx context.Context, path, contentType string, data []byte) (string, error)
	Get(ctx context.Context, path string) (*Object, error)
	Delete(ctx context.Context, path string) error
}

type Uploaded struct {
	Path        string
	URL         string
	ContentType string
	Size        int
}

// UploadDataURI decodes a base64 data URI and stores it under path.
func UploadDataURI(ctx context.Context, store Store, path, dataURI string) (*Uploaded, error) {
	contentType, data, err := ParseDataURI(dataURI)
	if err != nil {
		return nil, err
	}

	publicURL, err := store.Put(ctx, path, contentType, data)
	if err != nil {
		return nil, err
	}

	return &Uploaded{
		Path:        path,
		URL:         publicURL,
		ContentType: contentType,
		Size:        len(data),
	}, nil
}

// ParseDataURI accepts data:<mime>;base64,<payload> for the allowed upload
// types and returns the normalized content type.
func ParseDataURI(dataURI string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(dataURI, "data:")
	if !ok {
		return "", nil, ErrInvalidDataURI
	}

	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, ErrInvalidDataURI
	}

	declared, ok := strings.CutSuffix(meta, ";base64")
	if !ok {
		return "", nil, fmt.Errorf("%w: only base64 payloads are supported", ErrInvalidDataURI)
	}
	contentType, err := allowedType(declared)
	if err != nil {
		return "", nil, err
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrInvalidDataURI, err)
	}
	if len(data) == 0 {
		return "", nil, fmt.Errorf("%w: empty payload", ErrInvalidDataURI)
	}

	return contentType, data, nil
}

func allowedType(declared string) (string, error) {
	if declared == "" {
		return "", fmt.Errorf("%w: missing content type", ErrInvalidDataURI)
	}
	mediaType, _, err := mime.ParseMediaType(declared)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidDataURI, err)
	}
	if !allowedTypes[mediaType] {
		return "", fmt.Errorf("%w: content type %s is not allowed", ErrInvalidDataURI, mediaType)
	}
	return mediaType, nil
}

// Inline reports whether contentType is safe to render in the browser.
func Inline(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	return err == nil && inlineTypes[mediaType]
}

// SanitizeName reduces an uploaded file name to a safe single path segment.
func SanitizeName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	clean := strings.Trim(b.String(), ".")
	if clean == "" {
		return "file"
	}
	return clean
}

// PublicURL builds the address the storefront serves path from.
func PublicURL(baseURL, path string) string {
	segments := strings.Split(path, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.TrimSuffix(baseURL, "/") + "/files/" + strings.Join(segments, "/")
}
