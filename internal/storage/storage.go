// Package storage hands out presigned URLs for user uploads kept in object storage.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Default expiry duration for presigned URLs
const DefaultPresignedURLExpiry = 15 * time.Minute

const avatarPrefix = "avatars/"

var (
	ErrUnsupportedContentType = errors.New("unsupported content type")
	ErrForeignObjectKey       = errors.New("object key does not belong to user")
)

var avatarExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

// FileStorage defines the interface for object storage operations.
type FileStorage interface {
	// GeneratePresignedUploadURL creates a temporary URL that allows PUT requests
	// for uploading an object directly to the storage provider.
	GeneratePresignedUploadURL(ctx context.Context, objectKey string, contentType string, expires time.Duration) (string, error)

	// ObjectExists reports whether the object has been uploaded.
	ObjectExists(ctx context.Context, objectKey string) (bool, error)

	// DeleteObject removes an object from the storage provider.
	DeleteObject(ctx context.Context, objectKey string) error
}

// NewAvatarKey builds a fresh object key for a user's avatar.
func NewAvatarKey(userID, contentType string) (string, error) {
	ext, ok := avatarExtensions[strings.ToLower(contentType)]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedContentType, contentType)
	}
	return avatarPrefix + userID + "/" + uuid.NewString() + ext, nil
}

// CheckAvatarKey rejects keys outside the user's avatar prefix.
func CheckAvatarKey(userID, objectKey string) error {
	prefix := avatarPrefix + userID + "/"
	if !strings.HasPrefix(objectKey, prefix) || len(objectKey) == len(prefix) || strings.Contains(objectKey, "..") {
		return ErrForeignObjectKey
	}
	return nil
}

// PublicURL joins the public base URL and an object key.
func PublicURL(base, objectKey string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(objectKey, "/")
}
