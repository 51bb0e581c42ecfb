package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"trainsync/internal/domain"
	"trainsync/internal/storage"
	"trainsync/internal/store"
)

var ErrAvatarNotUploaded = errors.New("avatar has not been uploaded")

// UploadTicket tells the client where to PUT the avatar and what to confirm afterwards.
type UploadTicket struct {
	UploadURL   string    `json:"uploadUrl"`
	ObjectKey   string    `json:"objectKey"`
	ContentType string    `json:"contentType"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

type AvatarService interface {
	RequestUploadURL(ctx context.Context, userID, contentType string) (*UploadTicket, error)
	// Confirm checks the object exists and points the user's avatar at it.
	Confirm(ctx context.Context, users *store.UserStore, objectKey string) (*domain.User, error)
}

type avatarService struct {
	files     storage.FileStorage
	publicURL string
	expires   time.Duration
	log       *zap.Logger
}

func NewAvatarService(files storage.FileStorage, publicURL string, log *zap.Logger) AvatarService {
	if log == nil {
		log = zap.NewNop()
	}
	return &avatarService{
		files:     files,
		publicURL: publicURL,
		expires:   storage.DefaultPresignedURLExpiry,
		log:       log,
	}
}

func (s *avatarService) RequestUploadURL(ctx context.Context, userID, contentType string) (*UploadTicket, error) {
	key, err := storage.NewAvatarKey(userID, contentType)
	if err != nil {
		return nil, err
	}
	url, err := s.files.GeneratePresignedUploadURL(ctx, key, contentType, s.expires)
	if err != nil {
		return nil, fmt.Errorf("presign avatar upload: %w", err)
	}
	return &UploadTicket{
		UploadURL:   url,
		ObjectKey:   key,
		ContentType: contentType,
		ExpiresAt:   time.Now().UTC().Add(s.expires),
	}, nil
}

func (s *avatarService) Confirm(ctx context.Context, users *store.UserStore, objectKey string) (*domain.User, error) {
	current := users.User()
	if current == nil {
		return nil, store.ErrNotInitialized
	}
	if err := storage.CheckAvatarKey(current.ID, objectKey); err != nil {
		return nil, err
	}

	exists, err := s.files.ObjectExists(ctx, objectKey)
	if err != nil {
		return nil, fmt.Errorf("check avatar object: %w", err)
	}
	if !exists {
		return nil, ErrAvatarNotUploaded
	}

	avatar := storage.PublicURL(s.publicURL, objectKey)
	updated, err := users.UpdateProfile(ctx, domain.ProfileUpdate{Avatar: &avatar})
	if err != nil {
		return updated, err
	}
	s.log.Info("avatar updated", zap.String("user_id", current.ID), zap.String("key", objectKey))

	// Remove the previous upload; the VK photo URL is not ours to delete.
	if old, ok := strings.CutPrefix(current.Avatar, strings.TrimRight(s.publicURL, "/")+"/"); ok && old != objectKey {
		if storage.CheckAvatarKey(current.ID, old) == nil {
			if err := s.files.DeleteObject(ctx, old); err != nil {
				s.log.Warn("failed to delete previous avatar", zap.String("key", old), zap.Error(err))
			}
		}
	}
	return updated, nil
}
