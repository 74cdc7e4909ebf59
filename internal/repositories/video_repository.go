package repositories

import (
	"context"

	"github.com/otogram/backend/internal/models"
)

// VideoRepository exposes data access for videos, replies and likes.
type VideoRepository interface {
	Create(ctx context.Context, video models.Video) error
	FindByID(ctx context.Context, id string) (models.Video, error)
	// ListTopLevel returns every non-reply video, newest first.
	ListTopLevel(ctx context.Context) ([]models.Video, error)
	// ListByOwner returns the owner's non-reply videos, newest first.
	ListByOwner(ctx context.Context, ownerID string) ([]models.Video, error)
	// ListReplies returns the direct replies of the given parents, oldest first.
	ListReplies(ctx context.Context, parentIDs []string) ([]models.Video, error)
	// ListLikedBy returns videos the user liked, most recently liked first.
	ListLikedBy(ctx context.Context, userID string) ([]models.Video, error)
	// Likes maps each video id to the ids of users who liked it.
	Likes(ctx context.Context, videoIDs []string) (map[string][]string, error)
	// ToggleLike flips the user's like and reports the new state and count.
	ToggleLike(ctx context.Context, videoID, userID string) (bool, int, error)
	IncrementViews(ctx context.Context, id string) (int64, error)
	// Delete removes the video record; replies and likes go with it.
	Delete(ctx context.Context, id string) error
	ReferencedFileIDs(ctx context.Context) ([]string, error)
}
