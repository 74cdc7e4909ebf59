package handlers

import (
	"context"
	"net/http"

	"github.com/otogram/backend/internal/auth"
	"github.com/otogram/backend/internal/feed"
	"github.com/otogram/backend/internal/media"
	"github.com/otogram/backend/internal/models"
	"github.com/otogram/backend/internal/storage"
)

// UserStore captures the persistence operations required by the account handlers.
type UserStore interface {
	Create(ctx context.Context, user models.User) error
	FindByID(ctx context.Context, id string) (models.User, error)
	FindByEmail(ctx context.Context, email string) (models.User, error)
	FindByUsername(ctx context.Context, username string) (models.User, error)
	List(ctx context.Context) ([]models.User, error)
	UpdateRole(ctx context.Context, id string, role models.Role) (models.User, error)
	UpdateProfileImage(ctx context.Context, id, imageURL, fileID string) (models.User, error)
}

// TokenService issues and verifies bearer tokens.
type TokenService interface {
	Issue(userID string, role models.Role) (string, error)
	Verify(token string) (auth.Identity, error)
}

// FeedService assembles and mutates video content.
type FeedService interface {
	ListFeed(ctx context.Context) ([]models.FeedEntry, error)
	GetEntry(ctx context.Context, id string) (models.FeedEntry, error)
	GetProfile(ctx context.Context, username string) (models.Profile, error)
	ListLiked(ctx context.Context, userID string) ([]models.FeedEntry, error)
	ToggleLike(ctx context.Context, videoID, userID string) (models.LikeResult, error)
	RecordView(ctx context.Context, videoID string) (int64, error)
	ReplyTarget(ctx context.Context, parentID string) (models.Video, error)
	CreateVideo(ctx context.Context, in feed.NewVideo) (models.FeedEntry, error)
	DeleteContent(ctx context.Context, videoID string, actor auth.Identity) error
}

// MediaStore receives uploads and serves stored blobs.
type MediaStore interface {
	Receive(r *http.Request, kinds map[string]media.Kind) (media.Upload, error)
	Discard(ctx context.Context, upload media.Upload)
	Remove(ctx context.Context, fileID string)
	Open(ctx context.Context, fileID string) (storage.Object, error)
}

// HealthChecker reports whether the record store is reachable.
type HealthChecker interface {
	Ping(ctx context.Context) error
}
