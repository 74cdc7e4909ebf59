// Package feed assembles videos, their owners, likes and replies into the
// views served by the API, and applies the content mutation rules.
package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/otogram/backend/internal/auth"
	"github.com/otogram/backend/internal/logging"
	"github.com/otogram/backend/internal/media"
	"github.com/otogram/backend/internal/metrics"
	"github.com/otogram/backend/internal/models"
	"github.com/otogram/backend/internal/repositories"
)

// UserStore is the subset of the user repository the feed reads.
type UserStore interface {
	FindByIDs(ctx context.Context, ids []string) (map[string]models.User, error)
	FindByUsername(ctx context.Context, username string) (models.User, error)
}

// VideoStore is the subset of the video repository the feed uses.
type VideoStore interface {
	Create(ctx context.Context, video models.Video) error
	FindByID(ctx context.Context, id string) (models.Video, error)
	ListTopLevel(ctx context.Context) ([]models.Video, error)
	ListByOwner(ctx context.Context, ownerID string) ([]models.Video, error)
	ListReplies(ctx context.Context, parentIDs []string) ([]models.Video, error)
	ListLikedBy(ctx context.Context, userID string) ([]models.Video, error)
	Likes(ctx context.Context, videoIDs []string) (map[string][]string, error)
	ToggleLike(ctx context.Context, videoID, userID string) (bool, int, error)
	IncrementViews(ctx context.Context, id string) (int64, error)
	Delete(ctx context.Context, id string) error
}

// BlobDeleter removes stored media. Missing blobs yield media.ErrFileNotFound.
type BlobDeleter interface {
	Delete(ctx context.Context, fileID string) error
}

// NewVideo carries the inputs for creating content.
type NewVideo struct {
	OwnerID     string
	Video       media.StoredFile
	Thumbnail   *media.StoredFile
	Description string
	// ParentID makes the content a reply.
	ParentID string
}

// Service implements the feed operations.
type Service struct {
	users  UserStore
	videos VideoStore
	blobs  BlobDeleter

	NowFunc func() time.Time
	NewID   func() string
}

// NewService constructs a feed Service.
func NewService(users UserStore, videos VideoStore, blobs BlobDeleter) *Service {
	return &Service{users: users, videos: videos, blobs: blobs}
}

func (s *Service) now() time.Time {
	if s.NowFunc != nil {
		return s.NowFunc()
	}
	return time.Now().UTC()
}

func (s *Service) newID() string {
	if s.NewID != nil {
		return s.NewID()
	}
	return uuid.NewString()
}

// ListFeed returns every top level video, newest first, with owners, likes and replies.
func (s *Service) ListFeed(ctx context.Context) ([]models.FeedEntry, error) {
	ctx, span := logging.StartSpan(ctx, "feed.list")
	defer span.End()

	videos, err := s.videos.ListTopLevel(ctx)
	if err != nil {
		return nil, fmt.Errorf("list feed: %w", err)
	}
	return s.expand(ctx, videos, true)
}

// GetEntry returns one video with its replies.
func (s *Service) GetEntry(ctx context.Context, id string) (models.FeedEntry, error) {
	video, err := s.findVideo(ctx, id)
	if err != nil {
		return models.FeedEntry{}, err
	}
	entries, err := s.expand(ctx, []models.Video{video}, !video.IsReply)
	if err != nil {
		return models.FeedEntry{}, err
	}
	return entries[0], nil
}

// GetProfile returns a user's public profile, top level videos and stats.
func (s *Service) GetProfile(ctx context.Context, username string) (models.Profile, error) {
	ctx, span := logging.StartSpan(ctx, "feed.profile")
	defer span.End()

	user, err := s.users.FindByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return models.Profile{}, ErrUserNotFound
		}
		return models.Profile{}, fmt.Errorf("find profile user: %w", err)
	}

	videos, err := s.videos.ListByOwner(ctx, user.ID)
	if err != nil {
		return models.Profile{}, fmt.Errorf("list profile videos: %w", err)
	}
	entries, err := s.expand(ctx, videos, true)
	if err != nil {
		return models.Profile{}, err
	}

	stats := models.ProfileStats{VideosCount: len(entries)}
	for _, entry := range entries {
		stats.TotalLikes += entry.LikesCount
	}

	return models.Profile{User: user.Public(), Videos: entries, Stats: stats}, nil
}

// ListLiked returns the videos a user liked, most recent like first.
func (s *Service) ListLiked(ctx context.Context, userID string) ([]models.FeedEntry, error) {
	videos, err := s.videos.ListLikedBy(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list liked videos: %w", err)
	}
	return s.expand(ctx, videos, false)
}

// ToggleLike adds the user's like or removes it when already present.
func (s *Service) ToggleLike(ctx context.Context, videoID, userID string) (models.LikeResult, error) {
	ctx, span := logging.StartSpan(ctx, "feed.toggle_like")
	defer span.End()

	if _, err := s.findVideo(ctx, videoID); err != nil {
		return models.LikeResult{}, err
	}

	liked, count, err := s.videos.ToggleLike(ctx, videoID, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return models.LikeResult{}, ErrVideoNotFound
		}
		return models.LikeResult{}, fmt.Errorf("toggle like: %w", err)
	}
	metrics.RecordLikeToggle(liked)
	return models.LikeResult{Liked: liked, Likes: count}, nil
}

// RecordView increments the view counter and returns the new value.
func (s *Service) RecordView(ctx context.Context, videoID string) (int64, error) {
	views, err := s.videos.IncrementViews(ctx, videoID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return 0, ErrVideoNotFound
		}
		return 0, fmt.Errorf("record view: %w", err)
	}
	return views, nil
}

// ReplyTarget checks that a video can receive replies.
func (s *Service) ReplyTarget(ctx context.Context, parentID string) (models.Video, error) {
	parent, err := s.findVideo(ctx, parentID)
	if err != nil {
		return models.Video{}, err
	}
	if parent.IsReply {
		return models.Video{}, ErrParentIsReply
	}
	return parent, nil
}

// ValidateDescription enforces the description length limit in characters.
func ValidateDescription(description string) error {
	if utf8.RuneCountInString(description) > models.MaxDescriptionLength {
		return ErrDescriptionTooLong
	}
	return nil
}

// CreateVideo stores new content, top level or a reply, and returns it expanded.
func (s *Service) CreateVideo(ctx context.Context, in NewVideo) (models.FeedEntry, error) {
	ctx, span := logging.StartSpan(ctx, "feed.create_video")
	defer span.End()

	if in.Video.FileID == "" {
		return models.FeedEntry{}, ErrMissingVideoFile
	}
	description := strings.TrimSpace(in.Description)
	if err := ValidateDescription(description); err != nil {
		return models.FeedEntry{}, err
	}
	if in.ParentID != "" {
		if _, err := s.ReplyTarget(ctx, in.ParentID); err != nil {
			return models.FeedEntry{}, err
		}
	}

	video := models.Video{
		ID:            s.newID(),
		OwnerID:       in.OwnerID,
		VideoFileID:   in.Video.FileID,
		VideoURL:      in.Video.URL,
		Description:   description,
		IsReply:       in.ParentID != "",
		ParentVideoID: in.ParentID,
		CreatedAt:     s.now(),
	}
	if in.Thumbnail != nil {
		video.ThumbnailFileID = in.Thumbnail.FileID
		video.ThumbnailURL = in.Thumbnail.URL
	}

	if err := s.videos.Create(ctx, video); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			// The parent or owner vanished between the check and the insert.
			return models.FeedEntry{}, ErrVideoNotFound
		}
		return models.FeedEntry{}, fmt.Errorf("create video: %w", err)
	}

	logging.FromContext(ctx).Info("video created",
		slog.String("video_id", video.ID),
		slog.Bool("is_reply", video.IsReply),
	)

	entries, err := s.expand(ctx, []models.Video{video}, false)
	if err != nil {
		return models.FeedEntry{}, err
	}
	return entries[0], nil
}

// DeleteContent removes a video, its replies and their media. Only the owner
// or an admin may delete. Reply media and thumbnail failures are logged and
// skipped; a failure removing the video blob itself keeps the record in place.
func (s *Service) DeleteContent(ctx context.Context, videoID string, actor auth.Identity) error {
	ctx, span := logging.StartSpan(ctx, "feed.delete")
	defer span.End()
	logger := logging.FromContext(ctx).With(slog.String("video_id", videoID))

	video, err := s.findVideo(ctx, videoID)
	if err != nil {
		return err
	}
	if video.OwnerID != actor.UserID && actor.Role != models.RoleAdmin {
		return ErrForbidden
	}

	replies, err := s.collectReplies(ctx, video.ID)
	if err != nil {
		return err
	}
	for _, reply := range replies {
		for _, fileID := range mediaFiles(reply) {
			if err := s.blobs.Delete(ctx, fileID); err != nil {
				logger.Warn("delete reply media",
					slog.String("reply_id", reply.ID),
					slog.String("file_id", fileID),
					slog.Any("error", err),
				)
			}
		}
		if err := s.videos.Delete(ctx, reply.ID); err != nil && !errors.Is(err, repositories.ErrNotFound) {
			return fmt.Errorf("delete reply %s: %w", reply.ID, err)
		}
	}

	// Thumbnail first and best effort; only a video blob failure keeps the record.
	if video.ThumbnailFileID != "" {
		if err := s.blobs.Delete(ctx, video.ThumbnailFileID); err != nil {
			logger.Warn("delete thumbnail",
				slog.String("file_id", video.ThumbnailFileID),
				slog.Any("error", err),
			)
		}
	}
	if video.VideoFileID != "" {
		if err := s.blobs.Delete(ctx, video.VideoFileID); err != nil {
			if !errors.Is(err, media.ErrFileNotFound) {
				return fmt.Errorf("delete video media: %w", err)
			}
			logger.Warn("video media already missing", slog.String("file_id", video.VideoFileID))
		}
	}

	if err := s.videos.Delete(ctx, video.ID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return ErrVideoNotFound
		}
		return fmt.Errorf("delete video: %w", err)
	}

	logger.Info("video deleted", slog.Int("replies", len(replies)))
	return nil
}

// collectReplies walks the reply tree below rootID, deepest replies first.
func (s *Service) collectReplies(ctx context.Context, rootID string) ([]models.Video, error) {
	var levels [][]models.Video
	frontier := []string{rootID}
	seen := map[string]bool{rootID: true}

	for len(frontier) > 0 {
		replies, err := s.videos.ListReplies(ctx, frontier)
		if err != nil {
			return nil, fmt.Errorf("list replies: %w", err)
		}
		var level []models.Video
		var next []string
		for _, reply := range replies {
			if seen[reply.ID] {
				continue
			}
			seen[reply.ID] = true
			level = append(level, reply)
			next = append(next, reply.ID)
		}
		frontier = next
		if len(level) > 0 {
			levels = append(levels, level)
		}
	}

	var ordered []models.Video
	for i := len(levels) - 1; i >= 0; i-- {
		ordered = append(ordered, levels[i]...)
	}
	return ordered, nil
}

func (s *Service) findVideo(ctx context.Context, id string) (models.Video, error) {
	video, err := s.videos.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return models.Video{}, ErrVideoNotFound
		}
		return models.Video{}, fmt.Errorf("find video: %w", err)
	}
	return video, nil
}

// expand attaches owners and likes to videos, and replies when withReplies is set.
func (s *Service) expand(ctx context.Context, videos []models.Video, withReplies bool) ([]models.FeedEntry, error) {
	entries := make([]models.FeedEntry, 0, len(videos))
	if len(videos) == 0 {
		return entries, nil
	}

	ids := make([]string, 0, len(videos))
	for _, v := range videos {
		ids = append(ids, v.ID)
	}

	var replies []models.Video
	if withReplies {
		var err error
		replies, err = s.videos.ListReplies(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("list replies: %w", err)
		}
	}

	all := make([]models.Video, 0, len(videos)+len(replies))
	all = append(all, videos...)
	all = append(all, replies...)

	allIDs := make([]string, 0, len(all))
	ownerSet := make(map[string]struct{})
	ownerIDs := make([]string, 0, len(all))
	for _, v := range all {
		allIDs = append(allIDs, v.ID)
		if _, ok := ownerSet[v.OwnerID]; !ok {
			ownerSet[v.OwnerID] = struct{}{}
			ownerIDs = append(ownerIDs, v.OwnerID)
		}
	}

	likes, err := s.videos.Likes(ctx, allIDs)
	if err != nil {
		return nil, fmt.Errorf("load likes: %w", err)
	}
	owners, err := s.users.FindByIDs(ctx, ownerIDs)
	if err != nil {
		return nil, fmt.Errorf("load owners: %w", err)
	}

	build := func(v models.Video) models.FeedEntry {
		owner, ok := owners[v.OwnerID]
		if !ok {
			owner = models.User{ID: v.OwnerID, ProfileImage: models.DefaultProfileImage}
		}
		userLikes := likes[v.ID]
		if userLikes == nil {
			userLikes = []string{}
		}
		return models.FeedEntry{
			Video:      v,
			Owner:      owner.Public(),
			Likes:      userLikes,
			LikesCount: len(userLikes),
			Replies:    []models.FeedEntry{},
		}
	}

	repliesByParent := make(map[string][]models.FeedEntry)
	for _, r := range replies {
		repliesByParent[r.ParentVideoID] = append(repliesByParent[r.ParentVideoID], build(r))
	}

	for _, v := range videos {
		entry := build(v)
		if replies, ok := repliesByParent[v.ID]; ok {
			entry.Replies = replies
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func mediaFiles(v models.Video) []string {
	files := make([]string, 0, 2)
	if v.VideoFileID != "" {
		files = append(files, v.VideoFileID)
	}
	if v.ThumbnailFileID != "" {
		files = append(files, v.ThumbnailFileID)
	}
	return files
}
