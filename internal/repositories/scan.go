package repositories

import (
	"database/sql"

	"github.com/otogram/backend/internal/models"
)

// rowScanner is satisfied by pgx and database/sql rows alike.
type rowScanner interface {
	Scan(dest ...any) error
}

const userColumns = `id, username, email, password_hash, role, profile_image, profile_image_file_id, created_at, updated_at`

const videoColumns = `id, owner_id, video_file_id, video_url, thumbnail_file_id, thumbnail_url, description, parent_video_id, views, created_at`

func nullableParent(video models.Video) sql.NullString {
	if video.ParentVideoID == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: video.ParentVideoID, Valid: true}
}

func applyParent(video *models.Video, parent sql.NullString) {
	if parent.Valid && parent.String != "" {
		video.ParentVideoID = parent.String
		video.IsReply = true
	}
}
