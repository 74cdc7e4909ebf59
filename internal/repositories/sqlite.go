package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/otogram/backend/internal/models"
)

// sqliteTimeLayout is fixed width so lexical order matches time order.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

func parseTime(raw string) (time.Time, error) {
	t, err := time.Parse(sqliteTimeLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", raw, err)
	}
	return t.UTC(), nil
}

func isSQLiteConstraint(err error, code int) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	if sqliteErr.Code() == code {
		return true
	}
	// Connections without extended result codes only report the primary class.
	if sqliteErr.Code()&0xff != sqlite3.SQLITE_CONSTRAINT {
		return false
	}
	switch code {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return strings.Contains(sqliteErr.Error(), "UNIQUE")
	case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
		return strings.Contains(sqliteErr.Error(), "FOREIGN KEY")
	}
	return false
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func stringArgs(values []string) []any {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}

// SQLiteUserRepository stores users in the embedded SQLite database.
type SQLiteUserRepository struct {
	db *sql.DB
}

// NewSQLiteUserRepository constructs a user repository backed by SQLite.
func NewSQLiteUserRepository(db *sql.DB) *SQLiteUserRepository {
	return &SQLiteUserRepository{db: db}
}

// Create persists a new user record.
func (r *SQLiteUserRepository) Create(ctx context.Context, user models.User) error {
	_, err := r.db.ExecContext(ctx, `
        INSERT INTO users (`+userColumns+`)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
    `, user.ID, user.Username, user.Email, user.Password, string(user.Role), user.ProfileImage, user.ProfileImageFileID, formatTime(user.CreatedAt), formatTime(user.UpdatedAt))
	if err != nil {
		if isSQLiteConstraint(err, sqlite3.SQLITE_CONSTRAINT_UNIQUE) || isSQLiteConstraint(err, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY) {
			return ErrConflict
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// FindByID fetches a user by primary key.
func (r *SQLiteUserRepository) FindByID(ctx context.Context, id string) (models.User, error) {
	return r.findOne(ctx, "id", id)
}

// FindByEmail fetches a user by their email address.
func (r *SQLiteUserRepository) FindByEmail(ctx context.Context, email string) (models.User, error) {
	return r.findOne(ctx, "email", email)
}

// FindByUsername fetches a user by their username.
func (r *SQLiteUserRepository) FindByUsername(ctx context.Context, username string) (models.User, error) {
	return r.findOne(ctx, "username", username)
}

func (r *SQLiteUserRepository) findOne(ctx context.Context, column, value string) (models.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE `+column+` = ?`, value)
	user, err := scanSQLiteUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.User{}, ErrNotFound
		}
		return models.User{}, fmt.Errorf("select user by %s: %w", column, err)
	}
	return user, nil
}

// FindByIDs fetches the users with the given ids. Unknown ids are omitted.
func (r *SQLiteUserRepository) FindByIDs(ctx context.Context, ids []string) (map[string]models.User, error) {
	users := make(map[string]models.User, len(ids))
	if len(ids) == 0 {
		return users, nil
	}

	list, err := r.list(ctx, `SELECT `+userColumns+` FROM users WHERE id IN (`+placeholders(len(ids))+`)`, stringArgs(ids)...)
	if err != nil {
		return nil, err
	}
	for _, user := range list {
		users[user.ID] = user
	}
	return users, nil
}

// List returns every user, newest first.
func (r *SQLiteUserRepository) List(ctx context.Context) ([]models.User, error) {
	return r.list(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at DESC, id`)
}

func (r *SQLiteUserRepository) list(ctx context.Context, query string, args ...any) ([]models.User, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	users := []models.User{}
	for rows.Next() {
		user, err := scanSQLiteUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}

// UpdateRole sets the user's role and returns the updated record.
func (r *SQLiteUserRepository) UpdateRole(ctx context.Context, id string, role models.Role) (models.User, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET role = ?, updated_at = ? WHERE id = ?`, string(role), formatTime(time.Now()), id)
	if err != nil {
		return models.User{}, fmt.Errorf("update user role: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.User{}, ErrNotFound
	}
	return r.FindByID(ctx, id)
}

// UpdateProfileImage points the user at a newly stored avatar.
func (r *SQLiteUserRepository) UpdateProfileImage(ctx context.Context, id, imageURL, fileID string) (models.User, error) {
	res, err := r.db.ExecContext(ctx, `
        UPDATE users SET profile_image = ?, profile_image_file_id = ?, updated_at = ? WHERE id = ?
    `, imageURL, fileID, formatTime(time.Now()), id)
	if err != nil {
		return models.User{}, fmt.Errorf("update profile image: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.User{}, ErrNotFound
	}
	return r.FindByID(ctx, id)
}

// ReferencedFileIDs lists avatar blob ids still in use.
func (r *SQLiteUserRepository) ReferencedFileIDs(ctx context.Context) ([]string, error) {
	return queryStrings(ctx, r.db, `SELECT profile_image_file_id FROM users WHERE profile_image_file_id <> ''`)
}

func scanSQLiteUser(row rowScanner) (models.User, error) {
	var (
		user                 models.User
		role                 string
		createdAt, updatedAt string
	)
	if err := row.Scan(&user.ID, &user.Username, &user.Email, &user.Password, &role, &user.ProfileImage, &user.ProfileImageFileID, &createdAt, &updatedAt); err != nil {
		return models.User{}, err
	}
	user.Role = models.Role(role)

	var err error
	if user.CreatedAt, err = parseTime(createdAt); err != nil {
		return models.User{}, err
	}
	if user.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return models.User{}, err
	}
	return user, nil
}

// SQLiteVideoRepository stores videos and likes in the embedded SQLite database.
type SQLiteVideoRepository struct {
	db *sql.DB
}

// NewSQLiteVideoRepository constructs a video repository backed by SQLite.
func NewSQLiteVideoRepository(db *sql.DB) *SQLiteVideoRepository {
	return &SQLiteVideoRepository{db: db}
}

// Create stores a new video record.
func (r *SQLiteVideoRepository) Create(ctx context.Context, video models.Video) error {
	_, err := r.db.ExecContext(ctx, `
        INSERT INTO videos (`+videoColumns+`)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `, video.ID, video.OwnerID, video.VideoFileID, video.VideoURL, video.ThumbnailFileID, video.ThumbnailURL, video.Description, nullableParent(video), video.Views, formatTime(video.CreatedAt))
	if err != nil {
		switch {
		case isSQLiteConstraint(err, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY):
			return ErrConflict
		case isSQLiteConstraint(err, sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY):
			return ErrNotFound
		}
		return fmt.Errorf("insert video: %w", err)
	}
	return nil
}

// FindByID fetches a single video.
func (r *SQLiteVideoRepository) FindByID(ctx context.Context, id string) (models.Video, error) {
	video, err := scanSQLiteVideo(r.db.QueryRowContext(ctx, `SELECT `+videoColumns+` FROM videos WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Video{}, ErrNotFound
		}
		return models.Video{}, fmt.Errorf("select video: %w", err)
	}
	return video, nil
}

// ListTopLevel returns every non-reply video, newest first.
func (r *SQLiteVideoRepository) ListTopLevel(ctx context.Context) ([]models.Video, error) {
	return r.query(ctx, `
        SELECT `+videoColumns+` FROM videos
        WHERE parent_video_id IS NULL
        ORDER BY created_at DESC, id
    `)
}

// ListByOwner returns the owner's non-reply videos, newest first.
func (r *SQLiteVideoRepository) ListByOwner(ctx context.Context, ownerID string) ([]models.Video, error) {
	return r.query(ctx, `
        SELECT `+videoColumns+` FROM videos
        WHERE owner_id = ? AND parent_video_id IS NULL
        ORDER BY created_at DESC, id
    `, ownerID)
}

// ListReplies returns the replies of every given parent, oldest first.
func (r *SQLiteVideoRepository) ListReplies(ctx context.Context, parentIDs []string) ([]models.Video, error) {
	if len(parentIDs) == 0 {
		return []models.Video{}, nil
	}
	return r.query(ctx, `
        SELECT `+videoColumns+` FROM videos
        WHERE parent_video_id IN (`+placeholders(len(parentIDs))+`)
        ORDER BY created_at ASC, id
    `, stringArgs(parentIDs)...)
}

// ListLikedBy returns the videos the user liked, most recent like first.
func (r *SQLiteVideoRepository) ListLikedBy(ctx context.Context, userID string) ([]models.Video, error) {
	return r.query(ctx, `
        SELECT v.id, v.owner_id, v.video_file_id, v.video_url, v.thumbnail_file_id, v.thumbnail_url,
               v.description, v.parent_video_id, v.views, v.created_at
        FROM video_likes l
        JOIN videos v ON v.id = l.video_id
        WHERE l.user_id = ?
        ORDER BY l.created_at DESC, v.id
    `, userID)
}

func (r *SQLiteVideoRepository) query(ctx context.Context, query string, args ...any) ([]models.Video, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query videos: %w", err)
	}
	defer rows.Close()

	videos := []models.Video{}
	for rows.Next() {
		video, err := scanSQLiteVideo(rows)
		if err != nil {
			return nil, fmt.Errorf("scan video: %w", err)
		}
		videos = append(videos, video)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate videos: %w", err)
	}
	return videos, nil
}

// Likes maps each video id to the users who liked it, in like order.
func (r *SQLiteVideoRepository) Likes(ctx context.Context, videoIDs []string) (map[string][]string, error) {
	likes := make(map[string][]string, len(videoIDs))
	if len(videoIDs) == 0 {
		return likes, nil
	}

	rows, err := r.db.QueryContext(ctx, `
        SELECT video_id, user_id FROM video_likes
        WHERE video_id IN (`+placeholders(len(videoIDs))+`)
        ORDER BY created_at ASC, user_id
    `, stringArgs(videoIDs)...)
	if err != nil {
		return nil, fmt.Errorf("query likes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var videoID, userID string
		if err := rows.Scan(&videoID, &userID); err != nil {
			return nil, fmt.Errorf("scan like: %w", err)
		}
		likes[videoID] = append(likes[videoID], userID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate likes: %w", err)
	}
	return likes, nil
}

// ToggleLike removes the user's like when present and adds it otherwise.
func (r *SQLiteVideoRepository) ToggleLike(ctx context.Context, videoID, userID string) (bool, int, error) {
	var exists int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM videos WHERE id = ?`, videoID).Scan(&exists); err != nil {
		return false, 0, fmt.Errorf("check video: %w", err)
	}
	if exists == 0 {
		return false, 0, ErrNotFound
	}

	res, err := r.db.ExecContext(ctx, `DELETE FROM video_likes WHERE video_id = ? AND user_id = ?`, videoID, userID)
	if err != nil {
		return false, 0, fmt.Errorf("remove like: %w", err)
	}

	liked := false
	if n, _ := res.RowsAffected(); n == 0 {
		_, err = r.db.ExecContext(ctx, `
            INSERT INTO video_likes (video_id, user_id, created_at) VALUES (?, ?, ?)
            ON CONFLICT (video_id, user_id) DO NOTHING
        `, videoID, userID, formatTime(time.Now()))
		if err != nil {
			if isSQLiteConstraint(err, sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY) {
				return false, 0, ErrNotFound
			}
			return false, 0, fmt.Errorf("add like: %w", err)
		}
		liked = true
	}

	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM video_likes WHERE video_id = ?`, videoID).Scan(&count); err != nil {
		return false, 0, fmt.Errorf("count likes: %w", err)
	}
	return liked, count, nil
}

// IncrementViews bumps the view counter and returns the new total.
func (r *SQLiteVideoRepository) IncrementViews(ctx context.Context, id string) (int64, error) {
	var views int64
	err := r.db.QueryRowContext(ctx, `UPDATE videos SET views = views + 1 WHERE id = ? RETURNING views`, id).Scan(&views)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("increment views: %w", err)
	}
	return views, nil
}

// Delete removes the video. Replies and likes cascade.
func (r *SQLiteVideoRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM videos WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete video: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ReferencedFileIDs lists video and thumbnail blob ids still in use.
func (r *SQLiteVideoRepository) ReferencedFileIDs(ctx context.Context) ([]string, error) {
	return queryStrings(ctx, r.db, `
        SELECT video_file_id FROM videos
        UNION
        SELECT thumbnail_file_id FROM videos WHERE thumbnail_file_id <> ''
    `)
}

func scanSQLiteVideo(row rowScanner) (models.Video, error) {
	var (
		video     models.Video
		parent    sql.NullString
		createdAt string
	)
	if err := row.Scan(&video.ID, &video.OwnerID, &video.VideoFileID, &video.VideoURL, &video.ThumbnailFileID, &video.ThumbnailURL, &video.Description, &parent, &video.Views, &createdAt); err != nil {
		return models.Video{}, err
	}
	applyParent(&video, parent)

	var err error
	if video.CreatedAt, err = parseTime(createdAt); err != nil {
		return models.Video{}, err
	}
	return video, nil
}

func queryStrings(ctx context.Context, db *sql.DB, query string) ([]string, error) {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query file ids: %w", err)
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan file id: %w", err)
		}
		values = append(values, v)
	}
	return values, rows.Err()
}

var _ UserRepository = (*SQLiteUserRepository)(nil)
var _ VideoRepository = (*SQLiteVideoRepository)(nil)
