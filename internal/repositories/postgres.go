package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/otogram/backend/internal/db"
	"github.com/otogram/backend/internal/models"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

func pgErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// PostgresUserRepository provides PostgreSQL-backed persistence for users.
type PostgresUserRepository struct {
	pool db.Pool
}

// NewPostgresUserRepository constructs a user repository backed by PostgreSQL.
func NewPostgresUserRepository(pool db.Pool) *PostgresUserRepository {
	return &PostgresUserRepository{pool: pool}
}

// Create persists a new user record.
func (r *PostgresUserRepository) Create(ctx context.Context, user models.User) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO users (`+userColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
    `, user.ID, user.Username, user.Email, user.Password, string(user.Role), user.ProfileImage, user.ProfileImageFileID, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		if pgErrorCode(err) == pgUniqueViolation {
			return ErrConflict
		}
		return fmt.Errorf("insert user: %w", err)
	}

	return nil
}

// FindByID fetches a user by primary key.
func (r *PostgresUserRepository) FindByID(ctx context.Context, id string) (models.User, error) {
	return r.findOne(ctx, "id", id)
}

// FindByEmail fetches a user by their email address.
func (r *PostgresUserRepository) FindByEmail(ctx context.Context, email string) (models.User, error) {
	return r.findOne(ctx, "email", email)
}

// FindByUsername fetches a user by their username.
func (r *PostgresUserRepository) FindByUsername(ctx context.Context, username string) (models.User, error) {
	return r.findOne(ctx, "username", username)
}

func (r *PostgresUserRepository) findOne(ctx context.Context, column, value string) (models.User, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.User{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE `+column+` = $1`, value)

	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, ErrNotFound
		}
		return models.User{}, fmt.Errorf("select user by %s: %w", column, err)
	}

	return user, nil
}

// FindByIDs fetches the users with the given ids. Unknown ids are omitted.
func (r *PostgresUserRepository) FindByIDs(ctx context.Context, ids []string) (map[string]models.User, error) {
	users := make(map[string]models.User, len(ids))
	if len(ids) == 0 {
		return users, nil
	}

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `SELECT `+userColumns+` FROM users WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("query users by id: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users[user.ID] = user
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}

	return users, nil
}

// List returns every user, newest first.
func (r *PostgresUserRepository) List(ctx context.Context) ([]models.User, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	users := []models.User{}
	for rows.Next() {
		user, err := scanUser(rows)
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
func (r *PostgresUserRepository) UpdateRole(ctx context.Context, id string, role models.Role) (models.User, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.User{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        UPDATE users
        SET role = $2, updated_at = $3
        WHERE id = $1
        RETURNING `+userColumns, id, string(role), time.Now().UTC())

	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, ErrNotFound
		}
		return models.User{}, fmt.Errorf("update user role: %w", err)
	}

	return user, nil
}

// UpdateProfileImage points the user at a newly stored avatar.
func (r *PostgresUserRepository) UpdateProfileImage(ctx context.Context, id, imageURL, fileID string) (models.User, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.User{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        UPDATE users
        SET profile_image = $2, profile_image_file_id = $3, updated_at = $4
        WHERE id = $1
        RETURNING `+userColumns, id, imageURL, fileID, time.Now().UTC())

	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, ErrNotFound
		}
		return models.User{}, fmt.Errorf("update profile image: %w", err)
	}

	return user, nil
}

// ReferencedFileIDs lists avatar blob ids still in use.
func (r *PostgresUserRepository) ReferencedFileIDs(ctx context.Context) ([]string, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `SELECT profile_image_file_id FROM users WHERE profile_image_file_id <> ''`)
	if err != nil {
		return nil, fmt.Errorf("query avatar file ids: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func scanUser(row rowScanner) (models.User, error) {
	var (
		user models.User
		role string
	)
	if err := row.Scan(&user.ID, &user.Username, &user.Email, &user.Password, &role, &user.ProfileImage, &user.ProfileImageFileID, &user.CreatedAt, &user.UpdatedAt); err != nil {
		return models.User{}, err
	}
	user.Role = models.Role(role)
	user.CreatedAt = user.CreatedAt.UTC()
	user.UpdatedAt = user.UpdatedAt.UTC()
	return user, nil
}

// PostgresVideoRepository provides PostgreSQL-backed persistence for videos and likes.
type PostgresVideoRepository struct {
	pool db.Pool
}

// NewPostgresVideoRepository constructs a video repository backed by PostgreSQL.
func NewPostgresVideoRepository(pool db.Pool) *PostgresVideoRepository {
	return &PostgresVideoRepository{pool: pool}
}

// Create stores a new video record.
func (r *PostgresVideoRepository) Create(ctx context.Context, video models.Video) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO videos (`+videoColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
    `, video.ID, video.OwnerID, video.VideoFileID, video.VideoURL, video.ThumbnailFileID, video.ThumbnailURL, video.Description, nullableParent(video), video.Views, video.CreatedAt)
	if err != nil {
		switch pgErrorCode(err) {
		case pgUniqueViolation:
			return ErrConflict
		case pgForeignKeyViolation:
			return ErrNotFound
		}
		return fmt.Errorf("insert video: %w", err)
	}

	return nil
}

// FindByID fetches a single video.
func (r *PostgresVideoRepository) FindByID(ctx context.Context, id string) (models.Video, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Video{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	video, err := scanVideo(conn.QueryRow(ctx, `SELECT `+videoColumns+` FROM videos WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Video{}, ErrNotFound
		}
		return models.Video{}, fmt.Errorf("select video: %w", err)
	}

	return video, nil
}

// ListTopLevel returns every non-reply video, newest first.
func (r *PostgresVideoRepository) ListTopLevel(ctx context.Context) ([]models.Video, error) {
	return r.query(ctx, "list videos", `
        SELECT `+videoColumns+`
        FROM videos
        WHERE parent_video_id IS NULL
        ORDER BY created_at DESC, id
    `)
}

// ListByOwner returns the owner's non-reply videos, newest first.
func (r *PostgresVideoRepository) ListByOwner(ctx context.Context, ownerID string) ([]models.Video, error) {
	return r.query(ctx, "list videos by owner", `
        SELECT `+videoColumns+`
        FROM videos
        WHERE owner_id = $1 AND parent_video_id IS NULL
        ORDER BY created_at DESC, id
    `, ownerID)
}

// ListReplies returns the replies of every given parent, oldest first.
func (r *PostgresVideoRepository) ListReplies(ctx context.Context, parentIDs []string) ([]models.Video, error) {
	if len(parentIDs) == 0 {
		return []models.Video{}, nil
	}
	return r.query(ctx, "list replies", `
        SELECT `+videoColumns+`
        FROM videos
        WHERE parent_video_id = ANY($1)
        ORDER BY created_at ASC, id
    `, parentIDs)
}

// ListLikedBy returns the videos the user liked, most recent like first.
func (r *PostgresVideoRepository) ListLikedBy(ctx context.Context, userID string) ([]models.Video, error) {
	return r.query(ctx, "list liked videos", `
        SELECT v.id, v.owner_id, v.video_file_id, v.video_url, v.thumbnail_file_id, v.thumbnail_url,
               v.description, v.parent_video_id, v.views, v.created_at
        FROM video_likes l
        JOIN videos v ON v.id = l.video_id
        WHERE l.user_id = $1
        ORDER BY l.created_at DESC, v.id
    `, userID)
}

func (r *PostgresVideoRepository) query(ctx context.Context, op, sqlText string, args ...any) ([]models.Video, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, sqlText, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	videos := []models.Video{}
	for rows.Next() {
		video, err := scanVideo(rows)
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
func (r *PostgresVideoRepository) Likes(ctx context.Context, videoIDs []string) (map[string][]string, error) {
	likes := make(map[string][]string, len(videoIDs))
	if len(videoIDs) == 0 {
		return likes, nil
	}

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT video_id, user_id
        FROM video_likes
        WHERE video_id = ANY($1)
        ORDER BY created_at ASC, user_id
    `, videoIDs)
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
func (r *PostgresVideoRepository) ToggleLike(ctx context.Context, videoID, userID string) (bool, int, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return false, 0, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var exists bool
	if err := conn.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM videos WHERE id = $1)`, videoID).Scan(&exists); err != nil {
		return false, 0, fmt.Errorf("check video: %w", err)
	}
	if !exists {
		return false, 0, ErrNotFound
	}

	tag, err := conn.Exec(ctx, `DELETE FROM video_likes WHERE video_id = $1 AND user_id = $2`, videoID, userID)
	if err != nil {
		return false, 0, fmt.Errorf("remove like: %w", err)
	}

	liked := false
	if tag.RowsAffected() == 0 {
		_, err = conn.Exec(ctx, `
            INSERT INTO video_likes (video_id, user_id, created_at)
            VALUES ($1, $2, $3)
            ON CONFLICT (video_id, user_id) DO NOTHING
        `, videoID, userID, time.Now().UTC())
		if err != nil {
			if pgErrorCode(err) == pgForeignKeyViolation {
				return false, 0, ErrNotFound
			}
			return false, 0, fmt.Errorf("add like: %w", err)
		}
		liked = true
	}

	var count int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM video_likes WHERE video_id = $1`, videoID).Scan(&count); err != nil {
		return false, 0, fmt.Errorf("count likes: %w", err)
	}

	return liked, count, nil
}

// IncrementViews bumps the view counter and returns the new total.
func (r *PostgresVideoRepository) IncrementViews(ctx context.Context, id string) (int64, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var views int64
	err = conn.QueryRow(ctx, `UPDATE videos SET views = views + 1 WHERE id = $1 RETURNING views`, id).Scan(&views)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("increment views: %w", err)
	}

	return views, nil
}

// Delete removes the video. Replies and likes cascade.
func (r *PostgresVideoRepository) Delete(ctx context.Context, id string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `DELETE FROM videos WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete video: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// ReferencedFileIDs lists video and thumbnail blob ids still in use.
func (r *PostgresVideoRepository) ReferencedFileIDs(ctx context.Context) ([]string, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT video_file_id FROM videos
        UNION
        SELECT thumbnail_file_id FROM videos WHERE thumbnail_file_id <> ''
    `)
	if err != nil {
		return nil, fmt.Errorf("query video file ids: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func scanVideo(row rowScanner) (models.Video, error) {
	var (
		video  models.Video
		parent sql.NullString
	)
	if err := row.Scan(&video.ID, &video.OwnerID, &video.VideoFileID, &video.VideoURL, &video.ThumbnailFileID, &video.ThumbnailURL, &video.Description, &parent, &video.Views, &video.CreatedAt); err != nil {
		return models.Video{}, err
	}
	applyParent(&video, parent)
	video.CreatedAt = video.CreatedAt.UTC()
	return video, nil
}

var _ UserRepository = (*PostgresUserRepository)(nil)
var _ VideoRepository = (*PostgresVideoRepository)(nil)
