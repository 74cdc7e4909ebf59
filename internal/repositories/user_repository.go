package repositories

import (
	"context"

	"github.com/otogram/backend/internal/models"
)

// UserRepository defines the data access contract for users.
type UserRepository interface {
	Create(ctx context.Context, user models.User) error
	FindByID(ctx context.Context, id string) (models.User, error)
	FindByIDs(ctx context.Context, ids []string) (map[string]models.User, error)
	FindByEmail(ctx context.Context, email string) (models.User, error)
	FindByUsername(ctx context.Context, username string) (models.User, error)
	List(ctx context.Context) ([]models.User, error)
	UpdateRole(ctx context.Context, id string, role models.Role) (models.User, error)
	UpdateProfileImage(ctx context.Context, id, imageURL, fileID string) (models.User, error)
	// ReferencedFileIDs lists blob ids still held by user records.
	ReferencedFileIDs(ctx context.Context) ([]string, error)
}
