package models

import (
	"fmt"
	"strings"
	"time"
)

// Role is the privilege level of an Otogram account.
type Role string

const (
	RoleUser    Role = "user"
	RoleCreator Role = "creator"
	RoleAdmin   Role = "admin"
)

// Roles lists every valid role.
var Roles = []Role{RoleUser, RoleCreator, RoleAdmin}

// ParseRole validates a raw role value.
func ParseRole(raw string) (Role, error) {
	switch role := Role(strings.TrimSpace(raw)); role {
	case RoleUser, RoleCreator, RoleAdmin:
		return role, nil
	default:
		return "", fmt.Errorf("invalid role %q", raw)
	}
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	_, err := ParseRole(string(r))
	return err == nil
}

// DefaultProfileImage is served for accounts that never uploaded an avatar.
const DefaultProfileImage = "/static/default-avatar.png"

// User represents an account within the Otogram platform.
type User struct {
	ID                 string    `json:"id"`
	Username           string    `json:"username"`
	Email              string    `json:"email"`
	Password           string    `json:"-"`
	Role               Role      `json:"role"`
	ProfileImage       string    `json:"profileImage"`
	ProfileImageFileID string    `json:"profileImageFileId,omitempty"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// PublicUser is the subset of a user embedded in feed entries.
type PublicUser struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	ProfileImage string `json:"profileImage"`
	Role         Role   `json:"role"`
}

// Public strips private fields from the user.
func (u User) Public() PublicUser {
	return PublicUser{
		ID:           u.ID,
		Username:     u.Username,
		ProfileImage: u.ProfileImage,
		Role:         u.Role,
	}
}

// Video is an uploaded clip, either top level or a reply to another video.
type Video struct {
	ID              string    `json:"id"`
	OwnerID         string    `json:"ownerId"`
	VideoFileID     string    `json:"videoFileId"`
	VideoURL        string    `json:"videoUrl"`
	ThumbnailFileID string    `json:"thumbnailFileId,omitempty"`
	ThumbnailURL    string    `json:"thumbnailUrl,omitempty"`
	Description     string    `json:"description"`
	IsReply         bool      `json:"isReply"`
	ParentVideoID   string    `json:"parentVideoId,omitempty"`
	Views           int64     `json:"views"`
	CreatedAt       time.Time `json:"createdAt"`
}

// MaxDescriptionLength bounds Video.Description in characters.
const MaxDescriptionLength = 500

// FeedEntry is a video expanded with its owner, likes and replies.
type FeedEntry struct {
	Video
	Owner      PublicUser  `json:"owner"`
	Likes      []string    `json:"likes"`
	LikesCount int         `json:"likesCount"`
	Replies    []FeedEntry `json:"replies"`
}

// ProfileStats aggregates a user's top level videos.
type ProfileStats struct {
	VideosCount int `json:"videosCount"`
	TotalLikes  int `json:"totalLikes"`
}

// Profile is the public view of a user and their videos.
type Profile struct {
	User   PublicUser   `json:"user"`
	Videos []FeedEntry  `json:"videos"`
	Stats  ProfileStats `json:"stats"`
}

// LikeResult is returned after toggling a like.
type LikeResult struct {
	Liked bool `json:"liked"`
	Likes int  `json:"likes"`
}
