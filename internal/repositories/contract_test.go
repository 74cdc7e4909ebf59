package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/otogram/backend/internal/models"
)

// runRepositoryContract exercises the behaviour every store implementation must share.
func runRepositoryContract(t *testing.T, users UserRepository, videos VideoRepository) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2026, time.January, 10, 9, 0, 0, 0, time.UTC)

	alice := newTestUser("alice", "alice@example.com", models.RoleCreator, base)
	bob := newTestUser("bob", "bob@example.com", models.RoleUser, base.Add(time.Minute))

	t.Run("users", func(t *testing.T) {
		for _, u := range []models.User{alice, bob} {
			if err := users.Create(ctx, u); err != nil {
				t.Fatalf("create user %s: %v", u.Username, err)
			}
		}

		dupEmail := newTestUser("alice2", alice.Email, models.RoleUser, base)
		if err := users.Create(ctx, dupEmail); !errors.Is(err, ErrConflict) {
			t.Fatalf("expected ErrConflict for duplicate email got %v", err)
		}
		dupName := newTestUser(alice.Username, "other@example.com", models.RoleUser, base)
		if err := users.Create(ctx, dupName); !errors.Is(err, ErrConflict) {
			t.Fatalf("expected ErrConflict for duplicate username got %v", err)
		}

		found, err := users.FindByEmail(ctx, alice.Email)
		if err != nil {
			t.Fatalf("find by email: %v", err)
		}
		if found.ID != alice.ID || found.Role != models.RoleCreator || found.Password != alice.Password {
			t.Fatalf("unexpected user %+v", found)
		}
		if !found.CreatedAt.Equal(alice.CreatedAt) {
			t.Fatalf("expected created_at %v got %v", alice.CreatedAt, found.CreatedAt)
		}

		if _, err := users.FindByUsername(ctx, "bob"); err != nil {
			t.Fatalf("find by username: %v", err)
		}
		if _, err := users.FindByID(ctx, "missing"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound got %v", err)
		}

		byID, err := users.FindByIDs(ctx, []string{alice.ID, bob.ID, "missing"})
		if err != nil {
			t.Fatalf("find by ids: %v", err)
		}
		if len(byID) != 2 || byID[bob.ID].Username != "bob" {
			t.Fatalf("unexpected users by id %+v", byID)
		}

		list, err := users.List(ctx)
		if err != nil {
			t.Fatalf("list users: %v", err)
		}
		if len(list) != 2 || list[0].ID != bob.ID {
			t.Fatalf("expected newest user first got %+v", list)
		}

		updated, err := users.UpdateRole(ctx, bob.ID, models.RoleAdmin)
		if err != nil {
			t.Fatalf("update role: %v", err)
		}
		if updated.Role != models.RoleAdmin {
			t.Fatalf("expected admin role got %s", updated.Role)
		}
		if _, err := users.UpdateRole(ctx, "missing", models.RoleAdmin); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound got %v", err)
		}

		withAvatar, err := users.UpdateProfileImage(ctx, alice.ID, "/files/images/avatar-1", "avatar-1")
		if err != nil {
			t.Fatalf("update profile image: %v", err)
		}
		if withAvatar.ProfileImage != "/files/images/avatar-1" || withAvatar.ProfileImageFileID != "avatar-1" {
			t.Fatalf("unexpected avatar fields %+v", withAvatar)
		}

		refs, err := users.ReferencedFileIDs(ctx)
		if err != nil {
			t.Fatalf("referenced avatars: %v", err)
		}
		if len(refs) != 1 || refs[0] != "avatar-1" {
			t.Fatalf("unexpected avatar references %v", refs)
		}
	})

	older := newTestVideo(alice.ID, "", base.Add(time.Hour))
	newer := newTestVideo(alice.ID, "", base.Add(2*time.Hour))
	bobs := newTestVideo(bob.ID, "", base.Add(90*time.Minute))
	reply1 := newTestVideo(bob.ID, older.ID, base.Add(3*time.Hour))
	reply2 := newTestVideo(alice.ID, older.ID, base.Add(4*time.Hour))

	t.Run("videos", func(t *testing.T) {
		for _, v := range []models.Video{older, newer, bobs, reply1, reply2} {
			if err := videos.Create(ctx, v); err != nil {
				t.Fatalf("create video: %v", err)
			}
		}

		orphan := newTestVideo("missing-owner", "", base)
		if err := videos.Create(ctx, orphan); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound for unknown owner got %v", err)
		}

		got, err := videos.FindByID(ctx, reply1.ID)
		if err != nil {
			t.Fatalf("find reply: %v", err)
		}
		if !got.IsReply || got.ParentVideoID != older.ID {
			t.Fatalf("expected reply to %s got %+v", older.ID, got)
		}

		top, err := videos.ListTopLevel(ctx)
		if err != nil {
			t.Fatalf("list top level: %v", err)
		}
		if ids := videoIDs(top); !equalIDs(ids, []string{newer.ID, bobs.ID, older.ID}) {
			t.Fatalf("unexpected top level order %v", ids)
		}

		mine, err := videos.ListByOwner(ctx, alice.ID)
		if err != nil {
			t.Fatalf("list by owner: %v", err)
		}
		if ids := videoIDs(mine); !equalIDs(ids, []string{newer.ID, older.ID}) {
			t.Fatalf("unexpected owner videos %v", ids)
		}

		replies, err := videos.ListReplies(ctx, []string{older.ID, newer.ID})
		if err != nil {
			t.Fatalf("list replies: %v", err)
		}
		if ids := videoIDs(replies); !equalIDs(ids, []string{reply1.ID, reply2.ID}) {
			t.Fatalf("unexpected reply order %v", ids)
		}

		views, err := videos.IncrementViews(ctx, newer.ID)
		if err != nil || views != 1 {
			t.Fatalf("expected 1 view got %d err %v", views, err)
		}
		if _, err := videos.IncrementViews(ctx, "missing"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound got %v", err)
		}

		refs, err := videos.ReferencedFileIDs(ctx)
		if err != nil {
			t.Fatalf("referenced files: %v", err)
		}
		if len(refs) != 8 {
			t.Fatalf("expected 8 referenced files got %d (%v)", len(refs), refs)
		}
	})

	t.Run("likes", func(t *testing.T) {
		liked, count, err := videos.ToggleLike(ctx, older.ID, bob.ID)
		if err != nil || !liked || count != 1 {
			t.Fatalf("first toggle: liked=%v count=%d err=%v", liked, count, err)
		}
		liked, count, err = videos.ToggleLike(ctx, older.ID, alice.ID)
		if err != nil || !liked || count != 2 {
			t.Fatalf("second toggle: liked=%v count=%d err=%v", liked, count, err)
		}
		liked, count, err = videos.ToggleLike(ctx, older.ID, bob.ID)
		if err != nil || liked || count != 1 {
			t.Fatalf("unlike: liked=%v count=%d err=%v", liked, count, err)
		}
		if _, _, err := videos.ToggleLike(ctx, "missing", bob.ID); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound got %v", err)
		}

		if _, _, err := videos.ToggleLike(ctx, newer.ID, bob.ID); err != nil {
			t.Fatalf("like newer: %v", err)
		}

		likes, err := videos.Likes(ctx, []string{older.ID, newer.ID, bobs.ID})
		if err != nil {
			t.Fatalf("likes: %v", err)
		}
		if !equalIDs(likes[older.ID], []string{alice.ID}) || !equalIDs(likes[newer.ID], []string{bob.ID}) || len(likes[bobs.ID]) != 0 {
			t.Fatalf("unexpected likes %v", likes)
		}

		likedByBob, err := videos.ListLikedBy(ctx, bob.ID)
		if err != nil {
			t.Fatalf("liked by: %v", err)
		}
		if ids := videoIDs(likedByBob); !equalIDs(ids, []string{newer.ID}) {
			t.Fatalf("unexpected liked videos %v", ids)
		}
	})

	t.Run("delete cascades", func(t *testing.T) {
		if err := videos.Delete(ctx, older.ID); err != nil {
			t.Fatalf("delete: %v", err)
		}
		if err := videos.Delete(ctx, older.ID); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound on second delete got %v", err)
		}
		for _, id := range []string{reply1.ID, reply2.ID} {
			if _, err := videos.FindByID(ctx, id); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected reply %s to be removed got %v", id, err)
			}
		}
		likes, err := videos.Likes(ctx, []string{older.ID})
		if err != nil {
			t.Fatalf("likes after delete: %v", err)
		}
		if len(likes[older.ID]) != 0 {
			t.Fatalf("expected likes to be removed got %v", likes)
		}
	})
}

func newTestUser(username, email string, role models.Role, createdAt time.Time) models.User {
	return models.User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		Password:     "password-hash",
		Role:         role,
		ProfileImage: models.DefaultProfileImage,
		CreatedAt:    createdAt,
		UpdatedAt:    createdAt,
	}
}

func newTestVideo(ownerID, parentID string, createdAt time.Time) models.Video {
	id := uuid.NewString()
	return models.Video{
		ID:              id,
		OwnerID:         ownerID,
		VideoFileID:     "video-" + id,
		VideoURL:        "/files/videos/video-" + id,
		ThumbnailFileID: thumbnailFor(parentID, id),
		Description:     "clip " + id[:8],
		IsReply:         parentID != "",
		ParentVideoID:   parentID,
		CreatedAt:       createdAt,
	}
}

// Only top-level test videos carry a thumbnail.
func thumbnailFor(parentID, id string) string {
	if parentID != "" {
		return ""
	}
	return "thumb-" + id
}

func videoIDs(videos []models.Video) []string {
	ids := make([]string, len(videos))
	for i, v := range videos {
		ids[i] = v.ID
	}
	return ids
}

func equalIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
