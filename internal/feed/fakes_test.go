package feed

import (
	"context"
	"errors"
	"slices"
	"sort"
	"sync"

	"github.com/otogram/backend/internal/media"
	"github.com/otogram/backend/internal/models"
	"github.com/otogram/backend/internal/repositories"
)

type fakeUsers struct {
	users map[string]models.User
}

func newFakeUsers(users ...models.User) *fakeUsers {
	f := &fakeUsers{users: make(map[string]models.User)}
	for _, u := range users {
		f.users[u.ID] = u
	}
	return f
}

func (f *fakeUsers) FindByIDs(_ context.Context, ids []string) (map[string]models.User, error) {
	found := make(map[string]models.User)
	for _, id := range ids {
		if u, ok := f.users[id]; ok {
			found[id] = u
		}
	}
	return found, nil
}

func (f *fakeUsers) FindByUsername(_ context.Context, username string) (models.User, error) {
	for _, u := range f.users {
		if u.Username == username {
			return u, nil
		}
	}
	return models.User{}, repositories.ErrNotFound
}

type like struct {
	videoID string
	userID  string
}

type fakeVideos struct {
	mu     sync.Mutex
	videos map[string]models.Video
	likes  []like
}

func newFakeVideos() *fakeVideos {
	return &fakeVideos{videos: make(map[string]models.Video)}
}

func (f *fakeVideos) Create(_ context.Context, video models.Video) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.videos[video.ID]; ok {
		return repositories.ErrConflict
	}
	if video.ParentVideoID != "" {
		if _, ok := f.videos[video.ParentVideoID]; !ok {
			return repositories.ErrNotFound
		}
	}
	f.videos[video.ID] = video
	return nil
}

func (f *fakeVideos) FindByID(_ context.Context, id string) (models.Video, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.videos[id]
	if !ok {
		return models.Video{}, repositories.ErrNotFound
	}
	return v, nil
}

func (f *fakeVideos) filter(keep func(models.Video) bool, newestFirst bool) []models.Video {
	var out []models.Video
	for _, v := range f.videos {
		if keep(v) {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if newestFirst {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (f *fakeVideos) ListTopLevel(context.Context) ([]models.Video, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.filter(func(v models.Video) bool { return !v.IsReply }, true), nil
}

func (f *fakeVideos) ListByOwner(_ context.Context, ownerID string) ([]models.Video, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.filter(func(v models.Video) bool { return !v.IsReply && v.OwnerID == ownerID }, true), nil
}

func (f *fakeVideos) ListReplies(_ context.Context, parentIDs []string) ([]models.Video, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.filter(func(v models.Video) bool { return slices.Contains(parentIDs, v.ParentVideoID) }, false), nil
}

func (f *fakeVideos) ListLikedBy(_ context.Context, userID string) ([]models.Video, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Video
	for i := len(f.likes) - 1; i >= 0; i-- {
		if f.likes[i].userID == userID {
			out = append(out, f.videos[f.likes[i].videoID])
		}
	}
	return out, nil
}

func (f *fakeVideos) Likes(_ context.Context, videoIDs []string) (map[string][]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string][]string)
	for _, l := range f.likes {
		if slices.Contains(videoIDs, l.videoID) {
			out[l.videoID] = append(out[l.videoID], l.userID)
		}
	}
	return out, nil
}

func (f *fakeVideos) ToggleLike(_ context.Context, videoID, userID string) (bool, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.videos[videoID]; !ok {
		return false, 0, repositories.ErrNotFound
	}
	idx := slices.Index(f.likes, like{videoID: videoID, userID: userID})
	liked := idx < 0
	if liked {
		f.likes = append(f.likes, like{videoID: videoID, userID: userID})
	} else {
		f.likes = slices.Delete(f.likes, idx, idx+1)
	}
	count := 0
	for _, l := range f.likes {
		if l.videoID == videoID {
			count++
		}
	}
	return liked, count, nil
}

func (f *fakeVideos) IncrementViews(_ context.Context, id string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.videos[id]
	if !ok {
		return 0, repositories.ErrNotFound
	}
	v.Views++
	f.videos[id] = v
	return v.Views, nil
}

func (f *fakeVideos) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.videos[id]; !ok {
		return repositories.ErrNotFound
	}
	delete(f.videos, id)
	for childID, v := range f.videos {
		if v.ParentVideoID == id {
			delete(f.videos, childID)
		}
	}
	f.likes = slices.DeleteFunc(f.likes, func(l like) bool { return l.videoID == id })
	return nil
}

type fakeBlobs struct {
	stored  map[string]bool
	failing map[string]bool
	deleted []string
}

func newFakeBlobs(ids ...string) *fakeBlobs {
	f := &fakeBlobs{stored: make(map[string]bool), failing: make(map[string]bool)}
	for _, id := range ids {
		f.stored[id] = true
	}
	return f
}

func (f *fakeBlobs) Delete(_ context.Context, fileID string) error {
	if f.failing[fileID] {
		return errors.New("disk on fire")
	}
	if !f.stored[fileID] {
		return media.ErrFileNotFound
	}
	delete(f.stored, fileID)
	f.deleted = append(f.deleted, fileID)
	return nil
}
