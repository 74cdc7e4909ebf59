package feed

import "errors"

var (
	// ErrVideoNotFound indicates the referenced content does not exist.
	ErrVideoNotFound = errors.New("video not found")
	// ErrUserNotFound indicates the referenced user does not exist.
	ErrUserNotFound = errors.New("user not found")
	// ErrForbidden indicates the actor may not modify the content.
	ErrForbidden = errors.New("not allowed to modify this video")
	// ErrParentIsReply indicates an attempt to reply to a reply.
	ErrParentIsReply = errors.New("cannot reply to a reply")
	// ErrDescriptionTooLong indicates a description over the length limit.
	ErrDescriptionTooLong = errors.New("description must be at most 500 characters")
	// ErrMissingVideoFile indicates content without a stored video file.
	ErrMissingVideoFile = errors.New("video file is required")
)
