package engine

import (
	"errors"

	"storyforge/server/internal/storage"
)

var (
	// ErrSessionNotFound mirrors the store's sentinel so callers only
	// depend on the engine package.
	ErrSessionNotFound = storage.ErrSessionNotFound

	// ErrStillProcessing signals a rejected concurrent action for a
	// session whose previous action has not finished.
	ErrStillProcessing = storage.ErrStillProcessing

	// ErrStoryNotFound means the session references an unregistered
	// story.
	ErrStoryNotFound = errors.New("story not registered")

	// ErrNodeNotFound is a fatal logic error: the graph references a
	// node id that does not exist. It never occurs against a story that
	// passed validation.
	ErrNodeNotFound = errors.New("story node not found")

	// ErrInvalidAction is a fatal logic error: the requested action is
	// not legal for the current node's kind.
	ErrInvalidAction = errors.New("action not valid for current node")

	// ErrGenerationFailed tags content generation that failed after
	// validation and retries were exhausted.
	ErrGenerationFailed = errors.New("story generation failed")
)
