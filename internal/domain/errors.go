package domain

import "errors"

var (
	ErrSessionNotFound    = errors.New("session not found")
	ErrSessionStale       = errors.New("session material is stale")
	ErrPreferenceNotFound = errors.New("language preference not found")
	ErrEmptyNotification  = errors.New("notification payload is empty")
)
