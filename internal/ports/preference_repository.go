package ports

import (
	"context"

	"github.com/calembot/calembot/internal/domain"
)

// PreferenceRepository persists per-entity language preferences. Entity ids
// are opaque: thread ids for group scope, user ids for 1:1 scope.
type PreferenceRepository interface {
	// Language returns domain.ErrPreferenceNotFound when the entity has no
	// recorded preference.
	Language(ctx context.Context, entityID string) (string, error)
	SetLanguage(ctx context.Context, entityID, lang string) error
	All(ctx context.Context) (domain.LanguagePreferences, error)
}
