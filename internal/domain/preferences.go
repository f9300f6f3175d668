package domain

// DefaultLanguage is used when neither the thread nor the author has a
// recorded language preference.
const DefaultLanguage = "fr"

// LanguagePreferences maps an entity id to a language code. Keys are opaque:
// a thread id for group-scoped preferences, a user id for 1:1 preferences.
type LanguagePreferences map[string]string

// Resolve returns the active language for a conversation, preferring the
// thread's preference over the author's, falling back to DefaultLanguage.
func (p LanguagePreferences) Resolve(threadID, authorID string) string {
	if lang, ok := p[threadID]; ok && lang != "" {
		return lang
	}
	if lang, ok := p[authorID]; ok && lang != "" {
		return lang
	}
	return DefaultLanguage
}
