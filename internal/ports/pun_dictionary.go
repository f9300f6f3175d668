package ports

// PunDictionary maps a language code and a case-folded trigger word to the
// candidate replies for that word. Implementations observe external edits to
// the backing document within a bounded staleness.
type PunDictionary interface {
	Lookup(lang, word string) ([]string, bool)
	HasLanguage(lang string) bool
	Languages() []string
}
