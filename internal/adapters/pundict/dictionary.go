package pundict

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/calembot/calembot/internal/ports"
)

// Dictionary loads the pun document: a TOML file with one table per language
// code, each key a trigger word mapped to its candidate replies.
//
//	[fr]
//	faim = ["j'ai les crocs"]
//
// The decoded document is cached; the file is re-read when its mtime changes,
// so external edits are observed without restarting the process.
type Dictionary struct {
	path string

	mu      sync.RWMutex
	modTime time.Time
	entries map[string]map[string][]string
}

var _ ports.PunDictionary = (*Dictionary)(nil)

func Load(path string) (*Dictionary, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve pun dictionary path: %w", err)
	}

	d := &Dictionary{path: filepath.Clean(absPath)}
	if err := d.reload(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Dictionary) Lookup(lang, word string) ([]string, bool) {
	d.refresh()

	d.mu.RLock()
	defer d.mu.RUnlock()

	words, ok := d.entries[normalize(lang)]
	if !ok {
		return nil, false
	}
	replies, ok := words[normalize(word)]
	if !ok || len(replies) == 0 {
		return nil, false
	}
	return replies, true
}

func (d *Dictionary) HasLanguage(lang string) bool {
	d.refresh()

	d.mu.RLock()
	defer d.mu.RUnlock()

	_, ok := d.entries[normalize(lang)]
	return ok
}

func (d *Dictionary) Languages() []string {
	d.refresh()

	d.mu.RLock()
	defer d.mu.RUnlock()

	langs := make([]string, 0, len(d.entries))
	for lang := range d.entries {
		langs = append(langs, lang)
	}
	sort.Strings(langs)
	return langs
}

// TriggerCount returns the number of trigger words for a language.
func (d *Dictionary) TriggerCount(lang string) int {
	d.refresh()

	d.mu.RLock()
	defer d.mu.RUnlock()

	return len(d.entries[normalize(lang)])
}

func (d *Dictionary) refresh() {
	info, err := os.Stat(d.path)
	if err != nil {
		return
	}

	d.mu.RLock()
	unchanged := info.ModTime().Equal(d.modTime)
	d.mu.RUnlock()
	if unchanged {
		return
	}

	// A malformed edit keeps the previously loaded entries.
	_ = d.reload()
}

func (d *Dictionary) reload() error {
	data, err := os.ReadFile(d.path)
	if err != nil {
		return fmt.Errorf("read pun dictionary: %w", err)
	}
	info, err := os.Stat(d.path)
	if err != nil {
		return fmt.Errorf("stat pun dictionary: %w", err)
	}

	var raw map[string]map[string][]string
	if err := toml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode pun dictionary: %w", err)
	}

	entries := make(map[string]map[string][]string, len(raw))
	for lang, words := range raw {
		lang = normalize(lang)
		if lang == "" {
			return errors.New("pun dictionary: empty language code")
		}
		folded := make(map[string][]string, len(words))
		for word, replies := range words {
			word = normalize(word)
			if word == "" {
				return fmt.Errorf("pun dictionary: empty trigger word under language %q", lang)
			}
			folded[word] = replies
		}
		entries[lang] = folded
	}

	d.mu.Lock()
	d.entries = entries
	d.modTime = info.ModTime()
	d.mu.Unlock()

	return nil
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
