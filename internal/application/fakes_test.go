package application

import (
	"context"
	"sync"
	"time"

	"github.com/calembot/calembot/internal/domain"
	"github.com/calembot/calembot/internal/ports"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type memorySessionRepo struct {
	mu     sync.Mutex
	states map[domain.Username]domain.SessionState
}

func newMemorySessionRepo() *memorySessionRepo {
	return &memorySessionRepo{states: map[domain.Username]domain.SessionState{}}
}

func (r *memorySessionRepo) Load(_ context.Context, username domain.Username) (domain.SessionState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	state, ok := r.states[username]
	if !ok {
		return domain.SessionState{}, domain.ErrSessionNotFound
	}
	return state, nil
}

func (r *memorySessionRepo) Save(_ context.Context, state domain.SessionState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states[state.Username] = state
	return nil
}

type memoryPreferenceRepo struct {
	mu    sync.Mutex
	langs map[string]string
}

func newMemoryPreferenceRepo() *memoryPreferenceRepo {
	return &memoryPreferenceRepo{langs: map[string]string{}}
}

func (r *memoryPreferenceRepo) Language(_ context.Context, entityID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	lang, ok := r.langs[entityID]
	if !ok {
		return "", domain.ErrPreferenceNotFound
	}
	return lang, nil
}

func (r *memoryPreferenceRepo) SetLanguage(_ context.Context, entityID, lang string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.langs[entityID] = lang
	return nil
}

func (r *memoryPreferenceRepo) All(_ context.Context) (domain.LanguagePreferences, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	prefs := make(domain.LanguagePreferences, len(r.langs))
	for id, lang := range r.langs {
		prefs[id] = lang
	}
	return prefs, nil
}

type fakeDictionary struct {
	entries map[string]map[string][]string
}

func (d *fakeDictionary) Lookup(lang, word string) ([]string, bool) {
	replies, ok := d.entries[lang][word]
	return replies, ok && len(replies) > 0
}

func (d *fakeDictionary) HasLanguage(lang string) bool {
	_, ok := d.entries[lang]
	return ok
}

func (d *fakeDictionary) Languages() []string {
	langs := make([]string, 0, len(d.entries))
	for lang := range d.entries {
		langs = append(langs, lang)
	}
	return langs
}

type fakeClient struct {
	userID      string
	material    []byte
	deviceID    string
	registerErr error
	sendErr     error

	mu         sync.Mutex
	registered []domain.PushRegistration
	sent       []domain.DirectMessage
	fetchPage  domain.ThreadPage
}

func (c *fakeClient) RegisterPushToken(_ context.Context, reg domain.PushRegistration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.registerErr != nil {
		return c.registerErr
	}
	c.registered = append(c.registered, reg)
	return nil
}

func (c *fakeClient) SendDirectMessage(_ context.Context, msg domain.DirectMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, msg)
	return nil
}

func (c *fakeClient) FetchThread(_ context.Context, _, _ string, _ int) (domain.ThreadPage, error) {
	return c.fetchPage, nil
}

func (c *fakeClient) UserID() string { return c.userID }

func (c *fakeClient) SessionMaterial() []byte { return c.material }

func (c *fakeClient) DeviceIdentity() (string, string, string) {
	return "phone-1", "guid-1", c.deviceID
}

func (c *fakeClient) registrations() []domain.PushRegistration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.PushRegistration(nil), c.registered...)
}

type fakeFactory struct {
	restoreClient ports.AccountClient
	restoreErr    error
	loginClient   ports.AccountClient
	loginErr      error

	mu           sync.Mutex
	restoreCalls int
	loginCalls   int
	lastLogin    ports.LoginRequest
}

func (f *fakeFactory) Restore(_ context.Context, _ domain.Username, _ []byte) (ports.AccountClient, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.restoreCalls++
	if f.restoreErr != nil {
		return nil, f.restoreErr
	}
	return f.restoreClient, nil
}

func (f *fakeFactory) Login(_ context.Context, req ports.LoginRequest) (ports.AccountClient, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loginCalls++
	f.lastLogin = req
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	return f.loginClient, nil
}

type sentReply struct {
	threadID string
	text     string
}

type fakeMessenger struct {
	mu   sync.Mutex
	sent []sentReply
	err  error
}

func (m *fakeMessenger) SendText(_ context.Context, threadID, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentReply{threadID: threadID, text: text})
	return nil
}

func (m *fakeMessenger) replies() []sentReply {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentReply(nil), m.sent...)
}

type staticClientProvider struct {
	client   ports.AccountClient
	err      error
	discards int
}

func (p *staticClientProvider) Client(context.Context) (ports.AccountClient, error) {
	return p.client, p.err
}

func (p *staticClientProvider) DiscardClient(context.Context) {
	p.discards++
}
