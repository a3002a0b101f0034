package view

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"minichat/internal/client"
	"minichat/internal/domain"
)

type fakeSessions struct {
	mu           sync.Mutex
	identity     domain.Identity
	userErr      error
	signOutCalls int
	lastMethod   string
	authErr      error
}

func (f *fakeSessions) CurrentSession() *domain.Session { return nil }

func (f *fakeSessions) CurrentUser(context.Context) (domain.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.identity, f.userErr
}

func (f *fakeSessions) OnChange(func(*domain.Session)) func() { return func() {} }

func (f *fakeSessions) SignOut(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signOutCalls++
	return nil
}

func (f *fakeSessions) record(method string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastMethod = method
	return f.authErr
}

func (f *fakeSessions) SignUp(context.Context, string, string) error {
	return f.record("signup")
}

func (f *fakeSessions) SignInWithPassword(context.Context, string, string) error {
	return f.record("password")
}

func (f *fakeSessions) RequestCode(context.Context, string) error {
	return f.record("request_code")
}

func (f *fakeSessions) VerifyCode(context.Context, string, string) error {
	return f.record("verify_code")
}

// fakeTable guarda filas en memoria. Cada select toma la foto de la tabla al
// momento de la llamada y puede bloquearse con gate hasta que el test lo libere.
type fakeTable struct {
	mu          sync.Mutex
	rows        []domain.Message
	nextID      int64
	selectErr   error
	insertErr   error
	selectCalls int
	insertCalls int
	gates       map[int]chan struct{}
}

func (f *fakeTable) SelectAllOrdered(_ context.Context, table, orderBy string, descending bool) ([]domain.Message, error) {
	f.mu.Lock()
	f.selectCalls++
	call := f.selectCalls
	err := f.selectErr
	rows := append([]domain.Message(nil), f.rows...)
	gate := f.gates[call]
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].CreatedAt.Equal(rows[j].CreatedAt) {
			return rows[i].ID < rows[j].ID
		}
		return rows[i].CreatedAt.Before(rows[j].CreatedAt)
	})
	if descending {
		for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
			rows[i], rows[j] = rows[j], rows[i]
		}
	}
	return rows, nil
}

func (f *fakeTable) Insert(_ context.Context, table string, row domain.NewMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.insertCalls++
	if f.insertErr != nil {
		return f.insertErr
	}
	f.nextID++
	f.rows = append(f.rows, domain.Message{
		ID:          f.nextID,
		Content:     row.Content,
		UserID:      row.UserID,
		AuthorEmail: row.AuthorEmail,
		CreatedAt:   row.CreatedAt,
	})
	return nil
}

func (f *fakeTable) add(userID, email, content string, at time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.rows = append(f.rows, domain.Message{ID: f.nextID, UserID: userID, AuthorEmail: email, Content: content, CreatedAt: at})
}

func (f *fakeTable) gate(call int) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.gates == nil {
		f.gates = make(map[int]chan struct{})
	}
	ch := make(chan struct{})
	f.gates[call] = ch
	return ch
}

func (f *fakeTable) selects() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.selectCalls
}

// fakeFeed conserva el callback aun despues de Unsubscribe para simular
// notificaciones tardias.
type fakeFeed struct {
	mu           sync.Mutex
	fn           func()
	tables       []string
	events       []string
	err          error
	unsubscribed bool
}

func (f *fakeFeed) Subscribe(_ context.Context, table string, events []string, fn func()) (client.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.fn = fn
	f.tables = append(f.tables, table)
	f.events = events
	return f, nil
}

func (f *fakeFeed) Unsubscribe() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unsubscribed = true
}

func (f *fakeFeed) fire() {
	f.mu.Lock()
	fn := f.fn
	f.mu.Unlock()
	if fn != nil {
		fn()
	}
}

type fakeDirectory struct {
	mu      sync.Mutex
	entries map[string]domain.DirectoryEntry
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{entries: make(map[string]domain.DirectoryEntry)}
}

func (d *fakeDirectory) Upsert(userID, email string, seenAt time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries[userID] = domain.DirectoryEntry{UserID: userID, Email: email, LastSeen: seenAt}
	return nil
}

func (d *fakeDirectory) Lookup(userID string) (domain.DirectoryEntry, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.entries[strings.TrimSpace(userID)]
	return e, ok
}
