package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"storefront/pkg/domain"
)

// Domain names an independent identity space.
type Domain string

const (
	DomainUser  Domain = "user"
	DomainAdmin Domain = "admin"
)

type Status string

const (
	StatusIdle      Status = "idle"
	StatusPending   Status = "pending"
	StatusFulfilled Status = "fulfilled"
	StatusRejected  Status = "rejected"
)

// ErrorInfo is the recorded cause of the last rejected check.
type ErrorInfo struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Snapshot is a consistent copy of a store's state. The token itself is not
// exposed; HasToken tells whether one is held.
type Snapshot struct {
	Domain    Domain           `json:"domain"`
	Identity  *domain.Identity `json:"identity"`
	HasToken  bool             `json:"hasToken"`
	Checked   bool             `json:"checked"`
	Status    Status           `json:"status"`
	LastError *ErrorInfo       `json:"lastError,omitempty"`
}

// Authenticated reports whether an identity is present.
func (s Snapshot) Authenticated() bool {
	return s.Identity != nil
}

// Ticket ties a check result to the state it was started from.
type Ticket struct {
	gen   uint64
	valid bool
}

// ErrInvalidLogin is returned when Login is called without a usable identity or token.
var ErrInvalidLogin = errors.New("login requires identity and token")

// Option configures a Store.
type Option func(*Store)

// WithClassifier sets how check errors are labelled in ErrorInfo.Kind.
func WithClassifier(fn func(error) string) Option {
	return func(s *Store) {
		if fn != nil {
			s.classify = fn
		}
	}
}

// WithLogger overrides the logger; defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// Store holds the session of one auth domain. Every identity/token change is
// written through to Storage under the domain's keys.
type Store struct {
	domain   Domain
	keys     Keys
	storage  Storage
	classify func(error) string
	log      *slog.Logger

	mu       sync.Mutex
	identity *domain.Identity
	token    string
	checked  bool
	status   Status
	lastErr  *ErrorInfo
	gen      uint64

	subMu   sync.Mutex
	subs    map[int]func(Snapshot)
	nextSub int
}

// New creates a store and loads any persisted token and identity. Unreadable
// storage is logged and treated as empty.
func New(ctx context.Context, d Domain, keys Keys, storage Storage, opts ...Option) (*Store, error) {
	if err := keys.validate(); err != nil {
		return nil, err
	}
	if storage == nil {
		return nil, fmt.Errorf("session storage required")
	}
	s := &Store{
		domain:   d,
		keys:     keys,
		storage:  storage,
		classify: func(error) string { return "error" },
		log:      slog.Default(),
		status:   StatusIdle,
		subs:     make(map[int]func(Snapshot)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.load(ctx)
	return s, nil
}

func (s *Store) load(ctx context.Context) {
	token, ok, err := s.storage.Get(ctx, s.keys.Token)
	if err != nil {
		s.log.Warn("session_event", "domain", s.domain, "event", "load", "outcome", "fail", "err", err)
		return
	}
	if !ok || strings.TrimSpace(token) == "" {
		return
	}
	s.token = token
	raw, ok, err := s.storage.Get(ctx, s.keys.Identity)
	if err != nil || !ok {
		return
	}
	var id domain.Identity
	if err := json.Unmarshal([]byte(raw), &id); err == nil && id.Valid() {
		s.identity = &id
	}
}

// Domain returns the auth domain of the store.
func (s *Store) Domain() Domain {
	return s.domain
}

// Token returns the current bearer token, empty when none is held.
func (s *Store) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Snapshot {
	snap := Snapshot{
		Domain:   s.domain,
		HasToken: s.token != "",
		Checked:  s.checked,
		Status:   s.status,
	}
	if s.identity != nil {
		id := *s.identity
		snap.Identity = &id
	}
	if s.lastErr != nil {
		e := *s.lastErr
		snap.LastError = &e
	}
	return snap
}

// StartCheck moves the store to Pending. It returns false, changing nothing,
// when a check is already pending.
func (s *Store) StartCheck() (Ticket, bool) {
	s.mu.Lock()
	if s.status == StatusPending {
		s.mu.Unlock()
		return Ticket{}, false
	}
	s.status = StatusPending
	t := Ticket{gen: s.gen, valid: true}
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.notify(snap)
	return t, true
}

// staleLocked reports whether t no longer matches the running check.
func (s *Store) staleLocked(t Ticket) bool {
	return !t.valid || t.gen != s.gen || s.status != StatusPending
}

// ResolveCheck completes a check. A nil identity means "not authenticated" and
// clears the token. A stale ticket only marks the store checked.
func (s *Store) ResolveCheck(ctx context.Context, t Ticket, id *domain.Identity) error {
	s.mu.Lock()
	s.checked = true
	if s.staleLocked(t) {
		snap := s.snapshotLocked()
		s.mu.Unlock()
		s.log.Debug("session_event", "domain", s.domain, "event", "check.resolve", "outcome", "stale")
		s.notify(snap)
		return nil
	}
	s.status = StatusFulfilled
	s.lastErr = nil

	var err error
	outcome := "anonymous"
	if id == nil || !id.Valid() || s.token == "" {
		s.identity = nil
		s.token = ""
		err = s.clearStorageLocked(ctx)
	} else {
		cp := *id
		s.identity = &cp
		outcome = "authenticated"
		err = s.persistIdentityLocked(ctx, cp)
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.event("check.resolve", outcome, err)
	s.notify(snap)
	return err
}

// RejectCheck completes a check that failed. The store is cleared: a failed
// check is never treated as authenticated. A check cut short by cancellation
// (process shutdown) clears memory only and leaves the persisted session for
// the next start.
func (s *Store) RejectCheck(ctx context.Context, t Ticket, cause error) error {
	s.mu.Lock()
	s.checked = true
	if s.staleLocked(t) {
		snap := s.snapshotLocked()
		s.mu.Unlock()
		s.log.Debug("session_event", "domain", s.domain, "event", "check.reject", "outcome", "stale")
		s.notify(snap)
		return nil
	}
	s.status = StatusRejected
	info := &ErrorInfo{Kind: s.classify(cause), Message: "auth check failed"}
	if cause != nil {
		info.Message = cause.Error()
	}
	s.lastErr = info
	s.identity = nil
	s.token = ""
	outcome := "fail"
	var err error
	if errors.Is(cause, context.Canceled) {
		outcome = "interrupted"
	} else {
		err = s.clearStorageLocked(ctx)
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.log.Warn("session_event", "domain", s.domain, "event", "check.reject", "outcome", outcome, "kind", info.Kind, "reason", info.Message)
	if err != nil {
		s.event("storage.clear", "fail", err)
	}
	s.notify(snap)
	return err
}

// Login stores a freshly issued identity and token. If persisting fails the
// previous state is kept.
func (s *Store) Login(ctx context.Context, id domain.Identity, token string) error {
	token = strings.TrimSpace(token)
	if token == "" || !id.Valid() {
		return ErrInvalidLogin
	}
	raw, err := json.Marshal(id)
	if err != nil {
		return fmt.Errorf("encode identity: %w", err)
	}

	s.mu.Lock()
	if err := s.storage.Set(ctx, s.keys.Token, token); err != nil {
		s.mu.Unlock()
		s.event("login", "fail", err)
		return fmt.Errorf("persist token: %w", err)
	}
	if err := s.storage.Set(ctx, s.keys.Identity, string(raw)); err != nil {
		s.restoreTokenLocked(ctx)
		s.mu.Unlock()
		s.event("login", "fail", err)
		return fmt.Errorf("persist identity: %w", err)
	}
	s.identity = &id
	s.token = token
	s.status = StatusFulfilled
	s.lastErr = nil
	s.gen++
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.event("login", "success", nil, "identity_id", id.ID)
	s.notify(snap)
	return nil
}

// Logout clears the session locally. The in-memory state is cleared even when
// storage fails; the storage error is returned.
func (s *Store) Logout(ctx context.Context) error {
	s.mu.Lock()
	s.identity = nil
	s.token = ""
	s.checked = true
	s.status = StatusFulfilled
	s.lastErr = nil
	s.gen++
	err := s.clearStorageLocked(ctx)
	snap := s.snapshotLocked()
	s.mu.Unlock()

	outcome := "success"
	if err != nil {
		outcome = "partial"
	}
	s.event("logout", outcome, err)
	s.notify(snap)
	return err
}

// Subscribe registers fn to be called after every state change.
func (s *Store) Subscribe(fn func(Snapshot)) (cancel func()) {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, id)
			s.subMu.Unlock()
		})
	}
}

func (s *Store) notify(snap Snapshot) {
	s.subMu.Lock()
	fns := make([]func(Snapshot), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()
	for _, fn := range fns {
		fn(snap)
	}
}

func (s *Store) persistIdentityLocked(ctx context.Context, id domain.Identity) error {
	raw, err := json.Marshal(id)
	if err != nil {
		return fmt.Errorf("encode identity: %w", err)
	}
	if err := s.storage.Set(ctx, s.keys.Identity, string(raw)); err != nil {
		return fmt.Errorf("persist identity: %w", err)
	}
	return nil
}

func (s *Store) clearStorageLocked(ctx context.Context) error {
	if err := s.storage.Remove(ctx, s.keys.Token, s.keys.Identity); err != nil {
		return fmt.Errorf("clear session storage: %w", err)
	}
	return nil
}

// restoreTokenLocked puts back the token that was persisted before a failed login.
func (s *Store) restoreTokenLocked(ctx context.Context) {
	var err error
	if s.token != "" {
		err = s.storage.Set(ctx, s.keys.Token, s.token)
	} else {
		err = s.storage.Remove(ctx, s.keys.Token)
	}
	if err != nil {
		s.log.Error("session_event", "domain", s.domain, "event", "login.rollback", "outcome", "fail", "err", err)
	}
}

func (s *Store) event(event, outcome string, err error, attrs ...any) {
	logAttrs := []any{"domain", s.domain, "event", event, "outcome", outcome}
	logAttrs = append(logAttrs, attrs...)
	if err != nil {
		logAttrs = append(logAttrs, "err", err)
		s.log.Warn("session_event", logAttrs...)
		return
	}
	s.log.Info("session_event", logAttrs...)
}
