package store

import (
	"encoding/json"
	"errors"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"cypher-server/internal/model"
)

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrSessionNotFound = errors.New("session not found")
)

// Placeholder titles for sessions that have no first user message yet.
const (
	DefaultSessionTitle    = "New Log"
	MultimediaSessionTitle = "Multimedia Query"
	titleMaxRunes          = 30
)

// Store owns all persisted state: the account map and the session list.
// Every mutation is persisted write-through as one atomic JSON snapshot;
// a missing or corrupt snapshot degrades to empty state, never an error.
type Store struct {
	mu sync.RWMutex

	stateFile string
	persistMu sync.Mutex

	accountsByIdentifier map[string]model.Account
	accountsByID         map[string]string // id -> identifier
	sessionsByID         map[string]model.Session
}

type Options struct {
	StateFile string
}

func New() *Store {
	return NewWithOptions(Options{})
}

func NewWithOptions(opts Options) *Store {
	s := &Store{
		accountsByIdentifier: make(map[string]model.Account),
		accountsByID:         make(map[string]string),
		sessionsByID:         make(map[string]model.Session),
		stateFile:            opts.StateFile,
	}

	if s.stateFile != "" {
		if err := s.loadFromFile(s.stateFile); err != nil {
			log.Printf("state persistence: load failed (%s), starting empty: %v", s.stateFile, err)
		}
	}

	return s
}

// NormalizeIdentifier is the canonical form used as the account key:
// trimmed and lower-cased. Callers normalize at the boundary.
func NormalizeIdentifier(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}

type persistedStateFile struct {
	Version  int             `json:"version"`
	Accounts []model.Account `json:"accounts"`
	Sessions []model.Session `json:"sessions"`
	SavedAt  int64           `json:"savedAt"`
}

func (s *Store) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if len(data) == 0 {
		return nil
	}

	var file persistedStateFile
	if err := json.Unmarshal(data, &file); err != nil {
		return err
	}
	if file.Version != 1 {
		return errors.New("unsupported state version")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, acc := range file.Accounts {
		if acc.ID == "" || acc.Identifier == "" {
			continue
		}
		s.accountsByIdentifier[acc.Identifier] = acc
		s.accountsByID[acc.ID] = acc.Identifier
	}
	for _, sess := range file.Sessions {
		if sess.ID == "" || sess.AccountID == "" {
			continue
		}
		s.sessionsByID[sess.ID] = sess
	}
	return nil
}

func (s *Store) snapshotLocked() persistedStateFile {
	accounts := make([]model.Account, 0, len(s.accountsByIdentifier))
	for _, acc := range s.accountsByIdentifier {
		accounts = append(accounts, acc)
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].ID < accounts[j].ID })

	sessions := make([]model.Session, 0, len(s.sessionsByID))
	for _, sess := range s.sessionsByID {
		sessions = append(sessions, sess)
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].ID < sessions[j].ID })

	return persistedStateFile{
		Version:  1,
		Accounts: accounts,
		Sessions: sessions,
		SavedAt:  time.Now().UnixMilli(),
	}
}

// persistSnapshot writes the whole state atomically: either the rename
// lands or the previous file remains intact.
func (s *Store) persistSnapshot(file persistedStateFile) {
	path := s.stateFile
	if path == "" {
		return
	}

	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		log.Printf("state persistence: mkdir failed (%s): %v", dir, err)
		return
	}

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		log.Printf("state persistence: marshal failed: %v", err)
		return
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		log.Printf("state persistence: create temp failed: %v", err)
		return
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		log.Printf("state persistence: chmod temp failed: %v", err)
		return
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		log.Printf("state persistence: write temp failed: %v", err)
		return
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		log.Printf("state persistence: sync temp failed: %v", err)
		return
	}
	if err := tmp.Close(); err != nil {
		log.Printf("state persistence: close temp failed: %v", err)
		return
	}
	if err := os.Rename(tmpName, path); err != nil {
		log.Printf("state persistence: rename failed: %v", err)
		return
	}
}

func (s *Store) persistLocked() persistedStateFile {
	if s.stateFile == "" {
		return persistedStateFile{}
	}
	return s.snapshotLocked()
}

// FindAccountByIdentifier looks up an account by its normalized identifier.
func (s *Store) FindAccountByIdentifier(identifier string) (model.Account, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acc, ok := s.accountsByIdentifier[identifier]
	return acc, ok
}

func (s *Store) GetAccount(accountID string) (model.Account, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	identifier, ok := s.accountsByID[accountID]
	if !ok {
		return model.Account{}, false
	}
	acc, ok := s.accountsByIdentifier[identifier]
	return acc, ok
}

// UpsertAccount writes the whole record, last writer wins. The identifier
// is keyed as given; callers normalize first.
func (s *Store) UpsertAccount(acc model.Account) error {
	if acc.ID == "" || acc.Identifier == "" {
		return errors.New("missing account id or identifier")
	}

	s.mu.Lock()
	s.accountsByIdentifier[acc.Identifier] = acc
	s.accountsByID[acc.ID] = acc.Identifier
	snapshot := s.persistLocked()
	s.mu.Unlock()

	if snapshot.Version != 0 {
		s.persistSnapshot(snapshot)
	}
	return nil
}

// ListSessions returns the account's sessions for one persona, newest
// activity first.
func (s *Store) ListSessions(accountID string, persona model.Persona) []model.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]model.Session, 0)
	for _, sess := range s.sessionsByID {
		if sess.AccountID == accountID && sess.Persona == persona {
			result = append(result, sess)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].LastUpdated > result[j].LastUpdated })
	return result
}

// GetActiveSession resolves an active-session reference. A reference to a
// session owned by another account, or whose persona no longer matches the
// selected one, silently resolves to none; the next send lazily creates a
// fresh session.
func (s *Store) GetActiveSession(accountID string, persona model.Persona, activeID string) (model.Session, bool) {
	if activeID == "" {
		return model.Session{}, false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessionsByID[activeID]
	if !ok || sess.AccountID != accountID || sess.Persona != persona {
		return model.Session{}, false
	}
	return sess, true
}

func (s *Store) GetSession(accountID, sessionID string) (model.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessionsByID[sessionID]
	if !ok || sess.AccountID != accountID {
		return model.Session{}, false
	}
	return sess, true
}

func (s *Store) CreateSession(accountID string, persona model.Persona, seedTitle string, nowMillis int64) (model.Session, error) {
	if accountID == "" {
		return model.Session{}, errors.New("missing accountID")
	}
	if !persona.Valid() {
		return model.Session{}, errors.New("invalid persona")
	}

	title := truncateTitle(seedTitle)
	if title == "" {
		title = DefaultSessionTitle
	}

	sess := model.Session{
		ID:          uuid.NewString(),
		AccountID:   accountID,
		Persona:     persona,
		Title:       title,
		Messages:    []model.ChatMessage{},
		CreatedAt:   nowMillis,
		LastUpdated: nowMillis,
	}

	s.mu.Lock()
	s.sessionsByID[sess.ID] = sess
	snapshot := s.persistLocked()
	s.mu.Unlock()

	if snapshot.Version != 0 {
		s.persistSnapshot(snapshot)
	}
	return sess, nil
}

// AppendMessage appends to the session's ordered message list and bumps
// LastUpdated. The first message also titles the session. The full state is
// persisted on every append; durability beats batching at this volume.
func (s *Store) AppendMessage(sessionID string, msg model.ChatMessage, nowMillis int64) (model.Session, error) {
	s.mu.Lock()

	sess, ok := s.sessionsByID[sessionID]
	if !ok {
		s.mu.Unlock()
		return model.Session{}, ErrSessionNotFound
	}

	if len(sess.Messages) == 0 {
		title := truncateTitle(msg.Content)
		if title == "" {
			title = MultimediaSessionTitle
		}
		sess.Title = title
	}

	sess.Messages = append(sess.Messages, msg)
	sess.LastUpdated = nowMillis
	s.sessionsByID[sessionID] = sess
	snapshot := s.persistLocked()
	s.mu.Unlock()

	if snapshot.Version != 0 {
		s.persistSnapshot(snapshot)
	}
	return sess, nil
}

func truncateTitle(text string) string {
	text = strings.TrimSpace(text)
	runes := []rune(text)
	if len(runes) > titleMaxRunes {
		return string(runes[:titleMaxRunes])
	}
	return text
}
