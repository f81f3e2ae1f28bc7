// Package store is the flat-file persistence layer for users, conversations
// and messages. All state lives in memory under one lock and is flushed as a
// single JSON document on every mutation; writes are atomic (temp file +
// rename). Message fan-out runs through AppendMessage's notify hook, inside
// the store lock, so push order always matches append order.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/mkoval/parley/internal/domain"
)

const fileName = "parley.json"

var (
	ErrUnknownUser         = errors.New("unknown user")
	ErrUnknownConversation = errors.New("unknown conversation")
	ErrNotMember           = errors.New("sender is not a conversation member")
	ErrSelfConversation    = errors.New("conversation needs two distinct users")
)

type fileData struct {
	Users         map[domain.UserID]*domain.User                 `json:"users"`
	Conversations map[domain.ConversationID]*domain.Conversation `json:"conversations"`
	Messages      map[domain.ConversationID][]*domain.Message    `json:"messages"`
}

type Store struct {
	mu   sync.RWMutex
	path string
	data fileData
}

// Open loads the store file from dir, creating dir if needed. A missing file
// is not an error: the store starts empty.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("store dir: %w", err)
	}
	s := &Store{
		path: filepath.Join(dir, fileName),
		data: fileData{
			Users:         make(map[domain.UserID]*domain.User),
			Conversations: make(map[domain.ConversationID]*domain.Conversation),
			Messages:      make(map[domain.ConversationID][]*domain.Message),
		},
	}
	b, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		log.Info().Str("module", "store").Str("path", s.path).Msg("no store file, starting empty")
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read store: %w", err)
	}
	if err := json.Unmarshal(b, &s.data); err != nil {
		return nil, fmt.Errorf("parse store: %w", err)
	}
	log.Info().Str("module", "store").Str("path", s.path).Int("users", len(s.data.Users)).Msg("store loaded")
	return s, nil
}

// persist flushes the whole document. Caller must hold s.mu for writing.
func (s *Store) persist() error {
	b, err := json.MarshalIndent(&s.data, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal store: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("write store: %w", err)
	}
	return os.Rename(tmp, s.path)
}

// FindOrCreateUser returns the user with the given name, creating one if
// none exists. Name matching is exact.
func (s *Store) FindOrCreateUser(name string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.data.Users {
		if u.Name == name {
			cp := *u
			return &cp, nil
		}
	}
	u, err := domain.NewUser(name)
	if err != nil {
		return nil, err
	}
	s.data.Users[u.ID] = u
	if err := s.persist(); err != nil {
		return nil, err
	}
	log.Info().Str("module", "store").Str("user", string(u.ID)).Str("name", name).Msg("user created")
	cp := *u
	return &cp, nil
}

func (s *Store) GetUser(id domain.UserID) (*domain.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.data.Users[id]
	if !ok {
		return nil, false
	}
	cp := *u
	return &cp, true
}

// SearchUsers returns users whose name contains q, case-insensitively,
// sorted by name. An empty q matches everyone.
func (s *Store) SearchUsers(q string) []*domain.User {
	q = strings.ToLower(q)
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.User, 0, len(s.data.Users))
	for _, u := range s.data.Users {
		if strings.Contains(strings.ToLower(u.Name), q) {
			cp := *u
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// FindOrCreateConversation returns the 1:1 conversation between a and b,
// creating it if absent. Both users must exist and be distinct: with a == b,
// the member-pair match below would pick up any conversation containing a.
func (s *Store) FindOrCreateConversation(a, b domain.UserID) (*domain.Conversation, error) {
	if a == b {
		return nil, ErrSelfConversation
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data.Users[a]; !ok {
		return nil, ErrUnknownUser
	}
	if _, ok := s.data.Users[b]; !ok {
		return nil, ErrUnknownUser
	}
	for _, c := range s.data.Conversations {
		if c.Has(a) && c.Has(b) {
			cp := *c
			return &cp, nil
		}
	}
	c := domain.NewConversation(a, b)
	s.data.Conversations[c.ID] = c
	if err := s.persist(); err != nil {
		return nil, err
	}
	log.Info().Str("module", "store").Str("conversation", string(c.ID)).Msg("conversation created")
	cp := *c
	return &cp, nil
}

func (s *Store) Conversation(id domain.ConversationID) (*domain.Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.data.Conversations[id]
	if !ok {
		return nil, false
	}
	cp := *c
	return &cp, true
}

// ConversationsOf returns every conversation the user is a member of.
func (s *Store) ConversationsOf(id domain.UserID) []*domain.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.Conversation
	for _, c := range s.data.Conversations {
		if c.Has(id) {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out
}

// Messages returns the conversation's messages in append order.
func (s *Store) Messages(id domain.ConversationID) []*domain.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := s.data.Messages[id]
	out := make([]*domain.Message, len(msgs))
	for i, m := range msgs {
		cp := *m
		out[i] = &cp
	}
	return out
}

// LastMessage returns the newest message of a conversation, if any.
func (s *Store) LastMessage(id domain.ConversationID) (*domain.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := s.data.Messages[id]
	if len(msgs) == 0 {
		return nil, false
	}
	cp := *msgs[len(msgs)-1]
	return &cp, true
}

// AppendMessage durably stores msg and, still under the store lock, hands it
// to notify together with the resolved recipient. Keeping the handoff inside
// the critical section makes notification order match append order even
// across concurrent writers; notify must not block (the hub's TrySend does
// not). notify may be nil.
func (s *Store) AppendMessage(msg *domain.Message, notify func(*domain.Message, domain.UserID)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.data.Conversations[msg.ConversationID]
	if !ok {
		return ErrUnknownConversation
	}
	if !c.Has(msg.SenderID) {
		return ErrNotMember
	}
	cp := *msg
	s.data.Messages[msg.ConversationID] = append(s.data.Messages[msg.ConversationID], &cp)
	if err := s.persist(); err != nil {
		return err
	}
	if notify != nil {
		if to, ok := c.Other(msg.SenderID); ok {
			notify(msg, to)
		}
	}
	return nil
}
