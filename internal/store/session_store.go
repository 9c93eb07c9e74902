package store

import (
	"sync"
	"time"

	"order_assistant/internal/model"
)

// SessionStore 用户对话状态。进程启动时创建并注入，测试里每个用例一个新实例。
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[int64]*sessionEntry
	now      func() time.Time
}

type sessionEntry struct {
	mu sync.Mutex
	s  model.UserSession
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[int64]*sessionEntry),
		now:      time.Now,
	}
}

func (s *SessionStore) entry(userID int64, hint model.Profile) *sessionEntry {
	s.mu.RLock()
	e, ok := s.sessions[userID]
	s.mu.RUnlock()
	if ok {
		return e
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok = s.sessions[userID]; ok {
		return e
	}
	e = &sessionEntry{s: model.UserSession{
		UserID:      userID,
		DisplayName: hint.DisplayName,
		Handle:      hint.Handle,
		FirstSeenAt: s.now(),
	}}
	s.sessions[userID] = e
	return e
}

// GetOrCreate 返回会话快照，不存在则创建空会话。
// 已有会话只补充 profile 字段，历史不受影响。
func (s *SessionStore) GetOrCreate(userID int64, hint model.Profile) model.UserSession {
	e := s.entry(userID, hint)
	e.mu.Lock()
	defer e.mu.Unlock()
	if hint.DisplayName != "" {
		e.s.DisplayName = hint.DisplayName
	}
	if hint.Handle != "" {
		e.s.Handle = hint.Handle
	}
	return snapshot(e.s)
}

// AppendTurn 追加一条消息，保持插入顺序。
func (s *SessionStore) AppendTurn(userID int64, role model.Role, content string) {
	s.AppendTurns(userID, model.Message{Role: role, Content: content})
}

// AppendTurns 原子追加多条消息：一问一答要么都写入，要么都不写。
func (s *SessionStore) AppendTurns(userID int64, turns ...model.Message) {
	e := s.entry(userID, model.Profile{})
	e.mu.Lock()
	e.s.History = append(e.s.History, turns...)
	e.mu.Unlock()
}

// History 返回历史副本。
func (s *SessionStore) History(userID int64) []model.Message {
	s.mu.RLock()
	e, ok := s.sessions[userID]
	s.mu.RUnlock()
	if !ok {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]model.Message(nil), e.s.History...)
}

func snapshot(in model.UserSession) model.UserSession {
	out := in
	out.History = append([]model.Message(nil), in.History...)
	return out
}
