package memory

import (
	"context"
	"sync"

	"github.com/zhouzirui/z-interview/backend/internal/model/interview"
	"github.com/zhouzirui/z-interview/backend/internal/repository"
)

// Store keeps users, tickets and results in process memory.
type Store struct {
	mu      sync.RWMutex
	users   map[string]interview.User
	tickets map[string]interview.Ticket
	results map[string]interview.CompletedInterview
}

// NewStore 创建内存存储，进程退出后数据丢失
func NewStore() *Store {
	return &Store{
		users:   make(map[string]interview.User),
		tickets: make(map[string]interview.Ticket),
		results: make(map[string]interview.CompletedInterview),
	}
}

var _ repository.Store = (*Store)(nil)

func (s *Store) CreateUser(_ context.Context, user interview.User) error {
	s.mu.Lock()
	s.users[user.ID] = user
	s.mu.Unlock()
	return nil
}

func (s *Store) GetUser(_ context.Context, id string) (interview.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[id]
	if !ok {
		return interview.User{}, repository.ErrUserNotFound
	}
	return user, nil
}

func (s *Store) CreateTicket(_ context.Context, ticket interview.Ticket) error {
	s.mu.Lock()
	s.tickets[ticket.Token] = ticket
	s.mu.Unlock()
	return nil
}

func (s *Store) GetTicket(_ context.Context, token string) (interview.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ticket, ok := s.tickets[token]
	if !ok {
		return interview.Ticket{}, repository.ErrTicketNotFound
	}
	return ticket, nil
}

func (s *Store) DeactivateTicket(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ticket, ok := s.tickets[token]
	if !ok {
		return repository.ErrTicketNotFound
	}
	ticket.Active = false
	s.tickets[token] = ticket
	return nil
}

func (s *Store) SaveResult(_ context.Context, result interview.CompletedInterview) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[result.UserID]; !ok {
		return repository.ErrUserNotFound
	}
	result.Answers = append([]interview.QuestionAnswer(nil), result.Answers...)
	s.results[result.ID] = result
	return nil
}

func (s *Store) GetResult(_ context.Context, id string) (interview.CompletedInterview, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result, ok := s.results[id]
	if !ok {
		return interview.CompletedInterview{}, repository.ErrResultNotFound
	}
	return result, nil
}

func (s *Store) Close() error { return nil }
