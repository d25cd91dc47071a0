package ticket

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/z-interview/backend/internal/model/interview"
	"github.com/zhouzirui/z-interview/backend/internal/model/preset"
	"github.com/zhouzirui/z-interview/backend/internal/repository"
)

var (
	ErrNameRequired   = errors.New("user name is required")
	ErrUserRequired   = errors.New("user id is required")
	ErrPresetRequired = errors.New("preset id is required")
	ErrPresetNotFound = errors.New("preset not found")
	ErrUserNotFound   = repository.ErrUserNotFound
	ErrTicketNotFound = errors.New("session token not found")
	ErrTicketInactive = errors.New("session token is no longer active")
	ErrTicketExpired  = errors.New("session token has expired")
)

// Store is the persistence the ticket service needs.
type Store interface {
	repository.UserRepository
	repository.TicketRepository
}

// Service 负责用户开通与会话凭证的签发、校验、作废。
type Service struct {
	store   Store
	presets preset.Store
	ttl     time.Duration
	now     func() time.Time
}

// NewService builds a ticket service issuing credentials valid for ttl.
func NewService(store Store, presets preset.Store, ttl time.Duration) *Service {
	return &Service{
		store:   store,
		presets: presets,
		ttl:     ttl,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the time source, used by tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// CreateUser provisions a user that interviews can be attached to.
func (s *Service) CreateUser(ctx context.Context, name string) (interview.User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return interview.User{}, ErrNameRequired
	}

	user := interview.User{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: s.now(),
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return interview.User{}, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// Issue 为用户与预设签发一个新的会话凭证
func (s *Service) Issue(ctx context.Context, userID, presetID string) (interview.Ticket, error) {
	if userID == "" {
		return interview.Ticket{}, ErrUserRequired
	}
	if presetID == "" {
		return interview.Ticket{}, ErrPresetRequired
	}
	if _, ok := s.presets.FindByID(presetID); !ok {
		return interview.Ticket{}, ErrPresetNotFound
	}
	if _, err := s.store.GetUser(ctx, userID); err != nil {
		return interview.Ticket{}, err
	}

	now := s.now()
	ticket := interview.Ticket{
		Token:     uuid.NewString(),
		UserID:    userID,
		PresetID:  presetID,
		ExpiresAt: now.Add(s.ttl),
		Active:    true,
		CreatedAt: now,
	}
	if err := s.store.CreateTicket(ctx, ticket); err != nil {
		return interview.Ticket{}, fmt.Errorf("create ticket: %w", err)
	}
	return ticket, nil
}

// Validate returns the ticket if it is known, active and unexpired.
func (s *Service) Validate(ctx context.Context, token string) (interview.Ticket, error) {
	if strings.TrimSpace(token) == "" {
		return interview.Ticket{}, ErrTicketNotFound
	}

	ticket, err := s.store.GetTicket(ctx, token)
	if err != nil {
		if errors.Is(err, repository.ErrTicketNotFound) {
			return interview.Ticket{}, ErrTicketNotFound
		}
		return interview.Ticket{}, fmt.Errorf("load ticket: %w", err)
	}
	if !ticket.Active {
		return interview.Ticket{}, ErrTicketInactive
	}
	if ticket.Expired(s.now()) {
		return interview.Ticket{}, ErrTicketExpired
	}
	return ticket, nil
}

// Invalidate 作废凭证，重复调用是安全的
func (s *Service) Invalidate(ctx context.Context, token string) error {
	if err := s.store.DeactivateTicket(ctx, token); err != nil {
		if errors.Is(err, repository.ErrTicketNotFound) {
			return ErrTicketNotFound
		}
		return fmt.Errorf("deactivate ticket: %w", err)
	}
	return nil
}
