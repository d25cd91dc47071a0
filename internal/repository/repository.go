// Package repository 定义面试数据的持久化接口。
package repository

import (
	"context"
	"errors"

	"github.com/zhouzirui/z-interview/backend/internal/model/interview"
)

var (
	ErrUserNotFound   = errors.New("user not found")
	ErrTicketNotFound = errors.New("ticket not found")
	ErrResultNotFound = errors.New("result not found")
)

// UserRepository stores provisioned users.
type UserRepository interface {
	CreateUser(ctx context.Context, user interview.User) error
	GetUser(ctx context.Context, id string) (interview.User, error)
}

// TicketRepository stores session credentials.
type TicketRepository interface {
	CreateTicket(ctx context.Context, ticket interview.Ticket) error
	GetTicket(ctx context.Context, token string) (interview.Ticket, error)
	DeactivateTicket(ctx context.Context, token string) error
}

// ResultRepository stores completed interviews. SaveResult returns
// ErrUserNotFound when the owning user does not exist.
type ResultRepository interface {
	SaveResult(ctx context.Context, result interview.CompletedInterview) error
	GetResult(ctx context.Context, id string) (interview.CompletedInterview, error)
}

// Store bundles every repository the server needs.
type Store interface {
	UserRepository
	TicketRepository
	ResultRepository
	Close() error
}
