package core

import (
	"context"
	"time"

	"github.com/dkeye/Classroom/internal/domain"
)

//go:generate mockgen -destination=mocks/mock_core.go -package=mocks github.com/dkeye/Classroom/internal/core Transport,Joiner

// EventHandler receives transport events one at a time.
type EventHandler func(Event)

// Transport is the opaque real-time session handle.
// Implementations deliver events sequentially to the handler they were built with.
type Transport interface {
	// Connect blocks until the room is joined, ctx is done or Disconnect is called.
	Connect(ctx context.Context, url, token string) error
	Disconnect()

	SetCameraEnabled(ctx context.Context, on bool) error
	SetMicrophoneEnabled(ctx context.Context, on bool) error
	SetScreenShareEnabled(ctx context.Context, on bool) error
	PublishData(ctx context.Context, data []byte, reliable bool) error
}

// TransportFactory builds one transport per session.
type TransportFactory func(h EventHandler) Transport

type JoinRequest struct {
	Room       domain.RoomName
	Name       string
	Role       domain.Role
	TeacherKey string
}

// Grant is the join endpoint's answer. Role is the granted role, not the requested one.
type Grant struct {
	Room      domain.RoomName
	Name      string
	Role      domain.Role
	Token     string
	URL       string
	ExpiresAt time.Time
}

// Joiner obtains access credentials for a room.
type Joiner interface {
	RequestAccess(ctx context.Context, req JoinRequest) (*Grant, error)
}
