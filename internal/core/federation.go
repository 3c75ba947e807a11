package core

import (
	"context"

	"github.com/dkeye/Huddle/internal/domain"
)

// RemoteAddRequest is the payload of the synchronous invite notification
// sent to a federated attendee's home server.
type RemoteAddRequest struct {
	AttendeeID   domain.AttendeeID
	AccessToken  string
	CloudID      string
	RemoteServer string
	AddedByID    string
	RoomToken    domain.RoomToken
	RoomName     string
	RoomType     int
}

// RemoteInfo is what the remote server reports back about the invited
// user; display name and cloud id are corrected from it.
type RemoteInfo struct {
	DisplayName string
	CloudID     string
}

type RemoteRemoveRequest struct {
	AttendeeID   domain.AttendeeID
	AccessToken  string
	RemoteServer string
	RoomToken    domain.RoomToken
}

// FederationBridge notifies a federated attendee's home server about
// membership changes. NotifyRemoteAdd failures are compensated by the
// caller (the speculative local attendee is deleted); NotifyRemoteRemove
// is best effort and its failures are only logged.
type FederationBridge interface {
	NotifyRemoteAdd(ctx context.Context, req RemoteAddRequest) (*RemoteInfo, error)
	NotifyRemoteRemove(ctx context.Context, req RemoteRemoveRequest) error
}
