package persistence

import (
	"fmt"

	"github.com/hashicorp-forge/collabdocs/pkg/capability"
	"github.com/hashicorp-forge/collabdocs/pkg/document"
)

// Session is the signed in user on this device. It owns the user's store
// and hands out non-owning references to it.
type Session struct {
	uid         int64
	deviceID    string
	workspaceID string
	store       *capability.Ref[document.CollabPersistence]
}

var _ document.UserService = (*Session)(nil)

// NewSession creates a session for uid backed by store.
func NewSession(uid int64, deviceID, workspaceID string, store document.CollabPersistence) *Session {
	return &Session{
		uid:         uid,
		deviceID:    deviceID,
		workspaceID: workspaceID,
		store:       capability.NewRef(store),
	}
}

func (s *Session) UserID() (int64, error) {
	return s.uid, nil
}

func (s *Session) DeviceID() (string, error) {
	return s.deviceID, nil
}

func (s *Session) WorkspaceID() (string, error) {
	if s.workspaceID == "" {
		return "", fmt.Errorf("no workspace is open")
	}
	return s.workspaceID, nil
}

// CollabDB returns the store of uid. Only the session's own user has one.
func (s *Session) CollabDB(uid int64) (*capability.Ref[document.CollabPersistence], error) {
	if uid != s.uid {
		return nil, fmt.Errorf("no collab database for user %d", uid)
	}
	return s.store, nil
}

// SignOut releases the store; managers still holding it see it as dropped.
func (s *Session) SignOut() {
	s.store.Release()
}
