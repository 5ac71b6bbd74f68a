package cloud

import (
	"context"
	"sync"

	"github.com/platformlayer/openstack-jenkins/provider"
)

// Connector opens an authenticated provider session.
type Connector func(ctx context.Context, credentials provider.Credentials) (provider.Session, error)

// SessionHolder owns the session of one profile. The first caller connects,
// later callers share the result until Invalidate.
type SessionHolder struct {
	connect     Connector
	credentials provider.Credentials

	mutex   sync.Mutex
	session provider.Session
}

func NewSessionHolder(connect Connector, credentials provider.Credentials) *SessionHolder {
	return &SessionHolder{connect: connect, credentials: credentials}
}

func (s *SessionHolder) Get(ctx context.Context) (provider.Session, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.session != nil {
		return s.session, nil
	}

	session, err := s.connect(ctx, s.credentials)
	if err != nil {
		return nil, err
	}
	s.session = session
	return session, nil
}

// Invalidate drops the session; the next Get reconnects.
func (s *SessionHolder) Invalidate() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.session = nil
}
