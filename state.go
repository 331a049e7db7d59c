package authclient

import "sync"

// Phase is the authentication status of a session.
type Phase int

const (
	PhaseLoading Phase = iota
	PhaseAuthenticated
	PhaseUnauthenticated
)

func (p Phase) String() string {
	switch p {
	case PhaseLoading:
		return "loading"
	case PhaseAuthenticated:
		return "authenticated"
	case PhaseUnauthenticated:
		return "unauthenticated"
	default:
		return "unknown"
	}
}

// User identifies the authenticated principal.
type User struct {
	UserID   string
	Username string
}

// Session is the single source of truth for authentication status. User is
// non-nil exactly when Phase is [PhaseAuthenticated]; LogoutReason is empty
// unless the session was invalidated.
type Session struct {
	Phase        Phase
	User         *User
	LogoutReason string
}

// Authenticated reports whether s holds a user.
func (s Session) Authenticated() bool {
	return s.Phase == PhaseAuthenticated && s.User != nil
}

func loadingSession() Session {
	return Session{Phase: PhaseLoading}
}

func authenticatedSession(u User) Session {
	return Session{Phase: PhaseAuthenticated, User: &u}
}

func unauthenticatedSession(reason string) Session {
	return Session{Phase: PhaseUnauthenticated, LogoutReason: reason}
}

// clone detaches the User pointer so subscribers cannot alias Manager state.
func (s Session) clone() Session {
	if s.User != nil {
		u := *s.User
		s.User = &u
	}
	return s
}

// broadcaster fans Session values out to subscribers. Each subscriber channel
// holds at most one pending value; a newer value replaces an unread one.
type broadcaster struct {
	mu     sync.Mutex
	next   int
	subs   map[int]chan Session
	closed bool
}

func newBroadcaster() *broadcaster {
	return &broadcaster{subs: make(map[int]chan Session)}
}

func (b *broadcaster) subscribe(current Session) (<-chan Session, func()) {
	ch := make(chan Session, 1)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.next
	b.next++
	b.subs[id] = ch
	ch <- current.clone()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if c, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(c)
			}
		})
	}
}

func (b *broadcaster) publish(s Session) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case <-ch:
		default:
		}
		ch <- s.clone()
	}
}

func (b *broadcaster) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
