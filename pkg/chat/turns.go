package chat

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type TurnStatus string

const (
	StatusPending   TurnStatus = "pending"
	StatusStreaming TurnStatus = "streaming"
	StatusComplete  TurnStatus = "complete"
	StatusError     TurnStatus = "error"
	StatusCancelled TurnStatus = "cancelled"
)

// Terminal reports whether the status is absorbing.
func (s TurnStatus) Terminal() bool {
	switch s {
	case StatusComplete, StatusError, StatusCancelled:
		return true
	}
	return false
}

// Open reports whether an assistant turn with this status still expects
// updates from an in-flight operation.
func (s TurnStatus) Open() bool {
	return s == StatusPending || s == StatusStreaming
}

// Turn is one entry of the transcript. Turns carry stable identifiers so
// late callbacks address the turn they were started for instead of
// whatever happens to be last in the sequence.
type Turn struct {
	ID        string     `json:"id"`
	Role      Role       `json:"role"`
	Content   string     `json:"content"`
	Status    TurnStatus `json:"status"`
	CreatedAt time.Time  `json:"createdAt"`
	// Auxiliary holds short display-only annotations, e.g. that the web
	// search fell back to the original query.
	Auxiliary string `json:"auxiliary,omitempty"`
}

// TurnStore is the ordered transcript. It is the only shared mutable
// resource of a conversation; every mutation goes through Append/Update.
type TurnStore struct {
	mu    sync.RWMutex
	turns []Turn
}

func NewTurnStore() *TurnStore {
	return &TurnStore{}
}

// AppendExchange appends the user turn and an assistant placeholder in one
// step, before any async work begins. It fails if an assistant turn is
// still open; callers must cancel the prior operation first.
func (s *TurnStore) AppendExchange(userText string) (userID string, assistantID string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if last, ok := s.lastAssistantLocked(); ok && last.Status.Open() {
		return "", "", errors.New("assistant turn still open; cancel the active send first")
	}
	now := time.Now()
	user := Turn{ID: uuid.NewString(), Role: RoleUser, Content: userText, Status: StatusComplete, CreatedAt: now}
	assistant := Turn{ID: uuid.NewString(), Role: RoleAssistant, Status: StatusPending, CreatedAt: now}
	s.turns = append(s.turns, user, assistant)
	return user.ID, assistant.ID, nil
}

// Update applies fn to the turn with the given id. Returns false when the
// id is unknown.
func (s *TurnStore) Update(id string, fn func(*Turn)) bool {
	if id == "" || fn == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.turns {
		if s.turns[i].ID == id {
			fn(&s.turns[i])
			return true
		}
	}
	return false
}

func (s *TurnStore) Get(id string) (Turn, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.turns {
		if s.turns[i].ID == id {
			return s.turns[i], true
		}
	}
	return Turn{}, false
}

// Snapshot returns a copy of the transcript.
func (s *TurnStore) Snapshot() []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Turn(nil), s.turns...)
}

// History returns up to window most recent turns, oldest first. window <= 0
// means the whole transcript.
func (s *TurnStore) History(window int) []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	start := 0
	if window > 0 && len(s.turns) > window {
		start = len(s.turns) - window
	}
	return append([]Turn(nil), s.turns[start:]...)
}

func (s *TurnStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.turns)
}

func (s *TurnStore) lastAssistantLocked() (Turn, bool) {
	for i := len(s.turns) - 1; i >= 0; i-- {
		if s.turns[i].Role == RoleAssistant {
			return s.turns[i], true
		}
	}
	return Turn{}, false
}
