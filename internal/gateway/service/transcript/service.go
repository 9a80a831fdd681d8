package transcript

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"deepbuild/internal/types"
)

type Message = types.TranscriptMessage

// Sink is what the orchestrator needs: append-only, never blocks.
type Sink interface {
	Append(projectID string, role types.Role, text string) Message
}

// Service keeps each project's transcript in process and fans new messages
// out to subscribers.
type Service struct {
	mu    sync.Mutex
	state map[string]*projectLog
	seq   uint64
	// created is closed and replaced whenever a project log is created, so
	// subscribers of a project without a log can wait for one.
	created chan struct{}
}

type projectLog struct {
	messages []Message
	changed  chan struct{}
}

func New() *Service {
	return &Service{state: make(map[string]*projectLog), created: make(chan struct{})}
}

func (s *Service) getOrCreateLocked(projectID string) *projectLog {
	st, ok := s.state[projectID]
	if !ok {
		st = &projectLog{changed: make(chan struct{})}
		s.state[projectID] = st
		close(s.created)
		s.created = make(chan struct{})
	}
	return st
}

func notifyLocked(st *projectLog) {
	close(st.changed)
	st.changed = make(chan struct{})
}

// Append records a message and wakes subscribers.
func (s *Service) Append(projectID string, role types.Role, text string) Message {
	projectID = strings.TrimSpace(projectID)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	msg := Message{
		ID:        fmt.Sprintf("msg-%d-%d", time.Now().UnixNano(), s.seq),
		ProjectID: projectID,
		Role:      role,
		Text:      text,
		CreatedAt: time.Now().UTC(),
	}
	st := s.getOrCreateLocked(projectID)
	st.messages = append(st.messages, msg)
	notifyLocked(st)
	return msg
}

// History returns a copy of the project's transcript.
func (s *Service) History(projectID string) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.state[strings.TrimSpace(projectID)]
	if !ok {
		return []Message{}
	}
	return append([]Message(nil), st.messages...)
}

// Clear drops a project's transcript. Subscribers stay attached and see
// messages appended later.
func (s *Service) Clear(projectID string) {
	projectID = strings.TrimSpace(projectID)
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.state[projectID]
	if !ok {
		return
	}
	delete(s.state, projectID)
	notifyLocked(st)
}

// Subscribe streams messages appended after the first `from` messages until
// ctx is canceled. Pass len(History(id)) to receive only new messages, or 0
// to replay everything. Delivery waits for the reader; Append never does.
func (s *Service) Subscribe(ctx context.Context, projectID string, from int) <-chan Message {
	projectID = strings.TrimSpace(projectID)
	out := make(chan Message, 16)
	if from < 0 {
		from = 0
	}
	go func() {
		defer close(out)
		cursor := from
		var seen *projectLog
		for {
			var (
				pending []Message
				ch      chan struct{}
			)
			s.mu.Lock()
			if st, ok := s.state[projectID]; ok {
				if (seen != nil && st != seen) || cursor > len(st.messages) {
					// Cleared and recreated underneath us.
					cursor = 0
				}
				seen = st
				pending = append(pending, st.messages[cursor:]...)
				cursor = len(st.messages)
				ch = st.changed
			} else {
				// No log yet, or cleared underneath us.
				cursor, seen = 0, nil
				ch = s.created
			}
			s.mu.Unlock()

			for _, m := range pending {
				select {
				case out <- m:
				case <-ctx.Done():
					return
				}
			}
			select {
			case <-ctx.Done():
				return
			case <-ch:
			}
		}
	}()
	return out
}
