// Package memory implements Conversation Memory (C3): a per-person message
// log with selective forgetting, consumed by LLM handlers. Grounded on
// domains/person/memory.py's MemoryService/PersonMemory in original_source.
package memory

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sorryhyun/dipeo-engine/diagram"
	"github.com/sorryhyun/dipeo-engine/handler"
)

// MaxMessagesPerPerson bounds each person's visible log.
const MaxMessagesPerPerson = 100

// MaxGlobalMessages bounds the store's total retained messages (FIFO).
const MaxGlobalMessages = 10000

// Message is one turn of a conversation, before the per-reader
// visibility/role-rewrite rules in VisibleMessages are applied.
type Message struct {
	ID             string
	Role           string
	Content        string
	Timestamp      time.Time
	SenderPersonID diagram.PersonID
	ExecutionID    diagram.ExecutionID
	NodeID         diagram.NodeID
	NodeLabel      string
	Tokens         *handler.TokenUsage

	participants []diagram.PersonID
}

// VisibleMessage is what a person actually sees when reading its log: the
// role and content as rewritten by the visibility rule in §3.
type VisibleMessage struct {
	Role     string
	Content  string
	PersonID diagram.PersonID
}

type personLog struct {
	mu        sync.Mutex
	ids       []string
	forgotten map[string]bool
}

// Store is the single owning store of messages; each person holds an
// ordered list of message ids plus a forgotten-ids set indexing into it, per
// DESIGN NOTES §9 ("one owning store... no cycles; eviction is single-owner").
type Store struct {
	globalMu sync.Mutex
	messages map[string]*Message
	order    []string // FIFO order for global eviction

	personMu sync.Mutex // guards the persons map itself, not each personLog
	persons  map[diagram.PersonID]*personLog

	nextID       func() string
	maxPerPerson int
	maxGlobal    int
}

// New constructs an empty Store with the default eviction bounds.
func New(idGen func() string) *Store {
	return &Store{
		messages:     make(map[string]*Message),
		persons:      make(map[diagram.PersonID]*personLog),
		nextID:       idGen,
		maxPerPerson: MaxMessagesPerPerson,
		maxGlobal:    MaxGlobalMessages,
	}
}

// NewStore constructs an empty Store with production message ids
// (github.com/google/uuid v4, one per message).
func NewStore() *Store {
	return New(uuid.NewString)
}

func (s *Store) logFor(person diagram.PersonID) *personLog {
	s.personMu.Lock()
	defer s.personMu.Unlock()
	pl, ok := s.persons[person]
	if !ok {
		pl = &personLog{forgotten: make(map[string]bool)}
		s.persons[person] = pl
	}
	return pl
}

// AddMessage appends content to every participant's log, recording who sent
// it and where, then enforces eviction.
func (s *Store) AddMessage(
	content string,
	sender diagram.PersonID,
	execID diagram.ExecutionID,
	participants []diagram.PersonID,
	role string,
	nodeID diagram.NodeID,
	nodeLabel string,
	tokens *handler.TokenUsage,
) *Message {
	msg := &Message{
		ID:             s.nextID(),
		Role:           role,
		Content:        content,
		Timestamp:      time.Now(),
		SenderPersonID: sender,
		ExecutionID:    execID,
		NodeID:         nodeID,
		NodeLabel:      nodeLabel,
		Tokens:         tokens,
		participants:   append([]diagram.PersonID(nil), participants...),
	}

	s.globalMu.Lock()
	s.messages[msg.ID] = msg
	s.order = append(s.order, msg.ID)
	s.globalMu.Unlock()

	for _, p := range participants {
		pl := s.logFor(p)
		pl.mu.Lock()
		pl.ids = append(pl.ids, msg.ID)
		if len(pl.ids) > s.maxPerPerson {
			evicted := pl.ids[0]
			pl.ids = pl.ids[1:]
			delete(pl.forgotten, evicted)
		}
		pl.mu.Unlock()
	}

	s.evictGlobal()
	return msg
}

// evictGlobal trims the global FIFO past maxGlobal, purging evicted ids from
// every person log's id list and forgotten set.
func (s *Store) evictGlobal() {
	s.globalMu.Lock()
	var evicted []string
	for len(s.order) > s.maxGlobal {
		id := s.order[0]
		s.order = s.order[1:]
		if _, ok := s.messages[id]; ok {
			evicted = append(evicted, id)
			delete(s.messages, id)
		}
	}
	s.globalMu.Unlock()

	if len(evicted) == 0 {
		return
	}
	evictedSet := make(map[string]bool, len(evicted))
	for _, id := range evicted {
		evictedSet[id] = true
	}
	s.personMu.Lock()
	logs := make([]*personLog, 0, len(s.persons))
	for _, pl := range s.persons {
		logs = append(logs, pl)
	}
	s.personMu.Unlock()
	for _, pl := range logs {
		pl.mu.Lock()
		kept := pl.ids[:0:0]
		for _, id := range pl.ids {
			if !evictedSet[id] {
				kept = append(kept, id)
			} else {
				delete(pl.forgotten, id)
			}
		}
		pl.ids = kept
		pl.mu.Unlock()
	}
}

// VisibleMessages returns person's log applying the visibility/role-rewrite
// rule from §3: a message whose sender is the reader is presented as
// "assistant"; otherwise "user", prefixed with "[node_label]: ".
func (s *Store) VisibleMessages(person diagram.PersonID) []VisibleMessage {
	pl := s.logFor(person)
	pl.mu.Lock()
	ids := append([]string(nil), pl.ids...)
	forgotten := make(map[string]bool, len(pl.forgotten))
	for k := range pl.forgotten {
		forgotten[k] = true
	}
	pl.mu.Unlock()

	s.globalMu.Lock()
	defer s.globalMu.Unlock()

	out := make([]VisibleMessage, 0, len(ids))
	for _, id := range ids {
		if forgotten[id] {
			continue
		}
		msg, ok := s.messages[id]
		if !ok {
			continue
		}
		if msg.SenderPersonID == person {
			out = append(out, VisibleMessage{Role: "assistant", Content: msg.Content, PersonID: person})
			continue
		}
		content := msg.Content
		if msg.NodeLabel != "" {
			content = "[" + msg.NodeLabel + "]: " + content
		}
		out = append(out, VisibleMessage{Role: "user", Content: content, PersonID: person})
	}
	return out
}

// ForgetForPerson marks all (or, with execID set, only this execution's)
// messages as forgotten for person.
func (s *Store) ForgetForPerson(person diagram.PersonID, execID *diagram.ExecutionID) {
	s.forget(person, execID, nil)
}

// ForgetOwnMessages marks only messages sent by person as forgotten for
// person (it can still see others' messages).
func (s *Store) ForgetOwnMessages(person diagram.PersonID, execID *diagram.ExecutionID) {
	s.forget(person, execID, &person)
}

func (s *Store) forget(person diagram.PersonID, execID *diagram.ExecutionID, onlySender *diagram.PersonID) {
	pl := s.logFor(person)
	pl.mu.Lock()
	ids := append([]string(nil), pl.ids...)
	pl.mu.Unlock()

	s.globalMu.Lock()
	toForget := make([]string, 0, len(ids))
	for _, id := range ids {
		msg, ok := s.messages[id]
		if !ok {
			continue
		}
		if execID != nil && msg.ExecutionID != *execID {
			continue
		}
		if onlySender != nil && msg.SenderPersonID != *onlySender {
			continue
		}
		toForget = append(toForget, id)
	}
	s.globalMu.Unlock()

	pl.mu.Lock()
	for _, id := range toForget {
		pl.forgotten[id] = true
	}
	pl.mu.Unlock()
}
