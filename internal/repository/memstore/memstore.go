// Package memstore is a mutex-guarded in-memory implementation of the
// repository interfaces. Every method takes the store lock for its whole
// duration, so compound operations such as InsertWithCapacity and Claim are
// atomic just like their MySQL transactions.
package memstore

import (
	"sort"
	"sync"
	"time"

	"github.com/mathemusician/church-volunteers/internal/model"
)

type Store struct {
	mu sync.Mutex

	nextID   int64
	orgs     map[int64]model.Organization
	events   map[int64]model.Event
	lists    map[int64]model.List
	signups  map[int64]model.Signup
	optouts  map[string]bool
	messages []model.Message
	replies  []model.Reply
	tokens   map[string]model.Token

	// CreateInstanceHook, when set, runs before an instance is stored; a
	// non-nil error aborts that instance.
	CreateInstanceHook func(model.Event) error
}

func New() *Store {
	return &Store{
		orgs:    map[int64]model.Organization{},
		events:  map[int64]model.Event{},
		lists:   map[int64]model.List{},
		signups: map[int64]model.Signup{},
		optouts: map[string]bool{},
		tokens:  map[string]model.Token{},
	}
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *Store) Organizations() *Organizations { return &Organizations{s} }
func (s *Store) Events() *Events               { return &Events{s} }
func (s *Store) Lists() *Lists                 { return &Lists{s} }
func (s *Store) Signups() *Signups             { return &Signups{s} }
func (s *Store) Messages() *Messages           { return &Messages{s} }
func (s *Store) Replies() *Replies             { return &Replies{s} }
func (s *Store) Tokens() *Tokens               { return &Tokens{s} }

// ---- seeding helpers ----

func (s *Store) AddOrganization(o model.Organization) model.Organization {
	s.mu.Lock()
	defer s.mu.Unlock()
	o.ID = s.id()
	s.orgs[o.ID] = o
	return o
}

func (s *Store) AddEvent(e model.Event) model.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.ID = s.id()
	s.events[e.ID] = e
	return e
}

func (s *Store) AddList(l model.List) model.List {
	s.mu.Lock()
	defer s.mu.Unlock()
	l.ID = s.id()
	s.lists[l.ID] = l
	return l
}

func (s *Store) AddSignup(su model.Signup) model.Signup {
	s.mu.Lock()
	defer s.mu.Unlock()
	su.ID = s.id()
	s.signups[su.ID] = su
	return su
}

func (s *Store) DeleteEvent(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.events, id)
	for lid, l := range s.lists {
		if l.EventID == id {
			delete(s.lists, lid)
		}
	}
}

// ---- inspection helpers ----

func (s *Store) AllMessages() []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

func (s *Store) AllReplies() []model.Reply {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Reply, len(s.replies))
	copy(out, s.replies)
	return out
}

func (s *Store) AllTokens() []model.Token {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Token, 0, len(s.tokens))
	for _, t := range s.tokens {
		out = append(out, t)
	}
	return out
}

func (s *Store) Signup(id int64) model.Signup {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.signups[id]
}

func (s *Store) PhoneOptedOut(phone string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.optouts[phone]
}

// ---- internal helpers (lock held) ----

func (s *Store) filled(listID int64) int {
	n := 0
	for _, su := range s.signups {
		if su.ListID == listID && su.CancelledAt == nil {
			n++
		}
	}
	return n
}

func (s *Store) availability(l model.List) model.ListAvailability {
	e := s.events[l.EventID]
	a := model.ListAvailability{
		ListID:    l.ID,
		EventID:   e.ID,
		EventSlug: e.Slug,
		Title:     l.Title,
		MaxSlots:  l.MaxSlots,
		IsLocked:  l.IsLocked,
		Filled:    s.filled(l.ID),
	}
	if e.EventDate != nil {
		a.EventDate = *e.EventDate
	}
	return a
}

func sortAvailability(rows []model.ListAvailability, lists map[int64]model.List) {
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].EventDate.Equal(rows[j].EventDate) {
			return rows[i].EventDate.Before(rows[j].EventDate)
		}
		return lists[rows[i].ListID].Position < lists[rows[j].ListID].Position
	})
}

func sameDate(a *time.Time, b time.Time) bool {
	return a != nil && model.DateOf(*a).Equal(model.DateOf(b))
}
