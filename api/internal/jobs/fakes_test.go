package jobs

import (
	"context"
	"sync"
	"time"

	"taskflow/api/internal/fanout"
	"taskflow/api/internal/models"
	"taskflow/api/internal/repos"
)

type memStore struct {
	mu            sync.Mutex
	users         map[int64]bool
	subjects      map[fanout.Subject]bool
	knownTypes    map[fanout.SubjectType]bool
	activities    []models.Activity
	notifications []models.Notification
	insertErr     error
	lookupErr     error
}

func newMemStore() *memStore {
	return &memStore{
		users:      map[int64]bool{},
		subjects:   map[fanout.Subject]bool{},
		knownTypes: map[fanout.SubjectType]bool{fanout.SubjectProject: true, fanout.SubjectTask: true},
	}
}

func (s *memStore) addUser(ids ...int64) {
	for _, id := range ids {
		s.users[id] = true
	}
}

func (s *memStore) addSubject(t fanout.SubjectType, id int64) {
	s.subjects[fanout.Subject{Type: t, ID: id}] = true
}

func (s *memStore) deleteSubject(t fanout.SubjectType, id int64) {
	delete(s.subjects, fanout.Subject{Type: t, ID: id})
}

func (s *memStore) UserExists(_ context.Context, userID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lookupErr != nil {
		return false, s.lookupErr
	}
	return s.users[userID], nil
}

func (s *memStore) SubjectExists(_ context.Context, subject fanout.Subject) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lookupErr != nil {
		return false, s.lookupErr
	}
	if !s.knownTypes[subject.Type] {
		return false, repos.ErrUnknownSubjectType
	}
	return s.subjects[subject], nil
}

func (s *memStore) InsertActivity(_ context.Context, ev fanout.AuditEvent) (models.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return models.Activity{}, s.insertErr
	}
	md, _ := encodeForTest(ev.Metadata)
	a := models.Activity{
		ActivityID:  int64(len(s.activities) + 1),
		SubjectType: string(ev.Subject.Type),
		SubjectID:   ev.Subject.ID,
		Action:      string(ev.Action),
		ActorUserID: ev.ActorUserID,
		Metadata:    md,
		CreatedAt:   time.Now().UTC(),
	}
	s.activities = append(s.activities, a)
	return a, nil
}

func (s *memStore) InsertNotification(_ context.Context, ev fanout.NotificationEvent) (models.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return models.Notification{}, s.insertErr
	}
	n := models.Notification{
		NotificationID:  int64(len(s.notifications) + 1),
		RecipientUserID: ev.RecipientUserID,
		Kind:            string(ev.Kind),
		Message:         ev.Message,
		Read:            false,
		CreatedAt:       time.Now().UTC(),
	}
	if !ev.Subject.IsZero() {
		t := string(ev.Subject.Type)
		id := ev.Subject.ID
		n.SubjectType, n.SubjectID = &t, &id
	}
	s.notifications = append(s.notifications, n)
	return n, nil
}

type published struct {
	Topic   string
	Key     string
	Value   []byte
	Headers map[string]string
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (p *fakePublisher) Publish(_ context.Context, topic string, key []byte, value []byte, headers map[string]string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, published{Topic: topic, Key: string(key), Value: value, Headers: headers})
	return nil
}

type fakeInvalidator struct {
	users []int64
	err   error
}

func (f *fakeInvalidator) Invalidate(_ context.Context, userID int64) error {
	f.users = append(f.users, userID)
	return f.err
}
