package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeply/gateway/internal/domain"
	"github.com/sweeply/gateway/internal/events"
	"github.com/sweeply/gateway/internal/pubsub"
)

type memStore struct {
	mu      sync.Mutex
	created []*domain.Notification
	failFor uuid.UUID
}

func (s *memStore) Create(ctx context.Context, n *domain.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n.RecipientID == s.failFor {
		return context.DeadlineExceeded
	}
	s.created = append(s.created, n)
	return nil
}

func (s *memStore) all() []*domain.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*domain.Notification(nil), s.created...)
}

type fixture struct {
	notifier *Notifier
	store    *memStore
	ps       *pubsub.MemoryPubSub
	sub      *events.Subscriber
	pub      *events.Publisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ps := pubsub.NewMemoryPubSub()
	t.Cleanup(func() { ps.Close() })

	logger := slog.Default()
	store := &memStore{}
	pub := events.NewPublisher(ps, logger)
	notifier := New(store, pub, logger)

	sub := events.NewSubscriber(ps, logger)
	notifier.Register(sub, []string{pubsub.TopicJobs, pubsub.TopicChat, pubsub.TopicPayments})
	require.NoError(t, sub.Start(context.Background()))
	t.Cleanup(sub.Stop)

	return &fixture{notifier: notifier, store: store, ps: ps, sub: sub, pub: pub}
}

// watchUserChannel subscribes to a user channel and collects pushed events.
func (f *fixture) watchUserChannel(t *testing.T, userID uuid.UUID) chan *pubsub.Event {
	t.Helper()
	ch := make(chan *pubsub.Event, 4)
	sub, err := f.ps.Subscribe(context.Background(), pubsub.UserTopic(userID), func(ctx context.Context, e *pubsub.Event) {
		ch <- e
	})
	require.NoError(t, err)
	t.Cleanup(func() { sub.Unsubscribe() })
	return ch
}

func TestNotifier_ChatMessageEvent(t *testing.T) {
	f := newFixture(t)

	sender := uuid.New()
	recipientA := uuid.New()
	recipientB := uuid.New()
	messageID := uuid.New()
	pushed := f.watchUserChannel(t, recipientA)

	err := f.pub.Publish(context.Background(), pubsub.TopicChat, events.EventTypeChatMessage,
		events.ChatMessageEvent{
			RoomID:     uuid.New(),
			MessageID:  messageID,
			SenderID:   sender,
			SenderName: "alice",
			Preview:    "see you at 10",
		},
		events.WithTargetUsers([]uuid.UUID{recipientA, recipientB}))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(f.store.all()) == 2
	}, time.Second, 10*time.Millisecond)

	for _, n := range f.store.all() {
		assert.Equal(t, domain.NotificationTypeChatMessage, n.Type)
		assert.Equal(t, "New message from alice", n.Title)
		assert.Equal(t, "see you at 10", n.Body)
		require.NotNil(t, n.SenderID)
		assert.Equal(t, sender, *n.SenderID)
		require.NotNil(t, n.ReferenceID)
		assert.Equal(t, messageID, *n.ReferenceID)
	}

	// The recipient's user channel carries the pushed notification
	select {
	case e := <-pushed:
		require.Equal(t, events.EventTypeNotificationNew, e.Type)
		var p struct {
			Notification domain.Notification `json:"notification"`
		}
		require.NoError(t, json.Unmarshal(e.Payload, &p))
		assert.Equal(t, recipientA, p.Notification.RecipientID)
	case <-time.After(time.Second):
		t.Fatal("no push on user channel")
	}
}

func TestNotifier_JobEvents(t *testing.T) {
	f := newFixture(t)

	owner := uuid.New()
	actor := uuid.New()
	jobID := uuid.New()

	cases := []struct {
		eventType string
		notifType string
	}{
		{events.EventTypeBidPlaced, domain.NotificationTypeBidPlaced},
		{events.EventTypeJobAwarded, domain.NotificationTypeJobAwarded},
		{events.EventTypeJobCompleted, domain.NotificationTypeJobCompleted},
	}

	for _, tc := range cases {
		err := f.pub.Publish(context.Background(), pubsub.TopicJobs, tc.eventType,
			events.JobEvent{JobID: jobID, JobTitle: "Deep clean, 3 rooms", ActorID: actor, ActorName: "bob"},
			events.WithTargetUser(owner))
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool {
		return len(f.store.all()) == len(cases)
	}, time.Second, 10*time.Millisecond)

	types := make(map[string]bool)
	for _, n := range f.store.all() {
		types[n.Type] = true
		assert.Equal(t, owner, n.RecipientID)
		assert.Equal(t, "Deep clean, 3 rooms", n.Body)
		require.NotNil(t, n.ReferenceID)
		assert.Equal(t, jobID, *n.ReferenceID)
	}
	for _, tc := range cases {
		assert.True(t, types[tc.notifType], "missing %s", tc.notifType)
	}
}

func TestNotifier_PaymentEvents(t *testing.T) {
	f := newFixture(t)

	recipient := uuid.New()
	paymentID := uuid.New()

	err := f.pub.Publish(context.Background(), pubsub.TopicPayments, events.EventTypePaymentReleased,
		events.PaymentEvent{PaymentID: paymentID, Amount: 4500, Currency: "EUR", ActorID: uuid.New(), ActorName: "carol"},
		events.WithTargetUser(recipient))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(f.store.all()) == 1
	}, time.Second, 10*time.Millisecond)

	n := f.store.all()[0]
	assert.Equal(t, domain.NotificationTypePaymentReleased, n.Type)
	assert.Equal(t, "Payment released", n.Title)
	require.NotNil(t, n.ReferenceID)
	assert.Equal(t, paymentID, *n.ReferenceID)
}

func TestNotifier_UnrecognizedEventIgnored(t *testing.T) {
	f := newFixture(t)

	err := f.pub.Publish(context.Background(), pubsub.TopicJobs, "job.cancelled",
		events.JobEvent{JobID: uuid.New()}, events.WithTargetUser(uuid.New()))
	require.NoError(t, err)

	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, f.store.all())
}

func TestNotifier_PerRecipientFailureDoesNotBlockOthers(t *testing.T) {
	f := newFixture(t)

	good := uuid.New()
	bad := uuid.New()
	f.store.failFor = bad

	err := f.pub.Publish(context.Background(), pubsub.TopicChat, events.EventTypeChatMessage,
		events.ChatMessageEvent{MessageID: uuid.New(), SenderID: uuid.New(), SenderName: "dave"},
		events.WithTargetUsers([]uuid.UUID{bad, good}))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		created := f.store.all()
		return len(created) == 1 && created[0].RecipientID == good
	}, time.Second, 10*time.Millisecond)
}
