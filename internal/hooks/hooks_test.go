package hooks

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskflow-hub/realtime/internal/model"
	"github.com/taskflow-hub/realtime/internal/registry"
)

func newRegistry() *registry.Registry {
	return registry.New(zerolog.Nop())
}

func event(t *testing.T, eventType model.EventType, payload any) model.RealtimeEvent {
	t.Helper()
	evt, err := model.NewEvent(eventType, payload)
	require.NoError(t, err)
	return model.EventFromPayload(eventType, evt.Data)
}

func TestTaskTimelineFiltersByTask(t *testing.T) {
	reg := newRegistry()
	changes := 0
	t1 := NewTaskTimeline(reg, "T1", OnChange(func() { changes++ }))
	t2 := NewTaskTimeline(reg, "T2")
	defer t1.Close()
	defer t2.Close()

	reg.Broadcast(model.EventTaskUpdated, event(t, model.EventTaskUpdated, map[string]string{"taskId": "T1"}))
	reg.Broadcast(model.EventCommentAdded, event(t, model.EventCommentAdded, map[string]string{"taskId": "T1"}))

	require.Len(t, t1.Entries(), 1)
	assert.Equal(t, "T1", t1.Entries()[0].TaskID)
	assert.Empty(t, t2.Entries())
	assert.Equal(t, 1, changes)

	// Redeliveries are kept.
	reg.Broadcast(model.EventTaskCompleted, event(t, model.EventTaskCompleted, map[string]string{"taskId": "T1"}))
	reg.Broadcast(model.EventTaskCompleted, event(t, model.EventTaskCompleted, map[string]string{"taskId": "T1"}))
	assert.Len(t, t1.Entries(), 3)

	t1.Clear()
	assert.Empty(t, t1.Entries())

	t1.Close()
	t1.Close()
	reg.Broadcast(model.EventTaskUpdated, event(t, model.EventTaskUpdated, map[string]string{"taskId": "T1"}))
	assert.Empty(t, t1.Entries())
	assert.Equal(t, 4, reg.Count(model.EventTaskUpdated)+reg.Count(model.EventTaskAssigned)+reg.Count(model.EventTaskCompleted)+reg.Count(model.EventTaskStatusChanged))
}

type fakeAcker struct {
	err      error
	marked   []string
	markAll  int
	received []string
}

func (a *fakeAcker) MarkNotificationAsRead(_ context.Context, id string) error {
	a.received = append(a.received, id)
	if a.err != nil {
		return a.err
	}
	a.marked = append(a.marked, id)
	return nil
}

func (a *fakeAcker) MarkAllNotificationsAsRead(context.Context) error {
	if a.err != nil {
		return a.err
	}
	a.markAll++
	return nil
}

func notification(id string, read bool) model.NotificationEvent {
	return model.NotificationEvent{
		ID:       id,
		Type:     model.NotificationTaskAssigned,
		Title:    "Assigned " + id,
		UserID:   "u1",
		IsRead:   read,
		Priority: model.PriorityMedium,
	}
}

func TestNotificationFeedMarkAllAsRead(t *testing.T) {
	reg := newRegistry()
	acker := &fakeAcker{}
	feed := NewNotificationFeed(reg, acker)
	defer feed.Close()

	for i := 0; i < 50; i++ {
		reg.Broadcast(model.EventNotification, event(t, model.EventNotification, notification(fmt.Sprintf("n%d", i), false)))
	}
	require.Equal(t, 50, feed.UnreadCount())
	assert.Equal(t, "n49", feed.Notifications()[0].ID, "newest first")

	require.NoError(t, feed.MarkAllAsRead(context.Background()))
	assert.Equal(t, 1, acker.markAll)
	assert.Zero(t, feed.UnreadCount())
	for _, n := range feed.Notifications() {
		assert.True(t, n.IsRead, n.ID)
	}
}

func TestNotificationFeedMarkAsRead(t *testing.T) {
	reg := newRegistry()
	acker := &fakeAcker{}
	feed := NewNotificationFeed(reg, acker)
	defer feed.Close()

	reg.Broadcast(model.EventNotification, event(t, model.EventNotification, notification("n1", false)))
	reg.Broadcast(model.EventNotification, event(t, model.EventNotification, notification("n2", true)))
	reg.Broadcast(model.EventNotification, event(t, model.EventNotification, notification("n3", false)))
	assert.Equal(t, 2, feed.UnreadCount())

	require.NoError(t, feed.MarkAsRead(context.Background(), "n1"))
	assert.Equal(t, 1, feed.UnreadCount())
	require.NoError(t, feed.MarkAsRead(context.Background(), "n1"))
	assert.Equal(t, 1, feed.UnreadCount(), "marking twice decrements once")

	acker.err = model.ErrNotConnected
	err := feed.MarkAsRead(context.Background(), "n3")
	assert.ErrorIs(t, err, model.ErrNotConnected)
	assert.Equal(t, 1, feed.UnreadCount(), "no local change without acknowledgement")
	assert.ErrorIs(t, feed.MarkAllAsRead(context.Background()), model.ErrNotConnected)
	assert.Equal(t, 1, feed.UnreadCount())
}

func TestPresenceUpsertIsIdempotent(t *testing.T) {
	reg := newRegistry()
	presence := NewPresenceMap(reg)
	defer presence.Close()

	first := model.PresenceInfo{UserID: "u1", UserName: "Ada", Status: model.PresenceAway}
	second := model.PresenceInfo{UserID: "u1", UserName: "Ada", Status: model.PresenceBusy, CurrentActivity: "reviewing"}
	reg.Broadcast(model.EventUserPresenceUpdated, event(t, model.EventUserPresenceUpdated, first))
	reg.Broadcast(model.EventUserPresenceUpdated, event(t, model.EventUserPresenceUpdated, second))

	users := presence.Users()
	require.Len(t, users, 1)
	assert.Equal(t, model.PresenceBusy, users[0].Status)
	assert.Equal(t, "reviewing", users[0].CurrentActivity)
	assert.False(t, users[0].LastSeen.IsZero())
}

func TestPresenceConnectAndDisconnect(t *testing.T) {
	reg := newRegistry()
	presence := NewPresenceMap(reg)
	defer presence.Close()

	reg.Broadcast(model.EventUserConnected, event(t, model.EventUserConnected, map[string]string{"userId": "u1", "userName": "Ada"}))
	reg.Broadcast(model.EventUserConnected, event(t, model.EventUserConnected, map[string]string{"userId": "u2", "userName": "Lin"}))
	assert.Len(t, presence.OnlineUsers(), 2)

	reg.Broadcast(model.EventUserPresenceUpdated, event(t, model.EventUserPresenceUpdated,
		model.PresenceInfo{UserID: "u1", UserName: "Ada", Status: model.PresenceOnline, Location: "/tasks/T1"}))
	reg.Broadcast(model.EventUserDisconnected, event(t, model.EventUserDisconnected, map[string]string{"userId": "u1"}))

	u1, ok := presence.User("u1")
	require.True(t, ok)
	assert.Equal(t, model.PresenceOffline, u1.Status)
	assert.Equal(t, "Ada", u1.UserName, "record is preserved")
	assert.Equal(t, "/tasks/T1", u1.Location)

	online := presence.OnlineUsers()
	require.Len(t, online, 1)
	assert.Equal(t, "u2", online[0].UserID)
	assert.Len(t, presence.Users(), 2)
}

func TestOnlineUsersIncludesAwayAndBusy(t *testing.T) {
	reg := newRegistry()
	presence := NewPresenceMap(reg)
	defer presence.Close()

	for _, p := range []model.PresenceInfo{
		{UserID: "u1", Status: model.PresenceAway},
		{UserID: "u2", Status: model.PresenceBusy},
		{UserID: "u3", Status: model.PresenceOnline},
		{UserID: "u4", Status: model.PresenceOffline},
	} {
		reg.Broadcast(model.EventUserPresenceUpdated, event(t, model.EventUserPresenceUpdated, p))
	}

	online := presence.OnlineUsers()
	require.Len(t, online, 3)
	assert.Equal(t, "u1", online[0].UserID)
	assert.Equal(t, "u2", online[1].UserID)
	assert.Equal(t, "u3", online[2].UserID)
	assert.Len(t, presence.Users(), 4)
}

func TestPresenceLastWriterWinsProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	statuses := []model.PresenceStatus{model.PresenceOnline, model.PresenceAway, model.PresenceBusy, model.PresenceOffline}

	properties.Property("one entry per user holding the last update", prop.ForAll(
		func(userIdx []int, statusIdx []int) bool {
			reg := newRegistry()
			presence := NewPresenceMap(reg)
			defer presence.Close()

			last := map[string]model.PresenceStatus{}
			for i, u := range userIdx {
				userID := fmt.Sprintf("u%d", u)
				status := statuses[statusIdx[i%len(statusIdx)]]
				evt, err := model.NewEvent(model.EventUserPresenceUpdated, model.PresenceInfo{UserID: userID, Status: status, LastSeen: time.Now()})
				if err != nil {
					return false
				}
				reg.Broadcast(model.EventUserPresenceUpdated, evt)
				last[userID] = status
			}

			if len(presence.Users()) != len(last) {
				return false
			}
			for userID, status := range last {
				p, ok := presence.User(userID)
				if !ok || p.Status != status {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 4)),
		gen.SliceOfN(4, gen.IntRange(0, 3)).SuchThat(func(v []int) bool { return len(v) > 0 }),
	))

	properties.TestingRun(t)
}

func typing(userID, entityID string, on bool) model.CollaborationEvent {
	return model.CollaborationEvent{
		Type:       model.CollabTyping,
		UserID:     userID,
		EntityID:   entityID,
		EntityType: "task",
		Data:       model.CollaborationData{Typing: model.Bool(on)},
	}
}

func TestCollaborationCleanup(t *testing.T) {
	reg := newRegistry()
	changes := 0
	collab := NewCollaborationMap(reg, "T1", "task", OnChange(func() { changes++ }))

	reg.Broadcast(model.EventUserTyping, event(t, model.EventUserTyping, typing("u1", "T1", true)))
	reg.Broadcast(model.EventUserTyping, event(t, model.EventUserTyping, typing("u2", "T1", true)))
	reg.Broadcast(model.EventUserTyping, event(t, model.EventUserTyping, typing("u3", "T2", true)))
	require.Len(t, collab.Typing(), 2)

	reg.Broadcast(model.EventUserTyping, event(t, model.EventUserTyping, typing("u1", "T1", false)))
	typers := collab.Typing()
	require.Len(t, typers, 1)
	assert.Equal(t, "u2", typers[0].UserID)

	before := changes
	reg.Broadcast(model.EventUserTyping, event(t, model.EventUserTyping, typing("u9", "T1", false)))
	assert.Len(t, collab.Typing(), 1)
	assert.Equal(t, before, changes, "removing an absent user is a no-op")

	collab.Close()
	assert.Empty(t, collab.Typing())
	assert.Zero(t, reg.Count(model.EventUserTyping))
}

func TestCollaborationSignalsAreIndependent(t *testing.T) {
	reg := newRegistry()
	collab := NewCollaborationMap(reg, "T1", "task")
	defer collab.Close()

	reg.Broadcast(model.EventUserViewing, event(t, model.EventUserViewing, model.CollaborationEvent{
		Type: model.CollabViewing, UserID: "u1", EntityID: "T1", EntityType: "task",
		Data: model.CollaborationData{Viewing: model.Bool(true)},
	}))
	reg.Broadcast(model.EventUserEditing, event(t, model.EventUserEditing, model.CollaborationEvent{
		Type: model.CollabEditing, UserID: "u1", EntityID: "T1", EntityType: "task",
		Data: model.CollaborationData{Editing: model.Bool(true)},
	}))
	reg.Broadcast(model.EventUserEditing, event(t, model.EventUserEditing, model.CollaborationEvent{
		Type: model.CollabCursorMove, UserID: "u1", EntityID: "T1", EntityType: "task",
		Data: model.CollaborationData{Cursor: &model.CursorPosition{Line: 3, Column: 7, Field: "description"}},
	}))
	reg.Broadcast(model.EventUserEditing, event(t, model.EventUserEditing, model.CollaborationEvent{
		Type: model.CollabEditing, UserID: "u2", EntityID: "T1", EntityType: "project",
		Data: model.CollaborationData{Editing: model.Bool(true)},
	}))

	assert.Len(t, collab.Viewing(), 1)
	assert.Empty(t, collab.Typing())
	editing := collab.Editing()
	require.Len(t, editing, 1, "other entity types are ignored")
	require.NotNil(t, editing[0].Data.Cursor)
	assert.Equal(t, 3, editing[0].Data.Cursor.Line)
}

func TestActivityFeed(t *testing.T) {
	reg := newRegistry()
	feed := NewActivityFeed(reg, ActivityFilter{ProjectID: "P1"})
	defer feed.Close()

	for i := 0; i < 60; i++ {
		reg.Broadcast(model.EventActivityFeedUpdated, event(t, model.EventActivityFeedUpdated,
			map[string]any{"projectId": "P1", "seq": i}))
	}
	reg.Broadcast(model.EventActivityFeedUpdated, event(t, model.EventActivityFeedUpdated,
		map[string]any{"projectId": "P2", "seq": 99}))

	entries := feed.Entries()
	require.Len(t, entries, DefaultActivityLimit)

	var newest struct {
		Seq int `json:"seq"`
	}
	require.NoError(t, entries[0].Decode(&newest))
	assert.Equal(t, 59, newest.Seq)
	require.NoError(t, entries[len(entries)-1].Decode(&newest))
	assert.Equal(t, 10, newest.Seq)

	feed.Clear()
	assert.Empty(t, feed.Entries())
}

func TestHooksStayEmptyWithoutEvents(t *testing.T) {
	reg := newRegistry()
	timeline := NewTaskTimeline(reg, "T1")
	feed := NewNotificationFeed(reg, &fakeAcker{err: errors.New("offline")})
	presence := NewPresenceMap(reg)
	collab := NewCollaborationMap(reg, "T1", "")
	activity := NewActivityFeed(reg, ActivityFilter{Limit: 5})

	assert.Empty(t, timeline.Entries())
	assert.Empty(t, feed.Notifications())
	assert.Zero(t, feed.UnreadCount())
	assert.Empty(t, presence.Users())
	assert.Empty(t, collab.Editing())
	assert.Empty(t, activity.Entries())

	for _, c := range []interface{ Close() }{timeline, feed, presence, collab, activity} {
		c.Close()
	}
	assert.Empty(t, reg.Types())
}
