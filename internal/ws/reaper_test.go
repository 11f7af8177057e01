package ws

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chat-server/internal/models"
)

func TestSweepEvictsIdleSessions(t *testing.T) {
	h, users, messages := newTestHandler()
	users.On("SetOnlineStatus", mock.Anything, mock.Anything, true, mock.Anything).Return(nil).Maybe()
	messages.On("ListUnread", mock.Anything, mock.Anything).Return(([]models.Message)(nil), nil).Maybe()
	ana := &recordConn{}
	loginAs(t, h, "c1", ana, "u1", "Ana")

	offline := make(chan struct{})
	users.On("SetOnlineStatus", mock.Anything, "u1", false, (*time.Time)(nil)).
		Run(func(mock.Arguments) { close(offline) }).Return(nil).Once()

	// Threshold zero makes every session idle on the next sweep.
	reaper := NewReaper(h, time.Hour, 0)
	reaper.Sweep()

	assert.Equal(t, 0, h.registry.Len())
	assert.True(t, ana.closed, "evicted connection must be closed")

	select {
	case <-offline:
	case <-time.After(time.Second):
		t.Fatal("durable offline flag was never set for the evicted user")
	}
	users.AssertExpectations(t)
}

func TestSweepSparesActiveSessions(t *testing.T) {
	h, users, messages := newTestHandler()
	users.On("SetOnlineStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	messages.On("ListUnread", mock.Anything, "u1").Return(([]models.Message)(nil), nil).Once()
	ana := &recordConn{}
	loginAs(t, h, "c1", ana, "u1", "Ana")

	reaper := NewReaper(h, time.Hour, time.Hour)
	reaper.Sweep()

	assert.Equal(t, 1, h.registry.Len())
	assert.False(t, ana.closed)
	messages.AssertExpectations(t)
}

func TestSweepRedeliversPendingMessages(t *testing.T) {
	h, users, messages := newTestHandler()
	users.On("SetOnlineStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	berta := &recordConn{}
	loginAs(t, h, "c2", berta, "u2", "Berta")

	pending := []models.Message{
		{ID: 7, SenderID: "u1", ReceiverID: "u2", Content: "hola", Type: models.TypeText, State: models.StateSent, CreatedAt: time.Now()},
		{ID: 8, SenderID: "u1", ReceiverID: "u2", Content: "ya entregado", Type: models.TypeText, State: models.StateDelivered, CreatedAt: time.Now()},
	}
	messages.On("ListUnread", mock.Anything, "u2").Return(pending, nil).Once()
	messages.On("UpdateState", mock.Anything, 7, models.StateDelivered, mock.Anything).Return(nil).Once()
	users.On("GetUser", mock.Anything, "u1").Return(models.User{ID: "u1", Name: "Ana"}, nil).Once()

	reaper := NewReaper(h, time.Hour, time.Hour)
	reaper.Sweep()

	// Only the enviado message is pushed again; the delivered one is
	// left for the client's history fetch.
	inbox := berta.named(EventPersonalMessage)
	require.Len(t, inbox, 1)
	msg := inbox[0].Payload.(PersonalMessage)
	assert.Equal(t, 7, msg.ID)
	assert.Equal(t, "hola", msg.Mensaje)
	assert.Equal(t, "Ana", msg.NombreEmisor)

	messages.AssertExpectations(t)
	users.AssertExpectations(t)
}

func TestSweepRedeliveryUsesLiveSenderName(t *testing.T) {
	h, users, messages := newTestHandler()
	users.On("SetOnlineStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	ana := &recordConn{}
	berta := &recordConn{}
	loginAs(t, h, "c1", ana, "u1", "Ana")
	loginAs(t, h, "c2", berta, "u2", "Berta")

	pending := []models.Message{
		{ID: 7, SenderID: "u1", ReceiverID: "u2", Content: "hola", Type: models.TypeText, State: models.StateSent, CreatedAt: time.Now()},
	}
	messages.On("ListUnread", mock.Anything, "u2").Return(pending, nil).Once()
	messages.On("ListUnread", mock.Anything, "u1").Return(([]models.Message)(nil), nil).Once()
	messages.On("UpdateState", mock.Anything, 7, models.StateDelivered, mock.Anything).Return(nil).Once()

	reaper := NewReaper(h, time.Hour, time.Hour)
	reaper.Sweep()

	inbox := berta.named(EventPersonalMessage)
	require.Len(t, inbox, 1)
	assert.Equal(t, "Ana", inbox[0].Payload.(PersonalMessage).NombreEmisor)

	// The sender was online, so no store lookup was needed.
	users.AssertNotCalled(t, "GetUser", mock.Anything, mock.Anything)
}

func TestReaperStopTerminatesRun(t *testing.T) {
	h, users, messages := newTestHandler()
	users.On("SetOnlineStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	messages.On("ListUnread", mock.Anything, mock.Anything).Return(([]models.Message)(nil), nil).Maybe()

	reaper := NewReaper(h, time.Millisecond, time.Hour)
	done := make(chan struct{})
	go func() {
		reaper.Run()
		close(done)
	}()

	time.Sleep(5 * time.Millisecond)
	reaper.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Stop")
	}
}
