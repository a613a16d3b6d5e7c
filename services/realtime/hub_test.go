package realtime

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brijeshkumar2024/smart-attendance/core"
)

type nopLogger struct{}

func (nopLogger) Debug(msg string, args ...interface{}) {}
func (nopLogger) Info(msg string, args ...interface{})  {}
func (nopLogger) Warn(msg string, args ...interface{})  {}
func (nopLogger) Error(msg string, args ...interface{}) {}
func (nopLogger) Fatal(msg string, args ...interface{}) {}

func TestHub_BroadcastAttendanceChange(t *testing.T) {
	hub := NewHub(nopLogger{})
	done := make(chan struct{})
	defer close(done)
	go hub.Run(done)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = hub.ServeWS(w, r)
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	// let the registration land before broadcasting
	time.Sleep(50 * time.Millisecond)

	evt := core.Event{
		Action:       core.EventActionMark,
		AttendanceID: "att1",
		ClassID:      "cls1",
		StudentID:    "std1",
		Percentage:   66.67,
		At:           time.Now().UTC(),
	}
	hub.BroadcastAttendanceChange(evt)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)

	var got core.Event
	require.NoError(t, json.Unmarshal(payload, &got))
	assert.Equal(t, evt.Action, got.Action)
	assert.Equal(t, evt.AttendanceID, got.AttendanceID)
	assert.Equal(t, evt.Percentage, got.Percentage)
	assert.False(t, got.At.IsZero())
}
