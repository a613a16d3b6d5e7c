package core

import "time"

// Attendance change actions.
const (
	EventActionMark     = "mark"
	EventActionBulkMark = "bulk_mark"
	EventActionUpdate   = "update"
	EventActionDelete   = "delete"
)

// Event is pushed to connected clients whenever an attendance record changes.
type Event struct {
	Action       string    `json:"action"`
	AttendanceID string    `json:"attendanceId,omitempty"`
	ClassID      string    `json:"classId,omitempty"`
	StudentID    string    `json:"studentId,omitempty"`
	Percentage   float64   `json:"percentage"`
	At           time.Time `json:"at"`
}

// Broadcaster is any service that can push events to connected clients.
// Delivery is best effort.
type Broadcaster interface {
	BroadcastAttendanceChange(evt Event)
}
