package model

import "time"

// RecordingState is a state of the recording writer's lifecycle.
type RecordingState string

const (
	RecordingIdle      RecordingState = "idle"
	RecordingPreparing RecordingState = "preparing"
	RecordingActive    RecordingState = "recording"
	RecordingStopping  RecordingState = "stopping"
	RecordingError     RecordingState = "error"
)

// RecordingStatus describes the writer state and the file it is working on.
type RecordingStatus struct {
	State        RecordingState `json:"state"`
	Path         string         `json:"path,omitempty"`
	CreatedAt    time.Time      `json:"createdAt,omitempty"`
	BytesWritten int64          `json:"bytesWritten"`
	LastError    string         `json:"lastError,omitempty"`
}

// RecordingSession is one finished recording, persisted for history.
type RecordingSession struct {
	ID           string    `gorm:"primaryKey;size:36" json:"id"`
	Path         string    `gorm:"size:512;not null" json:"path"`
	ObjectKey    string    `gorm:"size:512" json:"objectKey,omitempty"`
	SampleRate   int       `json:"sampleRate"`
	Channels     int       `json:"channels"`
	BytesWritten int64     `json:"bytesWritten"`
	Duration     float64   `json:"duration"` // seconds
	StartedAt    time.Time `json:"startedAt"`
	StoppedAt    time.Time `json:"stoppedAt"`
}

// TableName keeps the table name stable.
func (RecordingSession) TableName() string {
	return "recording_sessions"
}
