package storage

import (
	"context"
	"errors"
	"time"
)

// ErrCorrupt is returned by Load when stored data cannot be decoded.
var ErrCorrupt = errors.New("storage: corrupt data")

// Config configures storage.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Snapshot is the full channel table keyed by channel id.
type Snapshot map[int64]ChannelRecord

type ChannelRecord struct {
	Title string      `json:"title"`
	Jobs  []JobRecord `json:"jobs"`
}

// JobRecord is the stored form of a job. Time is "HH:MM"; Days holds
// weekday indices with Monday=0.
type JobRecord struct {
	ID     int    `json:"id"`
	Text   string `json:"text"`
	Photo  string `json:"photo,omitempty"`
	Time   string `json:"time"`
	Days   []int  `json:"days"`
	UserID int64  `json:"user_id"`
	Paused bool   `json:"paused"`
}

// Backend reads and writes the whole table.
//
// Load returns an empty snapshot (not an error) when nothing was stored yet.
type Backend interface {
	Load(ctx context.Context) (Snapshot, error)
	Save(ctx context.Context, snap Snapshot) error
	Close() error
}
