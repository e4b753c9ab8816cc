// Package obs persists and exports handle telemetry. The sink samples
// health rows on a timer and writes them to PostgreSQL; payloads never
// leave shared memory through here.
package obs

import (
	"context"
	"encoding/json"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"github.com/vedarsh/kachow/pkg/conn"
	"github.com/vedarsh/kachow/pkg/shmbus"
)

// HealthRow is one persisted telemetry sample.
type HealthRow struct {
	ID            uint64    `gorm:"primaryKey;autoIncrement"`
	App           string    `gorm:"index:idx_health_app_topic"`
	Topic         string    `gorm:"index:idx_health_app_topic"`
	Kind          string    `gorm:"size:16"`
	Operations    uint64
	Errors        uint64
	RateHz        uint64
	Lag           uint64
	LastPublishNs uint64
	Healthy       bool
	RecordedAt    time.Time `gorm:"index"`
}

// TableName pins the telemetry table name.
func (HealthRow) TableName() string { return "kachow_health" }

// Source yields the current health rows; the sink polls it each tick.
type Source func() []shmbus.HandleHealth

// Sink writes periodic health snapshots to PostgreSQL.
type Sink struct {
	client   *conn.Client
	source   Source
	interval time.Duration
}

// NewSink migrates the telemetry table and returns a sink sampling
// source every interval.
func NewSink(client *conn.Client, source Source, interval time.Duration) (*Sink, error) {
	if client == nil || client.DB() == nil {
		return nil, errors.New("telemetry sink needs a database client")
	}
	if source == nil {
		return nil, errors.New("telemetry sink needs a source")
	}
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if err := client.DB().AutoMigrate(&HealthRow{}); err != nil {
		return nil, errors.Wrap(err, "migrate telemetry table")
	}
	return &Sink{client: client, source: source, interval: interval}, nil
}

// Run samples until ctx is done. Store failures are logged and the loop
// keeps going; telemetry loss never takes the transport down.
func (s *Sink) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Flush(); err != nil {
				logs.Errorf("telemetry flush, err: %+v", err)
			}
		}
	}
}

// Flush stores one snapshot of every handle's health.
func (s *Sink) Flush() error {
	rows := toRows(s.source(), time.Now())
	if len(rows) == 0 {
		return nil
	}
	if err := s.client.DB().Create(&rows).Error; err != nil {
		return errors.Wrap(err, "store health rows")
	}
	return nil
}

func toRows(hs []shmbus.HandleHealth, now time.Time) []HealthRow {
	rows := make([]HealthRow, 0, len(hs))
	for _, h := range hs {
		rows = append(rows, HealthRow{
			App:           h.App,
			Topic:         h.Topic,
			Kind:          h.Kind,
			Operations:    h.Operations,
			Errors:        h.Errors,
			RateHz:        h.RateHz,
			Lag:           h.Lag,
			LastPublishNs: h.LastPublishNs,
			Healthy:       h.Healthy,
			RecordedAt:    now,
		})
	}
	return rows
}

// ExportJSON renders health rows for the ctl tool and dashboards.
func ExportJSON(hs []shmbus.HandleHealth) ([]byte, error) {
	return json.MarshalIndent(hs, "", "  ")
}
