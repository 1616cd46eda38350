package postgres

import "time"

// WhoEvent is the who_events row. Its gorm tags drive AutoMigrate.
type WhoEvent struct {
	ID          int64     `gorm:"primaryKey"`
	EventID     string    `gorm:"column:event_id;type:varchar(255);not null;uniqueIndex"`
	Country     string    `gorm:"type:varchar(255);not null;index:idx_country"`
	Disease     string    `gorm:"type:varchar(255);not null;index:idx_disease"`
	Grade       string    `gorm:"type:varchar(50);index:idx_grade"`
	EventType   string    `gorm:"type:varchar(100)"`
	Status      string    `gorm:"type:varchar(100)"`
	ReportDate  time.Time `gorm:"type:date;not null;index:idx_report_date"`
	Year        int       `gorm:"index:idx_year"`
	Description string    `gorm:"type:text"`
	Cases       int       `gorm:"not null;default:0"`
	Deaths      int       `gorm:"not null;default:0"`
	Latitude    float64   `gorm:"type:double precision"`
	Longitude   float64   `gorm:"type:double precision"`
	Protracted  string    `gorm:"type:varchar(50)"`
	CreatedAt   time.Time `gorm:"not null;default:now()"`
	UpdatedAt   time.Time `gorm:"not null;default:now()"`
}

func (WhoEvent) TableName() string { return "who_events" }

// DataSyncMetadata is one append-only data_sync_metadata row.
type DataSyncMetadata struct {
	ID            int64     `gorm:"primaryKey"`
	RunID         string    `gorm:"column:run_id;type:varchar(36)"`
	LastSyncTime  time.Time `gorm:"column:last_sync_time;not null"`
	RecordsSynced int       `gorm:"column:records_synced;not null;default:0"`
	SourceURL     string    `gorm:"column:source_url;type:text"`
	SyncStatus    string    `gorm:"column:sync_status;type:varchar(50);not null"`
	ErrorMessage  *string   `gorm:"column:error_message;type:text"`
	CreatedAt     time.Time `gorm:"not null;default:now();index:idx_sync_created_at"`
}

func (DataSyncMetadata) TableName() string { return "data_sync_metadata" }

// AllModels returns the models for AutoMigrate.
func AllModels() []any {
	return []any{&WhoEvent{}, &DataSyncMetadata{}}
}
