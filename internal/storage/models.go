package storage

import "time"

// EntryModel is one key of the substrate when it is backed by a SQL database
type EntryModel struct {
	Key       string `gorm:"column:entry_key;primaryKey;size:255"`
	Value     []byte `gorm:"type:blob;not null"`
	UpdatedAt time.Time
}

func (EntryModel) TableName() string {
	return "kv_entries"
}
