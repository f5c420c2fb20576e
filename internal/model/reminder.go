package model

// Reminder is a one-shot notification due at a local time of day.
// Rows live in the "tasks" table; Done flips from 0 to 1 when the reminder fires.
type Reminder struct {
	ID       uint   `gorm:"primaryKey"`
	Task     string `gorm:"type:text"`
	RemindAt string `gorm:"column:remind_at;type:text;index"`
	Done     int    `gorm:"not null;default:0"`
}

// TableName keeps the table name compatible with existing deployments.
func (Reminder) TableName() string {
	return "tasks"
}

// IsDone reports whether the reminder already fired.
func (r Reminder) IsDone() bool {
	return r.Done != 0
}
