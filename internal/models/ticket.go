package models

// TicketSequence stores the last issued sequence per team and calendar day
type TicketSequence struct {
	TeamID       string `json:"team_id" gorm:"column:team_id;primaryKey;size:100"`
	Date         string `json:"date" gorm:"column:date;primaryKey;size:10"` // YYYY-MM-DD
	LastSequence int    `json:"last_sequence" gorm:"column:last_sequence;not null;default:0"`
	Prefix       string `json:"prefix" gorm:"column:prefix;size:10"`
}

func (TicketSequence) TableName() string {
	return "ticket_sequences"
}
