package model

import "time"

// ActivityKind distinguishes the flavors of logged activity.
type ActivityKind string

const (
	ActivityCall    ActivityKind = "CALL"
	ActivityMeeting ActivityKind = "MEETING"
	ActivityEmail   ActivityKind = "EMAIL"
	ActivityTask    ActivityKind = "TASK"
)

// Activity is a scheduled or logged touchpoint anchored to a company,
// contact, or deal.
type Activity struct {
	ID        string       `json:"id"`
	Kind      ActivityKind `json:"kind"`
	Subject   string       `json:"subject"`
	DueAt     *time.Time   `json:"due_at,omitempty"`
	Done      bool         `json:"done"`
	CompanyID *string      `json:"company_id,omitempty"`
	ContactID *string      `json:"contact_id,omitempty"`
	DealID    *string      `json:"deal_id,omitempty"`
	OwnerID   string       `json:"owner_id"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// Note is free-form text anchored to a company, contact, or deal.
type Note struct {
	ID        string    `json:"id"`
	Body      string    `json:"body"`
	CompanyID *string   `json:"company_id,omitempty"`
	ContactID *string   `json:"contact_id,omitempty"`
	DealID    *string   `json:"deal_id,omitempty"`
	AuthorID  string    `json:"author_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
