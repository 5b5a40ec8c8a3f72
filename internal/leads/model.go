package leads

import (
	"strings"
	"time"
)

// Status is where a lead sits in the sales workflow. The intake pipeline only
// ever writes StatusNew; later transitions belong to the CRM.
type Status string

const (
	StatusNew       Status = "new"
	StatusContacted Status = "contacted"
	StatusQualified Status = "qualified"
	StatusWon       Status = "won"
	StatusLost      Status = "lost"
)

// Statuses lists every known status in workflow order.
var Statuses = []Status{StatusNew, StatusContacted, StatusQualified, StatusWon, StatusLost}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	for _, known := range Statuses {
		if s == known {
			return true
		}
	}
	return false
}

// Submission is a validated contact form post. Treat it as a value: the
// pipeline copies it and never writes to it after ParseSubmission returns.
type Submission struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName,omitempty"`
	Email     string `json:"email"`
	Phone     string `json:"phone,omitempty"`
	Company   string `json:"company,omitempty"`
	Service   string `json:"service,omitempty"`
	Budget    string `json:"budget,omitempty"`
	Timeline  string `json:"timeline,omitempty"`
	Message   string `json:"message"`
}

// FullName joins first and last name.
func (s Submission) FullName() string {
	return strings.TrimSpace(s.FirstName + " " + s.LastName)
}

// RequestMeta is the ambient request context stored alongside a lead.
type RequestMeta struct {
	IPAddress  string
	UserAgent  string
	RefererURL string
}

// LeadRecord is the persisted form of an accepted submission.
type LeadRecord struct {
	ID         string    `json:"id"`
	FirstName  string    `json:"first_name"`
	LastName   string    `json:"last_name"`
	Email      string    `json:"email"`
	Phone      string    `json:"phone"`
	Company    string    `json:"company"`
	Service    string    `json:"service"`
	Budget     string    `json:"budget"`
	Timeline   string    `json:"timeline"`
	Message    string    `json:"message"`
	Score      int       `json:"score"`
	IPAddress  string    `json:"ip_address"`
	UserAgent  string    `json:"user_agent"`
	RefererURL string    `json:"referer_url"`
	Status     Status    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
}

// NewRecord builds the record stored for a scored submission.
func NewRecord(sub Submission, score int, meta RequestMeta) *LeadRecord {
	return &LeadRecord{
		FirstName:  sub.FirstName,
		LastName:   sub.LastName,
		Email:      sub.Email,
		Phone:      sub.Phone,
		Company:    sub.Company,
		Service:    sub.Service,
		Budget:     sub.Budget,
		Timeline:   sub.Timeline,
		Message:    sub.Message,
		Score:      score,
		IPAddress:  meta.IPAddress,
		UserAgent:  meta.UserAgent,
		RefererURL: meta.RefererURL,
		Status:     StatusNew,
	}
}

// ListFilter narrows admin listings.
type ListFilter struct {
	Limit  int
	Offset int
	Status Status
}
