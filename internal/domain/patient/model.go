package patient

import (
	"time"

	"github.com/google/uuid"
)

type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
	GenderOther  Gender = "other"
)

func (g Gender) Valid() bool {
	switch g {
	case GenderMale, GenderFemale, GenderOther:
		return true
	}
	return false
}

// Patient is a person treated at the clinic.
type Patient struct {
	ID             uuid.UUID  `json:"id"`
	FullName       string     `json:"full_name"`
	Phone          string     `json:"phone"`
	Email          string     `json:"email"`
	Address        string     `json:"address"`
	Birthday       *time.Time `json:"birthday,omitempty"`
	Gender         Gender     `json:"gender"`
	IdentityCard   string     `json:"identity_card"`
	MedicalHistory string     `json:"medical_history"`
	Allergies      string     `json:"allergies"`
	Note           string     `json:"note"`
	IsActive       bool       `json:"is_active"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Input carries the editable fields. Birthday is YYYY-MM-DD; empty clears it.
type Input struct {
	FullName       string `json:"full_name"`
	Phone          string `json:"phone"`
	Email          string `json:"email"`
	Address        string `json:"address"`
	Birthday       string `json:"birthday"`
	Gender         Gender `json:"gender"`
	IdentityCard   string `json:"identity_card"`
	MedicalHistory string `json:"medical_history"`
	Allergies      string `json:"allergies"`
	Note           string `json:"note"`
	IsActive       *bool  `json:"is_active"`
}
