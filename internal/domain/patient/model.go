package patient

import (
	"strings"
	"time"
)

// Patient is a registered person, keyed by national id.
type Patient struct {
	NationalID     string    `json:"national_id" validate:"required,national_id"`
	Name           string    `json:"name" validate:"notblank,max=200"`
	Age            int       `json:"age" validate:"min=0,max=150"`
	Gender         string    `json:"gender" validate:"required,oneof=M F O"`
	Email          string    `json:"email" validate:"required,email,max=254"`
	Phone          *string   `json:"phone,omitempty" validate:"omitempty,phone_number"`
	MedicalHistory *string   `json:"medical_history,omitempty" validate:"omitempty,max=10000"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Demographics are the fields a registrar may change after creation.
type Demographics struct {
	Name           string  `json:"name" validate:"notblank,max=200"`
	Age            int     `json:"age" validate:"min=0,max=150"`
	Gender         string  `json:"gender" validate:"required,oneof=M F O"`
	Email          string  `json:"email" validate:"required,email,max=254"`
	Phone          *string `json:"phone,omitempty" validate:"omitempty,phone_number"`
	MedicalHistory *string `json:"medical_history,omitempty" validate:"omitempty,max=10000"`
}

// normalize trims text fields and lowercases the email so uniqueness is
// case-insensitive.
func (p *Patient) normalize() {
	p.NationalID = strings.TrimSpace(p.NationalID)
	p.Name = strings.TrimSpace(p.Name)
	p.Email = strings.ToLower(strings.TrimSpace(p.Email))
	if p.Phone != nil {
		v := strings.TrimSpace(*p.Phone)
		if v == "" {
			p.Phone = nil
		} else {
			p.Phone = &v
		}
	}
}

func (p *Patient) apply(d Demographics) {
	p.Name = d.Name
	p.Age = d.Age
	p.Gender = d.Gender
	p.Email = d.Email
	p.Phone = d.Phone
	p.MedicalHistory = d.MedicalHistory
}
