package model

import "time"

// Profile is one personnel directory entry. Several profiles may share a
// name.
type Profile struct {
	ID         string    `json:"id" yaml:"id"`
	Name       string    `json:"name" yaml:"name"`
	IDCard     string    `json:"id_card,omitempty" yaml:"id_card"`
	BankCard   string    `json:"bank_card,omitempty" yaml:"bank_card"`
	BankName   string    `json:"bank_name,omitempty" yaml:"bank_name"`
	Phone      string    `json:"phone,omitempty" yaml:"phone"`
	SalaryID   string    `json:"salary_id,omitempty" yaml:"salary_id"`
	Department string    `json:"department,omitempty" yaml:"department"`
	Category   string    `json:"category,omitempty" yaml:"category"`
	Remark     string    `json:"remark,omitempty" yaml:"remark"`
	CreatedAt  time.Time `json:"created_at" yaml:"-"`
}

// RecordFields returns the profile values keyed by sheet field name, in
// ProfileFields order.
func (p Profile) RecordFields() map[string]string {
	return map[string]string{
		FieldIDCard:   p.IDCard,
		FieldBankCard: p.BankCard,
		FieldPhone:    p.Phone,
		FieldBankName: p.BankName,
	}
}
