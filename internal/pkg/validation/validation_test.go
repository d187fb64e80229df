package validation

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

type sample struct {
	Email  string          `json:"email" validate:"required,email"`
	Name   string          `json:"full_name" validate:"max=5"`
	Term   int             `json:"term_months" validate:"min=1"`
	Kind   string          `json:"kind" validate:"omitempty,oneof=a b"`
	Amount decimal.Decimal `json:"amount" validate:"positive_decimal"`
}

func TestStruct(t *testing.T) {
	valid := sample{Email: "a@b.co", Name: "ann", Term: 1, Amount: decimal.NewFromInt(10)}

	tests := []struct {
		name   string
		mutate func(*sample)
		want   string
	}{
		{"valid", func(*sample) {}, ""},
		{"missing email", func(s *sample) { s.Email = "" }, "email is required"},
		{"bad email", func(s *sample) { s.Email = "nope" }, "email must be a valid email"},
		{"long name", func(s *sample) { s.Name = "annabelle" }, "full_name must be at most 5 characters"},
		{"zero term", func(s *sample) { s.Term = 0 }, "term_months must be at least 1"},
		{"bad kind", func(s *sample) { s.Kind = "c" }, "kind must be one of [a b]"},
		{"zero amount", func(s *sample) { s.Amount = decimal.Zero }, "amount must be a positive amount"},
		{"negative amount", func(s *sample) { s.Amount = decimal.NewFromInt(-1) }, "amount must be a positive amount"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := valid
			tt.mutate(&s)
			assert.Equal(t, tt.want, Struct(s))
		})
	}
}
