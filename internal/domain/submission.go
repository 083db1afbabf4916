package domain

import (
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

const (
	MinFullNameLength        = 2
	MinNationalIDLength      = 5
	MaxReasonLength          = 500
	MinRejectionReasonLength = 10
)

// MaxCommissionRate is the inclusive upper bound of an approval's commission percentage.
var MaxCommissionRate = decimal.NewFromInt(50)

// Submission carries the fields an applicant fills in on the agent application form.
// AcceptedTerms is a pointer so a missing value can be told apart from false.
type Submission struct {
	ProductID         string       `json:"product_id"`
	ProductName       string       `json:"product_name,omitempty"`
	FullName          string       `json:"full_name"`
	NationalID        string       `json:"national_id"`
	PayoutMethod      PayoutMethod `json:"payout_method"`
	PayoutNumber      string       `json:"payout_number,omitempty"`
	BankName          string       `json:"bank_name,omitempty"`
	BankAccountNumber string       `json:"bank_account_number,omitempty"`
	BankAccountName   string       `json:"bank_account_name,omitempty"`
	Reason            string       `json:"reason,omitempty"`
	AcceptedTerms     *bool        `json:"accepted_terms"`
}

// Normalize trims every field and clears the payout branch the method does not use.
func (s Submission) Normalize() Submission {
	s.ProductID = strings.TrimSpace(s.ProductID)
	s.ProductName = strings.TrimSpace(s.ProductName)
	s.FullName = strings.TrimSpace(s.FullName)
	s.NationalID = strings.TrimSpace(s.NationalID)
	s.PayoutMethod = PayoutMethod(strings.ToLower(strings.TrimSpace(string(s.PayoutMethod))))
	s.PayoutNumber = strings.TrimSpace(s.PayoutNumber)
	s.BankName = strings.TrimSpace(s.BankName)
	s.BankAccountNumber = strings.TrimSpace(s.BankAccountNumber)
	s.BankAccountName = strings.TrimSpace(s.BankAccountName)
	s.Reason = strings.TrimSpace(s.Reason)

	if s.PayoutMethod.IsBank() {
		s.PayoutNumber = ""
	} else if s.PayoutMethod.Valid() {
		s.BankName, s.BankAccountNumber, s.BankAccountName = "", "", ""
	}
	return s
}

// Validate applies the form rules. It never mutates s; call Normalize first.
func (s Submission) Validate() error {
	verr := &ValidationError{}

	if s.ProductID == "" {
		verr.Add("product_id", "is required")
	}
	if utf8.RuneCountInString(s.FullName) < MinFullNameLength {
		verr.Add("full_name", "must be at least 2 characters")
	}
	if utf8.RuneCountInString(s.NationalID) < MinNationalIDLength {
		verr.Add("national_id", "must be at least 5 characters")
	}

	switch {
	case !s.PayoutMethod.Valid():
		verr.Add("payout_method", "must be one of ecocash, onemoney, telecash, paynow, bank")
	case s.PayoutMethod.IsBank():
		if s.BankName == "" {
			verr.Add("bank_name", "is required for bank payouts")
		}
		if s.BankAccountNumber == "" {
			verr.Add("bank_account_number", "is required for bank payouts")
		}
		if s.BankAccountName == "" {
			verr.Add("bank_account_name", "is required for bank payouts")
		}
	default:
		if s.PayoutNumber == "" {
			verr.Add("payout_number", "is required for mobile money payouts")
		}
	}

	if utf8.RuneCountInString(s.Reason) > MaxReasonLength {
		verr.Add("reason", "must be at most 500 characters")
	}
	if s.AcceptedTerms == nil || !*s.AcceptedTerms {
		verr.Add("accepted_terms", "must be accepted")
	}

	return verr.OrNil()
}

// ToApplication builds the pending record for a validated submission.
func (s Submission) ToApplication(id string, applicant Principal) AgentApplication {
	return AgentApplication{
		ID:                id,
		ApplicantID:       applicant.ID,
		ApplicantEmail:    applicant.Email,
		ProductID:         s.ProductID,
		ProductName:       s.ProductName,
		FullName:          s.FullName,
		NationalID:        s.NationalID,
		PayoutMethod:      s.PayoutMethod,
		PayoutNumber:      s.PayoutNumber,
		BankName:          s.BankName,
		BankAccountNumber: s.BankAccountNumber,
		BankAccountName:   s.BankAccountName,
		Reason:            s.Reason,
		AcceptedTerms:     s.AcceptedTerms != nil && *s.AcceptedTerms,
		Status:            StatusPending,
	}
}

// ValidateCommissionRate enforces 0 < rate <= 50.
func ValidateCommissionRate(rate decimal.Decimal) error {
	if !rate.IsPositive() || rate.GreaterThan(MaxCommissionRate) {
		verr := &ValidationError{}
		verr.Add("commission_rate", "must be greater than 0 and at most 50")
		return verr
	}
	return nil
}

// CanReject reports whether a rejection reason is long enough to enable the reject action.
func CanReject(reason string) bool {
	return utf8.RuneCountInString(strings.TrimSpace(reason)) >= MinRejectionReasonLength
}

// ValidateRejectionReason is the error form of CanReject.
func ValidateRejectionReason(reason string) error {
	if !CanReject(reason) {
		verr := &ValidationError{}
		verr.Add("rejection_reason", "must be at least 10 characters")
		return verr
	}
	return nil
}
