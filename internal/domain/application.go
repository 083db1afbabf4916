/**
 * @description
 * Core domain models for the agent referral program. These types are shared by
 * the storefront-service (which renders and drives them) and the agent-service
 * (which persists them and owns their canonical state).
 */
package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ApplicationStatus is the review state of an agent application.
type ApplicationStatus string

const (
	StatusPending  ApplicationStatus = "pending"
	StatusApproved ApplicationStatus = "approved"
	StatusRejected ApplicationStatus = "rejected"
)

// Valid reports whether s is one of the known statuses.
func (s ApplicationStatus) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// Terminal reports whether no further admin transition is defined from s.
func (s ApplicationStatus) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// ParseStatus accepts an empty string (meaning "any status") or a known status.
func ParseStatus(raw string) (ApplicationStatus, error) {
	trimmed := ApplicationStatus(strings.ToLower(strings.TrimSpace(raw)))
	if trimmed == "" || trimmed.Valid() {
		return trimmed, nil
	}
	return "", fmt.Errorf("unknown application status %q", raw)
}

// PayoutMethod is how an approved agent wants commission paid out.
type PayoutMethod string

const (
	PayoutEcocash  PayoutMethod = "ecocash"
	PayoutOneMoney PayoutMethod = "onemoney"
	PayoutTelecash PayoutMethod = "telecash"
	PayoutPaynow   PayoutMethod = "paynow"
	PayoutBank     PayoutMethod = "bank"
)

// Valid reports whether m is one of the supported payout methods.
func (m PayoutMethod) Valid() bool {
	switch m {
	case PayoutEcocash, PayoutOneMoney, PayoutTelecash, PayoutPaynow, PayoutBank:
		return true
	}
	return false
}

// IsBank reports whether m takes the bank-account branch rather than a mobile number.
func (m PayoutMethod) IsBank() bool {
	return m == PayoutBank
}

// AgentApplication is a request by a customer to become a referral agent for a product.
type AgentApplication struct {
	ID             string `json:"id"`
	ApplicantID    string `json:"applicant_id"`
	ApplicantEmail string `json:"applicant_email,omitempty"`
	ProductID      string `json:"product_id"`
	ProductName    string `json:"product_name,omitempty"`

	FullName          string       `json:"full_name"`
	NationalID        string       `json:"national_id"`
	PayoutMethod      PayoutMethod `json:"payout_method"`
	PayoutNumber      string       `json:"payout_number,omitempty"`
	BankName          string       `json:"bank_name,omitempty"`
	BankAccountNumber string       `json:"bank_account_number,omitempty"`
	BankAccountName   string       `json:"bank_account_name,omitempty"`
	Reason            string       `json:"reason,omitempty"`
	AcceptedTerms     bool         `json:"accepted_terms"`

	Status          ApplicationStatus `json:"status"`
	CommissionRate  *decimal.Decimal  `json:"commission_rate,omitempty"`
	AgentCode       *string           `json:"agent_code,omitempty"`
	RejectionReason *string           `json:"rejection_reason,omitempty"`
	ReviewedBy      *string           `json:"reviewed_by,omitempty"`
	ReviewedAt      *time.Time        `json:"reviewed_at,omitempty"`

	// Populated by the commission ledger; read-only here.
	TotalSales      decimal.Decimal `json:"total_sales"`
	TotalCommission decimal.Decimal `json:"total_commission"`

	AppliedAt time.Time `json:"applied_at"`
}

// Approve moves a pending application to approved.
func (a *AgentApplication) Approve(rate decimal.Decimal, agentCode, reviewer string, at time.Time) error {
	if a.Status != StatusPending {
		return &ConflictError{Message: fmt.Sprintf("application %s is %s, not pending", a.ID, a.Status)}
	}
	if err := ValidateCommissionRate(rate); err != nil {
		return err
	}
	if strings.TrimSpace(agentCode) == "" {
		return fmt.Errorf("agent code is required to approve application %s", a.ID)
	}
	a.Status = StatusApproved
	a.CommissionRate = &rate
	a.AgentCode = &agentCode
	a.RejectionReason = nil
	a.ReviewedBy = &reviewer
	a.ReviewedAt = &at
	return nil
}

// Reject moves a pending application to rejected.
func (a *AgentApplication) Reject(reason, reviewer string, at time.Time) error {
	if a.Status != StatusPending {
		return &ConflictError{Message: fmt.Sprintf("application %s is %s, not pending", a.ID, a.Status)}
	}
	reason = strings.TrimSpace(reason)
	if err := ValidateRejectionReason(reason); err != nil {
		return err
	}
	a.Status = StatusRejected
	a.RejectionReason = &reason
	a.CommissionRate = nil
	a.AgentCode = nil
	a.ReviewedBy = &reviewer
	a.ReviewedAt = &at
	return nil
}

// CheckInvariants verifies the review fields agree with Status and that exactly
// one payout branch is populated.
func (a AgentApplication) CheckInvariants() error {
	if !a.Status.Valid() {
		return fmt.Errorf("application %s has unknown status %q", a.ID, a.Status)
	}
	approved := a.Status == StatusApproved
	if (a.CommissionRate != nil) != approved {
		return fmt.Errorf("application %s: commission rate must be set only when approved", a.ID)
	}
	if (a.AgentCode != nil) != approved {
		return fmt.Errorf("application %s: agent code must be set only when approved", a.ID)
	}
	if (a.RejectionReason != nil) != (a.Status == StatusRejected) {
		return fmt.Errorf("application %s: rejection reason must be set only when rejected", a.ID)
	}

	mobile := a.PayoutNumber != ""
	bank := a.BankName != "" || a.BankAccountNumber != "" || a.BankAccountName != ""
	if a.PayoutMethod.IsBank() {
		if mobile || a.BankName == "" || a.BankAccountNumber == "" || a.BankAccountName == "" {
			return fmt.Errorf("application %s: bank payout requires exactly the bank fields", a.ID)
		}
	} else if !mobile || bank {
		return fmt.Errorf("application %s: mobile payout requires exactly the payout number", a.ID)
	}
	return nil
}
