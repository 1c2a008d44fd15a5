// README: Driver profile, approval status and eligibility result.
package driver

import (
	"time"

	"bidride/internal/types"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

type Profile struct {
	UserID               types.ID          `json:"user_id"`
	Status               Status            `json:"status"`
	VehicleType          string            `json:"vehicle_type"`
	VehicleNumber        string            `json:"vehicle_number"`
	LicenseURL           string            `json:"license_url,omitempty"`
	Documents            map[string]string `json:"documents,omitempty"`
	HasSufficientDeposit bool              `json:"has_sufficient_deposit"`
	DepositRequired      int64             `json:"deposit_required"`
	CreatedAt            time.Time         `json:"created_at"`
	UpdatedAt            time.Time         `json:"updated_at"`
}

// Reasons returned by the eligibility gate, in evaluation order.
const (
	ReasonNotRegistered       = "not registered"
	ReasonPendingApproval     = "pending approval"
	ReasonInsufficientDeposit = "insufficient deposit"
)

type Eligibility struct {
	Eligible    bool   `json:"eligible"`
	Reason      string `json:"reason,omitempty"`
	VehicleType string `json:"vehicle_type,omitempty"`
	Balance     int64  `json:"balance"`
	Required    int64  `json:"deposit_required"`
}
