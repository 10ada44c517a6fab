package credential

import (
	"context"
	"time"
)

// DateLayout is the YYYY-MM-DD layout used for every date column
const DateLayout = "2006-01-02"

// Header lists the columns the credential issuer reads, in order
var Header = []string{
	"individualId",
	"beneficiaryName",
	"grantName",
	"grantAmount",
	"grantType",
	"grantDescription",
	"issuerName",
	"validityStartDate",
	"validityEndDate",
	"issuanceDate",
}

// GrantInfo holds the static grant attributes stamped on every row
type GrantInfo struct {
	GrantName        string
	GrantAmount      string
	GrantType        string
	GrantDescription string
	IssuerName       string
}

// DefaultGrantInfo describes the Invia social grant credential
func DefaultGrantInfo() GrantInfo {
	return GrantInfo{
		GrantName:        "Invia Social Grant",
		GrantAmount:      "INV 80000",
		GrantType:        "Social Welfare",
		GrantDescription: "Invia Social Grant Credential provides a secure verifiable digital proof of an individual's eligibility for government social-benefit programs",
		IssuerName:       "Government of Invia",
	}
}

// Record is one row of the feed
type Record struct {
	IndividualID      string `json:"individualId"`
	BeneficiaryName   string `json:"beneficiaryName"`
	GrantName         string `json:"grantName"`
	GrantAmount       string `json:"grantAmount"`
	GrantType         string `json:"grantType"`
	GrantDescription  string `json:"grantDescription,omitempty"`
	IssuerName        string `json:"issuerName,omitempty"`
	ValidityStartDate string `json:"validityStartDate"`
	ValidityEndDate   string `json:"validityEndDate"`
	IssuanceDate      string `json:"issuanceDate"`
}

// AppendData echoes the row that was written
type AppendData struct {
	IndividualID      string `json:"individualId"`
	BeneficiaryName   string `json:"beneficiaryName"`
	IssuanceDate      string `json:"issuanceDate"`
	ValidityStartDate string `json:"validityStartDate"`
	ValidityEndDate   string `json:"validityEndDate"`
}

// AppendResult reports whether a row was written or already present
type AppendResult struct {
	Success       bool        `json:"success"`
	Message       string      `json:"message"`
	AlreadyExists bool        `json:"alreadyExists,omitempty"`
	Data          *AppendData `json:"data,omitempty"`
}

// Feed is the append-only store the credential issuer reads grant holders from
type Feed interface {
	Exists(ctx context.Context, nationalID string) (bool, error)
	Append(ctx context.Context, nationalID, fullName string) (AppendResult, error)
	// Get returns nil without error when no row exists
	Get(ctx context.Context, nationalID string) (*Record, error)
}

// validityDates returns issuance, start and end (one year later) for the given day
func validityDates(now time.Time) (issuance, start, end string) {
	issuance = now.Format(DateLayout)
	return issuance, issuance, now.AddDate(1, 0, 0).Format(DateLayout)
}
