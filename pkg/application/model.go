package application

import (
	"time"
)

// Status is the lifecycle state of an application
type Status string

const (
	StatusPending           Status = "Pending"
	StatusUnderReview       Status = "Under Review"
	StatusApproved          Status = "Approved"
	StatusRejected          Status = "Rejected"
	StatusPurchaseCompleted Status = "Purchase Completed"
)

// ReviewStatuses are the values a reviewer may set through UpdateStatus
var ReviewStatuses = []Status{StatusPending, StatusUnderReview, StatusApproved, StatusRejected}

// ActiveStatuses block a new submission for the same national ID
var ActiveStatuses = []Status{StatusPending, StatusUnderReview}

// IsActive reports whether the status still blocks a new submission
func (s Status) IsActive() bool {
	return s == StatusPending || s == StatusUnderReview
}

// IsReviewStatus reports whether a reviewer may set the status
func (s Status) IsReviewStatus() bool {
	for _, rs := range ReviewStatuses {
		if s == rs {
			return true
		}
	}
	return false
}

type Gender string

const (
	GenderMale   Gender = "Male"
	GenderFemale Gender = "Female"
	GenderOther  Gender = "Other"
)

const (
	// DefaultGrantAmount is the balance every new application starts with
	DefaultGrantAmount = "INV 50000"
	// DefaultCurrency prefixes balances when a purchase names no currency
	DefaultCurrency = "INV "

	SystemActor = "System"
	AdminActor  = "Admin"
)

type Address struct {
	HouseBuilding   string `json:"houseBuilding" bson:"houseBuilding"`
	StreetRoadLane  string `json:"streetRoadLane" bson:"streetRoadLane"`
	AreaLocality    string `json:"areaLocality" bson:"areaLocality"`
	VillageTownCity string `json:"villageTownCity" bson:"villageTownCity"`
	District        string `json:"district" bson:"district"`
	State           string `json:"state" bson:"state"`
	Pincode         string `json:"pincode" bson:"pincode"`
}

// Document describes the stored address proof upload
type Document struct {
	FileName     string    `json:"fileName" bson:"fileName"`
	OriginalName string    `json:"originalName" bson:"originalName"`
	MimeType     string    `json:"mimeType" bson:"mimeType"`
	Size         int64     `json:"size" bson:"size"`
	Path         string    `json:"path" bson:"path"`
	UploadedAt   time.Time `json:"uploadedAt" bson:"uploadedAt"`
}

type StatusHistoryEntry struct {
	Status    Status    `json:"status" bson:"status"`
	ChangedAt time.Time `json:"changedAt" bson:"changedAt"`
	Remarks   string    `json:"remarks" bson:"remarks"`
	ChangedBy string    `json:"changedBy" bson:"changedBy"`
}

// Purchase is a ledger entry recorded by ConfirmPurchase
type Purchase struct {
	TransactionID    string    `json:"transactionId" bson:"transactionId"`
	ProductName      string    `json:"productName" bson:"productName"`
	AmountDeducted   float64   `json:"amountDeducted" bson:"amountDeducted"`
	RemainingBalance string    `json:"remainingBalance" bson:"remainingBalance"`
	Currency         string    `json:"currency" bson:"currency"`
	PurchasedAt      time.Time `json:"purchasedAt" bson:"purchasedAt"`
}

type Application struct {
	ApplicationID string               `json:"applicationId" bson:"applicationId"`
	NationalID    string               `json:"nationalId" bson:"nationalId"`
	FullName      string               `json:"fullName" bson:"fullName"`
	DateOfBirth   string               `json:"dateOfBirth" bson:"dateOfBirth"`
	Gender        Gender               `json:"gender" bson:"gender"`
	MobileNumber  string               `json:"mobileNumber" bson:"mobileNumber"`
	Email         string               `json:"email" bson:"email"`
	Address       Address              `json:"address" bson:"address"`
	AddressProof  Document             `json:"addressProof" bson:"addressProof"`
	GrantAmount   string               `json:"grantAmount" bson:"grantAmount"`
	Status        Status               `json:"status" bson:"status"`
	StatusHistory []StatusHistoryEntry `json:"statusHistory" bson:"statusHistory"`
	Purchases     []Purchase           `json:"purchases" bson:"purchases"`
	SubmittedAt   time.Time            `json:"submittedAt" bson:"submittedAt"`
	LastUpdatedAt time.Time            `json:"lastUpdatedAt" bson:"lastUpdatedAt"`
}

// SubmitInput is the citizen supplied part of a submission, as received from the form
type SubmitInput struct {
	NationalID      string `json:"nationalId"`
	FullName        string `json:"fullName"`
	DateOfBirth     string `json:"dateOfBirth"`
	Gender          string `json:"gender"`
	MobileNumber    string `json:"mobileNumber"`
	Email           string `json:"email"`
	HouseBuilding   string `json:"houseBuilding"`
	StreetRoadLane  string `json:"streetRoadLane"`
	AreaLocality    string `json:"areaLocality"`
	VillageTownCity string `json:"villageTownCity"`
	District        string `json:"district"`
	State           string `json:"state"`
	Pincode         string `json:"pincode"`
}

// PurchaseInput is the merchant callback confirming a grant purchase.
// RemainingBalance is passed through to the confirmation email as sent; nil means absent.
type PurchaseInput struct {
	GrantID          string      `json:"grantId"`
	TransactionID    string      `json:"transactionId"`
	ProductName      string      `json:"productName"`
	AmountDeducted   float64     `json:"amountDeducted"`
	RemainingBalance interface{} `json:"remainingBalance"`
	Currency         string      `json:"currency"`
}

// Summary is the per-citizen list projection
type Summary struct {
	ApplicationID string    `json:"applicationId"`
	FullName      string    `json:"fullName"`
	Status        Status    `json:"status"`
	SubmittedAt   time.Time `json:"submittedAt"`
	LastUpdatedAt time.Time `json:"lastUpdatedAt"`
}

// AdminSummary is the reviewer list projection
type AdminSummary struct {
	ApplicationID string    `json:"applicationId"`
	FullName      string    `json:"fullName"`
	NationalID    string    `json:"nationalId"`
	Status        Status    `json:"status"`
	SubmittedAt   time.Time `json:"submittedAt"`
}

// StatusUpdateResult is returned after a reviewer changes the status
type StatusUpdateResult struct {
	ApplicationID string    `json:"applicationId"`
	Status        Status    `json:"status"`
	LastUpdatedAt time.Time `json:"lastUpdatedAt"`
}

// Filter selects a page of applications for reviewers
type Filter struct {
	Status Status
	Page   int
	Limit  int
}

const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100
)

// Normalize applies the paging defaults and cap
func (f Filter) Normalize() Filter {
	if f.Page < 1 {
		f.Page = DefaultPage
	}
	if f.Limit < 1 {
		f.Limit = DefaultLimit
	}
	if f.Limit > MaxLimit {
		f.Limit = MaxLimit
	}
	return f
}

// Offset returns the number of rows to skip
func (f Filter) Offset() int {
	return (f.Page - 1) * f.Limit
}

// Page is a page of reviewer summaries
type Page struct {
	Items       []AdminSummary `json:"data"`
	Count       int            `json:"count"`
	Total       int64          `json:"total"`
	TotalPages  int            `json:"totalPages"`
	CurrentPage int            `json:"currentPage"`
}
