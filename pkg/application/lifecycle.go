package application

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	emailPattern   = regexp.MustCompile(`^\S+@\S+\.\S+$`)
	pincodePattern = regexp.MustCompile(`^\d{6}$`)
	nonAmountChars = regexp.MustCompile(`[^\d.]`)
)

// FormatApplicationID renders the public reference number, e.g. SG-2025-000042
func FormatApplicationID(year int, seq int64) string {
	return fmt.Sprintf("SG-%d-%06d", year, seq)
}

// NewApplication validates and normalises a submission into a Pending application.
// The application id is left empty; the service assigns it before the first write.
func NewApplication(input SubmitInput, doc Document, now time.Time) (*Application, error) {
	in := trimInput(input)

	var messages []string
	required := func(value, message string) {
		if value == "" {
			messages = append(messages, message)
		}
	}

	required(in.NationalID, "National ID is required")
	required(in.FullName, "Full Name is required")
	required(in.DateOfBirth, "Date of Birth is required")
	required(in.Gender, "Gender is required")
	if in.Gender != "" && !validGender(in.Gender) {
		messages = append(messages, fmt.Sprintf("`%s` is not a valid enum value for path `gender`.", in.Gender))
	}
	required(in.MobileNumber, "Mobile Number is required")
	required(in.Email, "Email is required")
	if in.Email != "" && !emailPattern.MatchString(in.Email) {
		messages = append(messages, "Please enter a valid email")
	}
	required(in.HouseBuilding, "House/Building is required")
	required(in.StreetRoadLane, "Street/Road/Lane is required")
	required(in.AreaLocality, "Area/Locality is required")
	required(in.VillageTownCity, "Village/Town/City is required")
	required(in.District, "District is required")
	required(in.State, "State is required")
	required(in.Pincode, "Pincode is required")
	if in.Pincode != "" && !pincodePattern.MatchString(in.Pincode) {
		messages = append(messages, "Please enter a valid 6-digit pincode")
	}

	if len(messages) > 0 {
		return nil, &ValidationError{Messages: messages}
	}

	if doc.UploadedAt.IsZero() {
		doc.UploadedAt = now
	}

	return &Application{
		NationalID:   in.NationalID,
		FullName:     in.FullName,
		DateOfBirth:  in.DateOfBirth,
		Gender:       Gender(in.Gender),
		MobileNumber: in.MobileNumber,
		Email:        in.Email,
		Address: Address{
			HouseBuilding:   in.HouseBuilding,
			StreetRoadLane:  in.StreetRoadLane,
			AreaLocality:    in.AreaLocality,
			VillageTownCity: in.VillageTownCity,
			District:        in.District,
			State:           in.State,
			Pincode:         in.Pincode,
		},
		AddressProof: doc,
		GrantAmount:  DefaultGrantAmount,
		Status:       StatusPending,
		StatusHistory: []StatusHistoryEntry{{
			Status:    StatusPending,
			ChangedAt: now,
			Remarks:   "Application submitted",
			ChangedBy: SystemActor,
		}},
		Purchases:     []Purchase{},
		SubmittedAt:   now,
		LastUpdatedAt: now,
	}, nil
}

// ApplyStatus moves the application to a reviewer status and records the change.
// The application is left untouched when the status is not a reviewer status.
func (a *Application) ApplyStatus(status Status, remarks, changedBy string, now time.Time) error {
	if !status.IsReviewStatus() {
		return &InvalidStatusError{Status: string(status)}
	}
	if changedBy == "" {
		changedBy = AdminActor
	}

	now = a.nextUpdateTime(now)
	a.Status = status
	a.StatusHistory = append(a.StatusHistory, StatusHistoryEntry{
		Status:    status,
		ChangedAt: now,
		Remarks:   remarks,
		ChangedBy: changedBy,
	})
	a.LastUpdatedAt = now
	return nil
}

// ApplyPurchase deducts a confirmed purchase from the grant balance and returns the new balance.
// The purchase is recorded in the history and the ledger; Status keeps the reviewer decision.
func (a *Application) ApplyPurchase(p PurchaseInput, now time.Time) (string, error) {
	for _, existing := range a.Purchases {
		if existing.TransactionID == p.TransactionID {
			return "", &DuplicateTransactionError{ApplicationID: a.ApplicationID, TransactionID: p.TransactionID}
		}
	}

	currency := p.Currency
	if currency == "" {
		currency = DefaultCurrency
	}

	balance := ParseAmount(a.GrantAmount) - p.AmountDeducted
	newBalance := currency + FormatAmount(balance)

	now = a.nextUpdateTime(now)
	a.GrantAmount = newBalance
	a.StatusHistory = append(a.StatusHistory, StatusHistoryEntry{
		Status:    StatusPurchaseCompleted,
		ChangedAt: now,
		Remarks: fmt.Sprintf("Purchase confirmed - Product: %s, Amount: %s%s, Transaction: %s",
			p.ProductName, currency, FormatAmount(p.AmountDeducted), p.TransactionID),
		ChangedBy: SystemActor,
	})
	a.Purchases = append(a.Purchases, Purchase{
		TransactionID:    p.TransactionID,
		ProductName:      p.ProductName,
		AmountDeducted:   p.AmountDeducted,
		RemainingBalance: newBalance,
		Currency:         currency,
		PurchasedAt:      now,
	})
	a.LastUpdatedAt = now
	return newBalance, nil
}

// ParseAmount keeps only digits and dots from a currency string; anything unparsable is 0
func ParseAmount(amount string) float64 {
	v, err := strconv.ParseFloat(nonAmountChars.ReplaceAllString(amount, ""), 64)
	if err != nil {
		return 0
	}
	return v
}

// FormatAmount prints the shortest representation, 49000 rather than 49000.00
func FormatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// nextUpdateTime keeps LastUpdatedAt strictly increasing on coarse clocks
func (a *Application) nextUpdateTime(now time.Time) time.Time {
	if !now.After(a.LastUpdatedAt) {
		return a.LastUpdatedAt.Add(time.Millisecond)
	}
	return now
}

func validGender(g string) bool {
	switch Gender(g) {
	case GenderMale, GenderFemale, GenderOther:
		return true
	}
	return false
}

func trimInput(in SubmitInput) SubmitInput {
	in.NationalID = strings.TrimSpace(in.NationalID)
	in.FullName = strings.TrimSpace(in.FullName)
	in.DateOfBirth = strings.TrimSpace(in.DateOfBirth)
	in.Gender = strings.TrimSpace(in.Gender)
	in.MobileNumber = strings.TrimSpace(in.MobileNumber)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.HouseBuilding = strings.TrimSpace(in.HouseBuilding)
	in.StreetRoadLane = strings.TrimSpace(in.StreetRoadLane)
	in.AreaLocality = strings.TrimSpace(in.AreaLocality)
	in.VillageTownCity = strings.TrimSpace(in.VillageTownCity)
	in.District = strings.TrimSpace(in.District)
	in.State = strings.TrimSpace(in.State)
	in.Pincode = strings.TrimSpace(in.Pincode)
	return in
}
