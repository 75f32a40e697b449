package validator

import (
	"encoding/json"
	"fmt"
	"regexp"
	"time"
	"unicode/utf8"

	"github.com/wso2/ob-consent-engine/internal/models"
	"github.com/wso2/ob-consent-engine/internal/serviceerror"
)

const (
	maxSchemeNameLength              = 256
	maxIdentificationLength          = 256
	maxAccountNameLength             = 350
	maxSecondaryIdentificationLength = 34

	sortCodeScheme = "SortCodeAccountNumber"
)

var sortCodePattern = regexp.MustCompile(`^[0-9]{6}[0-9]{8}$`)

var defaultLocalInstruments = []string{
	"OB.BACS", "OB.BalanceTransfer", "OB.CHAPS", "OB.Euro1", "OB.FPS", "OB.Link",
	"OB.MoneyTransfer", "OB.Paym", "OB.SEPACreditTransfer", "OB.SEPAInstantCreditTransfer",
	"OB.SWIFT", "OB.Target2",
}

var periodTypes = map[string]struct{}{
	"Day": {}, "Week": {}, "Fortnight": {}, "Month": {}, "Half-year": {}, "Year": {},
}

var periodAlignments = map[string]struct{}{
	"Consent": {}, "Calendar": {},
}

// ValidateInitiation checks a receipt before a consent is created from it
func (v *CrossValidator) ValidateInitiation(consentType models.ConsentType, receipt json.RawMessage) Result {
	var doc Document
	if err := json.Unmarshal(receipt, &doc); err != nil {
		return Invalid("Receipt is not a valid JSON object")
	}
	if r := RequireObject("Data", doc.Data); !r.Valid {
		return r
	}

	switch consentType {
	case models.TypeAccounts:
		return v.validateAccountsInitiation(doc.Data)
	case models.TypePayments:
		return v.validatePaymentInitiation(doc.Data)
	case models.TypeFundsConfirmation:
		return v.validateFundsConfirmationInitiation(doc.Data)
	case models.TypeVRP:
		return v.validateVRPInitiation(doc.Data)
	default:
		return Invalid(fmt.Sprintf("Consent type %s is not supported", consentType))
	}
}

func (v *CrossValidator) validateAccountsInitiation(section Field) Result {
	var data AccountsData
	if r := decodeSection("Data", section, &data); !r.Valid {
		return r
	}
	if !data.Permissions.Present() {
		return Missing("Data.Permissions is missing in the request")
	}
	permissions, ok := data.Permissions.Strings()
	if !ok {
		return Invalid("Data.Permissions must be an array of strings")
	}
	if r := checkPermissions(permissions); !r.Valid {
		return r
	}

	expired, r := v.expired(data.ExpirationDateTime)
	if !r.Valid {
		return r
	}
	if expired {
		return Invalid("Data.ExpirationDateTime must be in the future")
	}

	from, r := optionalTime("Data.TransactionFromDateTime", data.TransactionFromDateTime)
	if !r.Valid {
		return r
	}
	to, r := optionalTime("Data.TransactionToDateTime", data.TransactionToDateTime)
	if !r.Valid {
		return r
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return Invalid("Data.TransactionToDateTime must not be before Data.TransactionFromDateTime")
	}
	return OK()
}

func (v *CrossValidator) validatePaymentInitiation(section Field) Result {
	var data PaymentData
	if r := decodeSection("Data", section, &data); !r.Valid {
		return r
	}
	if r := RequireObject("Data.Initiation", data.Initiation); !r.Valid {
		return r
	}
	var init PaymentInitiation
	if r := decodeSection("Data.Initiation", data.Initiation, &init); !r.Valid {
		return r
	}

	if r := v.checkLocalInstrument(init.LocalInstrument); !r.Valid {
		return r
	}
	// file payments carry the amount and creditor in the uploaded file
	if !init.FileType.Present() {
		if r := RequireObject("Data.Initiation.InstructedAmount", init.InstructedAmount); !r.Valid {
			return r
		}
		if r := RequireObject("Data.Initiation.CreditorAccount", init.CreditorAccount); !r.Valid {
			return r
		}
	}
	if init.InstructedAmount.Present() {
		if init.InstructedAmount.Kind() != KindObject {
			return Invalid("Data.Initiation.InstructedAmount must be an object")
		}
		var amt InstructedAmount
		if r := decodeSection("Data.Initiation.InstructedAmount", init.InstructedAmount, &amt); !r.Valid {
			return r
		}
		if _, r := v.checkAmount("Data.Initiation.InstructedAmount", amt); !r.Valid {
			return r
		}
	}
	return firstFailure(
		checkAccount("Data.Initiation.CreditorAccount", init.CreditorAccount),
		checkAccount("Data.Initiation.DebtorAccount", init.DebtorAccount),
	)
}

func (v *CrossValidator) validateFundsConfirmationInitiation(section Field) Result {
	var data FundsConfirmationData
	if r := decodeSection("Data", section, &data); !r.Valid {
		return r
	}
	if r := RequireObject("Data.DebtorAccount", data.DebtorAccount); !r.Valid {
		return r
	}
	if isEmptyObject(data.DebtorAccount) {
		return Invalid("Data.DebtorAccount must not be empty")
	}
	if r := checkAccount("Data.DebtorAccount", data.DebtorAccount); !r.Valid {
		return r
	}
	expired, r := v.expired(data.ExpirationDateTime)
	if !r.Valid {
		return r
	}
	if expired {
		return Invalid("Data.ExpirationDateTime must be in the future")
	}
	return OK()
}

func (v *CrossValidator) validateVRPInitiation(section Field) Result {
	var data VRPData
	if r := decodeSection("Data", section, &data); !r.Valid {
		return r
	}
	if r := RequireObject("Data.Initiation", data.Initiation); !r.Valid {
		return r
	}
	var init VRPInitiation
	if r := decodeSection("Data.Initiation", data.Initiation, &init); !r.Valid {
		return r
	}
	if r := firstFailure(
		checkAccount("Data.Initiation.CreditorAccount", init.CreditorAccount),
		checkAccount("Data.Initiation.DebtorAccount", init.DebtorAccount),
	); !r.Valid {
		return r
	}

	if r := RequireObject("Data.ControlParameters", data.ControlParameters); !r.Valid {
		return r
	}
	var cp ControlParameters
	if r := decodeSection("Data.ControlParameters", data.ControlParameters, &cp); !r.Valid {
		return r
	}
	if cp.MaximumIndividualAmount.Present() {
		var amt InstructedAmount
		if r := decodeSection("Data.ControlParameters.MaximumIndividualAmount", cp.MaximumIndividualAmount, &amt); !r.Valid {
			return r
		}
		if _, r := v.checkAmount("Data.ControlParameters.MaximumIndividualAmount", amt); !r.Valid {
			return r
		}
	}

	from, r := optionalTime("Data.ControlParameters.ValidFromDateTime", cp.ValidFromDateTime)
	if !r.Valid {
		return r
	}
	to, r := optionalTime("Data.ControlParameters.ValidToDateTime", cp.ValidToDateTime)
	if !r.Valid {
		return r
	}
	if !from.IsZero() && !to.IsZero() && !to.After(from) {
		return Invalid("Data.ControlParameters.ValidToDateTime must be after ValidFromDateTime")
	}

	if !cp.PeriodicLimits.Present() {
		return OK()
	}
	if cp.PeriodicLimits.Kind() != KindArray {
		return Invalid("Data.ControlParameters.PeriodicLimits must be an array")
	}
	var limits []PeriodicLimit
	if err := cp.PeriodicLimits.Decode(&limits); err != nil {
		return Invalid("Data.ControlParameters.PeriodicLimits is malformed")
	}
	for _, l := range limits {
		if r := checkPeriodicLimit(l); !r.Valid {
			return r
		}
	}
	return OK()
}

func checkPeriodicLimit(l PeriodicLimit) Result {
	periodType, ok := l.PeriodType.Str()
	if !ok {
		return Missing("PeriodicLimits.PeriodType is missing in the request")
	}
	if _, ok := periodTypes[periodType]; !ok {
		return Invalid(fmt.Sprintf("PeriodicLimits.PeriodType %s is not supported", periodType))
	}
	alignment, ok := l.PeriodAlignment.Str()
	if !ok {
		return Missing("PeriodicLimits.PeriodAlignment is missing in the request")
	}
	if _, ok := periodAlignments[alignment]; !ok {
		return Invalid(fmt.Sprintf("PeriodicLimits.PeriodAlignment %s is not supported", alignment))
	}
	if r := RequiredInSubmission("PeriodicLimits.Currency", l.Currency); !r.Valid {
		return r
	}
	if amount, ok := l.Amount.Amount(); !ok || amount <= 0 {
		return Invalid("PeriodicLimits.Amount must be a decimal greater than zero")
	}
	return OK()
}

func (v *CrossValidator) checkLocalInstrument(f Field) Result {
	if !f.Present() {
		return OK()
	}
	li, ok := f.Str()
	if !ok {
		return Invalid("Data.Initiation.LocalInstrument must be a string")
	}
	if _, ok := v.instruments[li]; !ok {
		return Invalid(fmt.Sprintf("LocalInstrument %s is not supported", li)).
			WithCode(serviceerror.UnsupportedLocalInstrument)
	}
	return OK()
}

// checkAccount applies the length and scheme rules to an optional account
func checkAccount(name string, f Field) Result {
	if !f.Present() {
		return OK()
	}
	if f.Kind() != KindObject {
		return Invalid(fmt.Sprintf("%s must be an object", name))
	}
	var acc AccountRef
	if r := decodeSection(name, f, &acc); !r.Valid {
		return r
	}

	scheme, r := requiredString(name+".SchemeName", acc.SchemeName, maxSchemeNameLength)
	if !r.Valid {
		return r
	}
	identification, r := requiredString(name+".Identification", acc.Identification, maxIdentificationLength)
	if !r.Valid {
		return r
	}
	if scheme == sortCodeScheme && !sortCodePattern.MatchString(identification) {
		return Invalid(fmt.Sprintf("%s.Identification is not a valid sort code and account number", name))
	}
	if r := optionalString(name+".Name", acc.Name, maxAccountNameLength); !r.Valid {
		return r
	}
	return optionalString(name+".SecondaryIdentification", acc.SecondaryIdentification, maxSecondaryIdentificationLength)
}

func requiredString(name string, f Field, maxLength int) (string, Result) {
	if r := RequiredInSubmission(name, f); !r.Valid {
		return "", r
	}
	s, _ := f.Str()
	if utf8.RuneCountInString(s) > maxLength {
		return "", Invalid(fmt.Sprintf("%s exceeds %d characters", name, maxLength))
	}
	return s, OK()
}

func optionalString(name string, f Field, maxLength int) Result {
	if !f.Present() {
		return OK()
	}
	_, r := requiredString(name, f, maxLength)
	return r
}

func optionalTime(name string, f Field) (time.Time, Result) {
	if !f.Present() {
		return time.Time{}, OK()
	}
	s, ok := f.Str()
	if !ok {
		return time.Time{}, Invalid(fmt.Sprintf("%s must be a string", name))
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, Invalid(fmt.Sprintf("%s is not a valid ISO-8601 date-time", name))
	}
	return t, OK()
}

// ExpirationOf returns Data.ExpirationDateTime of a receipt, or
// ControlParameters.ValidToDateTime for VRP receipts.
func ExpirationOf(receipt json.RawMessage) (time.Time, bool) {
	var doc Document
	if err := json.Unmarshal(receipt, &doc); err != nil {
		return time.Time{}, false
	}
	var data struct {
		ExpirationDateTime Field `json:"ExpirationDateTime"`
		ControlParameters  Field `json:"ControlParameters"`
	}
	if err := doc.Data.Decode(&data); err != nil {
		return time.Time{}, false
	}
	f := data.ExpirationDateTime
	if !f.Present() {
		var cp ControlParameters
		if err := data.ControlParameters.Decode(&cp); err != nil {
			return time.Time{}, false
		}
		f = cp.ValidToDateTime
	}
	t, r := optionalTime("ExpirationDateTime", f)
	if !r.Valid || t.IsZero() {
		return time.Time{}, false
	}
	return t, true
}

// IsFilePayment reports whether a payment receipt initiates a file payment
func IsFilePayment(receipt json.RawMessage) bool {
	var doc Document
	var data PaymentData
	var init PaymentInitiation
	if json.Unmarshal(receipt, &doc) != nil ||
		doc.Data.Decode(&data) != nil ||
		data.Initiation.Decode(&init) != nil {
		return false
	}
	return init.FileType.Present()
}
