package validator

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Kind is the JSON type of a field
type Kind int

const (
	KindAbsent Kind = iota
	KindNull
	KindString
	KindNumber
	KindBool
	KindObject
	KindArray
)

func (k Kind) String() string {
	switch k {
	case KindAbsent:
		return "absent"
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "boolean"
	case KindObject:
		return "object"
	default:
		return "array"
	}
}

// Field is an optional JSON member that keeps its raw bytes so the type
// can be checked before the value is used.
type Field struct {
	raw json.RawMessage
	set bool
}

// UnmarshalJSON implements json.Unmarshaler
func (f *Field) UnmarshalJSON(data []byte) error {
	f.raw = append(f.raw[:0], data...)
	f.set = true
	return nil
}

// MarshalJSON implements json.Marshaler
func (f Field) MarshalJSON() ([]byte, error) {
	if !f.set {
		return []byte("null"), nil
	}
	return f.raw, nil
}

// Kind returns the JSON type of the field
func (f Field) Kind() Kind {
	if !f.set {
		return KindAbsent
	}
	trimmed := bytes.TrimSpace(f.raw)
	if len(trimmed) == 0 {
		return KindAbsent
	}
	switch trimmed[0] {
	case 'n':
		return KindNull
	case '"':
		return KindString
	case 't', 'f':
		return KindBool
	case '{':
		return KindObject
	case '[':
		return KindArray
	default:
		return KindNumber
	}
}

// Present reports whether the field carries a non-null value
func (f Field) Present() bool {
	k := f.Kind()
	return k != KindAbsent && k != KindNull
}

// Str returns the string value when the field is a JSON string
func (f Field) Str() (string, bool) {
	if f.Kind() != KindString {
		return "", false
	}
	var s string
	if err := json.Unmarshal(f.raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// Blank reports whether the field is absent, null or a whitespace-only string
func (f Field) Blank() bool {
	if !f.Present() {
		return true
	}
	if s, ok := f.Str(); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}

// Decode unmarshals the field into dst
func (f Field) Decode(dst interface{}) error {
	return json.Unmarshal(f.raw, dst)
}

// Strings returns the members of a JSON array of strings
func (f Field) Strings() ([]string, bool) {
	if f.Kind() != KindArray {
		return nil, false
	}
	var values []string
	if err := json.Unmarshal(f.raw, &values); err != nil {
		return nil, false
	}
	return values, true
}

// Amount parses a decimal amount carried as a JSON string
func (f Field) Amount() (float64, bool) {
	s, ok := f.Str()
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Document is the top level of a receipt or submission
type Document struct {
	Data Field `json:"Data"`
	Risk Field `json:"Risk"`
}

// AccountRef identifies a debtor or creditor account
type AccountRef struct {
	SchemeName              Field `json:"SchemeName"`
	Identification          Field `json:"Identification"`
	Name                    Field `json:"Name"`
	SecondaryIdentification Field `json:"SecondaryIdentification"`
}

// InstructedAmount is an amount and its currency
type InstructedAmount struct {
	Amount   Field `json:"Amount"`
	Currency Field `json:"Currency"`
}

// Remittance is the remittance information of a payment
type Remittance struct {
	Reference    Field `json:"Reference"`
	Unstructured Field `json:"Unstructured"`
}

// Risk carries the payment context of a payment document
type Risk struct {
	ContextCode        Field `json:"ContextCode"`
	PaymentContextCode Field `json:"PaymentContextCode"`
}

// PaymentData is the Data section of a payment document
type PaymentData struct {
	ConsentID  Field `json:"ConsentId"`
	Initiation Field `json:"Initiation"`
}

// PaymentInitiation is the initiation of a single payment
type PaymentInitiation struct {
	InstructionIdentification  Field `json:"InstructionIdentification"`
	EndToEndIdentification     Field `json:"EndToEndIdentification"`
	LocalInstrument            Field `json:"LocalInstrument"`
	InstructedAmount           Field `json:"InstructedAmount"`
	CreditorAccount            Field `json:"CreditorAccount"`
	DebtorAccount              Field `json:"DebtorAccount"`
	RemittanceInformation      Field `json:"RemittanceInformation"`
	RequestedExecutionDateTime Field `json:"RequestedExecutionDateTime"`
	FileType                   Field `json:"FileType"`
}

// AccountsData is the Data section of an account access receipt
type AccountsData struct {
	Permissions             Field `json:"Permissions"`
	ExpirationDateTime      Field `json:"ExpirationDateTime"`
	TransactionFromDateTime Field `json:"TransactionFromDateTime"`
	TransactionToDateTime   Field `json:"TransactionToDateTime"`
}

// FundsConfirmationData is the Data section of a funds confirmation document
type FundsConfirmationData struct {
	ConsentID          Field `json:"ConsentId"`
	DebtorAccount      Field `json:"DebtorAccount"`
	ExpirationDateTime Field `json:"ExpirationDateTime"`
	Reference          Field `json:"Reference"`
	InstructedAmount   Field `json:"InstructedAmount"`
}

// VRPData is the Data section of a VRP document
type VRPData struct {
	ConsentID         Field `json:"ConsentId"`
	Initiation        Field `json:"Initiation"`
	Instruction       Field `json:"Instruction"`
	ControlParameters Field `json:"ControlParameters"`
}

// VRPInitiation is the initiation of a VRP consent or submission
type VRPInitiation struct {
	CreditorAccount       Field `json:"CreditorAccount"`
	DebtorAccount         Field `json:"DebtorAccount"`
	RemittanceInformation Field `json:"RemittanceInformation"`
}

// VRPInstruction is the instruction of a VRP submission
type VRPInstruction struct {
	InstructionIdentification Field `json:"InstructionIdentification"`
	EndToEndIdentification    Field `json:"EndToEndIdentification"`
	LocalInstrument           Field `json:"LocalInstrument"`
	CreditorAccount           Field `json:"CreditorAccount"`
	InstructedAmount          Field `json:"InstructedAmount"`
	RemittanceInformation     Field `json:"RemittanceInformation"`
}

// ControlParameters bound the payments a VRP consent allows
type ControlParameters struct {
	MaximumIndividualAmount Field `json:"MaximumIndividualAmount"`
	PeriodicLimits          Field `json:"PeriodicLimits"`
	ValidFromDateTime       Field `json:"ValidFromDateTime"`
	ValidToDateTime         Field `json:"ValidToDateTime"`
}

// PeriodicLimit caps the spend of a VRP consent over a period
type PeriodicLimit struct {
	Amount          Field `json:"Amount"`
	Currency        Field `json:"Currency"`
	PeriodType      Field `json:"PeriodType"`
	PeriodAlignment Field `json:"PeriodAlignment"`
}
