package validator

import (
	"encoding/json"
	"fmt"

	"github.com/wso2/ob-consent-engine/internal/models"
)

// Limit is a parsed periodic limit of a VRP consent
type Limit struct {
	Amount          float64
	Currency        string
	PeriodType      string
	PeriodAlignment string
}

// Payment is the amount a VRP submission instructs
type Payment struct {
	Amount   float64
	Currency string
}

func (v *CrossValidator) validateVRP(consent *models.DetailedConsentResource, receipt Document, sub Submission) (Result, error) {
	var stored VRPData
	var storedInit VRPInitiation
	if err := receipt.Data.Decode(&stored); err != nil {
		return Result{}, fmt.Errorf("stored receipt of consent %s has a malformed Data section: %w", consent.ConsentID, err)
	}
	if err := stored.Initiation.Decode(&storedInit); err != nil {
		return Result{}, fmt.Errorf("stored receipt of consent %s has a malformed Initiation: %w", consent.ConsentID, err)
	}

	doc, r := submissionDocument(sub.Payload)
	if !r.Valid {
		return r, nil
	}
	if r := RequireObject("Data", doc.Data); !r.Valid {
		return r, nil
	}
	var data VRPData
	if r := decodeSection("Data", doc.Data, &data); !r.Valid {
		return r, nil
	}
	if r := RequireObject("Data.Initiation", data.Initiation); !r.Valid {
		return r, nil
	}
	if r := RequireObject("Data.Instruction", data.Instruction); !r.Valid {
		return r, nil
	}
	if r := checkConsentID(data.ConsentID, consent.ConsentID, sub); !r.Valid {
		return r, nil
	}

	var init VRPInitiation
	if r := decodeSection("Data.Initiation", data.Initiation, &init); !r.Valid {
		return r, nil
	}
	if r := compareVRPInitiation(init, storedInit); !r.Valid {
		return r, nil
	}

	var instruction VRPInstruction
	if r := decodeSection("Data.Instruction", data.Instruction, &instruction); !r.Valid {
		return r, nil
	}
	amount, r := v.compareVRPInstruction(instruction, storedInit)
	if !r.Valid {
		return r, nil
	}

	var risk, storedRisk Risk
	if doc.Risk.Present() {
		if doc.Risk.Kind() != KindObject {
			return Invalid("Risk must be an object"), nil
		}
		if r := decodeSection("Risk", doc.Risk, &risk); !r.Valid {
			return r, nil
		}
	}
	if receipt.Risk.Kind() == KindObject {
		if err := receipt.Risk.Decode(&storedRisk); err != nil {
			return Result{}, fmt.Errorf("stored receipt of consent %s has a malformed Risk: %w", consent.ConsentID, err)
		}
	}
	if r := MatchIfInitiated[string]("Risk.ContextCode", risk.ContextCode, storedRisk.ContextCode); !r.Valid {
		return r, nil
	}

	return checkMaximumIndividualAmount(stored.ControlParameters, amount), nil
}

func compareVRPInitiation(sub, init VRPInitiation) Result {
	if !sub.CreditorAccount.Present() || !init.CreditorAccount.Present() {
		return Missing("Initiation.CreditorAccount is missing")
	}
	if r := MatchIfBothPresent("Initiation.CreditorAccount", sub.CreditorAccount, init.CreditorAccount, compareAccounts("Initiation.CreditorAccount")); !r.Valid {
		return r
	}

	// a debtor account on one side only is a different consent, not a missing field
	if sub.DebtorAccount.Present() != init.DebtorAccount.Present() {
		return Mismatch("Initiation.DebtorAccount does not match the consent")
	}
	if r := MatchIfBothPresent("Initiation.DebtorAccount", sub.DebtorAccount, init.DebtorAccount, compareAccounts("Initiation.DebtorAccount")); !r.Valid {
		return r
	}

	if !sub.RemittanceInformation.Present() || !init.RemittanceInformation.Present() {
		return Missing("Initiation.RemittanceInformation is missing")
	}
	return MatchIfBothPresent("Initiation.RemittanceInformation", sub.RemittanceInformation, init.RemittanceInformation, compareRemittance("Initiation.RemittanceInformation"))
}

func (v *CrossValidator) compareVRPInstruction(sub VRPInstruction, init VRPInitiation) (Payment, Result) {
	if r := RequiredInSubmission("Instruction.InstructionIdentification", sub.InstructionIdentification); !r.Valid {
		return Payment{}, r
	}
	if r := RequiredInSubmission("Instruction.EndToEndIdentification", sub.EndToEndIdentification); !r.Valid {
		return Payment{}, r
	}
	if !sub.CreditorAccount.Present() || !init.CreditorAccount.Present() {
		return Payment{}, Missing("Instruction.CreditorAccount is missing")
	}
	if r := MatchIfBothPresent("Instruction.CreditorAccount", sub.CreditorAccount, init.CreditorAccount, compareAccounts("Instruction.CreditorAccount")); !r.Valid {
		return Payment{}, r
	}

	if r := RequireObject("Instruction.InstructedAmount", sub.InstructedAmount); !r.Valid {
		return Payment{}, r
	}
	var amt InstructedAmount
	if r := decodeSection("Instruction.InstructedAmount", sub.InstructedAmount, &amt); !r.Valid {
		return Payment{}, r
	}
	amount, r := v.checkAmount("Instruction.InstructedAmount", amt)
	if !r.Valid {
		return Payment{}, r
	}
	currency, _ := amt.Currency.Str()

	if r := MatchIfBothPresent("Instruction.RemittanceInformation", sub.RemittanceInformation, init.RemittanceInformation, compareRemittance("Instruction.RemittanceInformation")); !r.Valid {
		return Payment{}, r
	}
	return Payment{Amount: amount, Currency: currency}, OK()
}

func checkMaximumIndividualAmount(params Field, payment Payment) Result {
	var cp ControlParameters
	if err := params.Decode(&cp); err != nil || !cp.MaximumIndividualAmount.Present() {
		return OK()
	}
	var maximum InstructedAmount
	if err := cp.MaximumIndividualAmount.Decode(&maximum); err != nil {
		return OK()
	}
	if currency, ok := maximum.Currency.Str(); ok && currency != payment.Currency {
		return Mismatch("Instruction.InstructedAmount.Currency does not match the consent")
	}
	if limit, ok := maximum.Amount.Amount(); ok && payment.Amount > limit {
		return Invalid("Instruction.InstructedAmount.Amount exceeds the maximum individual amount of the consent")
	}
	return OK()
}

// PaymentOf extracts the instructed amount of a VRP submission payload
func PaymentOf(payload json.RawMessage) (Payment, bool) {
	var doc Document
	var data VRPData
	var instruction VRPInstruction
	var amt InstructedAmount
	if json.Unmarshal(payload, &doc) != nil ||
		doc.Data.Decode(&data) != nil ||
		data.Instruction.Decode(&instruction) != nil ||
		instruction.InstructedAmount.Decode(&amt) != nil {
		return Payment{}, false
	}
	amount, ok := amt.Amount.Amount()
	if !ok {
		return Payment{}, false
	}
	currency, _ := amt.Currency.Str()
	return Payment{Amount: amount, Currency: currency}, true
}

// PeriodicLimitsOf returns the periodic limits of a VRP receipt
func PeriodicLimitsOf(receipt json.RawMessage) ([]Limit, error) {
	var doc Document
	var data VRPData
	if err := json.Unmarshal(receipt, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse receipt: %w", err)
	}
	if err := doc.Data.Decode(&data); err != nil {
		return nil, fmt.Errorf("failed to parse receipt data: %w", err)
	}
	if !data.ControlParameters.Present() {
		return nil, nil
	}
	var cp ControlParameters
	if err := data.ControlParameters.Decode(&cp); err != nil {
		return nil, fmt.Errorf("failed to parse control parameters: %w", err)
	}
	if !cp.PeriodicLimits.Present() {
		return nil, nil
	}
	var raw []PeriodicLimit
	if err := cp.PeriodicLimits.Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to parse periodic limits: %w", err)
	}

	limits := make([]Limit, 0, len(raw))
	for _, l := range raw {
		amount, ok := l.Amount.Amount()
		if !ok {
			return nil, fmt.Errorf("periodic limit has an invalid amount")
		}
		currency, _ := l.Currency.Str()
		periodType, _ := l.PeriodType.Str()
		alignment, _ := l.PeriodAlignment.Str()
		limits = append(limits, Limit{Amount: amount, Currency: currency, PeriodType: periodType, PeriodAlignment: alignment})
	}
	return limits, nil
}
