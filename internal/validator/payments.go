package validator

import (
	"fmt"

	"github.com/wso2/ob-consent-engine/internal/models"
)

func (v *CrossValidator) validatePayments(consent *models.DetailedConsentResource, receipt Document, sub Submission) (Result, error) {
	var stored PaymentData
	var storedInit PaymentInitiation
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
	var data PaymentData
	if r := decodeSection("Data", doc.Data, &data); !r.Valid {
		return r, nil
	}
	if r := RequireObject("Data.Initiation", data.Initiation); !r.Valid {
		return r, nil
	}
	if r := checkConsentID(data.ConsentID, consent.ConsentID, sub); !r.Valid {
		return r, nil
	}

	var init PaymentInitiation
	if r := decodeSection("Data.Initiation", data.Initiation, &init); !r.Valid {
		return r, nil
	}
	return v.comparePaymentInitiation(init, storedInit), nil
}

func (v *CrossValidator) comparePaymentInitiation(sub, init PaymentInitiation) Result {
	if r := RequiredInSubmission("InstructionIdentification", sub.InstructionIdentification); !r.Valid {
		return r
	}
	if r := RequiredInSubmission("EndToEndIdentification", sub.EndToEndIdentification); !r.Valid {
		return r
	}
	if r := v.checkInstructedAmount(sub, init); !r.Valid {
		return r
	}
	if r := MatchIfInitiated[string]("LocalInstrument", sub.LocalInstrument, init.LocalInstrument); !r.Valid {
		return r
	}
	if r := RequireObject("CreditorAccount", sub.CreditorAccount); !r.Valid {
		return r
	}
	if r := MatchIfBothPresent("CreditorAccount", sub.CreditorAccount, init.CreditorAccount, compareAccounts("CreditorAccount")); !r.Valid {
		return r
	}
	if r := MatchIfBothPresent("DebtorAccount", sub.DebtorAccount, init.DebtorAccount, compareAccounts("DebtorAccount")); !r.Valid {
		return r
	}
	return MatchIfBothPresent("RemittanceInformation", sub.RemittanceInformation, init.RemittanceInformation, compareRemittance("RemittanceInformation"))
}

// checkInstructedAmount requires a valid amount in every submission except
// file payments, and matches it against the consent when the consent has one.
func (v *CrossValidator) checkInstructedAmount(sub, init PaymentInitiation) Result {
	const name = "InstructedAmount"
	if !sub.InstructedAmount.Present() && init.FileType.Present() && !init.InstructedAmount.Present() {
		return OK()
	}
	if r := RequireObject(name, sub.InstructedAmount); !r.Valid {
		return r
	}
	var subAmount InstructedAmount
	if r := decodeSection(name, sub.InstructedAmount, &subAmount); !r.Valid {
		return r
	}
	amount, r := v.checkAmount(name, subAmount)
	if !r.Valid {
		return r
	}
	if !init.InstructedAmount.Present() {
		return OK()
	}

	var initAmount InstructedAmount
	if init.InstructedAmount.Kind() != KindObject || init.InstructedAmount.Decode(&initAmount) != nil {
		return Mismatch(name + " does not match the consent")
	}
	consented, ok := initAmount.Amount.Amount()
	if !ok || consented != amount {
		return Mismatch(name + ".Amount does not match the consent")
	}
	return MatchIfInitiated[string](name+".Currency", subAmount.Currency, initAmount.Currency)
}

// checkAmount requires a string Amount and Currency with 0 < Amount <= max
func (v *CrossValidator) checkAmount(name string, amt InstructedAmount) (float64, Result) {
	if r := RequiredInSubmission(name+".Amount", amt.Amount); !r.Valid {
		return 0, r
	}
	if r := RequiredInSubmission(name+".Currency", amt.Currency); !r.Valid {
		return 0, r
	}
	amount, ok := amt.Amount.Amount()
	if !ok {
		return 0, Invalid(fmt.Sprintf("%s.Amount is not a valid decimal", name))
	}
	if amount <= 0 {
		return 0, Invalid(fmt.Sprintf("%s.Amount must be greater than zero", name))
	}
	if v.cfg.MaxInstructedAmount > 0 && amount > v.cfg.MaxInstructedAmount {
		return 0, Invalid(fmt.Sprintf("%s.Amount exceeds the maximum of %.2f", name, v.cfg.MaxInstructedAmount))
	}
	return amount, OK()
}
