package validator

import (
	"fmt"
	"net/http"

	"github.com/wso2/ob-consent-engine/internal/models"
)

func (v *CrossValidator) validateFundsConfirmation(consent *models.DetailedConsentResource, receipt Document, sub Submission) (Result, error) {
	var stored FundsConfirmationData
	if err := receipt.Data.Decode(&stored); err != nil {
		return Result{}, fmt.Errorf("stored receipt of consent %s has a malformed Data section: %w", consent.ConsentID, err)
	}
	if stored.DebtorAccount.Kind() != KindObject || isEmptyObject(stored.DebtorAccount) {
		return Invalid("DebtorAccount of the consent is missing or empty"), nil
	}
	expired, r := v.expired(stored.ExpirationDateTime)
	if !r.Valid {
		return r, nil
	}
	if expired {
		return Invalid("Consent has expired").WithStatus(http.StatusUnauthorized), nil
	}

	doc, r := submissionDocument(sub.Payload)
	if !r.Valid {
		return r, nil
	}
	if r := RequireObject("Data", doc.Data); !r.Valid {
		return r, nil
	}
	var data FundsConfirmationData
	if r := decodeSection("Data", doc.Data, &data); !r.Valid {
		return r, nil
	}
	if r := checkConsentID(data.ConsentID, consent.ConsentID, sub); !r.Valid {
		return r, nil
	}
	if r := RequiredInSubmission("Data.Reference", data.Reference); !r.Valid {
		return r, nil
	}
	if r := RequireObject("Data.InstructedAmount", data.InstructedAmount); !r.Valid {
		return r, nil
	}
	var amount InstructedAmount
	if r := decodeSection("Data.InstructedAmount", data.InstructedAmount, &amount); !r.Valid {
		return r, nil
	}

	// funds checks are not capped by the payment limit
	if r := RequiredInSubmission("Data.InstructedAmount.Amount", amount.Amount); !r.Valid {
		return r, nil
	}
	if r := RequiredInSubmission("Data.InstructedAmount.Currency", amount.Currency); !r.Valid {
		return r, nil
	}
	value, ok := amount.Amount.Amount()
	if !ok || value <= 0 {
		return Invalid("Data.InstructedAmount.Amount must be a decimal greater than zero"), nil
	}
	return OK(), nil
}

func isEmptyObject(f Field) bool {
	var m map[string]interface{}
	if err := f.Decode(&m); err != nil {
		return true
	}
	return len(m) == 0
}
