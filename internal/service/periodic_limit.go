package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/wso2/ob-consent-engine/internal/database"
	"github.com/wso2/ob-consent-engine/internal/models"
	"github.com/wso2/ob-consent-engine/internal/serviceerror"
	"github.com/wso2/ob-consent-engine/internal/validator"
)

// PeriodicLimitChecker enforces the periodic limits of VRP consents
type PeriodicLimitChecker interface {
	CheckAndRecord(ctx context.Context, consent *models.DetailedConsentResource, payload json.RawMessage) *serviceerror.ServiceError
}

const spendAttributePrefix = "vrp.spend."

// amounts within this distance of a limit are treated as equal to it
const amountTolerance = 1e-9

var errLimitExceeded = errors.New("periodic limit exceeded")

// fortnightEpoch is a Monday that calendar fortnights are counted from
var fortnightEpoch = time.Date(1970, time.January, 5, 0, 0, 0, 0, time.UTC)

// AttributeLimitTracker keeps the running spend of each periodic limit as a
// consent attribute holding "<period start millis>:<amount>"
type AttributeLimitTracker struct {
	consents   ConsentStore
	attributes AttributeStore
	tx         TxRunner
	logger     *logrus.Logger
	now        func() time.Time
}

// NewAttributeLimitTracker creates a tracker over the consent attribute table
func NewAttributeLimitTracker(consents ConsentStore, attributes AttributeStore, tx TxRunner, logger *logrus.Logger) *AttributeLimitTracker {
	return &AttributeLimitTracker{consents: consents, attributes: attributes, tx: tx, logger: logger, now: time.Now}
}

// CheckAndRecord refuses the payment when it would take the spend of any
// periodic limit past its amount, and records the spend otherwise. The consent
// row is locked while the spend is updated.
func (t *AttributeLimitTracker) CheckAndRecord(ctx context.Context, consent *models.DetailedConsentResource, payload json.RawMessage) *serviceerror.ServiceError {
	limits, err := validator.PeriodicLimitsOf(json.RawMessage(consent.Receipt))
	if err != nil {
		t.logger.WithError(err).WithField("consent_id", consent.ConsentID).Error("Failed to read periodic limits")
		return serviceerror.CustomServiceError(serviceerror.InternalServerError, "Failed to read the periodic limits of the consent")
	}
	if len(limits) == 0 {
		return nil
	}
	payment, ok := validator.PaymentOf(payload)
	if !ok {
		return serviceerror.CustomServiceError(serviceerror.FieldInvalidError, "Instruction.InstructedAmount is not a valid amount")
	}

	now := t.now().UTC()
	created := time.UnixMilli(consent.CreatedTime).UTC()

	var exceeded *serviceerror.ServiceError
	err = t.tx.WithTransaction(ctx, func(tx *database.Transaction) error {
		if _, err := t.consents.GetForUpdate(ctx, tx, consent.ConsentID, consent.OrgID); err != nil {
			return err
		}
		stored, err := t.attributes.GetByConsentID(ctx, tx, consent.ConsentID, consent.OrgID)
		if err != nil {
			return err
		}

		updates := make(map[string]string, len(limits))
		for _, limit := range limits {
			if limit.Currency != "" && payment.Currency != "" && limit.Currency != payment.Currency {
				continue
			}
			start := periodStart(limit.PeriodType, limit.PeriodAlignment, created, now)
			key := spendAttribute(limit)
			total := spentInPeriod(stored[key], start) + payment.Amount
			if total > limit.Amount+amountTolerance {
				exceeded = serviceerror.CustomServiceError(serviceerror.FieldInvalidError,
					fmt.Sprintf("Payment exceeds the %s periodic limit of %s %s",
						limit.PeriodType, strconv.FormatFloat(limit.Amount, 'f', -1, 64), limit.Currency))
				return errLimitExceeded
			}
			updates[key] = strconv.FormatInt(start.UnixMilli(), 10) + ":" + strconv.FormatFloat(total, 'f', -1, 64)
		}
		if len(updates) == 0 {
			return nil
		}
		return t.attributes.Put(ctx, tx, consent.ConsentID, consent.OrgID, updates)
	})
	if exceeded != nil {
		return exceeded
	}
	if err != nil {
		t.logger.WithError(err).WithField("consent_id", consent.ConsentID).Error("Failed to record periodic spend")
		return serviceerror.CustomServiceError(serviceerror.DatabaseError, "Failed to record the periodic spend")
	}
	return nil
}

func spendAttribute(limit validator.Limit) string {
	alignment := limit.PeriodAlignment
	if alignment == "" {
		alignment = "Calendar"
	}
	return spendAttributePrefix + limit.PeriodType + "." + alignment
}

// spentInPeriod returns the recorded spend when it belongs to the period starting at start
func spentInPeriod(value string, start time.Time) float64 {
	recordedStart, amount, ok := strings.Cut(value, ":")
	if !ok {
		return 0
	}
	millis, err := strconv.ParseInt(recordedStart, 10, 64)
	if err != nil || millis != start.UnixMilli() {
		return 0
	}
	spent, err := strconv.ParseFloat(amount, 64)
	if err != nil {
		return 0
	}
	return spent
}

// periodStart returns the start of the period containing now. Consent aligned
// periods repeat from the consent creation time, calendar aligned periods
// follow calendar boundaries in UTC.
func periodStart(periodType, alignment string, created, now time.Time) time.Time {
	if alignment == "Consent" {
		if now.Before(created) {
			return created
		}
		switch periodType {
		case "Week":
			return stepFixed(created, now, 7*24*time.Hour)
		case "Fortnight":
			return stepFixed(created, now, 14*24*time.Hour)
		case "Month":
			return stepMonths(created, now, 1)
		case "Half-year":
			return stepMonths(created, now, 6)
		case "Year":
			return stepMonths(created, now, 12)
		default:
			return stepFixed(created, now, 24*time.Hour)
		}
	}

	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	switch periodType {
	case "Week":
		return weekStart(day)
	case "Fortnight":
		week := weekStart(day)
		fortnights := week.Sub(fortnightEpoch) / (14 * 24 * time.Hour)
		return fortnightEpoch.Add(fortnights * 14 * 24 * time.Hour)
	case "Month":
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	case "Half-year":
		month := time.January
		if now.Month() >= time.July {
			month = time.July
		}
		return time.Date(now.Year(), month, 1, 0, 0, 0, 0, time.UTC)
	case "Year":
		return time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	default:
		return day
	}
}

func weekStart(day time.Time) time.Time {
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}

func stepFixed(created, now time.Time, period time.Duration) time.Time {
	n := now.Sub(created) / period
	return created.Add(n * period)
}

func stepMonths(created, now time.Time, months int) time.Time {
	elapsed := (now.Year()-created.Year())*12 + int(now.Month()) - int(created.Month())
	k := elapsed / months * months
	start := created.AddDate(0, k, 0)
	for k > 0 && start.After(now) {
		k -= months
		start = created.AddDate(0, k, 0)
	}
	return start
}
