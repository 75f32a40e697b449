package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/wso2/ob-consent-engine/internal/config"
)

// CutOffDecision is the outcome of evaluating a payment against the daily cut-off
type CutOffDecision int

const (
	CutOffAccept CutOffDecision = iota
	CutOffReject
	CutOffAcceptLate
)

func (d CutOffDecision) String() string {
	switch d {
	case CutOffReject:
		return "Reject"
	case CutOffAcceptLate:
		return "AcceptLate"
	default:
		return "Accept"
	}
}

// CutOffPolicy decides whether a payment initiated at a given time may still
// be processed today
type CutOffPolicy struct {
	enabled    bool
	rejectLate bool
	hour       int
	minute     int
	second     int
	// offset is the zone the daily cut-off time is expressed in
	offset *time.Location
	// zone decides what counts as the same calendar day
	zone *time.Location
	now  func() time.Time
}

// NewCutOffPolicy parses the cut-off settings
func NewCutOffPolicy(cfg config.CutOffConfig) (*CutOffPolicy, error) {
	policy := &CutOffPolicy{enabled: cfg.Enabled, now: time.Now, zone: time.UTC, offset: time.UTC}

	switch strings.ToUpper(strings.TrimSpace(cfg.Policy)) {
	case "", "REJECT":
		policy.rejectLate = true
	case "ACCEPT":
		policy.rejectLate = false
	default:
		return nil, fmt.Errorf("unknown cut-off policy %q", cfg.Policy)
	}

	if cfg.Zone != "" {
		zone, err := time.LoadLocation(cfg.Zone)
		if err != nil {
			return nil, fmt.Errorf("invalid cut-off zone %q: %w", cfg.Zone, err)
		}
		policy.zone = zone
	}

	if cfg.DailyCutOffTime != "" {
		t, err := parseClock(cfg.DailyCutOffTime)
		if err != nil {
			return nil, err
		}
		policy.hour, policy.minute, policy.second = t.Clock()
		_, offset := t.Zone()
		policy.offset = time.FixedZone("", offset)
	} else {
		policy.hour, policy.minute, policy.second = 23, 59, 59
	}

	return policy, nil
}

func parseClock(value string) (time.Time, error) {
	for _, layout := range []string{"15:04:05Z07:00", "15:04Z07:00", "15:04:05", "15:04"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid daily cut-off time %q", value)
}

// Enabled reports whether cut-off checks are switched on
func (p *CutOffPolicy) Enabled() bool {
	return p != nil && p.enabled
}

// CutOffTime returns the cut-off instant of the day containing t
func (p *CutOffPolicy) CutOffTime(t time.Time) time.Time {
	local := t.In(p.offset)
	return time.Date(local.Year(), local.Month(), local.Day(), p.hour, p.minute, p.second, 0, p.offset)
}

// Evaluate decides what happens to a payment initiated at initiation
func (p *CutOffPolicy) Evaluate(initiation time.Time) CutOffDecision {
	if !p.Enabled() {
		return CutOffAccept
	}

	now := p.now()
	elapsed := now.After(p.CutOffTime(now))
	if elapsed || !sameDay(initiation.In(p.zone), now.In(p.zone)) {
		if p.rejectLate {
			return CutOffReject
		}
		return CutOffAcceptLate
	}
	return CutOffAccept
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
