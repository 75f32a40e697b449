package validator

import (
	"encoding/json"
	"fmt"
)

// MatchIfBothPresent compares a section that is optional as a whole but must
// appear on both sides once either side carries it. Both sections are decoded
// into T and handed to compare.
func MatchIfBothPresent[T any](name string, submission, initiation Field, compare func(sub, init T) Result) Result {
	subPresent, initPresent := submission.Present(), initiation.Present()
	switch {
	case !subPresent && !initPresent:
		return OK()
	case subPresent != initPresent:
		return Missing(fmt.Sprintf("%s is missing in the %s", name, missingSide(subPresent)))
	}

	if submission.Kind() != KindObject {
		return Invalid(fmt.Sprintf("%s must be an object", name))
	}
	if initiation.Kind() != KindObject {
		return Mismatch(fmt.Sprintf("%s does not match the consent", name))
	}

	var sub, init T
	if err := submission.Decode(&sub); err != nil {
		return Invalid(fmt.Sprintf("%s is malformed", name))
	}
	if err := initiation.Decode(&init); err != nil {
		return Mismatch(fmt.Sprintf("%s does not match the consent", name))
	}

	return compare(sub, init)
}

func missingSide(submissionPresent bool) string {
	if submissionPresent {
		return "consent"
	}
	return "request"
}

// RequiredInSubmission checks a string field that must be sent regardless of the initiation
func RequiredInSubmission(name string, submission Field) Result {
	if !submission.Present() {
		return Missing(fmt.Sprintf("%s is missing in the request", name))
	}
	s, ok := submission.Str()
	if !ok {
		return Invalid(fmt.Sprintf("%s must be a string", name))
	}
	if s == "" {
		return Invalid(fmt.Sprintf("%s must not be empty", name))
	}
	return OK()
}

// MatchIfInitiated compares a scalar only when the initiation set it.
// Once set, the submission must carry the same value of the same JSON type.
func MatchIfInitiated[T comparable](name string, submission, initiation Field) Result {
	if initiation.Blank() {
		return OK()
	}
	if submission.Blank() {
		return Mismatch(fmt.Sprintf("%s does not match the consent", name))
	}

	var sub, init T
	if err := json.Unmarshal(submission.raw, &sub); err != nil {
		return Invalid(fmt.Sprintf("%s has an invalid type %s", name, submission.Kind()))
	}
	if err := json.Unmarshal(initiation.raw, &init); err != nil {
		return Mismatch(fmt.Sprintf("%s does not match the consent", name))
	}
	if sub != init {
		return Mismatch(fmt.Sprintf("%s does not match the consent", name))
	}
	return OK()
}

// RequireObject checks that a section exists and is a JSON object
func RequireObject(name string, f Field) Result {
	if !f.Present() {
		return Missing(fmt.Sprintf("%s is missing in the request", name))
	}
	if f.Kind() != KindObject {
		return Invalid(fmt.Sprintf("%s must be an object", name))
	}
	return OK()
}

func compareAccounts(name string) func(sub, init AccountRef) Result {
	return func(sub, init AccountRef) Result {
		return firstFailure(
			MatchIfInitiated[string](name+".SchemeName", sub.SchemeName, init.SchemeName),
			MatchIfInitiated[string](name+".Identification", sub.Identification, init.Identification),
			MatchIfInitiated[string](name+".Name", sub.Name, init.Name),
			MatchIfInitiated[string](name+".SecondaryIdentification", sub.SecondaryIdentification, init.SecondaryIdentification),
		)
	}
}

func compareRemittance(name string) func(sub, init Remittance) Result {
	return func(sub, init Remittance) Result {
		if r := MatchIfInitiated[string](name+".Reference", sub.Reference, init.Reference); !r.Valid {
			return r
		}
		return MatchIfInitiated[string](name+".Unstructured", sub.Unstructured, init.Unstructured)
	}
}

// decodeSection decodes an object field that has already passed RequireObject
func decodeSection(name string, f Field, dst interface{}) Result {
	if err := f.Decode(dst); err != nil {
		return Invalid(fmt.Sprintf("%s is malformed", name))
	}
	return OK()
}
