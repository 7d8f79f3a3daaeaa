package policy

import "kimberlite/internal/schema"

// Purpose is an enumerated GDPR Article 5 processing reason that gates
// consent checks.
type Purpose int

const (
	PurposeContractual Purpose = iota
	PurposeLegalObligation
	PurposeLegitimateInterest
	PurposeMarketing
	PurposeSecurity
	PurposeResearch
)

func (p Purpose) String() string {
	switch p {
	case PurposeContractual:
		return "Contractual"
	case PurposeLegalObligation:
		return "LegalObligation"
	case PurposeLegitimateInterest:
		return "LegitimateInterest"
	case PurposeMarketing:
		return "Marketing"
	case PurposeSecurity:
		return "Security"
	case PurposeResearch:
		return "Research"
	default:
		return "Purpose(?)"
	}
}

// consentRequired names which purposes need an affirmative, on-file
// consent record at all. Contractual, LegalObligation, LegitimateInterest
// and Security rest on other GDPR Article 6 legal bases and never
// require consent; Marketing and Research do.
var consentRequired = map[Purpose]bool{
	PurposeMarketing: true,
	PurposeResearch:  true,
}

// invalidPurposeClass lists (Purpose, DataClass) combinations the fixed
// matrix forbids outright, regardless of consent state: Marketing is
// never valid for PHI or PCI data.
var invalidPurposeClass = map[Purpose]map[schema.DataClass]bool{
	PurposeMarketing: {schema.DataClassPHI: true, schema.DataClassPCI: true},
}

func purposeValidForClass(p Purpose, c schema.DataClass) bool {
	return !invalidPurposeClass[p][c]
}

// ConsentState is the lifecycle state of one (subject, purpose) consent
// record. Only Granted is ever valid; Withdrawn and Expired both
// permanently invalidate the record they're set on.
type ConsentState int

const (
	ConsentGranted ConsentState = iota
	ConsentWithdrawn
	ConsentExpired
)

func (s ConsentState) String() string {
	switch s {
	case ConsentGranted:
		return "granted"
	case ConsentWithdrawn:
		return "withdrawn"
	case ConsentExpired:
		return "expired"
	default:
		return "ConsentState(?)"
	}
}

// ConsentRecord is the current state of one subject's consent for one
// purpose.
type ConsentRecord struct {
	Subject string
	Purpose Purpose
	State   ConsentState
}

type consentKey struct {
	subject string
	purpose Purpose
}

// ConsentTracker maps (subject, purpose) to the most recent consent
// record; it is the single source of truth validate_query checks
// against.
type ConsentTracker struct {
	records map[consentKey]ConsentRecord
}

func NewConsentTracker() *ConsentTracker {
	return &ConsentTracker{records: map[consentKey]ConsentRecord{}}
}

// Grant, Withdraw, and Expire each overwrite the prior record for
// (subject, purpose): only the most recent state is kept, not a full
// history.
func (t *ConsentTracker) Grant(subject string, purpose Purpose) {
	t.set(subject, purpose, ConsentGranted)
}

func (t *ConsentTracker) Withdraw(subject string, purpose Purpose) {
	t.set(subject, purpose, ConsentWithdrawn)
}

func (t *ConsentTracker) Expire(subject string, purpose Purpose) {
	t.set(subject, purpose, ConsentExpired)
}

func (t *ConsentTracker) set(subject string, purpose Purpose, state ConsentState) {
	t.records[consentKey{subject, purpose}] = ConsentRecord{Subject: subject, Purpose: purpose, State: state}
}

// Record returns the current consent record for (subject, purpose), if
// one has ever been set.
func (t *ConsentTracker) Record(subject string, purpose Purpose) (ConsentRecord, bool) {
	rec, ok := t.records[consentKey{subject, purpose}]
	return rec, ok
}

func (t *ConsentTracker) valid(subject string, purpose Purpose) bool {
	rec, ok := t.records[consentKey{subject, purpose}]
	return ok && rec.State == ConsentGranted
}

// ValidateQuery gates a read on purpose and consent: Ok (nil error)
// iff purpose is compatible with class, and — only when purpose
// requires consent at all — subject has a valid (granted, neither
// withdrawn nor expired) consent record on file for it.
func (t *ConsentTracker) ValidateQuery(subject string, purpose Purpose, class schema.DataClass) error {
	if !purposeValidForClass(purpose, class) {
		return &PurposeIncompatibleError{Purpose: purpose, Class: class}
	}
	if consentRequired[purpose] && !t.valid(subject, purpose) {
		return &ConsentMissingError{Subject: subject, Purpose: purpose}
	}
	return nil
}
