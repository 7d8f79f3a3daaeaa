package policy

import (
	"fmt"

	"kimberlite/internal/schema"
)

// ClassificationError reports a user-supplied DataClass less restrictive
// than the class a stream's name infers.
type ClassificationError struct {
	StreamName string
	Inferred   schema.DataClass
	Proposed   schema.DataClass
}

func (e *ClassificationError) Error() string {
	return fmt.Sprintf("policy: stream %q declared %s is less restrictive than inferred %s",
		e.StreamName, e.Proposed, e.Inferred)
}

// FrameworkIncompatibleError reports a compliance framework declared for
// a class that does not permit it.
type FrameworkIncompatibleError struct {
	Class     schema.DataClass
	Framework Framework
}

func (e *FrameworkIncompatibleError) Error() string {
	return fmt.Sprintf("policy: framework %s is not permitted for class %s", e.Framework, e.Class)
}

// PurposeIncompatibleError reports a processing purpose the fixed
// purpose/class matrix forbids outright, independent of consent.
type PurposeIncompatibleError struct {
	Purpose Purpose
	Class   schema.DataClass
}

func (e *PurposeIncompatibleError) Error() string {
	return fmt.Sprintf("policy: purpose %s is not valid for class %s", e.Purpose, e.Class)
}

// ConsentMissingError reports a purpose that requires consent with no
// valid (granted, non-withdrawn, non-expired) record on file.
type ConsentMissingError struct {
	Subject string
	Purpose Purpose
}

func (e *ConsentMissingError) Error() string {
	return fmt.Sprintf("policy: no valid consent for subject %q and purpose %s", e.Subject, e.Purpose)
}

// AccessDeniedError reports an RBAC rule the requested statement or role
// violated.
type AccessDeniedError struct {
	Role   Role
	Reason string
}

func (e *AccessDeniedError) Error() string {
	return fmt.Sprintf("policy: access denied for role %s: %s", e.Role, e.Reason)
}

// SignatureOrderError reports a 21 CFR Part 11 signature sequence that
// is not monotone, or an Approval with no preceding Review.
type SignatureOrderError struct {
	Index   int
	Meaning SignatureMeaning
}

func (e *SignatureOrderError) Error() string {
	return fmt.Sprintf("policy: signature sequence invalid at index %d (%s)", e.Index, e.Meaning)
}

// EncryptionRequiredError reports a write path that skipped at-rest
// encryption for a class where RequiresEncryption holds.
type EncryptionRequiredError struct {
	Class schema.DataClass
}

func (e *EncryptionRequiredError) Error() string {
	return fmt.Sprintf("policy: class %s requires encryption at rest", e.Class)
}

// AuditLoggingRequiredError reports an access path that skipped the
// audit stream for a class where RequiresAuditLogging holds.
type AuditLoggingRequiredError struct {
	Class schema.DataClass
}

func (e *AuditLoggingRequiredError) Error() string {
	return fmt.Sprintf("policy: class %s requires audit logging", e.Class)
}

// ExplicitConsentRequiredError reports processing of a class that
// RequiresExplicitConsent holds for, attempted without a matching
// consent record.
type ExplicitConsentRequiredError struct {
	Subject string
	Class   schema.DataClass
}

func (e *ExplicitConsentRequiredError) Error() string {
	return fmt.Sprintf("policy: subject %q has no explicit consent on file for class %s", e.Subject, e.Class)
}
