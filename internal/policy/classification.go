// Package policy implements the three interlocking compliance layers
// invoked on the read and write paths: data classification, GDPR
// consent/purpose gating, and RBAC row/column filtering. None of this
// touches kernel state directly — classification gates what a stream
// may be declared as, consent gates what a query may read, and the
// RBAC filter rewrites a query.SelectStmt before it ever reaches the
// executor.
package policy

import (
	"strings"

	"kimberlite/internal/schema"
)

// Framework is an external compliance rule set that constrains
// classification, retention, audit, and access.
type Framework int

const (
	FrameworkHIPAA Framework = iota
	FrameworkGDPR
	FrameworkPCIDSS
	FrameworkSOX
	FrameworkISO27001
	FrameworkFedRAMP
)

func (f Framework) String() string {
	switch f {
	case FrameworkHIPAA:
		return "HIPAA"
	case FrameworkGDPR:
		return "GDPR"
	case FrameworkPCIDSS:
		return "PCI DSS"
	case FrameworkSOX:
		return "SOX"
	case FrameworkISO27001:
		return "ISO 27001"
	case FrameworkFedRAMP:
		return "FedRAMP"
	default:
		return "Framework(?)"
	}
}

// permittedFrameworks maps each DataClass to the compliance frameworks a
// stream of that class may be declared under. Classes not listed permit
// no framework declaration at all.
var permittedFrameworks = map[schema.DataClass][]Framework{
	schema.DataClassDeidentified: {FrameworkGDPR},
	schema.DataClassConfidential: {FrameworkSOX, FrameworkISO27001},
	schema.DataClassPII:          {FrameworkGDPR, FrameworkISO27001},
	schema.DataClassFinancial:    {FrameworkSOX, FrameworkISO27001},
	schema.DataClassPCI:          {FrameworkPCIDSS, FrameworkISO27001},
	schema.DataClassSensitive:    {FrameworkGDPR, FrameworkISO27001, FrameworkFedRAMP},
	schema.DataClassPHI:          {FrameworkHIPAA, FrameworkGDPR, FrameworkISO27001, FrameworkFedRAMP},
}

// PermittedFrameworks lists the frameworks a stream of class c may
// declare.
func PermittedFrameworks(c schema.DataClass) []Framework {
	return permittedFrameworks[c]
}

// CheckFramework rejects a framework declaration the class does not
// permit; classification violations are caught here, never at the
// kernel.
func CheckFramework(c schema.DataClass, f Framework) error {
	for _, permitted := range permittedFrameworks[c] {
		if permitted == f {
			return nil
		}
	}
	return &FrameworkIncompatibleError{Class: c, Framework: f}
}

// nameHint is one substring signal the stream-name heuristic checks
// for, paired with the DataClass it implies.
type nameHint struct {
	substr string
	class  schema.DataClass
}

// nameHints is deliberately conservative: a name that mentions more
// than one signal (e.g. "patient_payment_method") infers whichever
// matching hint is most restrictive, never the first one found.
var nameHints = []nameHint{
	{"ssn", schema.DataClassPHI},
	{"patient", schema.DataClassPHI},
	{"diagnosis", schema.DataClassPHI},
	{"medical", schema.DataClassPHI},
	{"health", schema.DataClassPHI},
	{"card_number", schema.DataClassPCI},
	{"cvv", schema.DataClassPCI},
	{"card", schema.DataClassPCI},
	{"payment", schema.DataClassPCI},
	{"salary", schema.DataClassFinancial},
	{"revenue", schema.DataClassFinancial},
	{"invoice", schema.DataClassFinancial},
	{"balance", schema.DataClassFinancial},
	{"email", schema.DataClassPII},
	{"address", schema.DataClassPII},
	{"phone", schema.DataClassPII},
	{"dob", schema.DataClassPII},
	{"birthdate", schema.DataClassPII},
	{"customer", schema.DataClassPII},
	{"audit", schema.DataClassConfidential},
	{"internal", schema.DataClassConfidential},
}

// InferDataClass derives the default DataClass implied by a stream's
// name: the most restrictive class among every substring hint the name
// matches, or DataClassPublic if none match.
func InferDataClass(streamName string) schema.DataClass {
	lower := strings.ToLower(streamName)
	best := schema.DataClassPublic
	for _, h := range nameHints {
		if h.class > best && strings.Contains(lower, h.substr) {
			best = h.class
		}
	}
	return best
}

// ClassifyStream resolves the DataClass a newly declared stream should
// carry. proposed is nil when the caller did not supply an explicit
// class, in which case the inferred class is used verbatim; otherwise
// *proposed must be at least as restrictive as the inferred class.
func ClassifyStream(streamName string, proposed *schema.DataClass) (schema.DataClass, error) {
	inferred := InferDataClass(streamName)
	if proposed == nil {
		return inferred, nil
	}
	if !proposed.AtLeastAsRestrictiveAs(inferred) {
		return 0, &ClassificationError{StreamName: streamName, Inferred: inferred, Proposed: *proposed}
	}
	return *proposed, nil
}

// encryptionRequired and auditLoggingRequired share the same split:
// every class above Deidentified must be encrypted at rest and must
// have its access logged to the audit stream. Public and Deidentified
// data carry neither obligation.
var encryptionRequired = map[schema.DataClass]bool{
	schema.DataClassPublic:       false,
	schema.DataClassDeidentified: false,
	schema.DataClassConfidential: true,
	schema.DataClassPII:          true,
	schema.DataClassFinancial:    true,
	schema.DataClassPCI:          true,
	schema.DataClassSensitive:    true,
	schema.DataClassPHI:          true,
}

// RequiresEncryption reports whether data of class c must be encrypted
// at rest. Public and Deidentified data are exempt; everything else is
// not.
func RequiresEncryption(c schema.DataClass) bool {
	return encryptionRequired[c]
}

// RequiresAuditLogging reports whether access to data of class c must
// be recorded in the audit stream, independent of whether the access
// also requires consent. Shares encryptionRequired's split.
func RequiresAuditLogging(c schema.DataClass) bool {
	return encryptionRequired[c]
}

// RequiresExplicitConsent reports whether class c may only be
// processed under an explicit, on-file consent record rather than a
// framework-derived lawful basis. Only Sensitive carries this
// obligation; every other class is gated by CheckFramework and, on the
// query path, by the subject/purpose consent ledger instead.
func RequiresExplicitConsent(c schema.DataClass) bool {
	return c == schema.DataClassSensitive
}
