package schema

import (
	"fmt"
	"strings"

	tferrors "github.com/tabflow/tabflow/pkg/errors"
)

// Policy determines how a change between a declared and an observed descriptor is
// handled.
type Policy int

const (
	// PolicyStrict rejects any change.
	PolicyStrict Policy = iota
	// PolicyMergeOptional allows new optional fields, never drops or narrows types.
	PolicyMergeOptional
	// PolicyEvolving allows type widening and any new field.
	PolicyEvolving
)

func (p Policy) String() string {
	switch p {
	case PolicyStrict:
		return "strict"
	case PolicyMergeOptional:
		return "merge_optional"
	case PolicyEvolving:
		return "evolving"
	default:
		return "unknown"
	}
}

// ParsePolicy parses a string into a Policy.
func ParsePolicy(s string) Policy {
	switch strings.ToLower(s) {
	case "strict":
		return PolicyStrict
	case "merge_optional", "merge-optional":
		return PolicyMergeOptional
	case "evolving":
		return PolicyEvolving
	default:
		return PolicyStrict
	}
}

// Diff represents differences between two descriptors.
type Diff struct {
	// AddedFields are fields present in new but not in old.
	AddedFields []FieldDescriptor
	// RemovedFields are fields present in old but not in new.
	RemovedFields []FieldDescriptor
	// TypeChanges are fields with different types.
	TypeChanges []TypeChange
	// RequiredChanges are fields whose required constraint changed.
	RequiredChanges []RequiredChange
	// IsCompatible indicates if data valid under old stays valid under new.
	IsCompatible bool
	// CompatibilityReason explains why descriptors are incompatible.
	CompatibilityReason string
}

// TypeChange represents a type change between descriptors.
type TypeChange struct {
	Field   string
	OldType string
	NewType string
	// IsWidening is true if every value of the old type casts under the new one.
	IsWidening bool
}

// RequiredChange represents a change of the required constraint.
type RequiredChange struct {
	Field       string
	WasRequired bool
	IsRequired  bool
}

// Compare compares two descriptors and returns their differences.
func Compare(old, new Descriptor) *Diff {
	old, new = Normalize(old), Normalize(new)
	diff := &Diff{IsCompatible: true}

	oldFields := make(map[string]FieldDescriptor)
	for _, f := range old.Fields {
		oldFields[f.Name] = f
	}
	newFields := make(map[string]FieldDescriptor)
	for _, f := range new.Fields {
		newFields[f.Name] = f
	}

	for _, f := range new.Fields {
		if _, exists := oldFields[f.Name]; !exists {
			diff.AddedFields = append(diff.AddedFields, f)
		}
	}

	for _, f := range old.Fields {
		if _, exists := newFields[f.Name]; !exists {
			diff.RemovedFields = append(diff.RemovedFields, f)
			diff.IsCompatible = false
			diff.CompatibilityReason = fmt.Sprintf("field '%s' was removed", f.Name)
		}
	}

	for _, oldField := range old.Fields {
		newField, exists := newFields[oldField.Name]
		if !exists {
			continue
		}

		if oldField.Type != newField.Type {
			change := TypeChange{
				Field:      oldField.Name,
				OldType:    oldField.Type,
				NewType:    newField.Type,
				IsWidening: isWidening(oldField.Type, newField.Type),
			}
			diff.TypeChanges = append(diff.TypeChanges, change)
			if !change.IsWidening {
				diff.IsCompatible = false
				diff.CompatibilityReason = fmt.Sprintf("field '%s' type narrowed from %s to %s",
					oldField.Name, oldField.Type, newField.Type)
			}
		}

		wasRequired, isRequired := required(oldField), required(newField)
		if wasRequired != isRequired {
			diff.RequiredChanges = append(diff.RequiredChanges, RequiredChange{
				Field:       oldField.Name,
				WasRequired: wasRequired,
				IsRequired:  isRequired,
			})
			if !wasRequired && isRequired {
				diff.IsCompatible = false
				diff.CompatibilityReason = fmt.Sprintf("field '%s' changed from optional to required",
					oldField.Name)
			}
		}
	}

	return diff
}

func required(f FieldDescriptor) bool {
	return f.Constraints != nil && f.Constraints.Required != nil && *f.Constraints.Required
}

// isWidening checks if every raw value valid for oldType is also valid for newType.
func isWidening(oldType, newType string) bool {
	if newType == "string" || newType == "any" {
		return true
	}
	widenings := map[string][]string{
		"integer":   {"number"},
		"year":      {"integer", "number"},
		"boolean":   {"string"},
		"date":      {"datetime"},
		"yearmonth": {"string"},
		"geojson":   {"object"},
	}
	for _, target := range widenings[oldType] {
		if newType == target {
			return true
		}
	}
	return false
}

// PolicyEnforcer enforces a Policy.
type PolicyEnforcer struct {
	policy   Policy
	onchange func(old, new Descriptor, diff *Diff, decision PolicyDecision)
}

// PolicyDecision represents the outcome of a policy check.
type PolicyDecision int

const (
	DecisionAccept PolicyDecision = iota
	DecisionReject
	DecisionMerge
)

func (d PolicyDecision) String() string {
	switch d {
	case DecisionAccept:
		return "accept"
	case DecisionReject:
		return "reject"
	case DecisionMerge:
		return "merge"
	default:
		return "unknown"
	}
}

// NewPolicyEnforcer creates a new policy enforcer.
func NewPolicyEnforcer(policy Policy) *PolicyEnforcer {
	return &PolicyEnforcer{policy: policy}
}

// OnChange sets a callback invoked after every Enforce.
func (e *PolicyEnforcer) OnChange(fn func(old, new Descriptor, diff *Diff, decision PolicyDecision)) *PolicyEnforcer {
	e.onchange = fn
	return e
}

// Enforce checks whether new is acceptable in place of old and returns the descriptor
// to use from now on.
func (e *PolicyEnforcer) Enforce(old, new Descriptor) (Descriptor, error) {
	diff := Compare(old, new)
	var (
		decision PolicyDecision
		merged   Descriptor
		err      error
	)

	switch e.policy {
	case PolicyStrict:
		decision, merged, err = e.enforceStrict(new, diff)
	case PolicyMergeOptional:
		decision, merged, err = e.enforceMergeOptional(old, diff)
	case PolicyEvolving:
		decision, merged, err = e.enforceEvolving(old, diff)
	default:
		return Descriptor{}, tferrors.Newf(tferrors.CodeSchemaValidation, "unknown policy: %v", e.policy)
	}

	if e.onchange != nil {
		e.onchange(old, new, diff, decision)
	}
	return merged, err
}

func (e *PolicyEnforcer) enforceStrict(new Descriptor, diff *Diff) (PolicyDecision, Descriptor, error) {
	reject := func(format string, args ...any) (PolicyDecision, Descriptor, error) {
		return DecisionReject, Descriptor{}, tferrors.Newf(tferrors.CodeSchemaValidation, "strict policy: "+format, args...)
	}
	if len(diff.AddedFields) > 0 {
		return reject("%d new fields added", len(diff.AddedFields))
	}
	if len(diff.RemovedFields) > 0 {
		return reject("%d fields removed", len(diff.RemovedFields))
	}
	if len(diff.TypeChanges) > 0 {
		return reject("%d type changes detected", len(diff.TypeChanges))
	}
	if len(diff.RequiredChanges) > 0 {
		return reject("%d required changes detected", len(diff.RequiredChanges))
	}
	return DecisionAccept, Normalize(new), nil
}

func (e *PolicyEnforcer) enforceMergeOptional(old Descriptor, diff *Diff) (PolicyDecision, Descriptor, error) {
	if err := rejectLoss("merge_optional", diff); err != nil {
		return DecisionReject, Descriptor{}, err
	}
	for _, rc := range diff.RequiredChanges {
		if !rc.WasRequired && rc.IsRequired {
			return DecisionReject, Descriptor{}, tferrors.Newf(tferrors.CodeSchemaValidation,
				"merge_optional policy: cannot make optional field '%s' required", rc.Field)
		}
	}
	for _, f := range diff.AddedFields {
		if required(f) {
			return DecisionReject, Descriptor{}, tferrors.Newf(tferrors.CodeSchemaValidation,
				"merge_optional policy: new field '%s' must be optional", f.Name)
		}
	}
	return DecisionMerge, merge(old, diff), nil
}

func (e *PolicyEnforcer) enforceEvolving(old Descriptor, diff *Diff) (PolicyDecision, Descriptor, error) {
	if err := rejectLoss("evolving", diff); err != nil {
		return DecisionReject, Descriptor{}, err
	}
	return DecisionMerge, merge(old, diff), nil
}

func rejectLoss(policy string, diff *Diff) error {
	if len(diff.RemovedFields) > 0 {
		return tferrors.Newf(tferrors.CodeSchemaValidation, "%s policy: fields cannot be removed: %v",
			policy, fieldNames(diff.RemovedFields))
	}
	for _, tc := range diff.TypeChanges {
		if !tc.IsWidening {
			return tferrors.Newf(tferrors.CodeSchemaValidation, "%s policy: type narrowing not allowed for field '%s' (%s -> %s)",
				policy, tc.Field, tc.OldType, tc.NewType)
		}
	}
	return nil
}

// merge keeps old fields in order, applies widenings and relaxed required constraints,
// and appends added fields.
func merge(old Descriptor, diff *Diff) Descriptor {
	merged := Normalize(old)
	for i := range merged.Fields {
		f := &merged.Fields[i]
		for _, tc := range diff.TypeChanges {
			if tc.Field == f.Name && tc.IsWidening {
				f.Type = tc.NewType
				f.Format = DefaultFieldFormat
				break
			}
		}
		for _, rc := range diff.RequiredChanges {
			if rc.Field == f.Name && rc.WasRequired && !rc.IsRequired {
				no := false
				f.Constraints.Required = &no
				break
			}
		}
	}
	for _, f := range diff.AddedFields {
		merged.Fields = append(merged.Fields, f.clone())
	}
	return merged
}

func fieldNames(fields []FieldDescriptor) []string {
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}
	return names
}

// HasChanges returns true if there are any differences.
func (d *Diff) HasChanges() bool {
	return len(d.AddedFields) > 0 ||
		len(d.RemovedFields) > 0 ||
		len(d.TypeChanges) > 0 ||
		len(d.RequiredChanges) > 0
}

// Summary returns a human-readable summary of the diff.
func (d *Diff) Summary() string {
	if !d.HasChanges() {
		return "no changes"
	}

	var parts []string
	if len(d.AddedFields) > 0 {
		parts = append(parts, fmt.Sprintf("+%d fields", len(d.AddedFields)))
	}
	if len(d.RemovedFields) > 0 {
		parts = append(parts, fmt.Sprintf("-%d fields", len(d.RemovedFields)))
	}
	if len(d.TypeChanges) > 0 {
		parts = append(parts, fmt.Sprintf("%d type changes", len(d.TypeChanges)))
	}
	if len(d.RequiredChanges) > 0 {
		parts = append(parts, fmt.Sprintf("%d required changes", len(d.RequiredChanges)))
	}
	return strings.Join(parts, ", ")
}
