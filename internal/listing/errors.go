package listing

import "fmt"

// IdentificationError is returned by the vision backend when its response
// cannot be decomposed into a description and a category.
type IdentificationError struct {
	Reason string
	Err    error
}

func (e *IdentificationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("identification failed: %s: %v", e.Reason, e.Err)
	}
	return "identification failed: " + e.Reason
}

func (e *IdentificationError) Unwrap() error { return e.Err }

// DraftingError is returned by the drafting backend when its output is
// malformed, for example when required fields are missing.
type DraftingError struct {
	Reason string
	Err    error
}

func (e *DraftingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("drafting failed: %s: %v", e.Reason, e.Err)
	}
	return "drafting failed: " + e.Reason
}

func (e *DraftingError) Unwrap() error { return e.Err }
