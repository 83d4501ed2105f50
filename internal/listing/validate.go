package listing

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validate checks the fields every stored draft must carry.
func (d *ListingDraft) Validate() error {
	if d == nil {
		return errors.New("draft is nil")
	}
	if err := validate.Struct(d); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fe.Field())
			}
			return fmt.Errorf("missing required fields: %s", strings.Join(fields, ", "))
		}
		return err
	}
	if d.GeneratedDate.IsZero() {
		return errors.New("missing required fields: GeneratedDate")
	}
	if d.ExampleSoldListings == nil {
		return errors.New("exampleSoldListings must not be nil")
	}
	return nil
}
