package consensus

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"buspulse.openmobility.org/internal/models"
)

// ValidationError carries per-field validation failures in the same
// fieldErrors shape the HTTP boundary serializes.
type ValidationError struct {
	Fields map[string][]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	return fmt.Sprintf("invalid report fields: %s", strings.Join(keys, ", "))
}

// Ingestor validates and normalizes incoming reports before they reach any
// shared state. Structural validation is the only thing that can fail on the
// ingest path; an unknown bus is handled downstream as a degraded accept.
type Ingestor struct {
	validate *validator.Validate
}

// NewIngestor builds an ingestor with field names taken from the json tags so
// fieldErrors line up with what clients actually sent.
func NewIngestor() *Ingestor {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Ingestor{validate: v}
}

// Validate checks one report's structure. On failure it returns a
// *ValidationError and guarantees nothing was mutated anywhere.
func (i *Ingestor) Validate(report models.LocationReport) error {
	fields := make(map[string][]string)

	if report.Timestamp.IsZero() {
		fields["timestamp"] = append(fields["timestamp"], "Invalid field value for field \"timestamp\".")
	}

	if err := i.validate.Struct(report); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				name := fe.Field()
				fields[name] = append(fields[name], fmt.Sprintf("Invalid field value for field %q.", name))
			}
		} else {
			fields["report"] = append(fields["report"], "Invalid report.")
		}
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}
