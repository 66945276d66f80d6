package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	schemasassets "github.com/3leaps/bucketmeta/internal/assets/schemas"
	"github.com/fulmenhq/gofulmen/schema"
)

// SchemaID identifies the embedded scrape-job schema.
const SchemaID = "bucketmeta/v1.0.0/scrape-job"

var (
	ErrSchemaNotFound   = errors.New("manifest schema not found")
	ErrValidationFailed = errors.New("manifest validation failed")
)

var (
	validatorOnce sync.Once
	validator     *schema.Validator
	validatorErr  error
)

// ValidationError is one schema diagnostic. Path is a JSON pointer such
// as "/scrape/bucket".
type ValidationError struct {
	Path    string
	Message string
}

func (e ValidationError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// ValidationErrors holds every error diagnostic for one job. It matches
// ErrValidationFailed with errors.Is.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	switch len(e) {
	case 0:
		return "validation failed"
	case 1:
		return e[0].Error()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "scrape job has %d errors:", len(e))
	for _, err := range e {
		b.WriteString("\n  - ")
		b.WriteString(err.Error())
	}
	return b.String()
}

func (e ValidationErrors) Unwrap() error {
	return ErrValidationFailed
}

// Validate checks a Manifest built in code, such as from CLI flags,
// against the same schema as job files.
func Validate(m *Manifest) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode scrape job: %w", err)
	}

	return ValidateRaw(data)
}

// ValidateRaw checks a JSON document against the scrape-job schema, which
// rejects unknown properties. Error-severity diagnostics are returned
// together; warnings are dropped.
func ValidateRaw(jsonData []byte) error {
	v, err := getValidator()
	if err != nil {
		return err
	}

	diags, err := v.ValidateJSON(jsonData)
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}

	var errs ValidationErrors
	for _, d := range diags {
		if d.Severity == schema.SeverityError {
			errs = append(errs, ValidationError{
				Path:    d.Pointer,
				Message: d.Message,
			})
		}
	}

	if len(errs) == 0 {
		return nil
	}

	return errs
}

func getValidator() (*schema.Validator, error) {
	validatorOnce.Do(func() {
		if len(schemasassets.ScrapeJobSchema) == 0 {
			validatorErr = fmt.Errorf("%w: embedded scrape-job schema is empty", ErrSchemaNotFound)
			return
		}
		validator, validatorErr = schema.NewValidator(schemasassets.ScrapeJobSchema)
		if validatorErr != nil {
			validatorErr = fmt.Errorf("compile scrape-job schema: %w", validatorErr)
		}
	})
	return validator, validatorErr
}
