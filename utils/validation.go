package utils

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/augustinmaps01/risk-profiling/internal/permissions"
	"github.com/go-playground/validator/v10"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()

	// Report JSON field names so error details match request bodies
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	_ = validate.RegisterValidation("route_path", func(fl validator.FieldLevel) bool {
		return ValidateRoutePath(fl.Field().String()) == nil
	})
	// Catalog tags check against the catalog carried by the validation
	// context, or the default catalog
	_ = validate.RegisterValidationCtx("role_slug", func(ctx context.Context, fl validator.FieldLevel) bool {
		return isRoleSlug(catalogFrom(ctx), fl.Field().String())
	})
	_ = validate.RegisterValidationCtx("feature_key", func(ctx context.Context, fl validator.FieldLevel) bool {
		_, ok := catalogFrom(ctx).FeaturePermissions(fl.Field().String())
		return ok
	})
	_ = validate.RegisterValidationCtx("permission_value", func(ctx context.Context, fl validator.FieldLevel) bool {
		return catalogFrom(ctx).HasPermissionValue(fl.Field().String())
	})
}

type catalogKey struct{}

func catalogFrom(ctx context.Context) *permissions.Catalog {
	if catalog, ok := ctx.Value(catalogKey{}).(*permissions.Catalog); ok && catalog != nil {
		return catalog
	}
	return permissions.Default()
}

// ValidateStruct validates a struct using go-playground/validator. Catalog
// tags use the default catalog.
func ValidateStruct(s interface{}) error {
	return validateStruct(context.Background(), s)
}

// ValidateStructWithCatalog is ValidateStruct with role_slug, feature_key and
// permission_value checked against catalog
func ValidateStructWithCatalog(catalog *permissions.Catalog, s interface{}) error {
	return validateStruct(context.WithValue(context.Background(), catalogKey{}, catalog), s)
}

func validateStruct(ctx context.Context, s interface{}) error {
	if err := validate.StructCtx(ctx, s); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			return NewValidationError(validationErrors)
		}
		return err
	}
	return nil
}

// ValidationError wraps validation errors with structured details
type ValidationError struct {
	Message string
	Fields  map[string]string
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return e.Message
}

// NewValidationError creates a ValidationError from validator.ValidationErrors.
// Fields are keyed by their JSON namespace without the root struct name.
func NewValidationError(errs validator.ValidationErrors) *ValidationError {
	fields := make(map[string]string)
	for _, err := range errs {
		field := fieldPath(err)

		switch err.Tag() {
		case "required":
			fields[field] = fmt.Sprintf("%s is required", field)
		case "uuid":
			fields[field] = fmt.Sprintf("%s must be a valid UUID", field)
		case "min":
			fields[field] = fmt.Sprintf("%s must have at least %s entries", field, err.Param())
		case "max":
			fields[field] = fmt.Sprintf("%s must have at most %s entries", field, err.Param())
		case "oneof":
			fields[field] = fmt.Sprintf("%s must be one of: %s", field, err.Param())
		case "route_path":
			fields[field] = fmt.Sprintf("%s must be an absolute route path", field)
		case "role_slug":
			fields[field] = fmt.Sprintf("%s must be a known role slug", field)
		case "feature_key":
			fields[field] = fmt.Sprintf("%s must be a known feature", field)
		case "permission_value":
			fields[field] = fmt.Sprintf("%s must be a known permission", field)
		default:
			fields[field] = fmt.Sprintf("%s validation failed on '%s' tag", field, err.Tag())
		}
	}

	return &ValidationError{
		Message: "Validation failed",
		Fields:  fields,
	}
}

func fieldPath(err validator.FieldError) string {
	ns := err.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return err.Field()
}

// IsValidationError checks if an error is a ValidationError
func IsValidationError(err error) bool {
	var validationErr *ValidationError
	return errors.As(err, &validationErr)
}

// GetValidationFields extracts field errors from a ValidationError
func GetValidationFields(err error) map[string]string {
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return validationErr.Fields
	}
	return nil
}

// ValidateRequired validates that a string is not empty
func ValidateRequired(value string, fieldName string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s is required", fieldName)
	}
	return nil
}

// ValidateRoutePath checks that a route is an absolute client path. Query
// strings and fragments are not part of a route.
func ValidateRoutePath(route string) error {
	if route == "" {
		return errors.New("route is required")
	}
	if !strings.HasPrefix(route, "/") {
		return fmt.Errorf("route must start with '/': %s", route)
	}
	if strings.ContainsAny(route, "?#") {
		return fmt.Errorf("route must not contain a query or fragment: %s", route)
	}
	return nil
}

func isRoleSlug(catalog *permissions.Catalog, value string) bool {
	for _, role := range catalog.RoleSlugs() {
		if role == value {
			return true
		}
	}
	return false
}
