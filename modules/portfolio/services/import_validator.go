package services

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/gestio-pm/gestio/modules/portfolio/domain/batch"
)

// rowValidator checks row shape and field constraints. It is pure and
// never consults the reference index, so validation errors are identical
// between dry runs and real runs.
type rowValidator struct {
	validate *validator.Validate
}

func newRowValidator() *rowValidator {
	return &rowValidator{validate: validator.New(validator.WithRequiredStructEnabled())}
}

// Field shapes per family. Optional columns are validated only when
// present (omitempty); required ones drive missing_field codes.

type buildingFields struct {
	Address          string `validate:"required,min=3"`
	PostalCode       string `validate:"omitempty,min=3,max=12"`
	ConstructionYear int    `validate:"omitempty,min=1000,max=2200"`
}

type lotFields struct {
	Reference string `validate:"required,min=1"`
	Category  string `validate:"omitempty,oneof=apartment parking cellar commercial office other"`
}

type contactFields struct {
	Email string `validate:"required,email"`
}

type contractFields struct {
	LotReference string `validate:"required,min=1"`
	ContactEmail string `validate:"required,email"`
	Role         string `validate:"required,oneof=owner tenant manager"`
}

func (v *rowValidator) Building(row batch.BuildingRow) *RowErr {
	f := buildingFields{Address: strings.TrimSpace(row.Address)}
	if row.PostalCode != nil {
		f.PostalCode = strings.TrimSpace(*row.PostalCode)
	}
	if row.ConstructionYear != nil {
		f.ConstructionYear = *row.ConstructionYear
	}
	if err := v.firstError(f); err != nil {
		return err
	}
	if row.LotCount != nil && *row.LotCount < 0 {
		return &RowErr{Code: CodeInvalidRange, Field: "lot_count", Message: "must not be negative"}
	}
	return nil
}

func (v *rowValidator) Lot(row batch.LotRow) *RowErr {
	f := lotFields{Reference: strings.TrimSpace(row.Reference)}
	if row.Category != nil {
		f.Category = strings.ToLower(strings.TrimSpace(*row.Category))
	}
	if err := v.firstError(f); err != nil {
		return err
	}
	if err := checkNonNegative("surface", row.Surface); err != nil {
		return err
	}
	return nil
}

func (v *rowValidator) Contact(row batch.ContactRow) *RowErr {
	f := contactFields{Email: batch.NormalizeEmail(row.Email)}
	return v.firstError(f)
}

func (v *rowValidator) Contract(row batch.ContractRow) *RowErr {
	f := contractFields{
		LotReference: strings.TrimSpace(row.LotReference),
		ContactEmail: batch.NormalizeEmail(row.ContactEmail),
		Role:         strings.ToLower(strings.TrimSpace(row.Role)),
	}
	if err := v.firstError(f); err != nil {
		return err
	}
	if row.StartDate != nil && row.EndDate != nil && row.EndDate.Before(*row.StartDate) {
		return &RowErr{Code: CodeInvalidRange, Field: "end_date", Message: "must not precede start_date"}
	}
	if err := checkNonNegative("rent_amount", row.RentAmount); err != nil {
		return err
	}
	if err := checkNonNegative("charges_amount", row.ChargesAmount); err != nil {
		return err
	}
	return nil
}

func checkNonNegative(field string, d *decimal.Decimal) *RowErr {
	if d != nil && d.IsNegative() {
		return &RowErr{Code: CodeInvalidRange, Field: field, Message: "must not be negative"}
	}
	return nil
}

func (v *rowValidator) firstError(fields any) *RowErr {
	err := v.validate.Struct(fields)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &RowErr{Code: CodeInvalidField, Message: err.Error()}
	}
	fe := verrs[0]
	code := CodeInvalidField
	if fe.Tag() == "required" {
		code = CodeMissingField
	}
	return &RowErr{
		Code:    code,
		Field:   snakeCase(fe.Field()),
		Message: "failed " + fe.Tag() + " check",
	}
}

func snakeCase(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r + ('a' - 'A'))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
