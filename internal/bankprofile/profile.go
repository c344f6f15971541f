package bankprofile

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/dvloznov/finko-backend/internal/domain"
	"github.com/go-playground/validator/v10"
)

var (
	validate = newValidator()
	nonSpace = regexp.MustCompile(`\S`)
)

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return nonSpace.MatchString(fl.Field().String())
	})
	return v
}

// Input is the admin-supplied body for creating or replacing a profile.
type Input struct {
	BankName               string   `json:"bankName" validate:"required,notblank,max=120"`
	SenderPatterns         []string `json:"senderPatterns" validate:"required,min=1"`
	ExtractionInstructions string   `json:"extractionInstructions" validate:"required,notblank"`
	ExampleImageURL        string   `json:"exampleImageUrl" validate:"omitempty,url"`
}

// Normalize trims every field and drops blank sender patterns.
func (in *Input) Normalize() {
	in.BankName = strings.TrimSpace(in.BankName)
	in.ExtractionInstructions = strings.TrimSpace(in.ExtractionInstructions)
	in.ExampleImageURL = strings.TrimSpace(in.ExampleImageURL)

	patterns := make([]string, 0, len(in.SenderPatterns))
	for _, p := range in.SenderPatterns {
		if p = strings.TrimSpace(p); p != "" {
			patterns = append(patterns, p)
		}
	}
	in.SenderPatterns = patterns
}

// Validate normalizes the input and checks it. Failures wrap domain.ErrInvalidInput.
func (in *Input) Validate() error {
	in.Normalize()
	if err := validate.Struct(in); err != nil {
		return fmt.Errorf("%w: %s", domain.ErrInvalidInput, describe(err))
	}
	return nil
}

// Profile builds the domain record described by the input.
func (in *Input) Profile() domain.BankEmailProfile {
	return domain.BankEmailProfile{
		BankName:               in.BankName,
		SenderPatterns:         in.SenderPatterns,
		ExtractionInstructions: in.ExtractionInstructions,
		ExampleImageURL:        in.ExampleImageURL,
	}
}

func describe(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok || len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]
	switch fe.Field() {
	case "BankName":
		return "bankName is required"
	case "SenderPatterns":
		return "senderPatterns must contain at least one pattern"
	case "ExtractionInstructions":
		return "extractionInstructions is required"
	case "ExampleImageURL":
		return "exampleImageUrl must be a valid URL"
	}
	return fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
}
