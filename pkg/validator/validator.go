package validator

import (
	"errors"
	"math"

	"github.com/go-playground/validator/v10"

	apperrors "github.com/askwhyharsh/liveradar/pkg/errors"
)

// Fix is the shape of a raw position reading as clients submit it.
type Fix struct {
	Latitude  float64  `json:"latitude" validate:"latitude"`
	Longitude float64  `json:"longitude" validate:"longitude"`
	Accuracy  float64  `json:"accuracy" validate:"gte=0"`
	Altitude  *float64 `json:"altitude,omitempty"`
	Heading   *float64 `json:"heading,omitempty" validate:"omitempty,gte=0,lte=360"`
	Speed     *float64 `json:"speed,omitempty" validate:"omitempty,gte=0"`
}

type Validator interface {
	ValidateCoordinates(lat, lon float64) error
	ValidateFix(fix Fix) error
}

type fixValidator struct {
	validate *validator.Validate
}

func NewValidator() Validator {
	return &fixValidator{
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (v *fixValidator) ValidateCoordinates(lat, lon float64) error {
	if math.IsNaN(lat) || lat < -90 || lat > 90 {
		return apperrors.ErrInvalidLatitude
	}

	if math.IsNaN(lon) || lon < -180 || lon > 180 {
		return apperrors.ErrInvalidLongitude
	}

	return nil
}

// ValidateFix checks a submitted reading and maps the first failing field to
// the matching sentinel error.
func (v *fixValidator) ValidateFix(fix Fix) error {
	// NaN slips through numeric comparisons, reject it first
	if err := v.ValidateCoordinates(fix.Latitude, fix.Longitude); err != nil {
		return err
	}

	err := v.validate.Struct(fix)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return apperrors.ErrInvalidCoordinates
	}

	switch verrs[0].Field() {
	case "Latitude":
		return apperrors.ErrInvalidLatitude
	case "Longitude":
		return apperrors.ErrInvalidLongitude
	case "Accuracy":
		return apperrors.ErrInvalidAccuracy
	case "Heading":
		return apperrors.ErrInvalidHeading
	case "Speed":
		return apperrors.ErrInvalidSpeed
	default:
		return apperrors.ErrInvalidCoordinates
	}
}
