package etl

import (
	"fmt"

	"github.com/BartekS5/reviewseed/pkg/models"
)

// NormalizerFor returns the normalizer of a job kind.
func NormalizerFor(kind models.Kind) (Normalizer, error) {
	switch kind {
	case models.KindBooks:
		return BookNormalizer{}, nil
	case models.KindFacilities:
		return FacilityNormalizer{}, nil
	default:
		return nil, fmt.Errorf("no normalizer for kind %q", kind)
	}
}

// BookNormalizer validates rows of the books CSV.
type BookNormalizer struct{}

func (BookNormalizer) Normalize(raw RawRecord) (models.Record, error) {
	if raw.Defect != nil {
		return nil, invalid(raw, "", "%v", raw.Defect)
	}

	isbn, err := requiredString(raw, "isbn")
	if err != nil {
		return nil, err
	}
	title, err := requiredString(raw, "title")
	if err != nil {
		return nil, err
	}
	author, err := requiredString(raw, "author")
	if err != nil {
		return nil, err
	}
	year, err := requiredInt(raw, "year")
	if err != nil {
		return nil, err
	}
	if err := firstError(
		checkLength(raw, "isbn", isbn, MaxKeyLength),
		checkLength(raw, "title", title, MaxTextLength),
		checkLength(raw, "author", author, MaxTextLength),
	); err != nil {
		return nil, err
	}

	return models.Book{ISBN: isbn, Title: title, Author: author, Year: year}, nil
}

// FacilityNormalizer validates hospital and clinic features.
type FacilityNormalizer struct{}

func (FacilityNormalizer) Normalize(raw RawRecord) (models.Record, error) {
	if raw.Defect != nil {
		return nil, invalid(raw, "geometry", "%v", raw.Defect)
	}

	code, err := requiredString(raw, "comm_code")
	if err != nil {
		return nil, err
	}
	name, err := requiredString(raw, "name")
	if err != nil {
		return nil, err
	}

	lat, err := optionalFloat(raw, "latitude")
	if err != nil {
		return nil, err
	}
	lon, err := optionalFloat(raw, "longitude")
	if err != nil {
		return nil, err
	}
	if err := checkCoordinates(raw, lat, lon); err != nil {
		return nil, err
	}

	f := models.Facility{
		CommCode:  code,
		Name:      name,
		Type:      optionalString(raw, "type", "category"),
		Address:   optionalString(raw, "address"),
		Latitude:  lat,
		Longitude: lon,
	}
	if err := firstError(
		checkLength(raw, "comm_code", f.CommCode, MaxKeyLength),
		checkLength(raw, "name", f.Name, MaxTextLength),
		checkLength(raw, "type", f.Type, MaxTextLength),
		checkLength(raw, "address", f.Address, MaxTextLength),
	); err != nil {
		return nil, err
	}
	return f, nil
}

func firstError(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
