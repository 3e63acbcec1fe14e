package consensus

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"buspulse.openmobility.org/internal/models"
)

func validReport() models.LocationReport {
	return models.LocationReport{
		BusID:          "B1",
		UserID:         "u1",
		Latitude:       6.90,
		Longitude:      79.86,
		SpeedKPH:       42,
		Heading:        15,
		AccuracyMeters: 10,
		Timestamp:      time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC),
	}
}

func fieldsOf(t *testing.T, err error) map[string][]string {
	t.Helper()
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	return verr.Fields
}

func TestValidateAcceptsWellFormedReport(t *testing.T) {
	ing := NewIngestor()

	assert.NoError(t, ing.Validate(validReport()))
}

func TestValidateRejectsOutOfRangeLatitude(t *testing.T) {
	ing := NewIngestor()

	r := validReport()
	r.Latitude = 91

	fields := fieldsOf(t, ing.Validate(r))
	assert.Contains(t, fields, "lat")
}

func TestValidateRejectsOutOfRangeLongitude(t *testing.T) {
	ing := NewIngestor()

	r := validReport()
	r.Longitude = -200

	fields := fieldsOf(t, ing.Validate(r))
	assert.Contains(t, fields, "lon")
}

func TestValidateRejectsNegativeAccuracy(t *testing.T) {
	ing := NewIngestor()

	r := validReport()
	r.AccuracyMeters = -1

	fields := fieldsOf(t, ing.Validate(r))
	assert.Contains(t, fields, "accuracy")
}

func TestValidateRejectsMissingIdentifiers(t *testing.T) {
	ing := NewIngestor()

	r := validReport()
	r.BusID = ""
	r.UserID = ""

	fields := fieldsOf(t, ing.Validate(r))
	assert.Contains(t, fields, "busId")
	assert.Contains(t, fields, "userId")
}

func TestValidateRejectsZeroTimestamp(t *testing.T) {
	ing := NewIngestor()

	r := validReport()
	r.Timestamp = time.Time{}

	fields := fieldsOf(t, ing.Validate(r))
	assert.Contains(t, fields, "timestamp")
}

func TestValidateCollectsAllFailures(t *testing.T) {
	ing := NewIngestor()

	r := validReport()
	r.Latitude = 123
	r.Heading = 400
	r.Timestamp = time.Time{}

	err := ing.Validate(r)
	fields := fieldsOf(t, err)
	assert.Len(t, fields, 3)

	// The error message names the offending fields.
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Error(), "invalid report fields")
}
