package schema

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/graintrace/core/pkg/ledger"
)

func TestValidatorAcceptsWellFormedPayloads(t *testing.T) {
	v, err := NewValidator()
	require.NoError(t, err)

	err = v.Validate(ledger.EventSowing, map[string]any{
		"farmerId":    "farmer-1",
		"seedVariety": "HD-3086",
		"soilType":    "loam",
	})
	require.NoError(t, err)

	err = v.Validate(ledger.EventHarvest, map[string]any{
		"harvestDate":              "2025-06-01",
		"totalYieldKg":             json.Number("5000"),
		"moisturePercentAtHarvest": json.Number("12.5"),
		"grainGrade":               "A",
	})
	require.NoError(t, err)
}

func TestValidatorAllowsUnknownKeys(t *testing.T) {
	v, err := NewValidator()
	require.NoError(t, err)

	err = v.Validate(ledger.EventSowing, map[string]any{
		"farmerId":     "farmer-1",
		"customField":  "anything",
		"nestedExtras": map[string]any{"ok": true},
	})
	require.NoError(t, err)
}

func TestValidatorRejectsWrongTypes(t *testing.T) {
	v, err := NewValidator()
	require.NoError(t, err)

	err = v.Validate(ledger.EventSowing, map[string]any{"farmerId": json.Number("42")})
	require.Error(t, err)

	var verr *ledger.ValidationError
	require.True(t, errors.As(err, &verr))
	require.Equal(t, "eventData", verr.Field)
}

func TestValidatorSkipsEventsWithoutSchema(t *testing.T) {
	v, err := NewValidator()
	require.NoError(t, err)

	require.NoError(t, v.Validate(ledger.EventTillering, map[string]any{"anything": 1}))
	require.NoError(t, v.Validate(ledger.EventQRGenerated, nil))
}

func TestValidatorTreatsNilPayloadAsEmpty(t *testing.T) {
	v, err := NewValidator()
	require.NoError(t, err)

	// No required fields, so an empty sowing payload is acceptable.
	require.NoError(t, v.Validate(ledger.EventSowing, nil))
}
