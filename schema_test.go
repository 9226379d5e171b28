package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetWearName_Thresholds(t *testing.T) {
	t.Parallel()
	cases := []struct {
		wear float64
		want string
	}{
		{0.00, "Factory New"},
		{0.069, "Factory New"},
		{0.07, "Minimal Wear"},
		{0.149, "Minimal Wear"},
		{0.15, "Field-Tested"},
		{0.379, "Field-Tested"},
		{0.38, "Well-Worn"},
		{0.449, "Well-Worn"},
		{0.45, "Battle-Scarred"},
		{1.0, "Battle-Scarred"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, GetWearName(c.wear), "wear=%v", c.wear)
	}
}

func TestGetPhaseName_KnownAndUnknownIndex(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "Phase 1", GetPhaseName(418))
	assert.Equal(t, "Ruby", GetPhaseName(415))
	assert.Equal(t, "", GetPhaseName(999999))
}

func TestApplySchemaEnrichment_NilInfoIsNoop(t *testing.T) {
	t.Parallel()
	ApplySchemaEnrichment(nil) // must not panic
}

func TestApplySchemaEnrichment_WearNameAlwaysSet(t *testing.T) {
	t.Parallel()
	info := &ItemInfo{FloatValue: 0.02, Quality: 4}
	ApplySchemaEnrichment(info)
	assert.Equal(t, "Factory New", info.WearName)
	assert.Equal(t, "normal", info.ItemType)
}

func TestApplySchemaEnrichment_KnifeItemType(t *testing.T) {
	t.Parallel()
	info := &ItemInfo{FloatValue: 0.5, Quality: 3}
	ApplySchemaEnrichment(info)
	assert.Equal(t, "knife", info.ItemType)
}

func TestGetPatternName_NoMatchReturnsEmpty(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "", GetPatternName("AK-47 | Redline", 42))
}

func TestGetPatternName_HardcodedSeed(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "Scar Pattern", GetPatternName("AK-47 | Case Hardened", 661))
}
