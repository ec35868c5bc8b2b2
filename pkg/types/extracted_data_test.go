package types

import (
	"testing"

	"github.com/shopspring/decimal"
)

func intPtr(v int) *int { return &v }

func TestExtractedDataValueStampsVersion(t *testing.T) {
	value, err := ExtractedData{Brand: "Prusament"}.Value()
	if err != nil {
		t.Fatalf("Value() error: %v", err)
	}
	var decoded ExtractedData
	if err := decoded.Scan(value); err != nil {
		t.Fatalf("Scan() error: %v", err)
	}
	if decoded.Version != ExtractedDataVersion {
		t.Fatalf("expected version %d got %d", ExtractedDataVersion, decoded.Version)
	}
	if decoded.Brand != "Prusament" {
		t.Fatalf("unexpected brand %q", decoded.Brand)
	}
}

func TestExtractedDataScanUpgradesLegacyRows(t *testing.T) {
	var got ExtractedData
	raw := []byte(`{"brand":"eSun","material":"PLA+","diameter":"1.75","weight":1000,"nozzle_temp":215}`)
	if err := got.Scan(raw); err != nil {
		t.Fatalf("Scan() error: %v", err)
	}
	if got.Version != ExtractedDataVersion {
		t.Fatalf("expected upgrade to version %d got %d", ExtractedDataVersion, got.Version)
	}
	if got.DiameterMM == nil || !got.DiameterMM.Equal(decimal.RequireFromString("1.75")) {
		t.Fatalf("unexpected diameter %v", got.DiameterMM)
	}
	if got.WeightGrams == nil || *got.WeightGrams != 1000 {
		t.Fatalf("unexpected weight %v", got.WeightGrams)
	}
	if got.NozzleTempMinC == nil || got.NozzleTempMaxC == nil || *got.NozzleTempMinC != 215 || *got.NozzleTempMaxC != 215 {
		t.Fatalf("expected legacy nozzle temp copied to both bounds")
	}
}

func TestExtractedDataScanRejectsMalformedRows(t *testing.T) {
	cases := map[string]any{
		"not json":       "spool",
		"array":          []byte(`["PLA"]`),
		"bad field type": `{"version":2,"weightGrams":"heavy"}`,
		"future version": `{"version":99}`,
		"unsupported":    42,
	}
	for name, value := range cases {
		var got ExtractedData
		if err := got.Scan(value); err == nil {
			t.Fatalf("%s: expected scan error", name)
		}
	}
}

func TestExtractedDataNormalize(t *testing.T) {
	got := ExtractedData{Material: " petg ", ColorHex: "ff8800", Currency: "usd"}.Normalize()
	if got.Material != "PETG" || got.ColorHex != "#FF8800" || got.Currency != "USD" {
		t.Fatalf("unexpected normalized value %+v", got)
	}
	if got.Version != ExtractedDataVersion {
		t.Fatalf("expected version stamp")
	}
}

func TestExtractedDataCheckRanges(t *testing.T) {
	if err := (ExtractedData{NozzleTempMinC: intPtr(230), NozzleTempMaxC: intPtr(200)}).CheckRanges(); err == nil {
		t.Fatal("expected inverted nozzle range to fail")
	}
	zero := decimal.Zero
	if err := (ExtractedData{DiameterMM: &zero}).CheckRanges(); err == nil {
		t.Fatal("expected zero diameter to fail")
	}
	if err := (ExtractedData{BedTempMinC: intPtr(50), BedTempMaxC: intPtr(60)}).CheckRanges(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
