package types

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ExtractedDataVersion is the schema version written for new extraction results.
const ExtractedDataVersion = 2

// ExtractedData holds the filament attributes read from a spool photo.
// Persisted as JSON on pending_uploads.extracted_data.
type ExtractedData struct {
	Version          int              `json:"version"`
	Model            string           `json:"model,omitempty"`
	Brand            string           `json:"brand,omitempty" validate:"omitempty,max=120"`
	Material         string           `json:"material,omitempty" validate:"omitempty,max=60"`
	Color            string           `json:"color,omitempty" validate:"omitempty,max=60"`
	ColorHex         string           `json:"colorHex,omitempty" validate:"omitempty,hexcolor"`
	DiameterMM       *decimal.Decimal `json:"diameterMm,omitempty"`
	WeightGrams      *int             `json:"weightGrams,omitempty" validate:"omitempty,min=0,max=100000"`
	SpoolWeightGrams *int             `json:"spoolWeightGrams,omitempty" validate:"omitempty,min=0,max=100000"`
	NozzleTempMinC   *int             `json:"nozzleTempMinC,omitempty" validate:"omitempty,min=0,max=600"`
	NozzleTempMaxC   *int             `json:"nozzleTempMaxC,omitempty" validate:"omitempty,min=0,max=600"`
	BedTempMinC      *int             `json:"bedTempMinC,omitempty" validate:"omitempty,min=0,max=200"`
	BedTempMaxC      *int             `json:"bedTempMaxC,omitempty" validate:"omitempty,min=0,max=200"`
	Price            *decimal.Decimal `json:"price,omitempty"`
	Currency         string           `json:"currency,omitempty" validate:"omitempty,len=3"`
	Notes            string           `json:"notes,omitempty" validate:"omitempty,max=2000"`
}

// legacyExtractedData is the unversioned blob written before ExtractedData
// carried a version. Temperatures were single values.
type legacyExtractedData struct {
	Brand       string           `json:"brand"`
	Material    string           `json:"material"`
	Color       string           `json:"color"`
	ColorHex    string           `json:"color_hex"`
	Diameter    *decimal.Decimal `json:"diameter"`
	Weight      *int             `json:"weight"`
	SpoolWeight *int             `json:"spool_weight"`
	NozzleTemp  *int             `json:"nozzle_temp"`
	BedTemp     *int             `json:"bed_temp"`
	Price       *decimal.Decimal `json:"price"`
	Currency    string           `json:"currency"`
	Notes       string           `json:"notes"`
}

func (l legacyExtractedData) upgrade() ExtractedData {
	return ExtractedData{
		Version:          ExtractedDataVersion,
		Brand:            l.Brand,
		Material:         l.Material,
		Color:            l.Color,
		ColorHex:         l.ColorHex,
		DiameterMM:       l.Diameter,
		WeightGrams:      l.Weight,
		SpoolWeightGrams: l.SpoolWeight,
		NozzleTempMinC:   l.NozzleTemp,
		NozzleTempMaxC:   l.NozzleTemp,
		BedTempMinC:      l.BedTemp,
		BedTempMaxC:      l.BedTemp,
		Price:            l.Price,
		Currency:         l.Currency,
		Notes:            l.Notes,
	}
}

// Normalize trims free text, upper-cases the currency and stamps the current version.
func (d ExtractedData) Normalize() ExtractedData {
	d.Version = ExtractedDataVersion
	d.Brand = strings.TrimSpace(d.Brand)
	d.Material = strings.ToUpper(strings.TrimSpace(d.Material))
	d.Color = strings.TrimSpace(d.Color)
	d.ColorHex = strings.ToUpper(strings.TrimSpace(d.ColorHex))
	if d.ColorHex != "" && !strings.HasPrefix(d.ColorHex, "#") {
		d.ColorHex = "#" + d.ColorHex
	}
	d.Currency = strings.ToUpper(strings.TrimSpace(d.Currency))
	d.Notes = strings.TrimSpace(d.Notes)
	return d
}

// CheckRanges reports min/max pairs that are inverted.
func (d ExtractedData) CheckRanges() error {
	if d.NozzleTempMinC != nil && d.NozzleTempMaxC != nil && *d.NozzleTempMinC > *d.NozzleTempMaxC {
		return fmt.Errorf("nozzleTempMinC must not exceed nozzleTempMaxC")
	}
	if d.BedTempMinC != nil && d.BedTempMaxC != nil && *d.BedTempMinC > *d.BedTempMaxC {
		return fmt.Errorf("bedTempMinC must not exceed bedTempMaxC")
	}
	if d.DiameterMM != nil && !d.DiameterMM.IsPositive() {
		return fmt.Errorf("diameterMm must be positive")
	}
	if d.Price != nil && d.Price.IsNegative() {
		return fmt.Errorf("price must not be negative")
	}
	return nil
}

// Value marshals the struct into JSON text.
func (d ExtractedData) Value() (driver.Value, error) {
	if d.Version == 0 {
		d.Version = ExtractedDataVersion
	}
	buf, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	return string(buf), nil
}

// Scan decodes a stored row, upgrading unversioned blobs. Rows that are not
// valid JSON objects or carry a newer version than this build understands fail.
func (d *ExtractedData) Scan(value interface{}) error {
	if value == nil {
		*d = ExtractedData{}
		return nil
	}

	var raw []byte
	switch v := value.(type) {
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("extracted data: unsupported scan type %T", value)
	}

	parsed, err := ParseExtractedData(raw)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// ParseExtractedData decodes stored JSON of any known version.
func ParseExtractedData(raw []byte) (ExtractedData, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return ExtractedData{}, fmt.Errorf("extracted data: expected json object, got %q", truncate(trimmed, 32))
	}

	var probe struct {
		Version *int `json:"version"`
	}
	if err := json.Unmarshal(trimmed, &probe); err != nil {
		return ExtractedData{}, fmt.Errorf("extracted data: %w", err)
	}

	if probe.Version == nil {
		var legacy legacyExtractedData
		if err := json.Unmarshal(trimmed, &legacy); err != nil {
			return ExtractedData{}, fmt.Errorf("extracted data: legacy row: %w", err)
		}
		return legacy.upgrade(), nil
	}

	if *probe.Version < 1 || *probe.Version > ExtractedDataVersion {
		return ExtractedData{}, fmt.Errorf("extracted data: unsupported version %d", *probe.Version)
	}

	var data ExtractedData
	if err := json.Unmarshal(trimmed, &data); err != nil {
		return ExtractedData{}, fmt.Errorf("extracted data: %w", err)
	}
	data.Version = ExtractedDataVersion
	return data, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
