package vision

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/spoolhub-backend/pkg/types"
)

// modelAnswer mirrors the keys requested in extractionPrompt. Numbers come
// back as JSON numbers or numeric strings depending on the model.
type modelAnswer struct {
	Brand            string           `json:"brand"`
	Material         string           `json:"material"`
	Color            string           `json:"color"`
	ColorHex         string           `json:"colorHex"`
	DiameterMM       *decimal.Decimal `json:"diameterMm"`
	WeightGrams      *flexibleInt     `json:"weightGrams"`
	SpoolWeightGrams *flexibleInt     `json:"spoolWeightGrams"`
	NozzleTempMinC   *flexibleInt     `json:"nozzleTempMinC"`
	NozzleTempMaxC   *flexibleInt     `json:"nozzleTempMaxC"`
	BedTempMinC      *flexibleInt     `json:"bedTempMinC"`
	BedTempMaxC      *flexibleInt     `json:"bedTempMaxC"`
	Price            *decimal.Decimal `json:"price"`
	Currency         string           `json:"currency"`
	Notes            string           `json:"notes"`
}

type flexibleInt int

func (f *flexibleInt) UnmarshalJSON(b []byte) error {
	raw := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if raw == "" || raw == "null" {
		return nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return err
	}
	*f = flexibleInt(d.Round(0).IntPart())
	return nil
}

func (f *flexibleInt) ptr() *int {
	if f == nil {
		return nil
	}
	v := int(*f)
	return &v
}

func parseAttributes(text string) (types.ExtractedData, error) {
	body := stripFences(text)
	if body == "" {
		return types.ExtractedData{}, errors.New("empty answer")
	}

	var answer modelAnswer
	if err := json.Unmarshal([]byte(body), &answer); err != nil {
		return types.ExtractedData{}, err
	}

	data := types.ExtractedData{
		Brand:            answer.Brand,
		Material:         answer.Material,
		Color:            answer.Color,
		ColorHex:         answer.ColorHex,
		DiameterMM:       answer.DiameterMM,
		WeightGrams:      answer.WeightGrams.ptr(),
		SpoolWeightGrams: answer.SpoolWeightGrams.ptr(),
		NozzleTempMinC:   answer.NozzleTempMinC.ptr(),
		NozzleTempMaxC:   answer.NozzleTempMaxC.ptr(),
		BedTempMinC:      answer.BedTempMinC.ptr(),
		BedTempMaxC:      answer.BedTempMaxC.ptr(),
		Price:            answer.Price,
		Currency:         answer.Currency,
		Notes:            answer.Notes,
	}.Normalize()

	if err := data.CheckRanges(); err != nil {
		// Inverted ranges are model noise; keep the rest of the answer.
		data.NozzleTempMinC, data.NozzleTempMaxC = orderedPair(data.NozzleTempMinC, data.NozzleTempMaxC)
		data.BedTempMinC, data.BedTempMaxC = orderedPair(data.BedTempMinC, data.BedTempMaxC)
		if data.DiameterMM != nil && !data.DiameterMM.IsPositive() {
			data.DiameterMM = nil
		}
		if data.Price != nil && data.Price.IsNegative() {
			data.Price = nil
		}
	}
	return data, nil
}

func orderedPair(lo, hi *int) (*int, *int) {
	if lo != nil && hi != nil && *lo > *hi {
		return hi, lo
	}
	return lo, hi
}

func stripFences(text string) string {
	s := strings.TrimSpace(text)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	if start, end := strings.Index(s, "{"), strings.LastIndex(s, "}"); start >= 0 && end > start {
		s = s[start : end+1]
	}
	return strings.TrimSpace(s)
}
