package ai

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"github.com/hrygo/fridgesense/store"
)

// IdentifiedItem is one item the model claims to see in a photo.
type IdentifiedItem struct {
	Name           string `json:"name"`
	Count          int    `json:"count"`
	ExpirationDate string `json:"expiration_date"`
}

// IdentifyResult is the tagged outcome of an identification call:
// either a parsed item list, or Malformed with the raw model text
// preserved for debugging. Malformed results carry an empty item list
// so callers degrade instead of branching on errors.
type IdentifyResult struct {
	Items     []IdentifiedItem
	Malformed bool
	// Raw holds the unparseable model output when Malformed is set.
	Raw string
}

// identifyPayload mirrors the model's response shape with loose typing
// for count, which shows up as number or string depending on the model.
type identifyPayload struct {
	Items []struct {
		Name           string `json:"name"`
		Count          any    `json:"count"`
		ExpirationDate string `json:"expiration_date"`
	} `json:"items"`
}

var jsonObjectPattern = regexp.MustCompile(`(?s)\{.*\}`)

// ParseIdentifyPayload parses model output into an IdentifyResult.
// Parsing is best-effort across three stages: strict JSON, repaired
// JSON, then the first {...} block extracted from surrounding prose.
// Anything still unparseable is a Malformed result, never an error.
func ParseIdentifyPayload(text string) *IdentifyResult {
	trimmed := strings.TrimSpace(text)

	var payload identifyPayload
	if err := unmarshalLoose([]byte(trimmed), &payload); err != nil {
		extracted := jsonObjectPattern.FindString(trimmed)
		if extracted == "" || unmarshalLoose([]byte(extracted), &payload) != nil {
			return &IdentifyResult{Malformed: true, Raw: text}
		}
	}

	result := &IdentifyResult{}
	for _, raw := range payload.Items {
		if raw.Name == "" {
			continue
		}
		count, err := store.NormalizeQuantity(raw.Count)
		if err != nil || count == 0 {
			count = 1
		}
		result.Items = append(result.Items, IdentifiedItem{
			Name:           raw.Name,
			Count:          count,
			ExpirationDate: raw.ExpirationDate,
		})
	}
	return result
}

var daysPattern = regexp.MustCompile(`\d+`)

// parseShelfLifePayload extracts a day count from model output,
// falling back to the first integer in the text and finally to
// DefaultShelfLifeDays.
func parseShelfLifePayload(text string) int {
	var payload struct {
		Days int `json:"days"`
	}
	if err := unmarshalLoose([]byte(strings.TrimSpace(text)), &payload); err == nil && payload.Days > 0 {
		return payload.Days
	}

	if m := daysPattern.FindString(text); m != "" {
		if days, err := strconv.Atoi(m); err == nil && days > 0 {
			return days
		}
	}
	return DefaultShelfLifeDays
}

// unmarshalLoose unmarshals JSON, attempting to repair malformed JSON
// before retrying when the initial parse fails with a syntax error.
func unmarshalLoose(data []byte, v any) error {
	err := json.Unmarshal(data, v)
	if err == nil {
		return nil
	}
	if _, ok := err.(*json.SyntaxError); ok {
		fixed, rerr := jsonrepair.JSONRepair(string(data))
		if rerr != nil {
			return err
		}
		return json.Unmarshal([]byte(fixed), v)
	}
	return err
}
