package domain

import (
	"fmt"
	"strconv"
	"strings"
)

const knotsToMPH = 1.15078

var (
	// statusKeys are attribute spellings that carry a ready-made status label.
	statusKeys = []string{"status", "stormType", "type", "CLASS", "Class", "system", "SYSTEM"}

	// intensityKeys carry a two-letter intensity code.
	intensityKeys = []string{"INTENSITY", "TCtype"}

	// categoryKeys carry a Saffir-Simpson category for hurricane-coded features.
	categoryKeys = []string{"SS", "SAFFIR_SIMPSON", "Category", "category"}

	// windKeys are maximum-wind spellings in lookup order.
	windKeys = []string{"MAX_WIND_MPH", "MAX_WIND", "Vmax", "V_MAX", "VMAX", "MAX_WIND_KTS"}

	intensityLabels = map[string]string{
		"TD": "Tropical Depression",
		"TS": "Tropical Storm",
		"HU": "Hurricane",
		"SS": "Subtropical Storm",
		"SD": "Subtropical Depression",
		"EX": "Extratropical",
		"PT": "Post-Tropical",
		"LO": "Low",
		"DB": "Disturbance",
	}
)

// ClassifyProperties infers a status label from feature attributes, trying a
// direct label, then an intensity code, then maximum wind. It returns "" when
// nothing usable is present.
func ClassifyProperties(props map[string]any) string {
	for _, k := range statusKeys {
		if v := TextValue(props[k]); v != "" {
			return v
		}
	}

	if status, ok := classifyIntensityCode(props); ok {
		return status
	}

	if mph, ok := maxWindMPH(props); ok {
		return ClassifyWind(mph)
	}
	return ""
}

// IntensityLabel maps a two-letter intensity code such as "HU" or "ts" to its
// label, or "" for unknown codes.
func IntensityLabel(code string) string {
	return intensityLabels[strings.ToUpper(strings.TrimSpace(code))]
}

func classifyIntensityCode(props map[string]any) (string, bool) {
	var code string
	for _, k := range intensityKeys {
		if Truthy(props[k]) {
			code = strings.ToUpper(TextValue(props[k]))
			break
		}
	}
	label, ok := intensityLabels[code]
	if !ok {
		return "", false
	}
	if code == "HU" {
		for _, k := range categoryKeys {
			if Truthy(props[k]) {
				return "Hurricane Cat " + TextValue(props[k]), true
			}
		}
	}
	return label, true
}

// maxWindMPH reads the first present wind key. A present but unparseable value
// ends the search without a result.
func maxWindMPH(props map[string]any) (float64, bool) {
	for _, k := range windKeys {
		v, present := props[k]
		if !present || v == nil {
			continue
		}
		s := TextValue(v)
		if s == "" || s == "NA" {
			continue
		}
		n, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		if strings.Contains(k, "KTS") || (k == "Vmax" && n < 120) {
			n *= knotsToMPH
		}
		return n, true
	}
	return 0, false
}

// ClassifyWind maps a sustained wind speed in mph to a Saffir-Simpson label.
func ClassifyWind(mph float64) string {
	switch {
	case mph < 39:
		return "Tropical Depression"
	case mph < 74:
		return "Tropical Storm"
	}

	category := 1
	switch {
	case mph >= 157:
		category = 5
	case mph >= 130:
		category = 4
	case mph >= 111:
		category = 3
	case mph >= 96:
		category = 2
	}
	return fmt.Sprintf("Hurricane Cat %d", category)
}

// TextValue renders a decoded JSON attribute as trimmed text. Whole numbers
// print without a fractional part so a category of 3 reads "3", not "3.0".
func TextValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	case fmt.Stringer:
		return strings.TrimSpace(t.String())
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

// Truthy reports whether an attribute counts as set: nil, empty or blank
// strings, zero numbers and false do not.
func Truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return t != ""
	case float64:
		return t != 0
	case float32:
		return t != 0
	case int:
		return t != 0
	case int64:
		return t != 0
	case bool:
		return t
	default:
		return true
	}
}

// CompareAdvisory orders advisory tokens by leading integer, then suffix.
// It returns -1, 0 or 1. Tokens without a leading integer sort before those
// with one and compare lexically among themselves.
func CompareAdvisory(a, b string) int {
	an, asuf, aok := splitAdvisory(a)
	bn, bsuf, bok := splitAdvisory(b)
	switch {
	case aok && !bok:
		return 1
	case !aok && bok:
		return -1
	case !aok && !bok:
		return strings.Compare(strings.ToUpper(a), strings.ToUpper(b))
	case an != bn:
		if an < bn {
			return -1
		}
		return 1
	}
	return strings.Compare(strings.ToUpper(asuf), strings.ToUpper(bsuf))
}

func splitAdvisory(s string) (int, string, bool) {
	s = strings.TrimSpace(s)
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == 0 {
		return 0, s, false
	}
	n, err := strconv.Atoi(s[:i])
	if err != nil {
		return 0, s, false
	}
	return n, s[i:], true
}
