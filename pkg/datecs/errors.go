// pkg/datecs/errors.go
package datecs

import (
	"fmt"
	"strconv"
	"strings"
)

// DeviceError is a classified device error (spec.md §4.5 "Error
// classification", §7 "device-error(code, context)").
type DeviceError struct {
	Code        int
	Context     string
	Description string
	Hint        string
	Suspect     string
	Status      []byte
	Flags       StatusFlags
}

func (e *DeviceError) Error() string {
	parts := make([]string, 0, 3)
	if tr := translateFlags(e.Flags); tr != "" {
		parts = append(parts, tr)
	}
	if e.Hint != "" {
		parts = append(parts, e.Hint)
	}
	if e.Suspect != "" {
		parts = append(parts, e.Suspect)
	}
	suffix := ""
	if len(parts) > 0 {
		suffix = " (" + strings.Join(parts, "; ") + ")"
	}
	return fmt.Sprintf("Грешка от принтера %d: %s%s", e.Code, e.Description, suffix)
}

// knownErrorCodes maps a handful of well-known negative Datecs error codes
// to a human description (spec.md §4.5, original_source DATECS_ERROR_DETAILS).
var knownErrorCodes = map[int]string{
	-111018: "Registration mode error: payment is initiated.",
	-112001: "Invalid syntax of parameter 1.",
	-112101: "Invalid syntax of parameter 1.",
	-112107: "Invalid syntax of parameter 7.",
}

// descriptionFor resolves a code to its known description, falling back
// to the -112001..-112107 "invalid parameter N" family (N is the code's
// last two digits) and finally to a generic unknown-code message
// (spec.md §4.5).
func descriptionFor(code int) string {
	if d, ok := knownErrorCodes[code]; ok {
		return d
	}
	if code <= -112001 && code >= -112107 {
		n := (-code) % 100
		return fmt.Sprintf("Invalid syntax of parameter %d.", n)
	}
	return "Unknown Datecs error."
}

// errorTranslationsBG localises status flags into Cyrillic, user-facing
// text; log context stays machine-readable (spec.md §7).
var errorTranslationsBG = map[string]string{
	"no_paper":                   "Няма хартия в принтера",
	"low_paper":                  "Хартията в принтера свършва",
	"cover_open":                 "Капакът на принтера е отворен",
	"printing_unit_fault":        "Повреда в печатащото устройство",
	"general_error":              "Обща грешка на принтера",
	"fiscal_memory_full":         "Фискалната памет е пълна",
	"fiscal_memory_low":          "Фискалната памет е почти пълна",
	"fiscal_memory_store_error":  "Грешка при запис във фискална памет",
	"fiscal_memory_read_error":   "Грешка при четене от фискална памет",
	"clock_not_set":              "Часовникът не е настроен",
	"invalid_command_code":       "Невалиден код на команда",
	"syntax_error":               "Синтактична грешка",
	"command_not_allowed":        "Командата не е разрешена в текущия режим",
	"amount_overflow":            "Препълване на сума",
	"ram_reset":                  "RAM паметта е била изчистена",
	"low_battery":                "Слаба батерия",
	"fiscal_receipt_open":        "Вече има отворен фискален бон",
	"service_receipt_open":       "Вече има отворен служебен бон",
	"storno_receipt_open":        "Вече има отворена сторно бележка",
	"tax_terminal_not_responding": "Данъчният терминал не отговаря",
	"ej_near_end":                "КЛЕН приключва",
	"ej_end":                     "КЛЕН е пълен",
	"head_overheated":            "Печатащата глава е прегряла",
	"uic_missing":                "ЕИК не е въведен",
	"unique_id_missing":          "Уникален номер не е въведен",
}

func translateFlags(flags StatusFlags) string {
	var parts []string
	for name, set := range flags {
		if !set {
			continue
		}
		if t, ok := errorTranslationsBG[name]; ok {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "; ")
}

// FieldErrorCode extracts a negative-integer error code from the first
// decoded response field, or 0 if the field is absent or non-negative
// (spec.md §4.5 "If the first response field is a negative integer...").
func FieldErrorCode(fields []string) (int, bool) {
	if len(fields) == 0 {
		return 0, false
	}
	v, err := strconv.Atoi(strings.TrimSpace(fields[0]))
	if err != nil || v >= 0 {
		return 0, false
	}
	return v, true
}

// ClassifyError builds the structured DeviceError for a negative code
// observed in a given operation context, drawing the "best-guess suspect"
// from the live status flags (spec.md §4.5).
func ClassifyError(code int, context string, status []byte, data string) *DeviceError {
	flags := DecodeStatus(status)
	e := &DeviceError{
		Code:        code,
		Context:     context,
		Description: descriptionFor(code),
		Status:      status,
		Flags:       flags,
	}

	switch {
	case code == -111018:
		e.Hint = "Плащането е започнато, но не е приключено. Добави плащане за остатъка."
		if data != "" {
			e.Suspect = "Плащането е по-малко от тотала и има остатък за плащане."
		}
	case code == -112001 || code == -112101:
		if context == "open receipt" {
			e.Hint = "Провери оператор (ID/парола/каса), UIC/часовник, и дали вече няма отворен фискален бон."
			e.Suspect = suspectForOpenReceipt(flags, data)
		} else if context == "report" {
			e.Hint = "Параметър 1 (option) трябва да е 0/2, по желание N, или ?/* според модела."
		} else {
			e.Hint = "Провери параметрите на командата и режима на принтера."
		}
	default:
		if context == "report" {
			e.Hint = "Параметър 1 (option) трябва да е 0/2, по желание N, или ?/* според модела."
		} else {
			e.Hint = "Провери параметрите на командата и режима на принтера."
		}
	}
	return e
}

func suspectForOpenReceipt(flags StatusFlags, data string) string {
	switch {
	case flags["fiscal_receipt_open"] || flags["service_receipt_open"]:
		return "Има вече отворен фискален/сервизен бон."
	case flags["clock_not_set"]:
		return "Часовникът не е настроен."
	case flags["uic_missing"]:
		return "UIC не е зададен."
	case flags["command_not_allowed"]:
		return "Командата не е позволена в текущия режим."
	case flags["fiscal_memory_full"] || flags["ej_end"]:
		return "Фискалната памет/ЕЖ е пълна или блокирана."
	}
	if data == "" {
		return "Параметрите изглеждат валидни; вероятно операторът/паролата не са активни."
	}
	normalized := strings.TrimSpace(data)
	switch {
	case strings.HasPrefix(normalized, "48\t"):
		return "DATA започва с '48\\t' (cmd е в DATA вместо само параметрите)."
	case !strings.Contains(normalized, "\t"):
		return "DATA няма TAB разделители (очаквано е OpNum<TAB>Password<TAB>Till)."
	}
	return ""
}
