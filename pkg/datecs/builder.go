// pkg/datecs/builder.go
package datecs

import (
	"fmt"
	"strconv"
	"strings"
)

// SaleItem is the caller-facing shape for a single sold line (spec.md §4.4).
type SaleItem struct {
	Name       string
	Tax        string // any of: Cyrillic letter, Latin letter, digit
	Price      string
	Qty        string
	Department string
	Unit       string
	Discount   string // "10%" or "1.50" (absolute)
}

// Payment is a single tender line (spec.md §4.4).
type Payment struct {
	Type   string // any of: letter code or digit, family-dependent
	Amount string
}

// CashOp is a service deposit/withdrawal (spec.md §4.4, 0x46).
type CashOp struct {
	Amount    string
	Direction string // "in" or "out"
	Currency  string // "" or "EUR"
}

// ReportOp selects which daily report to run (spec.md §4.5 "report").
type ReportOp struct {
	Option  string // "Z"/"0", "X"/"2", "?" or "*" passthrough
	Type    string // "x","z","d","g" fallback when Option is empty
	NoReset bool
}

// Builder formats command DATA for one printer series family. Every
// method is pure: identical inputs yield byte-identical outputs
// (spec.md §8 "Builders are pure").
type Builder interface {
	OpenReceipt(opNum, password, till, invoice, nsale string) string
	Sale(item SaleItem) (string, error)
	Payment(p Payment) (string, error)
	NonFiscalText(text string) string
	FiscalText(text string) string
	Cash(c CashOp) (string, error)
	Report(r ReportOp) (string, error)
	StatusData() string
}

// FormatAmount formats a decimal amount with two-decimal precision
// (spec.md §4.4).
func FormatAmount(value string) string {
	if value == "" {
		return ""
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return value
	}
	return strconv.FormatFloat(f, 'f', 2, 64)
}

var cyrillicTax = map[string]string{
	"А": "A", "Б": "B", "В": "C", "Г": "D",
	"Д": "E", "Е": "F", "Ж": "G", "З": "H",
}

func normalizeTaxLetter(code string) string {
	if code == "" {
		return "A"
	}
	v := strings.ToUpper(strings.TrimSpace(code))
	if l, ok := cyrillicTax[v]; ok {
		v = l
	}
	return v
}

func requireName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("sale item requires name")
	}
	return nil
}

func requirePrice(price string) (string, error) {
	amt := FormatAmount(price)
	if amt == "" {
		return "", fmt.Errorf("sale item requires price")
	}
	return amt, nil
}

func requireAmount(amount string) (string, error) {
	amt := FormatAmount(amount)
	if amt == "" {
		return "", fmt.Errorf("amount is required")
	}
	return amt, nil
}
