// pkg/datecs/builder_tab.go
package datecs

import (
	"fmt"
	"strings"
)

// letterToDigit maps normalised Latin tax letters to the tab family's
// digit codes '1'..'8' (spec.md §4.4 "Tab family").
var letterToDigit = map[string]string{
	"A": "1", "B": "2", "C": "3", "D": "4",
	"E": "5", "F": "6", "G": "7", "H": "8",
}

func tabTaxDigit(code string) string {
	v := normalizeTaxLetter(code)
	if d, ok := letterToDigit[v]; ok {
		return d
	}
	for _, d := range letterToDigit {
		if v == d {
			return v
		}
	}
	return "1"
}

func tabPaymentMode(value string) string {
	raw := strings.ToUpper(strings.TrimSpace(value))
	if raw == "" {
		raw = "P"
	}
	if isDigits(raw) {
		return raw
	}
	switch raw {
	case "P":
		return "0"
	case "C":
		return "1"
	case "N":
		return "2"
	default:
		return "0"
	}
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// TabBuilder formats DATA for the newer, TAB-separated device series
// (spec.md §4.4 "Tab family").
type TabBuilder struct{}

var _ Builder = TabBuilder{}

func (TabBuilder) OpenReceipt(opNum, password, till, invoice, nsale string) string {
	if nsale != "" {
		return fmt.Sprintf("%s\t%s\t%s\t%s\t%s\t", opNum, password, nsale, till, invoice)
	}
	return fmt.Sprintf("%s\t%s\t%s\t%s\t", opNum, password, till, invoice)
}

func (TabBuilder) Sale(item SaleItem) (string, error) {
	if err := requireName(item.Name); err != nil {
		return "", err
	}
	price, err := requirePrice(item.Price)
	if err != nil {
		return "", err
	}
	tax := tabTaxDigit(item.Tax)
	qty := item.Qty
	if qty == "" {
		qty = "1.000"
	}
	dept := strings.TrimSpace(item.Department)
	if dept == "" {
		dept = "0"
	}

	discType, discVal := "", ""
	if item.Discount != "" {
		raw := strings.TrimSpace(item.Discount)
		if strings.HasSuffix(raw, "%") {
			discType = "2"
			discVal = strings.TrimSuffix(raw, "%")
		} else if amt := FormatAmount(strings.TrimPrefix(raw, "-")); amt != "" && amt != "0.00" {
			discType = "4"
			discVal = amt
		}
	}

	fields := []string{item.Name, tax, price, qty, discType, discVal, dept}
	if item.Unit != "" {
		fields = append(fields, item.Unit)
	}
	return strings.Join(fields, "\t") + "\t", nil
}

func (TabBuilder) Payment(p Payment) (string, error) {
	amount, err := requireAmount(p.Amount)
	if err != nil {
		return "", err
	}
	mode := tabPaymentMode(p.Type)
	return fmt.Sprintf("%s\t%s\t\t", mode, amount), nil
}

func (TabBuilder) NonFiscalText(text string) string {
	return text + "\t\t\t\t\t\t"
}

func (TabBuilder) FiscalText(text string) string {
	return text + "\t\t\t\t\t\t"
}

func (TabBuilder) Cash(c CashOp) (string, error) {
	amount, err := requireAmount(c.Amount)
	if err != nil {
		return "", err
	}
	direction := strings.ToLower(c.Direction)
	currency := strings.ToUpper(c.Currency)
	var cashType string
	switch direction {
	case "in", "deposit", "":
		if currency == "EUR" {
			cashType = "2"
		} else {
			cashType = "0"
		}
	case "out", "withdraw", "withdrawal":
		if currency == "EUR" {
			cashType = "3"
		} else {
			cashType = "1"
		}
	default:
		return "", fmt.Errorf("cash direction must be 'in' or 'out'")
	}
	return fmt.Sprintf("%s\t%s\t", cashType, amount), nil
}

func (TabBuilder) Report(r ReportOp) (string, error) {
	if r.Option != "" {
		opt := strings.ToUpper(strings.TrimSpace(r.Option))
		switch opt {
		case "0", "Z":
			opt = "Z"
		case "2", "X":
			opt = "X"
		}
		return opt + "\t", nil
	}
	mapping := map[string]string{"x": "X", "z": "Z", "d": "D", "g": "G"}
	code, ok := mapping[strings.ToLower(r.Type)]
	if !ok {
		return "", fmt.Errorf("report type must be 'x', 'z', 'd', or 'g'")
	}
	return code + "\t", nil
}

func (TabBuilder) StatusData() string { return "0" }
