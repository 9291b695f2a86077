// pkg/datecs/builder_compact.go
package datecs

import (
	"fmt"
	"strconv"
	"strings"
)

// digitToLetter maps the compact family's digit tax codes to its native
// letters 'A'..'H' (spec.md §4.4 "Compact family").
var digitToLetter = map[string]string{
	"1": "A", "2": "B", "3": "C", "4": "D",
	"5": "E", "6": "F", "7": "G", "8": "H",
}

func compactTaxLetter(code string) string {
	v := normalizeTaxLetter(code)
	if l, ok := digitToLetter[v]; ok {
		return l
	}
	for _, l := range digitToLetter {
		if v == l {
			return v
		}
	}
	return "A"
}

func compactPaymentLetter(value string) string {
	raw := strings.ToUpper(strings.TrimSpace(value))
	if raw == "" {
		raw = "P"
	}
	mapping := map[string]string{
		"0": "P", "P": "P",
		"1": "D", "D": "D",
		"2": "N", "N": "N",
		"3": "C", "C": "C",
	}
	if v, ok := mapping[raw]; ok {
		return v
	}
	return "P"
}

// CompactBuilder formats DATA for the older device series, whose wire
// format mixes TAB separators with inline punctuation (spec.md §4.4
// "Compact family").
type CompactBuilder struct{}

var _ Builder = CompactBuilder{}

func (CompactBuilder) OpenReceipt(opNum, password, till, invoice, nsale string) string {
	parts := []string{opNum, password, till}
	if invoice != "" {
		parts = append(parts, invoice)
	}
	if nsale != "" {
		parts = append(parts, nsale)
	}
	return strings.Join(parts, ",")
}

func (CompactBuilder) Sale(item SaleItem) (string, error) {
	if err := requireName(item.Name); err != nil {
		return "", err
	}
	price, err := requirePrice(item.Price)
	if err != nil {
		return "", err
	}
	tax := compactTaxLetter(item.Tax)
	qty := item.Qty
	unit := strings.TrimSpace(item.Unit)
	dept := strings.TrimSpace(item.Department)

	suffix := price
	if qty != "" && qty != "1" && qty != "1.000" {
		suffix += "*" + qty
		if unit != "" {
			suffix += "#" + unit
		}
	} else if unit != "" {
		suffix += "*1.000#" + unit
	}

	if item.Discount != "" {
		raw := strings.TrimSpace(item.Discount)
		if strings.HasSuffix(raw, "%") {
			suffix += "," + strings.TrimSuffix(raw, "%")
		} else if n, err := strconv.ParseFloat(strings.TrimPrefix(raw, "-"), 64); err == nil && n != 0 {
			suffix += ";-" + FormatAmount(strconv.FormatFloat(n, 'f', -1, 64))
		}
	}

	if dept != "" && dept != "0" {
		return fmt.Sprintf("%s\t%s\t%s", item.Name, dept, suffix), nil
	}
	return fmt.Sprintf("%s\t%s%s", item.Name, tax, suffix), nil
}

func (CompactBuilder) Payment(p Payment) (string, error) {
	amount, err := requireAmount(p.Amount)
	if err != nil {
		return "", err
	}
	mode := compactPaymentLetter(p.Type)
	return fmt.Sprintf("\t%s%s", mode, amount), nil
}

func (CompactBuilder) NonFiscalText(text string) string {
	return text
}

func (CompactBuilder) FiscalText(text string) string {
	return "\t1" + text
}

func (CompactBuilder) Cash(c CashOp) (string, error) {
	amount, err := requireAmount(c.Amount)
	if err != nil {
		return "", err
	}
	f, _ := strconv.ParseFloat(amount, 64)
	if strings.ToLower(c.Direction) == "out" || strings.ToLower(c.Direction) == "withdraw" || strings.ToLower(c.Direction) == "withdrawal" {
		f = -f
	}
	prefix := ""
	if strings.ToUpper(c.Currency) == "EUR" {
		prefix = "*"
	}
	return prefix + strconv.FormatFloat(f, 'f', 2, 64), nil
}

func (CompactBuilder) Report(r ReportOp) (string, error) {
	if r.Option != "" {
		opt := strings.ToUpper(strings.TrimSpace(r.Option))
		switch opt {
		case "Z", "0":
			opt = "0"
		case "X", "2":
			opt = "2"
		}
		if opt == "?" || opt == "*" {
			return opt, nil
		}
		suffix := ""
		if r.NoReset {
			suffix = "N"
		}
		return opt + suffix, nil
	}
	mapping := map[string]string{"x": "2", "z": "0", "d": "D", "g": "G"}
	code, ok := mapping[strings.ToLower(r.Type)]
	if !ok {
		return "", fmt.Errorf("report type must be 'x', 'z', 'd', or 'g'")
	}
	return code, nil
}

func (CompactBuilder) StatusData() string { return "X" }
