package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"storefront/internal/models"
)

// MoneyFormatter renders minor-unit amounts for one currency.
type MoneyFormatter struct {
	unit    currency.Unit
	scale   int
	printer *message.Printer
}

// NewMoneyFormatter parses an ISO 4217 code such as "INR".
func NewMoneyFormatter(code string) (*MoneyFormatter, error) {
	unit, err := currency.ParseISO(strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		return nil, fmt.Errorf("unknown currency %q: %w", code, err)
	}
	scale, _ := currency.Standard.Rounding(unit)
	return &MoneyFormatter{
		unit:    unit,
		scale:   scale,
		printer: message.NewPrinter(language.English),
	}, nil
}

// Format renders cents as e.g. "INR 1,299.00".
func (m *MoneyFormatter) Format(cents int64) string {
	amount := float64(cents) / 100
	return m.printer.Sprintf("%s %v", m.unit, number.Decimal(amount, number.Scale(m.scale)))
}

// CartTotal sums the lines whose product still exists.
func CartTotal(lines []models.CartLine) int64 {
	var total int64
	for _, line := range lines {
		if line.Product != nil {
			total += line.Product.PriceCents * int64(line.Quantity)
		}
	}
	return total
}

// RenderCart writes the cart as a table.
func RenderCart(w io.Writer, lines []models.CartLine, money *MoneyFormatter) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Item", "Product", "Size", "Qty", "Price", "Subtotal"})

	for _, line := range lines {
		name, price, subtotal := "(no longer available)", "-", "-"
		if line.Product != nil {
			name = line.Product.Name
			price = money.Format(line.Product.PriceCents)
			subtotal = money.Format(line.Product.PriceCents * int64(line.Quantity))
		}
		size := line.Size
		if size == "" {
			size = "-"
		}
		t.AppendRow(table.Row{line.ID, name, size, line.Quantity, price, subtotal})
	}

	t.AppendFooter(table.Row{"", "", "", "", "Total", money.Format(CartTotal(lines))})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight, AlignFooter: text.AlignRight},
	})
	t.Render()
}
