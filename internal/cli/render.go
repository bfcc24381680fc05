package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/Veraticus/kassa/internal/history"
	"github.com/Veraticus/kassa/internal/ledger"
	"github.com/Veraticus/kassa/internal/model"
	"github.com/Veraticus/kassa/internal/money"
)

const dateLayout = "02.01.2006 15:04"

// Table renders rows under headers with columns padded to equal width.
func Table(headers []string, rows [][]string) string {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i := range min(len(row), len(widths)) {
			widths[i] = max(widths[i], lipgloss.Width(row[i]))
		}
	}

	cells := make([]string, len(headers))
	for i, h := range headers {
		cells[i] = TableCellStyle.Width(widths[i] + 2).Render(h)
	}

	var b strings.Builder
	b.WriteString(TableHeaderStyle.Render(lipgloss.JoinHorizontal(lipgloss.Top, cells...)))
	for _, row := range rows {
		b.WriteString("\n")
		for i := range widths {
			cell := ""
			if i < len(row) {
				cell = row[i]
			}
			b.WriteString(TableCellStyle.Width(widths[i] + 2).Render(cell))
		}
	}
	return b.String()
}

// CategoryTable renders categories with their balances.
func CategoryTable(cats []model.Category, codec *money.Codec, showHidden bool) string {
	rows := make([][]string, 0, len(cats))
	for _, c := range cats {
		if !c.IsVisible && !showHidden {
			continue
		}
		balance := codec.Format(c.Balance)
		if c.Balance.IsNegative() {
			balance = ExpenseStyle.Render(balance)
		}
		title := c.Title
		if !c.IsVisible {
			title = SubtleStyle.Render(title + " (hidden)")
		}
		rows = append(rows, []string{fmt.Sprint(c.Row), c.ID, title, string(c.Kind), balance})
	}
	return Table([]string{"Row", "ID", "Title", "Kind", "Balance"}, rows)
}

// PairSummary describes a committed transfer.
func PairSummary(pair *model.Pair, codec *money.Codec) string {
	lines := []string{
		fmt.Sprintf("%s → %s", pair.Expense.FromUser, pair.Expense.ToUser),
		fmt.Sprintf("Amount:      %s", codec.Format(pair.Income.Amount)),
		fmt.Sprintf("Description: %s", pair.Expense.Description),
		fmt.Sprintf("Pair:        %s", pair.ID()),
		SubtleStyle.Render(pair.Expense.Date.Local().Format(dateLayout)),
	}
	return RenderBox("Transfer committed", strings.Join(lines, "\n"))
}

// DeleteSummary describes a completed deletion.
func DeleteSummary(res *ledger.DeleteResult) string {
	msg := fmt.Sprintf("Deleted %s", strings.Join(res.Deleted, ", "))
	if !res.CounterpartFound {
		return FormatWarning(msg + " (no counterpart found)")
	}
	return FormatSuccess(msg)
}

// HistoryTable renders one history page followed by its totals.
func HistoryTable(page *history.Page, codec *money.Codec) string {
	rows := make([][]string, 0, len(page.Transactions))
	for _, txn := range page.Transactions {
		amount := codec.Format(txn.Amount)
		switch {
		case txn.IsSalary != nil && *txn.IsSalary:
			amount = SalaryStyle.Render(amount)
		case txn.IsExpense():
			amount = ExpenseStyle.Render(amount)
		default:
			amount = IncomeStyle.Render(amount)
		}

		description := txn.Description
		if txn.Waybill != nil && txn.Waybill.Number != "" {
			description += " " + WaybillIcon + " №" + txn.Waybill.Number
		}

		rows = append(rows, []string{
			txn.Date.Local().Format(dateLayout),
			txn.FromUser + " → " + txn.ToUser,
			amount,
			description,
			txn.ID,
		})
	}

	var b strings.Builder
	b.WriteString(Table([]string{"Date", "Transfer", "Amount", "Description", "ID"}, rows))
	b.WriteString("\n\n")
	b.WriteString(totalsLine(page.Totals, codec))
	if page.HasMore {
		b.WriteString("\n" + SubtleStyle.Render(fmt.Sprintf("More on page %d", page.Page+2)))
	}
	return b.String()
}

func totalsLine(t history.Totals, codec *money.Codec) string {
	parts := []string{
		IncomeStyle.Render("Income " + codec.Format(t.Income)),
		ExpenseStyle.Render("Expense " + codec.Format(t.Expense)),
	}
	if t.Salary.IsPositive() {
		parts = append(parts, SalaryStyle.Render("Salary "+codec.Format(t.Salary)))
	}
	if t.Warehouse.IsPositive() {
		parts = append(parts, InfoStyle.Render("Warehouse "+codec.Format(t.Warehouse)))
	}
	return strings.Join(parts, "   ")
}
