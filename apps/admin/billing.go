package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/colegio/core"
	"github.com/trezcool/colegio/core/billing"
	"github.com/trezcool/colegio/core/checkout"
)

// pending prints the students without a paid invoice in the month.
// Rows are aligned on a terminal and tab separated otherwise, so the output can be piped.
func (cli *commandLine) pending(year, month int, levelID, gradeID int64) error {
	query := billing.PendingQuery{Year: year, Month: month}
	if levelID > 0 {
		query.LevelID = null.Int64From(levelID)
	}
	if gradeID > 0 {
		query.GradeID = null.Int64From(gradeID)
	}

	rows, err := cli.billingSvc.FindPending(context.Background(), query)
	if err != nil {
		return err
	}

	if !isTerminalFunc() {
		for _, r := range rows {
			fmt.Fprintf(cli.out, "%d\t%s\t%s\t%s\t%s\n", r.StudentID, r.StudentName, r.LevelName.String, r.GradeName.String, r.ParentName.String)
		}
		return nil
	}

	w := tabwriter.NewWriter(cli.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTUDENT\tLEVEL\tGRADE\tPARENT")
	for _, r := range rows {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", r.StudentID, r.StudentName, r.LevelName.String, r.GradeName.String, r.ParentName.String)
	}
	fmt.Fprintf(w, "\n%d pending for %s\n", len(rows), query.PeriodKey())
	return w.Flush()
}

func (cli *commandLine) setStatus(invoiceID int64, status string) error {
	inv, err := cli.billingSvc.MarkInvoiceStatus(context.Background(), invoiceID, billing.Status(status))
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "%s: %s\n", inv.Number, inv.Status)
	return nil
}

func (cli *commandLine) pay(invoiceID int64, amount, method, reference, date string) error {
	amt, err := decimal.NewFromString(amount)
	if err != nil {
		return errors.Errorf("invalid amount %q", amount)
	}
	np := billing.NewPayment{
		InvoiceID: invoiceID,
		Amount:    core.NewMoney(amt),
		Method:    billing.Method(method),
	}
	if reference != "" {
		np.Reference = null.StringFrom(reference)
	}
	if date != "" {
		if np.PaidAt, err = core.ParseDate(date); err != nil {
			return errors.Errorf("invalid date %q, want YYYY-MM-DD", date)
		}
	}

	p, err := cli.billingSvc.RecordPayment(context.Background(), np)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "payment %d: %s %s on %s\n", p.ID, p.Amount, p.Method, p.PaidAt)
	return nil
}

func (cli *commandLine) preference(invoiceID int64, accessToken string) error {
	res, err := cli.checkoutSvc.CreatePreference(context.Background(), checkout.PreferenceRequest{
		InvoiceID:   invoiceID,
		AccessToken: accessToken,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "%s\n%s\n", res.PreferenceID, res.RedirectURL)
	return nil
}
