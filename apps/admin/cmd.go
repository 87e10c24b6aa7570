package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"syscall"

	"github.com/pkg/errors"
	"golang.org/x/term"

	"github.com/trezcool/colegio/core/billing"
	"github.com/trezcool/colegio/core/checkout"
)

var (
	readPasswordFunc = term.ReadPassword // mockable
	isTerminalFunc   = func() bool { return term.IsTerminal(int(os.Stdout.Fd())) }

	errHelp = errors.New("help provided")
)

type commandLine struct {
	billingSvc  billing.ServiceInterface
	checkoutSvc checkout.ServiceInterface
	out         io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  pending -year YEAR -month MONTH [-level ID] [-grade ID] - list students without a paid invoice in the month")
	fmt.Println("  setstatus -invoice ID -status STATUS - move an invoice to pending, paid, overdue or cancelled")
	fmt.Println("  pay -invoice ID -amount AMOUNT -method METHOD [-reference REF] [-date YYYY-MM-DD] - record a payment")
	fmt.Println("  preference -invoice ID - open a gateway checkout. The access token will be prompted next.")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	pendingCmd := flag.NewFlagSet("pending", flag.ExitOnError)
	pendingYear := pendingCmd.Int("year", 0, "The calendar year.")
	pendingMonth := pendingCmd.Int("month", 0, "The calendar month (1-12).")
	pendingLevel := pendingCmd.Int64("level", 0, "Only students of this level.")
	pendingGrade := pendingCmd.Int64("grade", 0, "Only students of this grade.")

	setStatusCmd := flag.NewFlagSet("setstatus", flag.ExitOnError)
	setStatusInvoice := setStatusCmd.Int64("invoice", 0, "The invoice ID.")
	setStatusStatus := setStatusCmd.String("status", "", "The new status.")

	payCmd := flag.NewFlagSet("pay", flag.ExitOnError)
	payInvoice := payCmd.Int64("invoice", 0, "The invoice ID.")
	payAmount := payCmd.String("amount", "", "The paid amount.")
	payMethod := payCmd.String("method", "", "cash, card, transfer or gateway.")
	payReference := payCmd.String("reference", "", "The payment reference (receipt, transfer id...).")
	payDate := payCmd.String("date", "", "The payment date. Defaults to today.")

	preferenceCmd := flag.NewFlagSet("preference", flag.ExitOnError)
	preferenceInvoice := preferenceCmd.Int64("invoice", 0, "The invoice ID. The access token will be prompted next.")

	switch args[1] {
	case "pending":
		if err := pendingCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *pendingYear == 0 || *pendingMonth == 0 {
			pendingCmd.Usage()
			return errHelp
		}
		return cli.pending(*pendingYear, *pendingMonth, *pendingLevel, *pendingGrade)

	case "setstatus":
		if err := setStatusCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *setStatusInvoice == 0 || *setStatusStatus == "" {
			setStatusCmd.Usage()
			return errHelp
		}
		return cli.setStatus(*setStatusInvoice, *setStatusStatus)

	case "pay":
		if err := payCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *payInvoice == 0 || *payAmount == "" || *payMethod == "" {
			payCmd.Usage()
			return errHelp
		}
		return cli.pay(*payInvoice, *payAmount, *payMethod, *payReference, *payDate)

	case "preference":
		if err := preferenceCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *preferenceInvoice == 0 {
			preferenceCmd.Usage()
			return errHelp
		}
		fmt.Print("Enter access token (leave blank to use the configured one):")
		token, err := readPasswordFunc(syscall.Stdin)
		fmt.Println()
		if err != nil {
			return err
		}
		return cli.preference(*preferenceInvoice, string(token))

	default:
		cli.printUsage()
		return errHelp
	}
}
