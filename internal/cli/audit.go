package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	creditDto "anoa.com/promptvault/internal/modules/credit/dto"
	creditRepo "anoa.com/promptvault/internal/modules/credit/repository"
	creditService "anoa.com/promptvault/internal/modules/credit/service"
	"anoa.com/promptvault/pkg/database"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

type auditReport struct {
	Accounts     int                      `json:"accounts"`
	Inconsistent int                      `json:"inconsistent"`
	Audits       []*creditDto.LedgerAudit `json:"audits"`
}

// NewAuditCommand checks conservation and the before/after chain of one ledger,
// or of every ledger when --user is omitted.
func NewAuditCommand(opts *RootOptions) *cobra.Command {
	var userFlag string

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Verify credit ledgers",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			var userIDs []uuid.UUID
			if userFlag != "" {
				id, err := uuid.Parse(userFlag)
				if err != nil {
					return WrapExitError(ExitCommandError, "invalid --user", err)
				}
				userIDs = append(userIDs, id)
			}

			env, release, err := opts.open(ctx)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to open stores", err)
			}
			defer release()

			repo := creditRepo.NewCreditRepository(env.DB)
			ledger := creditService.NewLedger(repo, database.NewTransactor(env.DB, env.Config.DBTxIsolation), time.Now)

			if userIDs == nil {
				if userIDs, err = repo.AccountUserIDs(ctx); err != nil {
					return WrapExitError(ExitCommandError, "failed to list accounts", err)
				}
			}

			report := &auditReport{Audits: make([]*creditDto.LedgerAudit, 0, len(userIDs))}
			for _, id := range userIDs {
				audit, err := ledger.Audit(ctx, id)
				if err != nil {
					return WrapExitError(ExitCommandError, fmt.Sprintf("failed to audit %s", id), err)
				}
				report.Audits = append(report.Audits, audit)
				if !audit.Consistent {
					report.Inconsistent++
				}
			}
			report.Accounts = len(report.Audits)

			out := NewOutputFormatter(opts.Format, cmd.OutOrStdout())
			if err := out.Emit(report, func(w io.Writer) error { return writeAuditTable(w, report) }); err != nil {
				return err
			}
			if report.Inconsistent > 0 {
				return NewExitError(ExitFailure, fmt.Sprintf("%d inconsistent ledger(s)", report.Inconsistent))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&userFlag, "user", "", "audit a single user id")
	return cmd
}

func writeAuditTable(w io.Writer, report *auditReport) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "USER\tBALANCE\tEARNED\tSPENT\tSUM\tROWS\tCHAIN\tSTATUS")
	for _, a := range report.Audits {
		status := "ok"
		if !a.Consistent {
			status = "INCONSISTENT"
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\t%t\t%s\n",
			a.UserID, a.Balance, a.LifetimeEarned, a.LifetimeSpent, a.TransactionSum, a.Transactions, a.ChainIntact, status)
	}
	fmt.Fprintf(tw, "%d account(s), %d inconsistent\n", report.Accounts, report.Inconsistent)
	return tw.Flush()
}
