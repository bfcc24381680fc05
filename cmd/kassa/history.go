package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Veraticus/kassa/internal/cache"
	"github.com/Veraticus/kassa/internal/cli"
	"github.com/Veraticus/kassa/internal/common"
	"github.com/Veraticus/kassa/internal/history"
	"github.com/Veraticus/kassa/internal/model"
)

const (
	dayLayout   = "2006-01-02"
	monthLayout = "2006-01"
)

func historyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history <category-id>",
		Short: "Show the transfers of a category",
		Long: `Show the legs of a category newest first, one page at a time, with
income, expense, salary and warehouse totals for the whole selection.`,
		Example: `  kassa history cash
  kassa history cash --month 2024-03 --type expense
  kassa history ivan --from 2024-01-01 --to 2024-01-31 --page 2`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			typ, _ := flags.GetString("type")
			pageNum, _ := flags.GetInt("page")
			from, _ := flags.GetString("from")
			to, _ := flags.GetString("to")
			month, _ := flags.GetString("month")

			start, end, err := parseDateRange(from, to, month, time.Local)
			if err != nil {
				return err
			}
			if pageNum < 1 {
				return common.NewValidationError("page", "must be 1 or greater")
			}

			a, err := openApp(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.Close()

			category, err := a.store.GetCategory(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			pages := cache.NewLRUCache[*history.Page](a.cfg.History.CacheSize, a.cfg.History.CacheTTL)
			manager := cache.NewManager()
			manager.Register(pages)
			manager.StartCleanup(a.cfg.History.CacheTTL)
			defer manager.Stop()

			svc := history.New(a.store,
				history.WithPageSize(a.cfg.History.PageSize),
				history.WithCache(pages))
			stop, err := svc.Watch(cmd.Context(), a.store)
			if err != nil {
				return err
			}
			defer stop()

			page, err := svc.Get(cmd.Context(), history.Query{
				CategoryID: category.ID,
				Type:       model.TransactionType(typ),
				Start:      start,
				End:        end,
				Page:       pageNum - 1,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, cli.FormatTitle(fmt.Sprintf("%s  %s", category.Title, a.codec.Format(category.Balance))))
			if len(page.Transactions) == 0 {
				fmt.Fprintln(out, cli.InfoStyle.Render("No transfers found"))
				return nil
			}
			fmt.Fprintln(out, cli.HistoryTable(page, a.codec))
			return nil
		},
	}

	cmd.Flags().String("type", "", "Only show income or expense legs")
	cmd.Flags().Int("page", 1, "Page number")
	cmd.Flags().String("from", "", "First day to include (YYYY-MM-DD)")
	cmd.Flags().String("to", "", "Last day to include (YYYY-MM-DD)")
	cmd.Flags().String("month", "", "Calendar month to show (YYYY-MM)")
	cmd.MarkFlagsMutuallyExclusive("month", "from")
	cmd.MarkFlagsMutuallyExclusive("month", "to")

	return cmd
}

// parseDateRange resolves the history date flags into an inclusive range in
// loc. The end of a day or month is its last nanosecond.
func parseDateRange(from, to, month string, loc *time.Location) (*time.Time, *time.Time, error) {
	if month != "" {
		m, err := time.ParseInLocation(monthLayout, month, loc)
		if err != nil {
			return nil, nil, common.NewValidationError("month", fmt.Sprintf("%q is not YYYY-MM", month))
		}
		end := m.AddDate(0, 1, 0).Add(-time.Nanosecond)
		return &m, &end, nil
	}

	var start, end *time.Time
	if from != "" {
		d, err := time.ParseInLocation(dayLayout, from, loc)
		if err != nil {
			return nil, nil, common.NewValidationError("from", fmt.Sprintf("%q is not YYYY-MM-DD", from))
		}
		start = &d
	}
	if to != "" {
		d, err := time.ParseInLocation(dayLayout, to, loc)
		if err != nil {
			return nil, nil, common.NewValidationError("to", fmt.Sprintf("%q is not YYYY-MM-DD", to))
		}
		d = d.AddDate(0, 0, 1).Add(-time.Nanosecond)
		end = &d
	}
	if start != nil && end != nil && start.After(*end) {
		return nil, nil, common.NewValidationError("to", "must not be before from")
	}
	return start, end, nil
}
