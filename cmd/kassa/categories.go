package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Veraticus/kassa/internal/cli"
	"github.com/Veraticus/kassa/internal/model"
)

func categoriesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "categories",
		Aliases: []string{"cat"},
		Short:   "Manage ledger categories",
		Long: `List, add and import categories. Balances are changed only by
transfers and deletions; an opening balance can be set when a category is
created.`,
	}

	cmd.AddCommand(listCategoriesCmd())
	cmd.AddCommand(addCategoryCmd())
	cmd.AddCommand(importCategoriesCmd())

	return cmd
}

func listCategoriesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List categories with their balances",
		RunE: func(cmd *cobra.Command, _ []string) error {
			showHidden, _ := cmd.Flags().GetBool("all")

			a, err := openApp(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.Close()

			categories, err := a.store.ListCategories(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to get categories: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(categories) == 0 {
				fmt.Fprintln(out, cli.InfoStyle.Render("No categories found. Use 'kassa categories add' to create one."))
				return nil
			}

			fmt.Fprintln(out, cli.FormatTitle("Categories"))
			fmt.Fprintln(out, cli.CategoryTable(categories, a.codec, showHidden))
			return nil
		},
	}

	cmd.Flags().Bool("all", false, "Include hidden categories")
	return cmd
}

func addCategoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add <title>",
		Short: "Add a category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			id, _ := flags.GetString("id")
			kind, _ := flags.GetString("kind")
			row, _ := flags.GetInt("row")
			color, _ := flags.GetString("color")
			icon, _ := flags.GetString("icon")
			balance, _ := flags.GetString("balance")
			hidden, _ := flags.GetBool("hidden")

			a, err := openApp(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.Close()

			category := model.Category{
				ID:        id,
				Title:     strings.TrimSpace(args[0]),
				Kind:      model.CategoryKind(kind),
				Row:       row,
				Color:     color,
				Icon:      icon,
				IsVisible: !hidden,
			}
			if balance != "" {
				if category.Balance, err = parseAmount(a.codec, balance); err != nil {
					return err
				}
			}
			if !category.Kind.Valid() {
				return fmt.Errorf("unknown kind %q (want one of %s)", kind, kindList())
			}

			if err := a.store.CreateCategory(cmd.Context(), &category); err != nil {
				return fmt.Errorf("failed to create category: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Created %s (%s) with balance %s",
				category.Title, category.ID, a.codec.Format(category.Balance))))
			return nil
		},
	}

	cmd.Flags().String("id", "", "Category ID (generated when empty)")
	cmd.Flags().String("kind", string(model.KindGeneral), "Category kind ("+kindList()+")")
	cmd.Flags().Int("row", 1, "Display row")
	cmd.Flags().String("color", "", "Display color")
	cmd.Flags().String("icon", "", "Display icon")
	cmd.Flags().String("balance", "", "Opening balance")
	cmd.Flags().Bool("hidden", false, "Hide the category from listings")

	return cmd
}

func kindList() string {
	kinds := make([]string, 0, len(model.CategoryKinds))
	for _, k := range model.CategoryKinds {
		kinds = append(kinds, string(k))
	}
	return strings.Join(kinds, ", ")
}
