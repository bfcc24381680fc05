package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Veraticus/kassa/internal/cli"
	"github.com/Veraticus/kassa/internal/common"
	"github.com/Veraticus/kassa/internal/model"
	"github.com/Veraticus/kassa/internal/money"
	"github.com/Veraticus/kassa/internal/service"
)

// categoryFile is the YAML layout accepted by "categories import".
type categoryFile struct {
	Categories []categoryEntry `yaml:"categories"`
}

type categoryEntry struct {
	ID      string `yaml:"id"`
	Title   string `yaml:"title"`
	Kind    string `yaml:"kind"`
	Color   string `yaml:"color"`
	Icon    string `yaml:"icon"`
	Balance string `yaml:"balance"`
	Row     int    `yaml:"row"`
	Hidden  bool   `yaml:"hidden"`
}

// parseCategoryFile decodes and validates a category seed file. IDs are
// required so that re-importing the same file is idempotent.
func parseCategoryFile(r io.Reader, codec *money.Codec) ([]model.Category, error) {
	var file categoryFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to parse category file: %w", err)
	}

	seen := make(map[string]bool, len(file.Categories))
	categories := make([]model.Category, 0, len(file.Categories))
	for i, e := range file.Categories {
		id := strings.TrimSpace(e.ID)
		if id == "" {
			return nil, common.NewValidationError(fmt.Sprintf("categories[%d].id", i), "is required")
		}
		if seen[id] {
			return nil, common.NewValidationError(fmt.Sprintf("categories[%d].id", i), fmt.Sprintf("duplicate id %q", id))
		}
		seen[id] = true

		c := model.Category{
			ID:        id,
			Title:     strings.TrimSpace(e.Title),
			Kind:      model.CategoryKind(e.Kind),
			Row:       e.Row,
			Color:     e.Color,
			Icon:      e.Icon,
			IsVisible: !e.Hidden,
		}
		if c.Kind == "" {
			c.Kind = model.KindGeneral
		}
		if !c.Kind.Valid() {
			return nil, common.NewValidationError(fmt.Sprintf("categories[%d].kind", i), fmt.Sprintf("unknown kind %q", e.Kind))
		}
		if e.Balance != "" {
			balance, err := codec.Parse(e.Balance)
			if err != nil {
				return nil, common.NewValidationError(fmt.Sprintf("categories[%d].balance", i), fmt.Sprintf("%q is not a number", e.Balance))
			}
			c.Balance = balance
		}
		categories = append(categories, c)
	}
	return categories, nil
}

func importCategoriesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.yaml>",
		Short: "Create categories from a YAML file",
		Long: `Create every category listed in the file that does not exist yet.
Existing categories are left untouched, so their balances are never
overwritten. All new categories are committed in one batch.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", args[0], err)
			}
			defer func() { _ = f.Close() }()

			a, err := openApp(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.Close()

			categories, err := parseCategoryFile(f, a.codec)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			created, skipped, err := importCategories(cmd.Context(), a.store, categories, out)
			if err != nil {
				return fmt.Errorf("failed to import categories: %w", err)
			}

			fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Imported %d categories (%d already existed)", created, skipped)))
			return nil
		},
	}
}

// importCategories creates the categories that are not stored yet. The
// existence checks and the inserts share one store transaction, and the
// inserts never replace a category, so an existing balance is never reset.
func importCategories(ctx context.Context, store service.Store, categories []model.Category, out io.Writer) (created, skipped int, err error) {
	bar := progressbar.NewOptions(len(categories),
		progressbar.OptionSetWriter(out),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("[cyan][bold]Importing categories...[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			if _, err := fmt.Fprintln(out); err != nil {
				slog.Warn("Failed to write newline after progress bar", "error", err)
			}
		}),
	)

	err = store.RunInTx(ctx, func(tx service.Tx) error {
		// Runs again when the store retries a write conflict.
		bar.Reset()
		skipped = 0

		batch := service.NewBatch()
		for _, c := range categories {
			_, err := tx.GetCategory(ctx, c.ID)
			switch {
			case err == nil:
				skipped++
				slog.Debug("Category already exists, skipping", "id", c.ID)
			case errors.Is(err, common.ErrNotFound):
				batch.CreateCategory(c)
			default:
				return fmt.Errorf("failed to check category %s: %w", c.ID, err)
			}
			if err := bar.Add(1); err != nil {
				slog.Warn("Failed to update progress bar", "error", err)
			}
		}

		created = batch.Len()
		return tx.Apply(ctx, batch)
	})
	if err != nil {
		return 0, 0, err
	}
	return created, skipped, nil
}
