package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"mfgcore/server/internal/services"
)

type (
	openDBFunc  func(databaseURL string) (*gorm.DB, error)
	closeDBFunc func(*gorm.DB) error
)

// app - сервисы ядра, собранные после подключения к БД
type app struct {
	db      *gorm.DB
	fefo    *services.FEFOService
	staging *services.StagingService
	batches *services.BatchService
	recall  *services.RecallService
}

func newRootCmd(open openDBFunc, closeDB closeDBFunc, recallWindow int) *cobra.Command {
	var (
		databaseURL string
		a           app
	)

	root := &cobra.Command{
		Use:           "mfgctl",
		Short:         "Manufacturer CLI: FEFO selection, staging, batch commit, recall tracing and reports",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			db, err := open(databaseURL)
			if err != nil {
				return err
			}
			a.db = db
			a.staging = services.NewStagingService(db)
			a.fefo = services.NewFEFOService(db)
			a.fefo.SetStagingService(a.staging)
			a.batches = services.NewBatchService(db)
			a.recall = services.NewRecallService(db)
			a.recall.SetDefaultWindow(recallWindow)
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if closeDB == nil || a.db == nil {
				return nil
			}
			return closeDB(a.db)
		},
	}
	root.PersistentFlags().StringVar(&databaseURL, "database-url", "", "PostgreSQL URL (default: DATABASE_URL)")

	root.AddCommand(
		newSelectCmd(&a),
		newStageCmd(&a),
		newCommitCmd(&a),
		newTraceCmd(&a),
		newReportCmd(&a),
	)
	return root
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newSelectCmd(a *app) *cobra.Command {
	var (
		recipeID uint
		units    int
		token    string
	)
	cmd := &cobra.Command{
		Use:   "select",
		Short: "Select lots FEFO for a recipe and stage them in a session",
		RunE: func(cmd *cobra.Command, args []string) error {
			if token == "" {
				token = a.staging.NewSession()
			}
			result, err := a.fefo.SelectFEFO(cmd.Context(), recipeID, units, token)
			if err != nil {
				return err
			}
			return printJSON(cmd, result)
		},
	}
	cmd.Flags().UintVar(&recipeID, "recipe", 0, "Recipe plan ID (required)")
	cmd.Flags().IntVar(&units, "units", 0, "Units to produce (required)")
	cmd.Flags().StringVar(&token, "session", "", "Session token (default: new session)")
	_ = cmd.MarkFlagRequired("recipe")
	_ = cmd.MarkFlagRequired("units")
	return cmd
}

func newStageCmd(a *app) *cobra.Command {
	var token string
	cmd := &cobra.Command{
		Use:   "stage",
		Short: "Inspect and edit a staging session",
	}
	cmd.PersistentFlags().StringVar(&token, "session", "", "Session token (required)")
	_ = cmd.MarkPersistentFlagRequired("session")

	list := &cobra.Command{
		Use:   "list",
		Short: "List staged rows of the session",
		RunE: func(cmd *cobra.Command, args []string) error {
			rows, err := a.staging.StageList(cmd.Context(), token)
			if err != nil {
				return err
			}
			return printJSON(cmd, rows)
		},
	}

	var (
		lotID uint
		qty   string
	)
	add := &cobra.Command{
		Use:   "add",
		Short: "Stage a quantity from a lot manually",
		RunE: func(cmd *cobra.Command, args []string) error {
			qtyOz, err := decimal.NewFromString(qty)
			if err != nil {
				return fmt.Errorf("неверное количество %q: %w", qty, err)
			}
			row, err := a.staging.StageAdd(cmd.Context(), token, lotID, qtyOz)
			if err != nil {
				return err
			}
			return printJSON(cmd, row)
		},
	}
	add.Flags().UintVar(&lotID, "lot", 0, "Ingredient lot ID (required)")
	add.Flags().StringVar(&qty, "qty", "", "Quantity in oz (required)")
	_ = add.MarkFlagRequired("lot")
	_ = add.MarkFlagRequired("qty")

	var stagingID uint
	remove := &cobra.Command{
		Use:   "remove",
		Short: "Remove one staged row",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.staging.StageRemove(cmd.Context(), token, stagingID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d\n", stagingID)
			return nil
		},
	}
	remove.Flags().UintVar(&stagingID, "id", 0, "Staged row ID (required)")
	_ = remove.MarkFlagRequired("id")

	discard := &cobra.Command{
		Use:   "discard",
		Short: "Discard the whole session",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.staging.StageDiscard(cmd.Context(), token); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "discarded %s\n", token)
			return nil
		},
	}

	cmd.AddCommand(list, add, remove, discard)
	return cmd
}

func newCommitCmd(a *app) *cobra.Command {
	var (
		req    services.CommitRequest
		legacy bool
	)
	cmd := &cobra.Command{
		Use:   "commit",
		Short: "Commit the staged session into a product batch",
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				result *services.CommitResult
				err    error
			)
			if legacy {
				result, err = a.batches.CommitLegacyBatch(cmd.Context(), req.RecipeID, req.Units, req.ManufacturerID)
			} else {
				result, err = a.batches.CommitBatch(cmd.Context(), req)
			}
			if err != nil {
				return err
			}
			return printJSON(cmd, result)
		},
	}
	cmd.Flags().StringVar(&req.SessionToken, "session", "", "Session token")
	cmd.Flags().UintVar(&req.RecipeID, "recipe", 0, "Recipe plan ID (required)")
	cmd.Flags().IntVar(&req.Units, "units", 0, "Units produced (required)")
	cmd.Flags().StringVar(&req.ManufacturerID, "manufacturer", "", "Manufacturer ID (required)")
	cmd.Flags().BoolVar(&legacy, "legacy", false, "Commit all staged rows regardless of session")
	_ = cmd.MarkFlagRequired("recipe")
	_ = cmd.MarkFlagRequired("units")
	_ = cmd.MarkFlagRequired("manufacturer")
	return cmd
}

func newTraceCmd(a *app) *cobra.Command {
	var (
		q          services.RecallQuery
		windowDays int
		exportPath string
	)
	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Trace product batches that consumed an ingredient or a lot",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("window") {
				q.WindowDays = &windowDays
			}
			rows, err := a.recall.TraceRecall(cmd.Context(), q)
			if err != nil {
				return err
			}
			if exportPath != "" {
				f, err := os.Create(exportPath)
				if err != nil {
					return err
				}
				defer f.Close()
				if err := services.ExportRecallXLSX(rows, f); err != nil {
					return err
				}
			}
			return printJSON(cmd, map[string]interface{}{
				"rows":    rows,
				"summary": services.SummarizeRecall(rows),
			})
		},
	}
	cmd.Flags().StringVar(&q.IngredientID, "ingredient", "", "Ingredient ID")
	cmd.Flags().StringVar(&q.LotNumber, "lot", "", "Ingredient lot number")
	cmd.Flags().IntVar(&windowDays, "window", 0, "Window in days (default: RECALL_DEFAULT_WINDOW_DAYS)")
	cmd.Flags().StringVar(&exportPath, "export", "", "Write rows to an xlsx file")
	cmd.MarkFlagsMutuallyExclusive("ingredient", "lot")
	cmd.MarkFlagsOneRequired("ingredient", "lot")
	return cmd
}

func newReportCmd(a *app) *cobra.Command {
	var manufacturerID string
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Produced units per product of a manufacturer",
	}
	cmd.PersistentFlags().StringVar(&manufacturerID, "manufacturer", "", "Manufacturer ID (required)")
	_ = cmd.MarkPersistentFlagRequired("manufacturer")

	inventory := &cobra.Command{
		Use:   "inventory",
		Short: "Total units and batch count per product",
		RunE: func(cmd *cobra.Command, args []string) error {
			rows, err := a.batches.InventoryReport(cmd.Context(), manufacturerID)
			if err != nil {
				return err
			}
			return printJSON(cmd, rows)
		},
	}

	var threshold int
	lowStock := &cobra.Command{
		Use:   "low-stock",
		Short: "Products with fewer produced units than the threshold",
		RunE: func(cmd *cobra.Command, args []string) error {
			rows, err := a.batches.LowStockReport(cmd.Context(), manufacturerID, threshold)
			if err != nil {
				return err
			}
			return printJSON(cmd, rows)
		},
	}
	lowStock.Flags().IntVar(&threshold, "threshold", services.DefaultLowStockThreshold, "Units threshold")

	cmd.AddCommand(inventory, lowStock)
	return cmd
}
