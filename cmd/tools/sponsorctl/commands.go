package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/noah-isme/sponsor-api/internal/auth"
	"github.com/noah-isme/sponsor-api/internal/order"
	"github.com/noah-isme/sponsor-api/internal/payment"
	"github.com/noah-isme/sponsor-api/internal/repo"
	"github.com/noah-isme/sponsor-api/internal/sheet"
)

func headersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "headers",
		Short: "Inspect or provision table headers",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "ensure",
		Short: "Add any missing canonical columns to the order, ledger and event tables",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := openEnv(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			ctx := cmd.Context()
			tables := []struct {
				name    string
				headers []string
			}{
				{e.cfg.SheetOrders, repo.OrderHeaders},
				{e.cfg.SheetRequests, repo.LedgerHeaders},
				{e.cfg.SheetEvents, repo.EventHeaders},
			}
			for _, tbl := range tables {
				t, err := e.deps.Book.EnsureTable(ctx, tbl.name)
				if err != nil {
					return fmt.Errorf("%s: %w", tbl.name, err)
				}
				cols, err := sheet.EnsureHeaders(ctx, t, tbl.headers)
				if err != nil {
					return fmt.Errorf("%s: %w", tbl.name, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-24s %d columns\n", tbl.name, cols.Width())
			}
			return nil
		},
	})
	return cmd
}

func finalizeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "finalize [orderId]",
		Short: "Confirm an order's books on the public ledger",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			email, _ := cmd.Flags().GetString("email")
			books, _ := cmd.Flags().GetStringSlice("books")
			res, err := e.deps.Order.Finalize(cmd.Context(), order.FinalizeInput{OrderID: args[0], Email: email, Books: books})
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]any{"orderId": res.OrderID, "books": res.Books, "titles": res.Titles})
		},
	}
	cmd.Flags().String("email", "", "Sponsor email (defaults to the order's email)")
	cmd.Flags().StringSlice("books", nil, "Book ids (defaults to the order's books)")
	return cmd
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage admin bearer tokens",
	}
	mint := &cobra.Command{
		Use:   "mint [subject]",
		Short: "Mint an admin token signed with ADMIN_JWT_SECRET",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := os.Getenv("ADMIN_JWT_SECRET")
			issuer := os.Getenv("ADMIN_JWT_ISSUER")
			if issuer == "" {
				issuer = "sponsor-api"
			}
			ttl, _ := cmd.Flags().GetDuration("ttl")
			token, err := auth.NewTokens(secret, issuer).Mint(args[0], ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	mint.Flags().Duration("ttl", time.Hour, "Token lifetime")
	cmd.AddCommand(mint)
	return cmd
}

func payfastCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "payfast",
		Short: "PayFast helpers",
	}
	sign := &cobra.Command{
		Use:   "sign key=value...",
		Short: "Print the signature base and MD5 signature for a parameter set",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params := make(map[string]string, len(args))
			for _, arg := range args {
				k, v, ok := strings.Cut(arg, "=")
				if !ok || k == "" {
					return fmt.Errorf("expected key=value, got %q", arg)
				}
				params[k] = v
			}
			passphrase, _ := cmd.Flags().GetString("passphrase")
			if passphrase == "" {
				passphrase = os.Getenv("PF_PASSPHRASE")
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, payment.SignatureBase(params))
			fmt.Fprintln(out, payment.Signature(params, passphrase))
			return nil
		},
	}
	sign.Flags().String("passphrase", "", "Merchant passphrase (defaults to PF_PASSPHRASE)")
	cmd.AddCommand(sign)
	return cmd
}

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed [catalogue.csv]",
		Short: "Append catalogue rows from a CSV file and drop the cached catalogue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := readCSV(args[0])
			if err != nil {
				return err
			}
			if len(records) < 2 {
				return fmt.Errorf("%s: expected a header row and at least one data row", args[0])
			}

			e, err := openEnv(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			ctx := cmd.Context()
			t, err := e.deps.Book.EnsureTable(ctx, e.cfg.SheetCatalogue)
			if err != nil {
				return err
			}
			cols, err := sheet.EnsureHeaders(ctx, t, records[0])
			if err != nil {
				return err
			}
			for _, rec := range records[1:] {
				values := make(map[string]string, len(rec))
				for i, name := range records[0] {
					if i < len(rec) {
						values[name] = strings.TrimSpace(rec[i])
					}
				}
				if err := t.AppendRow(ctx, cols.Row(values)); err != nil {
					return err
				}
			}
			if err := e.deps.Catalog.Cache.Invalidate(ctx); err != nil {
				return fmt.Errorf("invalidate catalogue cache: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d rows into %s\n", len(records)-1, e.cfg.SheetCatalogue)
			return nil
		},
	}
	return cmd
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	return r.ReadAll()
}

func printJSON(cmd *cobra.Command, v map[string]any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
