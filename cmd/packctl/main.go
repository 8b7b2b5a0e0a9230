package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/dgallion1/quizpack/internal/app"
	"github.com/dgallion1/quizpack/internal/assets"
	"github.com/dgallion1/quizpack/internal/config"
	"github.com/dgallion1/quizpack/internal/doctree"
	"github.com/dgallion1/quizpack/internal/parser"
	"github.com/dgallion1/quizpack/internal/pipeline"
	"github.com/dgallion1/quizpack/internal/store"
)

var version = "0.1.0"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "packctl",
		Short: "Parse, import and renumber trivia packages",
		Long: `packctl works on the same database and media folders as the quizpack
server. Settings come from the same environment variables
(DATABASE_DRIVER, DATABASE_DSN, ASSETS_DIR, MEDIA_DIR, MEDIA_BASE_URL).`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(parseCmd())
	root.AddCommand(importCmd())
	root.AddCommand(renumberCmd())
	return root
}

func newLogger(cfg config.Config) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
}

func parseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "parse <file>",
		Short: "Show what a document or archive parses into",
		Long: `Parse a document (.txt, .md, .html, .pdf, .docx) or a package archive
(.qpz, .zip) and print the result. Nothing is stored.

Example:
  packctl parse cup-2024.docx
  packctl parse cup-2024.qpz --output yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output, _ := cmd.Flags().GetString("output")
			if output != "json" && output != "yaml" {
				return fmt.Errorf("unknown output format %q (use json or yaml)", output)
			}
			cfg := config.Load()
			log := newLogger(cfg)

			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}
			dir, err := os.MkdirTemp("", "packctl-")
			if err != nil {
				return fmt.Errorf("create temp dir: %w", err)
			}
			defer os.RemoveAll(dir)
			work, err := assets.New(dir, assets.Options{
				MaxBytes: cfg.MaxAssetBytes,
				Download: assets.DownloadOptions{Timeout: cfg.DownloadTimeout, MaxBytes: cfg.MaxAssetBytes},
			})
			if err != nil {
				return err
			}
			defer work.Close()

			p := &pipeline.Parser{Work: work, Options: parser.Options{PDFFallback: cfg.PDFFallbackPdftotext}, Logger: log}
			res, _, err := p.Parse(cmd.Context(), filepath.Base(args[0]), data)
			if err != nil {
				return err
			}
			return writeResult(cmd.OutOrStdout(), output, res)
		},
	}
	cmd.Flags().StringP("output", "o", "json", "Output format (json, yaml)")
	return cmd
}

func writeResult(w io.Writer, format string, res *doctree.ParseResult) error {
	if format == "yaml" {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(res)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Parse a file and store it as a package",
		Long: `Parse a document or archive and import it for an owner. Imports whose
parse confidence is below MIN_CONFIDENCE are refused unless --force is set.

Example:
  packctl import cup-2024.qpz --owner 42`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, _ := cmd.Flags().GetString("owner")
			force, _ := cmd.Flags().GetBool("force")
			if owner == "" {
				return fmt.Errorf("--owner is required")
			}
			cfg := config.Load()
			if err := cfg.ValidateStorage(); err != nil {
				return err
			}
			log := newLogger(cfg)

			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}
			a, err := app.New(cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()

			return runImport(cmd.Context(), cmd.OutOrStdout(), a, cfg, filepath.Base(args[0]), data, owner, force)
		},
	}
	cmd.Flags().String("owner", "", "Owner id of the new package")
	cmd.Flags().Bool("force", false, "Import even when parse confidence is low")
	return cmd
}

func runImport(ctx context.Context, w io.Writer, a *app.App, cfg config.Config, filename string, data []byte, owner string, force bool) error {
	res, written, err := a.Parser.Parse(ctx, filename, data)
	if err != nil {
		return err
	}
	defer a.Work.Remove(written...)

	if res.Confidence < cfg.MinConfidence && !force {
		for _, warning := range res.Warnings {
			fmt.Fprintf(w, "warning: %s\n", warning)
		}
		return fmt.Errorf("confidence %.2f is below the minimum %.2f (use --force to import anyway)", res.Confidence, cfg.MinConfidence)
	}
	out, err := a.Importer.Import(ctx, res, owner)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Imported package %s\n", out.Package.ID)
	fmt.Fprintf(w, "  Title:      %s\n", out.Package.Title)
	fmt.Fprintf(w, "  Tours:      %d\n", len(out.Package.Tours))
	fmt.Fprintf(w, "  Questions:  %d\n", out.Package.TotalQuestions)
	fmt.Fprintf(w, "  Confidence: %.2f\n", res.Confidence)
	for _, warning := range out.Warnings {
		fmt.Fprintf(w, "warning: %s\n", warning)
	}
	return nil
}

func renumberCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "renumber <packageID>",
		Short: "Recompute tour and question numbers of a package",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if err := cfg.ValidateStorage(); err != nil {
				return err
			}
			a, err := app.New(cfg, newLogger(cfg))
			if err != nil {
				return err
			}
			defer a.Close()

			pkg, err := a.Packages.Renumber(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printOutline(cmd.OutOrStdout(), pkg)
			return nil
		},
	}
}

func printOutline(w io.Writer, pkg *store.Package) {
	fmt.Fprintf(w, "%s (%s, %d questions)\n", pkg.Title, pkg.NumberingMode, pkg.TotalQuestions)
	for _, t := range pkg.Tours {
		fmt.Fprintf(w, "  Tour %s [%s]:", t.Number, t.Type)
		for _, q := range t.Questions {
			fmt.Fprintf(w, " %s", q.Number)
		}
		fmt.Fprintln(w)
	}
}
