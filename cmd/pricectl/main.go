// pricectl works on the same state store as the server, without HTTP.
//
// Usage:
//
//	pricectl list --category Laptop
//	pricectl import --file products.csv --refresh
//	pricectl export --report > report.csv
//	pricectl refresh [product-id ...]
//	pricectl notifications --mark-read
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/valeevte/pricewatch/internal/app"
	"github.com/valeevte/pricewatch/internal/config"
	"github.com/valeevte/pricewatch/internal/logger"
	"github.com/valeevte/pricewatch/internal/notify"
	"github.com/valeevte/pricewatch/internal/products"
)

func main() {
	_ = godotenv.Load()

	cliApp := &cli.App{
		Name:  "pricectl",
		Usage: "Inspect and maintain the competitor price catalogue",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Value:   "config/config.yaml",
				Usage:   "Path to the YAML config",
				EnvVars: []string{"PW_CONFIG"},
			},
			&cli.BoolFlag{
				Name:    "env-only",
				Usage:   "Ignore the config file and read PW_* variables only",
				EnvVars: []string{"PW_ENV_ONLY"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "warn",
				Usage:   "Log level (debug, info, warn, error)",
				EnvVars: []string{"PW_LOG_LEVEL"},
			},
		},
		Commands: []*cli.Command{
			listCommand(),
			importCommand(),
			exportCommand(),
			refreshCommand(),
			notificationsCommand(),
		},
	}

	if err := cliApp.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// open loads config and state for one command. The caller closes the app.
func open(c *cli.Context) (*app.App, error) {
	cfg, err := config.Load(c.String("config"), c.Bool("env-only"))
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg.Log.Level = c.String("log-level")
	log, err := logger.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	return app.New(c.Context, cfg, log)
}

func listCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List tracked products",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "category", Aliases: []string{"c"}, Usage: "Only this category"},
			&cli.StringFlag{Name: "query", Aliases: []string{"q"}, Usage: "Name or SKU substring"},
			&cli.BoolFlag{Name: "json", Usage: "Print JSON instead of a table"},
		},
		Action: func(c *cli.Context) error {
			a, err := open(c)
			if err != nil {
				return err
			}
			defer a.Close()

			list := a.Repo.Filter(products.Category(c.String("category")), c.String("query"))
			if c.Bool("json") {
				return writeJSON(c.App.Writer, list)
			}
			return printProducts(c.App.Writer, list)
		},
	}
}

func printProducts(w io.Writer, list []products.Product) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSKU\tNAME\tCATEGORY\tMY PRICE\tSUGGESTED\tCOMPETITORS")
	for _, p := range list {
		suggested := "-"
		if p.SuggestedPrice.Valid {
			suggested = notify.FormatPrice(p.SuggestedPrice.Decimal)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%d\n",
			p.ID, p.SKU, p.Name, p.Category, notify.FormatPrice(p.MyPrice), suggested, len(p.Competitors))
	}
	return tw.Flush()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// signalContext stops long refreshes on Ctrl-C; fetched results are kept.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func importCommand() *cli.Command {
	return &cli.Command{
		Name:  "import",
		Usage: "Import products from a CSV file",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "file", Aliases: []string{"f"}, Usage: "CSV file in the import layout", Required: true},
			&cli.BoolFlag{Name: "refresh", Usage: "Refresh the imported products right away"},
		},
		Action: func(c *cli.Context) error {
			f, err := os.Open(c.String("file"))
			if err != nil {
				return err
			}
			defer f.Close()
			records, err := products.ReadRecords(f)
			if err != nil {
				return err
			}

			a, err := open(c)
			if err != nil {
				return err
			}
			defer a.Close()

			targets, err := a.Repo.AddBulk(c.Context, records)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "imported %d rows\n", len(targets))
			if !c.Bool("refresh") {
				return nil
			}
			ids := make([]string, 0, len(targets))
			for _, p := range targets {
				ids = append(ids, p.ID)
			}
			return runBatch(c, a, ids, "import")
		},
	}
}

func exportCommand() *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Write products as CSV",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "file", Aliases: []string{"f"}, Usage: "Output file (default stdout)"},
			&cli.BoolFlag{Name: "report", Usage: "Write the price report instead of the import layout"},
		},
		Action: func(c *cli.Context) error {
			a, err := open(c)
			if err != nil {
				return err
			}
			defer a.Close()

			out := c.App.Writer
			if path := c.String("file"); path != "" {
				f, err := os.Create(path)
				if err != nil {
					return err
				}
				defer f.Close()
				out = f
			}
			if c.Bool("report") {
				return products.WriteReport(out, a.Repo.List())
			}
			return products.WriteRecords(out, a.Repo.List())
		},
	}
}

func refreshCommand() *cli.Command {
	return &cli.Command{
		Name:      "refresh",
		Usage:     "Fetch competitor prices now, for all products or the given ids",
		ArgsUsage: "[product-id ...]",
		Action: func(c *cli.Context) error {
			a, err := open(c)
			if err != nil {
				return err
			}
			defer a.Close()
			return runBatch(c, a, c.Args().Slice(), "")
		},
	}
}

func runBatch(c *cli.Context, a *app.App, ids []string, label string) error {
	if err := a.Scheduler.EnqueueBatch(ids, label); err != nil {
		return err
	}
	ctx, stop := signalContext(c.Context)
	defer stop()
	if err := a.Scheduler.Drain(ctx); err != nil {
		a.Logger.Warn("refresh interrupted", zap.Error(err))
	}
	s := a.Repo.Summary()
	fmt.Fprintf(c.App.Writer, "refreshed: %d products, %d competitors failed, %d cheaper than us\n",
		s.Products, s.FailedCompetitors, s.CheaperInStock)
	return nil
}

func notificationsCommand() *cli.Command {
	return &cli.Command{
		Name:  "notifications",
		Usage: "Show the notification log",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "mark-read", Usage: "Mark every entry as read"},
			&cli.BoolFlag{Name: "unread", Usage: "Only unread entries"},
		},
		Action: func(c *cli.Context) error {
			a, err := open(c)
			if err != nil {
				return err
			}
			defer a.Close()

			tw := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
			for _, n := range a.Center.List() {
				if c.Bool("unread") && n.Read {
					continue
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\n", n.Timestamp.Format("2006-01-02 15:04"), n.Type, n.Message)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			if c.Bool("mark-read") {
				fmt.Fprintf(c.App.Writer, "marked %d as read\n", a.Center.MarkAllRead(c.Context))
			}
			return nil
		},
	}
}
