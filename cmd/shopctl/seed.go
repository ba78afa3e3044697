package main

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/santiscally/grafica-los-rumbos/internal/services"
)

//go:embed seed.yaml
var defaultSeed []byte

type seedFile struct {
	Counters []seedCounter `yaml:"counters"`
	Products []seedProduct `yaml:"products"`
	Prices   []seedPrice   `yaml:"prices"`
}

type seedCounter struct {
	Key   string `yaml:"key"`
	Value int64  `yaml:"value"`
}

type seedProduct struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	PriceCents  int64  `yaml:"priceCents"`
	Year        string `yaml:"year"`
	Subject     string `yaml:"subject"`
	Code        string `yaml:"code"`
}

type seedPrice struct {
	Service     string `yaml:"service"`
	AmountCents int64  `yaml:"amountCents"`
}

type seedReport struct {
	CountersWritten int
	CountersKept    int
	ProductsCreated int
	ProductsSkipped int
	PricesCreated   int
	PricesSkipped   int
}

func newSeedCmd(withBackend func(func(*cobra.Command, *backend) error) func(*cobra.Command, []string) error) *cobra.Command {
	var (
		file  string
		force bool
	)
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create counters, catalog products and service prices from a YAML file",
		Long: "Seeds the order number counter and the starting catalog. Products whose code already " +
			"exists and services that already have an active price are skipped, so the command can be re-run.",
		Args: cobra.NoArgs,
		RunE: withBackend(func(cmd *cobra.Command, b *backend) error {
			data := defaultSeed
			if file != "" {
				raw, err := os.ReadFile(file)
				if err != nil {
					return fmt.Errorf("read seed file: %w", err)
				}
				data = raw
			}
			seed, err := parseSeed(data)
			if err != nil {
				return err
			}
			report, err := applySeed(cmd.Context(), b, seed, force)
			if err != nil {
				return err
			}
			printSeedReport(cmd.OutOrStdout(), report)
			return nil
		}),
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "seed YAML file (defaults to the built-in catalog)")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite counters that already exist")
	return cmd
}

func parseSeed(data []byte) (seedFile, error) {
	var seed seedFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&seed); err != nil && !errors.Is(err, io.EOF) {
		return seedFile{}, fmt.Errorf("parse seed: %w", err)
	}
	for i, c := range seed.Counters {
		if strings.TrimSpace(c.Key) == "" {
			return seedFile{}, fmt.Errorf("parse seed: counter %d has no key", i)
		}
	}
	return seed, nil
}

func applySeed(ctx context.Context, b *backend, seed seedFile, force bool) (seedReport, error) {
	var report seedReport
	for _, c := range seed.Counters {
		written, err := b.Counters.Seed(ctx, c.Key, c.Value, force)
		if err != nil {
			return report, fmt.Errorf("seed counter %s: %w", c.Key, err)
		}
		if written {
			report.CountersWritten++
		} else {
			report.CountersKept++
		}
	}

	for _, p := range seed.Products {
		_, err := b.Catalog.CreateProduct(ctx, services.UpsertProductCommand{
			Name:        p.Name,
			Description: p.Description,
			Price:       services.Money(p.PriceCents),
			Year:        p.Year,
			Subject:     p.Subject,
			Code:        p.Code,
		})
		switch {
		case err == nil:
			report.ProductsCreated++
		case errors.Is(err, services.ErrCatalogConflict):
			report.ProductsSkipped++
		default:
			return report, fmt.Errorf("seed product %q: %w", p.Name, err)
		}
	}

	for _, p := range seed.Prices {
		_, err := b.Catalog.CreatePrice(ctx, services.UpsertPriceCommand{
			Service: p.Service,
			Amount:  services.Money(p.AmountCents),
		})
		switch {
		case err == nil:
			report.PricesCreated++
		case errors.Is(err, services.ErrCatalogConflict):
			report.PricesSkipped++
		default:
			return report, fmt.Errorf("seed price %q: %w", p.Service, err)
		}
	}
	return report, nil
}

func printSeedReport(w io.Writer, r seedReport) {
	fmt.Fprintf(w, "counters: %d written, %d kept\n", r.CountersWritten, r.CountersKept)
	fmt.Fprintf(w, "products: %d created, %d skipped\n", r.ProductsCreated, r.ProductsSkipped)
	fmt.Fprintf(w, "prices:   %d created, %d skipped\n", r.PricesCreated, r.PricesSkipped)
}
