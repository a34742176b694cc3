package main

import (
	"context"
	"errors"
	"fmt"
	"reviewlens/internal/app"
	"reviewlens/internal/loader"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

var seedTimeout time.Duration

// seedCmd loads a taxonomy and a review file into MongoDB
var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load a taxonomy and reviews into MongoDB",
	Long: `Replace the factor taxonomy of a category and import its reviews.

The taxonomy comes from --taxonomy (YAML) or --factors/--questions (CSV).
Reviews from --reviews are de-duplicated by normalized text before they
are upserted. A reachable Redis has its cached taxonomy dropped.`,
	RunE: runSeed,
}

func init() {
	seedCmd.Flags().DurationVar(&seedTimeout, "timeout", 2*time.Minute, "Operation timeout")
}

func runSeed(cmd *cobra.Command, _ []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, cancel := context.WithTimeout(cmd.Context(), seedTimeout)
	defer cancel()

	var taxCategory string
	t, err := readTaxonomy(category, taxonomyPath, factorsPath, questionsPath)
	switch {
	case err == nil:
		taxCategory = t.Category
	case errors.Is(err, errNoTaxonomy) && reviewsPath != "" && category != "":
		t = nil
	default:
		return err
	}

	client, err := app.ConnectMongo(ctx, cfg.MongoURI)
	if err != nil {
		return err
	}
	defer client.Disconnect(context.Background())

	var rdb *redis.Client
	if r, err := app.ConnectRedis(ctx, cfg.RedisAddr); err != nil {
		log.Warn("redis unavailable, cached taxonomy is left to expire", "error", err)
	} else {
		rdb = r
		defer rdb.Close()
	}

	a, err := app.New(ctx, cfg, log, client.Database(cfg.MongoDB), rdb)
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	if t != nil {
		if err := a.Taxonomy.Replace(ctx, t); err != nil {
			return err
		}
		fmt.Fprintf(out, "taxonomy %s: %d factors, %d questions\n", t.Category, len(t.Factors), len(t.Questions))
	}

	if reviewsPath != "" {
		target := category
		if target == "" {
			target = taxCategory
		}
		reviews, err := loader.LoadReviewsFile(reviewsPath)
		if err != nil {
			return err
		}
		res, err := a.Corpus.Import(ctx, target, reviews)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "reviews %s: %d read, %d duplicates, %d stored\n", target, res.Total, res.Duplicates, res.Stored)
	}
	return nil
}
