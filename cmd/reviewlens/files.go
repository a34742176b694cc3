package main

import (
	"errors"
	"fmt"
	"reviewlens/internal/loader"
	"reviewlens/internal/model"
)

var errNoTaxonomy = errors.New("pass --taxonomy, or --factors with --questions")

// readTaxonomy loads the taxonomy named by the flags. The category flag
// wins over the one in a YAML document.
func readTaxonomy(category, taxonomyPath, factorsPath, questionsPath string) (*model.Taxonomy, error) {
	var (
		t   *model.Taxonomy
		err error
	)
	switch {
	case taxonomyPath != "":
		t, err = loader.LoadTaxonomyFile(taxonomyPath, category)
	case factorsPath != "" && questionsPath != "":
		if category == "" {
			return nil, fmt.Errorf("--category is required with CSV tables")
		}
		t, err = loader.LoadTaxonomyCSV(factorsPath, questionsPath, category)
	default:
		return nil, errNoTaxonomy
	}
	if err != nil {
		return nil, err
	}
	if t.Category == "" {
		return nil, fmt.Errorf("taxonomy has no category, pass --category")
	}
	return t, nil
}

// readReviews loads and de-duplicates a review file. An empty path yields
// no reviews.
func readReviews(path string) ([]model.Review, int, error) {
	if path == "" {
		return nil, 0, nil
	}
	reviews, err := loader.LoadReviewsFile(path)
	if err != nil {
		return nil, 0, err
	}
	kept, removed := loader.Dedupe(reviews)
	return kept, removed, nil
}
