package loader

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"reviewlens/internal/model"
	"reviewlens/internal/scoring"
	"strconv"
	"strings"
)

// ReadReviewsCSV parses a review table with review_id, rating and text
// columns. created_at, product_id and category are optional. A rating that
// does not parse is left unset.
func ReadReviewsCSV(r io.Reader) ([]model.Review, error) {
	rows, err := readTable(r, "review_id", "rating", "text")
	if err != nil {
		return nil, err
	}
	out := make([]model.Review, 0, len(rows))
	for _, row := range rows {
		out = append(out, model.Review{
			ID:        row.get("review_id"),
			Category:  row.get("category"),
			ProductID: row.get("product_id"),
			Rating:    parseRating(row.get("rating")),
			Text:      row.get("text"),
			CreatedAt: row.get("created_at"),
		})
	}
	return out, nil
}

type jsonReview struct {
	ReviewID  json.RawMessage `json:"review_id"`
	Category  string          `json:"category"`
	ProductID string          `json:"product_id"`
	Rating    json.RawMessage `json:"rating"`
	Text      string          `json:"text"`
	CreatedAt string          `json:"created_at"`
}

// ReadReviewsJSON accepts either a bare array of reviews or an object with
// a "reviews" array. Ids and ratings may be numbers or strings.
func ReadReviewsJSON(r io.Reader) ([]model.Review, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}

	var raw []jsonReview
	if data[0] == '{' {
		var doc struct {
			Reviews []jsonReview `json:"reviews"`
		}
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("decode reviews: %w", err)
		}
		raw = doc.Reviews
	} else if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode reviews: %w", err)
	}

	out := make([]model.Review, 0, len(raw))
	for _, jr := range raw {
		out = append(out, model.Review{
			ID:        rawString(jr.ReviewID),
			Category:  jr.Category,
			ProductID: jr.ProductID,
			Rating:    parseRating(rawString(jr.Rating)),
			Text:      jr.Text,
			CreatedAt: jr.CreatedAt,
		})
	}
	return out, nil
}

// LoadReviewsFile picks the reader by file extension
func LoadReviewsFile(path string) ([]model.Review, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var reviews []model.Review
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		reviews, err = ReadReviewsCSV(f)
	case ".json":
		reviews, err = ReadReviewsJSON(f)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return reviews, nil
}

// Dedupe drops reviews whose normalized text was already seen, keeping
// the first occurrence. It returns the kept reviews and how many were
// removed.
func Dedupe(reviews []model.Review) ([]model.Review, int) {
	seen := make(map[string]struct{}, len(reviews))
	out := make([]model.Review, 0, len(reviews))
	for _, r := range reviews {
		h := TextHash(r.Text)
		if _, dup := seen[h]; dup {
			continue
		}
		seen[h] = struct{}{}
		out = append(out, r)
	}
	return out, len(reviews) - len(out)
}

// TextHash is the hex SHA-1 of the normalized review text
func TextHash(text string) string {
	sum := sha1.Sum([]byte(scoring.Normalize(text)))
	return hex.EncodeToString(sum[:])
}

// parseRating reads a star rating, clipped to 1..5 before rounding
func parseRating(s string) *int {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	v := int(math.Round(math.Min(math.Max(f, 1), 5)))
	return &v
}

func rawString(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(string(raw))
}
