package loader

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reviewlens/internal/model"
	"reviewlens/internal/scoring"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

var ErrUnsupportedFormat = errors.New("unsupported file format")

// ReadTaxonomyYAML decodes a taxonomy document and cleans it the same way
// the CSV readers do.
func ReadTaxonomyYAML(r io.Reader) (*model.Taxonomy, error) {
	var t model.Taxonomy
	if err := yaml.NewDecoder(r).Decode(&t); err != nil {
		if errors.Is(err, io.EOF) {
			return &t, nil
		}
		return nil, fmt.Errorf("decode taxonomy: %w", err)
	}

	Clean(&t)
	return &t, nil
}

// Clean drops factors and questions without ids or text, normalizes term
// lists and fills in the document category where rows have none.
func Clean(t *model.Taxonomy) {
	factors := t.Factors[:0]
	for _, f := range t.Factors {
		if f.ID <= 0 || strings.TrimSpace(f.Key) == "" {
			continue
		}
		f.Key = strings.TrimSpace(f.Key)
		f.AnchorTerms = scoring.NormalizeTerms(f.AnchorTerms)
		f.ContextTerms = scoring.NormalizeTerms(f.ContextTerms)
		f.NegationTerms = scoring.NormalizeTerms(f.NegationTerms)
		if f.Category == "" {
			f.Category = t.Category
		}
		factors = append(factors, f)
	}
	t.Factors = factors

	questions := t.Questions[:0]
	for _, q := range t.Questions {
		if q.ID <= 0 || q.FactorID <= 0 || strings.TrimSpace(q.Text) == "" {
			continue
		}
		q.AnswerType = model.ParseAnswerType(string(q.AnswerType))
		if q.AnswerType == model.AnswerNoChoice {
			q.Choices = nil
		}
		if q.Category == "" {
			q.Category = t.Category
		}
		questions = append(questions, q)
	}
	t.Questions = questions
}

// LoadTaxonomyFile reads a YAML taxonomy from disk. category overrides the
// document's own category when set.
func LoadTaxonomyFile(path, category string) (*model.Taxonomy, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	t, err := ReadTaxonomyYAML(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if category != "" {
		t.Category = category
	}
	return t, nil
}

// LoadTaxonomyCSV reads the factor and question tables of one category
func LoadTaxonomyCSV(factorsPath, questionsPath, category string) (*model.Taxonomy, error) {
	ff, err := os.Open(factorsPath)
	if err != nil {
		return nil, err
	}
	defer ff.Close()
	factors, err := ReadFactorsCSV(ff, category)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", factorsPath, err)
	}

	qf, err := os.Open(questionsPath)
	if err != nil {
		return nil, err
	}
	defer qf.Close()
	questions, err := ReadQuestionsCSV(qf, category)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", questionsPath, err)
	}

	return &model.Taxonomy{Category: category, Factors: factors, Questions: questions}, nil
}

// ReadFactorsCSV parses a factor table. Rows without a positive factor_id
// or a key are skipped. Term lists may use "|", "," or ";" as delimiter.
// When category is set, only rows of that category (or with none) are kept.
func ReadFactorsCSV(r io.Reader, category string) ([]model.Factor, error) {
	rows, err := readTable(r, "factor_id")
	if err != nil {
		return nil, err
	}

	var out []model.Factor
	for _, row := range rows {
		id := atoi(row.get("factor_id"))
		key := row.get("factor_key")
		if key == "" {
			key = row.get("key")
		}
		if id <= 0 || key == "" {
			continue
		}
		cat := row.get("category")
		if category != "" {
			if cat != "" && cat != category {
				continue
			}
			cat = category
		}
		display := row.get("display_name")
		if display == "" {
			display = key
		}
		out = append(out, model.Factor{
			ID:            id,
			Key:           key,
			Category:      cat,
			DisplayName:   display,
			AnchorTerms:   scoring.SplitTerms(row.get("anchor_terms")),
			ContextTerms:  scoring.SplitTerms(row.get("context_terms")),
			NegationTerms: scoring.SplitTerms(row.get("negation_terms")),
			Weight:        atof(row.get("weight"), 1.0),
		})
	}
	return out, nil
}

// ReadQuestionsCSV parses a question table. Rows need a question_id,
// a factor_id and question text.
func ReadQuestionsCSV(r io.Reader, category string) ([]model.Question, error) {
	rows, err := readTable(r, "question_id")
	if err != nil {
		return nil, err
	}

	var out []model.Question
	for _, row := range rows {
		id := atoi(row.get("question_id"))
		factorID := atoi(row.get("factor_id"))
		text := row.get("question_text")
		if id <= 0 || factorID <= 0 || text == "" {
			continue
		}
		at := model.ParseAnswerType(row.get("answer_type"))
		out = append(out, model.Question{
			ID:             id,
			FactorID:       factorID,
			FactorKey:      row.get("factor_key"),
			Category:       category,
			Text:           text,
			AnswerType:     at,
			Choices:        model.ParseChoices(at, row.get("choices")),
			NextFactorHint: row.get("next_factor_hint"),
		})
	}
	return out, nil
}

// tableRow is one CSV record addressed by header name
type tableRow struct {
	header map[string]int
	record []string
}

func (r tableRow) get(col string) string {
	i, ok := r.header[col]
	if !ok || i >= len(r.record) {
		return ""
	}
	return strings.TrimSpace(r.record[i])
}

func readTable(r io.Reader, required ...string) ([]tableRow, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	head, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	header := make(map[string]int, len(head))
	for i, h := range head {
		h = strings.TrimPrefix(h, "\ufeff")
		header[strings.ToLower(strings.TrimSpace(h))] = i
	}
	var missing []string
	for _, col := range required {
		if _, ok := header[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing columns: %s", strings.Join(missing, ", "))
	}

	var rows []tableRow
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, tableRow{header: header, record: rec})
	}
	return rows, nil
}

func atoi(s string) int {
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	// "3.0" from spreadsheet exports
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return int(f)
	}
	return 0
}

func atof(s string, def float64) float64 {
	if s == "" {
		return def
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return def
	}
	return f
}
