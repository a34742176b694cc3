package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"reviewlens/internal/dialogue"
	"reviewlens/internal/model"
	"reviewlens/internal/service"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	productName  string
	autoConverge bool
	printJSON    bool
)

// chatCmd runs a dialogue in the terminal against local files
var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Run a dialogue in the terminal against local files",
	Long: `Start a regret-factor dialogue without MongoDB or Redis.

Type a message per line. Commands:
  /pick <factor> <message> - answer and ask about a specific factor next
  /related <factor> [n]    - show reviews mentioning a factor
  /done                    - finalize and print the analysis
  /quit                    - leave without finalizing`,
	RunE: runChatCmd,
}

func init() {
	chatCmd.Flags().StringVar(&productName, "product", "", "Product name used in the summary")
	chatCmd.Flags().BoolVar(&autoConverge, "auto", false, "Finalize on its own once the top factors are stable")
	chatCmd.Flags().BoolVar(&printJSON, "json", false, "Print the final analysis as JSON")
}

func runChatCmd(cmd *cobra.Command, _ []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	defer log.Sync()

	t, err := readTaxonomy(category, taxonomyPath, factorsPath, questionsPath)
	if err != nil {
		return err
	}
	reviews, removed, err := readReviews(reviewsPath)
	if err != nil {
		return err
	}
	if removed > 0 {
		log.Info("dropped duplicate reviews", "removed", removed)
	}

	policy := cfg.DialoguePolicy()
	if autoConverge {
		policy.Convergence = dialogue.ConvergeAuto
	}
	sessCfg := dialogue.Config{
		ID:          uuid.New().String(),
		Category:    t.Category,
		ProductName: productName,
		Factors:     t.Factors,
		Questions:   t.Questions,
		Reviews:     reviews,
		Policy:      policy,
		Evidence:    cfg.Evidence,
		Logger:      log,
	}

	ctx := cmd.Context()
	summary, err := service.NewSummaryService(ctx, cfg.AI, log)
	if err != nil {
		return err
	}
	if summary.IsEnabled() {
		sessCfg.Summarizer = summary
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s: %d factors, %d questions, %d reviews\n",
		model.CategoryLabel(t.Category), len(t.Factors), len(t.Questions), len(reviews))
	return chatLoop(ctx, dialogue.New(sessCfg), cmd.InOrStdin(), out, printJSON)
}

// chatLoop reads user lines until the session is finalized, /quit or EOF
func chatLoop(ctx context.Context, sess *dialogue.Session, in io.Reader, out io.Writer, asJSON bool) error {
	fmt.Fprintln(out, "What worries you about buying it?")
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var (
			turn *model.BotTurn
			err  error
		)
		switch {
		case line == "/quit":
			return nil
		case line == "/done":
			turn = sess.Finalize(ctx)
		case strings.HasPrefix(line, "/related "):
			printRelated(sess, strings.Fields(line)[1:], out)
			continue
		case strings.HasPrefix(line, "/pick "):
			fields := strings.SplitN(strings.TrimPrefix(line, "/pick "), " ", 2)
			if len(fields) < 2 {
				fmt.Fprintln(out, "usage: /pick <factor> <message>")
				continue
			}
			turn, err = sess.Step(ctx, fields[1], fields[0])
		default:
			turn, err = sess.Step(ctx, line, "")
		}
		if err != nil {
			return err
		}

		if turn.IsFinal {
			return printAnalysis(turn.Analysis, out, asJSON)
		}
		printTurn(turn, out)
	}
}

func printTurn(turn *model.BotTurn, out io.Writer) {
	keys := make([]string, len(turn.TopFactors))
	for i, f := range turn.TopFactors {
		keys[i] = fmt.Sprintf("%s=%.2f", f.FactorKey, f.Score)
	}
	fmt.Fprintf(out, "[turn %d, top %s]\n", turn.TurnCount, strings.Join(keys, " "))
	if turn.QuestionText != nil {
		fmt.Fprintln(out, *turn.QuestionText)
	}
	if len(turn.Choices) > 0 {
		fmt.Fprintf(out, "  (%s)\n", strings.Join(turn.Choices, " / "))
	}
	if turn.AnalysisReady {
		fmt.Fprintln(out, "  analysis ready, type /done to finish")
	}
}

func printRelated(sess *dialogue.Session, args []string, out io.Writer) {
	if len(args) == 0 {
		fmt.Fprintln(out, "usage: /related <factor> [n]")
		return
	}
	limit := 3
	if len(args) > 1 {
		if n, err := strconv.Atoi(args[1]); err == nil && n > 0 {
			limit = n
		}
	}
	related, ok := sess.Related(args[0], limit)
	if !ok {
		fmt.Fprintf(out, "unknown factor %q\n", args[0])
		return
	}
	fmt.Fprintf(out, "%s: %d reviews\n", related.DisplayName, related.Count)
	for _, r := range related.Reviews {
		fmt.Fprintf(out, "  [%s, %d stars] %s\n", r.ReviewID, r.Rating, strings.Join(r.Sentences, " "))
	}
}

func printAnalysis(a *model.Analysis, out io.Writer, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(a)
	}
	fmt.Fprintln(out, "Top regret factors:")
	for i, f := range a.TopFactors {
		fmt.Fprintf(out, "  %d. %s (%.2f)\n", i+1, f.DisplayName, f.Score)
	}
	if len(a.Evidence) > 0 {
		fmt.Fprintln(out, "Evidence:")
		for _, e := range a.Evidence {
			fmt.Fprintf(out, "  [%s, %d stars, %s] %s\n", e.FactorKey, e.Rating, e.Label, e.Excerpt)
		}
	}
	fmt.Fprintln(out, a.Summary)
	return nil
}
