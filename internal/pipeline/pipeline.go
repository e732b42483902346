// Package pipeline drives a keywords file end to end: classify each
// keyword, generate the matching article, render it, and publish it.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"

	"postforge/internal/core"
	"postforge/internal/generate"
	"postforge/internal/logger"
	"postforge/internal/products"
	"postforge/internal/publish"
	"postforge/internal/render"
)

// Publisher is the posting surface the pipeline needs; satisfied by
// publish.Client.
type Publisher interface {
	TestConnection(ctx context.Context) error
	CreatePost(ctx context.Context, post publish.Post) (core.PostResult, error)
	GetCategories(ctx context.Context) []publish.Category
}

// Settings carries publishing and sourcing parameters.
type Settings struct {
	AuthorID    int
	CategoryID  int
	Status      string
	MaxProducts int
}

// Pipeline processes keywords into published posts.
type Pipeline struct {
	generator *generate.Generator
	source    products.Source
	publisher Publisher
	settings  Settings
}

// New assembles a pipeline.
func New(gen *generate.Generator, source products.Source, publisher Publisher, settings Settings) *Pipeline {
	if settings.Status == "" {
		settings.Status = "draft"
	}
	if settings.MaxProducts < 1 {
		settings.MaxProducts = 10
	}
	return &Pipeline{generator: gen, source: source, publisher: publisher, settings: settings}
}

// KeywordResult records the outcome for one keyword.
type KeywordResult struct {
	Keyword string
	Type    core.KeywordType
	Skipped bool
	Post    core.PostResult
	Err     error
}

// ProcessKeyword handles a single keyword. Keywords classified skip
// succeed without producing a post.
func (p *Pipeline) ProcessKeyword(ctx context.Context, keyword string) KeywordResult {
	log := logger.With("pipeline")
	log.Info().Str("keyword", keyword).Msg("processing keyword")

	result := KeywordResult{Keyword: keyword}
	result.Type = p.generator.ClassifyKeyword(ctx, keyword)

	switch result.Type {
	case core.KeywordSkip:
		log.Info().Str("keyword", keyword).Msg("keyword classified skip")
		result.Skipped = true
		return result
	case core.KeywordInfo:
		result.Post, result.Err = p.processInfo(ctx, keyword)
	default:
		result.Post, result.Err = p.processReview(ctx, keyword)
	}

	if result.Err != nil {
		log.Error().Str("keyword", keyword).Err(result.Err).Msg("keyword failed")
	} else {
		log.Info().Str("keyword", keyword).Int("post_id", result.Post.ID).Str("url", result.Post.URL).Msg("post created")
	}
	return result
}

func (p *Pipeline) processReview(ctx context.Context, keyword string) (core.PostResult, error) {
	found, err := p.source.Search(ctx, keyword, p.settings.MaxProducts)
	if err != nil {
		return core.PostResult{}, fmt.Errorf("searching products: %w", err)
	}
	if len(found) == 0 {
		return core.PostResult{}, fmt.Errorf("no products found for %q", keyword)
	}

	kept := p.generator.FilterRelevant(ctx, keyword, found)

	content, err := p.generator.GenerateAll(ctx, keyword, kept)
	if err != nil {
		return core.PostResult{}, err
	}

	body := render.FullPost(keyword, kept, content)
	return p.publisher.CreatePost(ctx, publish.Post{
		Title:      "Comparison: " + titleCase(keyword),
		Content:    body,
		Status:     p.settings.Status,
		Slug:       keyword,
		Author:     p.settings.AuthorID,
		Categories: p.selectCategories(ctx, keyword),
	})
}

func (p *Pipeline) processInfo(ctx context.Context, keyword string) (core.PostResult, error) {
	var content core.ArticleContent
	var err error

	content.Intro, err = p.generator.GenerateIntro(ctx, keyword)
	if err != nil {
		return core.PostResult{}, fmt.Errorf("intro: %w", err)
	}
	content.Takeaways, err = p.generator.GenerateTakeaways(ctx, keyword)
	if err != nil {
		return core.PostResult{}, fmt.Errorf("takeaways: %w", err)
	}
	content.FAQs, err = p.generator.GenerateFAQs(ctx, keyword)
	if err != nil {
		return core.PostResult{}, fmt.Errorf("faqs: %w", err)
	}

	body := render.InfoArticle(content)
	return p.publisher.CreatePost(ctx, publish.Post{
		Title:      titleCase(keyword),
		Content:    body,
		Status:     p.settings.Status,
		Slug:       keyword,
		Author:     p.settings.AuthorID,
		Categories: p.selectCategories(ctx, keyword),
	})
}

// selectCategories resolves the post's category list. A configured category
// always wins; otherwise the model picks from the site's taxonomy, and no
// usable selection leaves the post uncategorized.
func (p *Pipeline) selectCategories(ctx context.Context, keyword string) []int {
	if p.settings.CategoryID > 0 {
		return []int{p.settings.CategoryID}
	}
	categories := p.publisher.GetCategories(ctx)
	if len(categories) == 0 {
		return nil
	}
	names := make([]string, len(categories))
	for i, c := range categories {
		names[i] = c.Name
	}
	if n := p.generator.SelectCategory(ctx, keyword, names); n > 0 {
		return []int{categories[n-1].ID}
	}
	return nil
}

// RunSummary aggregates a keywords-file run.
type RunSummary struct {
	RunID     string
	Results   []KeywordResult
	Succeeded int
	Failed    int
	Skipped   int
	Halted    bool
}

// ProcessKeywordFile processes every keyword in filepath, one per line.
// Successfully handled keywords are removed from the file so an
// interrupted run resumes where it stopped. Two consecutive failures halt
// the run.
func (p *Pipeline) ProcessKeywordFile(ctx context.Context, filepath string) (RunSummary, error) {
	summary := RunSummary{RunID: uuid.NewString()}
	log := logger.With("pipeline")

	keywords, err := readKeywords(filepath)
	if err != nil {
		return summary, err
	}
	if len(keywords) == 0 {
		log.Warn().Str("file", filepath).Msg("no keywords to process")
		return summary, nil
	}

	if err := p.publisher.TestConnection(ctx); err != nil {
		return summary, fmt.Errorf("wordpress connection check: %w", err)
	}

	log.Info().Str("run_id", summary.RunID).Int("keywords", len(keywords)).Msg("run started")

	remaining := append([]string(nil), keywords...)
	consecutiveFailures := 0

	for i, keyword := range keywords {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		log.Info().Int("index", i+1).Int("total", len(keywords)).Msg("progress")

		result := p.ProcessKeyword(ctx, keyword)
		summary.Results = append(summary.Results, result)

		switch {
		case result.Skipped:
			summary.Skipped++
			consecutiveFailures = 0
			remaining = removeKeyword(remaining, keyword)
			writeKeywords(filepath, remaining)
		case result.Err == nil:
			summary.Succeeded++
			consecutiveFailures = 0
			remaining = removeKeyword(remaining, keyword)
			writeKeywords(filepath, remaining)
		default:
			summary.Failed++
			consecutiveFailures++
			if consecutiveFailures >= 2 {
				log.Error().Msg("halting: 2 consecutive failures")
				summary.Halted = true
				return summary, nil
			}
		}
	}

	log.Info().Str("run_id", summary.RunID).
		Int("succeeded", summary.Succeeded).
		Int("failed", summary.Failed).
		Int("skipped", summary.Skipped).
		Msg("run complete")
	return summary, nil
}

func readKeywords(filepath string) ([]string, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("reading keywords file: %w", err)
	}
	var keywords []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		keywords = append(keywords, line)
	}
	return keywords, nil
}

func removeKeyword(keywords []string, keyword string) []string {
	out := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		if kw != keyword {
			out = append(out, kw)
		}
	}
	return out
}

func writeKeywords(filepath string, keywords []string) {
	var b strings.Builder
	for _, kw := range keywords {
		b.WriteString(kw)
		b.WriteByte('\n')
	}
	if err := os.WriteFile(filepath, []byte(b.String()), 0o644); err != nil {
		log := logger.With("pipeline")
		log.Warn().Err(err).Msg("failed to rewrite keywords file")
	}
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r := []rune(w)
		words[i] = strings.ToUpper(string(r[0])) + string(r[1:])
	}
	return strings.Join(words, " ")
}
