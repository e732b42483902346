// Package generate produces every article section through a
// text-generation backend, validating structured responses and falling
// back to synthesized content where the article can survive without the
// model's answer.
package generate

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"postforge/internal/core"
	"postforge/internal/extract"
	"postforge/internal/logger"
	"postforge/internal/tasks"
)

// TextGenerator is the minimal backend surface the generator needs;
// satisfied by llm.Router and any single backend.
type TextGenerator interface {
	Generate(ctx context.Context, req core.GenerationRequest) (string, error)
}

// Options tunes retry and pacing behavior.
type Options struct {
	MaxAttempts     int
	WaveConcurrency int
	CompletionDelay time.Duration
	ReviewRetryWait time.Duration
	Clean           extract.CleanOptions
	// IntroModel overrides the backend model for intro generation,
	// where instruct-tuned models leak far less planning text.
	IntroModel string
}

// DefaultOptions returns production settings.
func DefaultOptions() Options {
	return Options{
		MaxAttempts:     3,
		WaveConcurrency: 2,
		CompletionDelay: time.Second,
		ReviewRetryWait: time.Second,
		Clean:           extract.DefaultCleanOptions(),
		IntroModel:      "qwen-3-235b-a22b-instruct-2507",
	}
}

// Generator builds article content for one keyword at a time.
type Generator struct {
	client TextGenerator
	opts   Options
	sched  tasks.Scheduler
}

// New creates a Generator over the given backend.
func New(client TextGenerator, opts Options) *Generator {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	if opts.WaveConcurrency < 1 {
		opts.WaveConcurrency = 1
	}
	return &Generator{
		client: client,
		opts:   opts,
		sched: tasks.Scheduler{
			Invoker:         tasks.Invoker{MaxAttempts: opts.MaxAttempts},
			CompletionDelay: opts.CompletionDelay,
		},
	}
}

// GenerateIntro produces the cleaned, keyword-bolded intro paragraph.
func (g *Generator) GenerateIntro(ctx context.Context, keyword string) (string, error) {
	raw, err := g.client.Generate(ctx, core.GenerationRequest{
		Prompt:      introPrompt(keyword),
		MaxTokens:   512,
		Temperature: 0.2,
		Stream:      true,
		ModelHint:   g.opts.IntroModel,
	})
	if err != nil {
		return "", err
	}

	intro := extract.CleanParagraph(raw, g.opts.Clean)

	// Cleaning can strip too much; rebuild from the trailing sentences
	// that do not read like meta commentary.
	if len(strings.Fields(intro)) < g.opts.Clean.MinWords {
		intro = lastCleanSentences(raw, g.opts.Clean.MinWords)
	}
	if strings.TrimSpace(intro) == "" {
		return "", &ValidationError{Task: "intro", Reason: "no usable paragraph in response"}
	}
	return extract.BoldKeyword(strings.TrimSpace(intro), keyword), nil
}

var metaWords = []string{"word", "paragraph", "intro", "write", "must", "output"}

func lastCleanSentences(raw string, minWords int) string {
	sentences := splitRawSentences(raw)
	var kept []string
	for i := len(sentences) - 1; i >= 0; i-- {
		sent := sentences[i]
		if len(sent) <= 20 || containsAny(strings.ToLower(sent), metaWords) {
			continue
		}
		kept = append([]string{sent}, kept...)
		if len(strings.Fields(strings.Join(kept, " "))) >= minWords {
			break
		}
	}
	return strings.Join(kept, " ")
}

func splitRawSentences(text string) []string {
	var out []string
	var cur strings.Builder
	runes := []rune(text)
	for i, r := range runes {
		cur.WriteRune(r)
		if (r == '.' || r == '!' || r == '?') && (i+1 >= len(runes) || runes[i+1] == ' ' || runes[i+1] == '\n') {
			if s := strings.TrimSpace(cur.String()); s != "" {
				out = append(out, s)
			}
			cur.Reset()
		}
	}
	if s := strings.TrimSpace(cur.String()); s != "" {
		out = append(out, s)
	}
	return out
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

type badgesPayload struct {
	TopRecommendation *struct {
		ASIN string `json:"asin"`
	} `json:"top_recommendation"`
	Badges []struct {
		ASIN  string `json:"asin"`
		Badge string `json:"badge"`
	} `json:"badges"`
}

// GenerateBadges assigns a badge to every product and picks the top
// recommendation.
func (g *Generator) GenerateBadges(ctx context.Context, keyword string, products []core.Product) (core.BadgeSet, error) {
	raw, err := g.client.Generate(ctx, core.GenerationRequest{
		Prompt:      badgesPrompt(keyword, products),
		MaxTokens:   2048,
		Temperature: 0.5,
	})
	if err != nil {
		return core.BadgeSet{}, err
	}

	text := extract.JSONText(raw)
	var payload badgesPayload
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		return core.BadgeSet{}, &ParseError{Task: "badges", Text: text, Err: err}
	}
	if payload.TopRecommendation == nil || payload.Badges == nil {
		return core.BadgeSet{}, &ValidationError{Task: "badges", Reason: "missing top_recommendation or badges"}
	}

	set := core.BadgeSet{TopPick: payload.TopRecommendation.ASIN, Badges: make(map[string]string, len(payload.Badges))}
	for _, b := range payload.Badges {
		set.Badges[b.ASIN] = b.Badge
	}
	return set, nil
}

// GenerateBuyingGuide produces the buying-guide section. A response that is
// a bare sections array gets a synthesized title wrapper.
func (g *Generator) GenerateBuyingGuide(ctx context.Context, keyword string, products []core.Product) (core.BuyingGuide, error) {
	raw, err := g.client.Generate(ctx, core.GenerationRequest{
		Prompt:      guidePrompt(keyword, products),
		MaxTokens:   2048,
		Temperature: 0.5,
	})
	if err != nil {
		return core.BuyingGuide{}, err
	}

	text := extract.JSONText(raw)

	var guide core.BuyingGuide
	if err := json.Unmarshal([]byte(text), &guide); err == nil && guide.Title != "" && len(guide.Sections) > 0 {
		return guide, nil
	}

	var sections []core.GuideSection
	if err := json.Unmarshal([]byte(text), &sections); err == nil && len(sections) > 0 && sections[0].Heading != "" {
		return core.BuyingGuide{
			Title:    "Buying Guide: " + titleCase(keyword),
			Sections: sections,
		}, nil
	}

	return core.BuyingGuide{}, &ValidationError{Task: "guide", Reason: "unrecognized buying guide schema"}
}

// GenerateFAQs produces the FAQ list.
func (g *Generator) GenerateFAQs(ctx context.Context, keyword string) ([]core.FAQ, error) {
	raw, err := g.client.Generate(ctx, core.GenerationRequest{
		Prompt:      faqsPrompt(keyword),
		MaxTokens:   2048,
		Temperature: 0.5,
	})
	if err != nil {
		return nil, err
	}

	text := extract.JSONText(raw)
	var faqs []core.FAQ
	if err := json.Unmarshal([]byte(text), &faqs); err != nil {
		return nil, &ParseError{Task: "faqs", Text: text, Err: err}
	}
	if len(faqs) == 0 {
		return nil, &ValidationError{Task: "faqs", Reason: "empty FAQ list"}
	}
	if faqs[0].Question == "" || faqs[0].Answer == "" {
		return nil, &ValidationError{Task: "faqs", Reason: "first FAQ missing question or answer"}
	}
	return faqs, nil
}

// reviewPayload uses pointers so missing fields are distinguishable from
// empty ones during validation.
type reviewPayload struct {
	Description *string   `json:"description"`
	Pros        *[]string `json:"pros"`
	Cons        *[]string `json:"cons"`
}

// GenerateReviewBatch produces reviews for up to a handful of products in
// one call, keyed by ASIN.
func (g *Generator) GenerateReviewBatch(ctx context.Context, keyword string, products []core.Product) (map[string]core.Review, error) {
	if len(products) == 0 {
		return map[string]core.Review{}, nil
	}

	raw, err := g.client.Generate(ctx, core.GenerationRequest{
		Prompt:      reviewsPrompt(keyword, products),
		MaxTokens:   2048,
		Temperature: 0.6,
	})
	if err != nil {
		return nil, err
	}

	text := extract.JSONText(raw)
	var payload map[string]reviewPayload
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		return nil, &ParseError{Task: "reviews", Text: text, Err: err}
	}

	reviews := make(map[string]core.Review, len(payload))
	for asin, r := range payload {
		if r.Description == nil || r.Pros == nil || r.Cons == nil {
			return nil, &ValidationError{Task: "reviews", Reason: fmt.Sprintf("missing required fields for %s", asin)}
		}
		reviews[asin] = core.Review{Description: *r.Description, Pros: *r.Pros, Cons: *r.Cons}
	}
	return reviews, nil
}

// GenerateTakeaways produces the bullet takeaways for an info article.
func (g *Generator) GenerateTakeaways(ctx context.Context, keyword string) ([]string, error) {
	raw, err := g.client.Generate(ctx, core.GenerationRequest{
		Prompt:      takeawaysPrompt(keyword),
		MaxTokens:   1024,
		Temperature: 0.5,
	})
	if err != nil {
		return nil, err
	}

	text := extract.JSONText(raw)
	var takeaways []string
	if err := json.Unmarshal([]byte(text), &takeaways); err != nil {
		return nil, &ParseError{Task: "takeaways", Text: text, Err: err}
	}
	if len(takeaways) == 0 {
		return nil, &ValidationError{Task: "takeaways", Reason: "empty takeaways list"}
	}
	return takeaways, nil
}

// ClassifyKeyword decides what kind of article a keyword deserves. Any
// failure or unrecognized answer classifies as skip; one bad keyword must
// not halt a run.
func (g *Generator) ClassifyKeyword(ctx context.Context, keyword string) core.KeywordType {
	raw, err := g.client.Generate(ctx, core.GenerationRequest{
		SystemPrompt: "You are a classifier. Output ONLY the number 1, 2, or 3. No explanation, no reasoning, just the number.",
		Prompt:       classifyPrompt(keyword),
		MaxTokens:    16,
		Temperature:  0,
	})
	if err != nil {
		log := logger.With("generate")
		log.Warn().Str("keyword", keyword).Err(err).Msg("classification failed, skipping")
		return core.KeywordSkip
	}

	switch intRe.FindString(raw) {
	case "1":
		return core.KeywordReview
	case "2":
		return core.KeywordInfo
	default:
		return core.KeywordSkip
	}
}

var intRe = regexp.MustCompile(`\d+`)

// SelectCategory asks the model to pick a category and returns its
// 1-based number. The reply is scanned for integers and the first one
// inside the category range wins; verbose answers often mention other
// numbers first. Zero means no usable selection.
func (g *Generator) SelectCategory(ctx context.Context, keyword string, categories []string) int {
	if len(categories) == 0 {
		return 0
	}
	raw, err := g.client.Generate(ctx, core.GenerationRequest{
		Prompt:      categoryPrompt(keyword, categories),
		MaxTokens:   16,
		Temperature: 0,
	})
	if err != nil {
		return 0
	}
	for _, match := range intRe.FindAllString(raw, -1) {
		n, err := strconv.Atoi(match)
		if err == nil && n >= 1 && n <= len(categories) {
			return n
		}
	}
	return 0
}

// FilterRelevant drops products the model flags as off-topic for the
// keyword. On any failure the full list is kept; filtering is an
// improvement, not a gate.
func (g *Generator) FilterRelevant(ctx context.Context, keyword string, products []core.Product) []core.Product {
	if len(products) == 0 {
		return products
	}
	raw, err := g.client.Generate(ctx, core.GenerationRequest{
		Prompt:      relevancePrompt(keyword, products),
		MaxTokens:   128,
		Temperature: 0,
	})
	if err != nil {
		log := logger.With("generate")
		log.Warn().Err(err).Msg("relevance filter failed, keeping all products")
		return products
	}

	text := extract.JSONText(raw)
	var indices []int
	if err := json.Unmarshal([]byte(text), &indices); err != nil {
		return products
	}

	var kept []core.Product
	for _, idx := range indices {
		if idx >= 1 && idx <= len(products) {
			kept = append(kept, products[idx-1])
		}
	}
	if len(kept) == 0 {
		return products
	}
	return kept
}

// GenerateAll runs the full comparison-article catalogue in three waves:
// intro+badges, guide+faqs, then review batches of 3/3/rest. Review
// batches synthesize fallback reviews after the retry budget; every other
// task failing fails the keyword.
func (g *Generator) GenerateAll(ctx context.Context, keyword string, products []core.Product) (core.ArticleContent, error) {
	log := logger.With("generate")
	var content core.ArticleContent

	log.Info().Str("keyword", keyword).Msg("wave 1: intro + badges")
	wave1, err := g.sched.RunBatch(ctx, []tasks.Task{
		{Name: "intro", Op: func(ctx context.Context) (any, error) {
			return g.GenerateIntro(ctx, keyword)
		}},
		{Name: "badges", Op: func(ctx context.Context) (any, error) {
			return g.GenerateBadges(ctx, keyword, products)
		}},
	}, g.opts.WaveConcurrency)
	if err != nil {
		return content, fmt.Errorf("wave 1: %w", err)
	}
	content.Intro = wave1["intro"].Value.(string)
	content.Badges = wave1["badges"].Value.(core.BadgeSet)

	log.Info().Str("keyword", keyword).Msg("wave 2: guide + faqs")
	wave2, err := g.sched.RunBatch(ctx, []tasks.Task{
		{Name: "guide", Op: func(ctx context.Context) (any, error) {
			return g.GenerateBuyingGuide(ctx, keyword, products)
		}},
		{Name: "faqs", Op: func(ctx context.Context) (any, error) {
			return g.GenerateFAQs(ctx, keyword)
		}},
	}, g.opts.WaveConcurrency)
	if err != nil {
		return content, fmt.Errorf("wave 2: %w", err)
	}
	content.Guide = wave2["guide"].Value.(core.BuyingGuide)
	content.FAQs = wave2["faqs"].Value.([]core.FAQ)

	log.Info().Str("keyword", keyword).Int("products", len(products)).Msg("wave 3: review batches")
	content.Reviews = make(map[string]core.Review, len(products))

	batches := splitBatches(products)
	reviewTask := func(name string, batch []core.Product) tasks.Task {
		return tasks.Task{
			Name: name,
			Op: func(ctx context.Context) (any, error) {
				return g.GenerateReviewBatch(ctx, keyword, batch)
			},
			Fallback: func() any {
				return FallbackReviews(keyword, batch)
			},
			RetryDelay: g.opts.ReviewRetryWait,
		}
	}

	// First two batches in parallel, the last alone, mirroring the
	// upstream service's tolerated load.
	if len(batches) > 0 {
		head := []tasks.Task{reviewTask("reviews-1", batches[0])}
		if len(batches) > 1 {
			head = append(head, reviewTask("reviews-2", batches[1]))
		}
		results, err := g.sched.RunBatch(ctx, head, g.opts.WaveConcurrency)
		if err != nil {
			return content, fmt.Errorf("wave 3a: %w", err)
		}
		mergeReviews(content.Reviews, results)
	}
	if len(batches) > 2 {
		results, err := g.sched.RunBatch(ctx, []tasks.Task{reviewTask("reviews-3", batches[2])}, 1)
		if err != nil {
			return content, fmt.Errorf("wave 3b: %w", err)
		}
		mergeReviews(content.Reviews, results)
	}

	log.Info().Str("keyword", keyword).Int("reviews", len(content.Reviews)).Msg("content generation complete")
	return content, nil
}

func splitBatches(products []core.Product) [][]core.Product {
	var batches [][]core.Product
	if len(products) > 0 {
		batches = append(batches, products[0:min(3, len(products))])
	}
	if len(products) > 3 {
		batches = append(batches, products[3:min(6, len(products))])
	}
	if len(products) > 6 {
		batches = append(batches, products[6:])
	}
	return batches
}

func mergeReviews(dst map[string]core.Review, results map[string]tasks.Result) {
	for _, res := range results {
		for asin, review := range res.Value.(map[string]core.Review) {
			dst[asin] = review
		}
	}
}
