package generate

import (
	"encoding/json"
	"fmt"
	"strings"

	"postforge/internal/core"
)

// compactProduct is the trimmed product view embedded in prompts. Titles
// are clipped and feature lists capped to keep prompts inside the model's
// comfortable context.
type compactProduct struct {
	ASIN     string   `json:"asin"`
	Title    string   `json:"title"`
	Price    string   `json:"price"`
	Brand    string   `json:"brand,omitempty"`
	Features []string `json:"features"`
}

func compact(products []core.Product, titleLimit int) []compactProduct {
	out := make([]compactProduct, 0, len(products))
	for _, p := range products {
		features := p.Features
		if len(features) > 5 {
			features = features[:5]
		}
		if features == nil {
			features = []string{}
		}
		out = append(out, compactProduct{
			ASIN:     p.ASIN,
			Title:    clipTitle(p.Title, titleLimit),
			Price:    p.Price,
			Brand:    p.Brand,
			Features: features,
		})
	}
	return out
}

func clipTitle(title string, limit int) string {
	runes := []rune(title)
	if len(runes) <= limit {
		return title
	}
	return string(runes[:limit-3]) + "…"
}

func asins(products []core.Product) []string {
	out := make([]string, 0, len(products))
	for _, p := range products {
		out = append(out, p.ASIN)
	}
	return out
}

func introPrompt(keyword string) string {
	return fmt.Sprintf(
		`Write a 80-word engaging introduction for a comparison article about "%s". `+
			"Be conversational and trustworthy."+
			"Output ONLY the final paragraph—no explanations, no thinking, no notes.",
		keyword)
}

func badgesPrompt(keyword string, products []core.Product) string {
	cp := compact(products, 80)
	compactJSON, _ := json.Marshal(cp)
	return fmt.Sprintf(
		"IMPORTANT: Output ONLY the JSON, no explanations.\n\n"+
			"Create badges for ALL %d products + select 1 top recommendation.\n\n"+
			"REQUIREMENTS:\n"+
			"1. MUST create a badge for EVERY product\n"+
			"2. Each badge: 2-3 words reflecting unique strength\n"+
			"3. Pick ONE product as top_recommendation\n\n"+
			"JSON FORMAT:\n"+
			`{"top_recommendation": {"asin": "B0XXX"}, "badges": [`+
			`{"asin": "B0XXX", "badge": "Best overall"}, ...]}`+"\n\n"+
			"ALL ASINs REQUIRED: %s\n\n"+
			"Context: %s\n"+
			"Products: %s",
		len(cp), strings.Join(asins(products), ", "), keyword, compactJSON)
}

func guidePrompt(keyword string, products []core.Product) string {
	return "Create a buying guide for product comparison.\n" +
		"IMPORTANT: Return ONLY this exact JSON format (no markdown, no extra text):\n\n" +
		`{"title": "Buying Guide: ` + titleCase(keyword) + `", ` +
		`"sections": [{"heading": "Capacity & Size", "bullets": ["Consider your family size", "Check counter space"]}, ` +
		`{"heading": "Performance", "bullets": ["Look for higher wattage", "Check temperature range"]}]}` + "\n\n" +
		"Create 4-6 sections with 3-5 bullets each. No emojis, no prices.\n" +
		"Context: " + keyword
}

func faqsPrompt(keyword string) string {
	return "Create 5-10 detailed FAQs for shoppers comparing products.\n" +
		"IMPORTANT: Return ONLY a JSON array (no markdown, no extra text):\n\n" +
		`[{"question": "What should I look for?", "answer": "Consider capacity, features..."}, ` +
		`{"question": "How do they compare?", "answer": "Main differences are..."}]` + "\n\n" +
		"Each answer should be 2-4 sentences. Cover buying tips, comparisons, features, value.\n" +
		"Context: " + keyword
}

func reviewsPrompt(keyword string, products []core.Product) string {
	var info strings.Builder
	for i, p := range products {
		features := p.Features
		if len(features) > 5 {
			features = features[:5]
		}
		var lines []string
		for _, f := range features {
			lines = append(lines, "- "+f)
		}
		fmt.Fprintf(&info, "Product %d (ASIN: %s):\n  Title: %s\n  Brand: %s\n  Price: %s\n  Features:\n  %s\n\n",
			i+1, p.ASIN, clipTitle(p.Title, 100), orNA(p.Brand), orNA(p.Price), strings.Join(lines, "\n  "))
	}

	example := "{\n" +
		`  "B08XYZ123": {"description": "A 100-word description...", "pros": ["Great capacity", "Easy to use", "Durable build"], "cons": ["Pricey", "Heavy"]}`
	if len(products) > 1 {
		example += ",\n" +
			`  "B09ABC456": {"description": "Another 100-word description...", "pros": ["Compact design", "Fast performance"], "cons": ["Limited features"]}`
	}
	example += "\n}"

	return fmt.Sprintf(
		"Create product reviews for %d products with descriptions and pros/cons.\n"+
			"IMPORTANT: Return ONLY valid JSON (no markdown, no extra text):\n\n%s\n\n"+
			"Requirements for EACH product:\n"+
			"- Description: Exactly 80-120 words, natural and engaging\n"+
			"- Pros: 3-5 reasons to buy (short phrases, 3-6 words each)\n"+
			"- Cons: 2-3 reasons not to buy (short phrases, 3-6 words each)\n"+
			"- Be specific and helpful for buyers\n"+
			"- Use the exact ASIN as the key\n\n"+
			"Context: %s\n\n"+
			"Products:\n%s",
		len(products), example, keyword, info.String())
}

func classifyPrompt(keyword string) string {
	return fmt.Sprintf(
		"Classify this keyword: '%s'\n"+
			"Return ONLY 1, 2, or 3:\n"+
			"1 = REVIEW (buying intent: 'best laptop', 'garden dining set', 'samsung vs lg')\n"+
			"2 = INFO (learning intent: 'how to', 'what is', 'recipe', 'guide')\n"+
			"3 = SKIP (sensitive/wrong geo/nonsense)\n\n"+
			"Output only the number: 1, 2, or 3", keyword)
}

func categoryPrompt(keyword string, categories []string) string {
	var list strings.Builder
	for i, c := range categories {
		fmt.Fprintf(&list, "%d. %s\n", i+1, c)
	}
	return fmt.Sprintf(
		"Pick the best matching category for this keyword.\n"+
			"Answer with ONLY the category number, nothing else.\n\n"+
			"Keyword: %s\n\nCategories:\n%s", keyword, list.String())
}

func relevancePrompt(keyword string, products []core.Product) string {
	var list strings.Builder
	for i, p := range products {
		fmt.Fprintf(&list, "%d. %s\n", i+1, clipTitle(p.Title, 100))
	}
	return fmt.Sprintf(
		"Which of these products are relevant to the keyword \"%s\"?\n"+
			"Return ONLY a JSON array of the relevant product numbers, e.g. [1, 2, 5].\n\n"+
			"Products:\n%s", keyword, list.String())
}

func takeawaysPrompt(keyword string) string {
	return fmt.Sprintf(
		"Write 4-6 key takeaways for an informational article about \"%s\".\n"+
			"Return ONLY a JSON array of short strings (no markdown, no extra text):\n\n"+
			`["Takeaway one...", "Takeaway two..."]`, keyword)
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

// titleCase capitalizes the first letter of every space-separated word.
func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r := []rune(w)
		words[i] = strings.ToUpper(string(r[0])) + string(r[1:])
	}
	return strings.Join(words, " ")
}
