// Package render assembles the HTML body of a post from generated
// sections. The markup mirrors the theme plugin's expected structure, so
// class names are fixed.
package render

import (
	"fmt"
	"html"
	"regexp"
	"strings"

	"postforge/internal/core"
)

var boldRe = regexp.MustCompile(`\*\*(.+?)\*\*`)

// markdownBold converts **text** spans to <strong>, escaping everything
// else.
func markdownBold(text string) string {
	escaped := html.EscapeString(text)
	return boldRe.ReplaceAllString(escaped, "<strong>$1</strong>")
}

// titleBeforeComma shortens a listing title to the part before its first
// comma.
func titleBeforeComma(title string) string {
	if i := strings.IndexByte(title, ','); i >= 0 {
		return strings.TrimSpace(title[:i])
	}
	return title
}

// Intro renders the introduction paragraph.
func Intro(text string) string {
	return "<p>" + markdownBold(text) + "</p>\n"
}

// EditorsChoice renders the editor's-choice box and the best-for list.
func EditorsChoice(products []core.Product, badges core.BadgeSet) string {
	var b strings.Builder
	b.WriteString("<div class=\"acap-picks\">\n")

	var top *core.Product
	for i := range products {
		if products[i].ASIN == badges.TopPick {
			top = &products[i]
			break
		}
	}

	if top != nil {
		topTitle := html.EscapeString(titleBeforeComma(top.Title))
		b.WriteString("  <div class=\"acap-bestfor-box acap-bestfor-box--ec\">\n")
		b.WriteString("    <div class=\"acap-bestfor-title\"><span class=\"acap-label acap-label--red\">Editor's Choice</span></div>\n")
		b.WriteString("    <div class=\"acap-ec\">\n")
		if top.ImageURL != "" {
			fmt.Fprintf(&b, "      <a class=\"acap-ec-thumb\" href=%q target=\"_blank\" rel=\"nofollow sponsored noopener\">\n", top.URL)
			fmt.Fprintf(&b, "        <img src=%q alt=%q width=\"240\" height=\"240\" loading=\"lazy\" />\n", top.ImageURL, topTitle)
			b.WriteString("      </a>\n")
		}
		fmt.Fprintf(&b, "      <a class=\"acap-ec-title\" href=%q target=\"_blank\" rel=\"nofollow sponsored noopener\">%s</a>\n", top.URL, topTitle)
		if badge := badges.Badges[top.ASIN]; badge != "" {
			fmt.Fprintf(&b, "      <span class=\"acap-badge-inline\">%s</span>\n", html.EscapeString(badge))
		}
		b.WriteString("    </div>\n  </div>\n")
	}

	b.WriteString("  <div class=\"acap-bestfor-box\">\n")
	b.WriteString("    <div class=\"acap-bestfor-title\">Best for a specific purpose</div>\n")
	b.WriteString("    <ul class=\"acap-list\">\n")
	for _, p := range products {
		badge := badges.Badges[p.ASIN]
		if badge == "" {
			continue
		}
		fmt.Fprintf(&b, "      <li><strong>Best for %s:</strong> <a href=%q target=\"_blank\" rel=\"nofollow sponsored noopener\" class=\"acap-bestfor-link\">%s</a></li>\n",
			html.EscapeString(strings.ToLower(badge)), p.URL, html.EscapeString(titleBeforeComma(p.Title)))
	}
	b.WriteString("    </ul>\n  </div>\n</div>\n")
	return b.String()
}

// ProductCards renders the comparison cards with per-product reviews.
func ProductCards(keyword string, products []core.Product, badges core.BadgeSet, reviews map[string]core.Review) string {
	var b strings.Builder
	b.WriteString("<div class=\"acap-compare-wrap\">\n")
	fmt.Fprintf(&b, "  <h2>Product Comparison: %s</h2>\n", html.EscapeString(titleCase(keyword)))
	b.WriteString("  <div class=\"acap-vstack\">\n")

	for _, p := range products {
		b.WriteString("    <div class=\"acap-box\">\n")
		if badge := badges.Badges[p.ASIN]; badge != "" {
			fmt.Fprintf(&b, "      <div class=\"acap-badge\">%s</div>\n", html.EscapeString(badge))
		}
		fmt.Fprintf(&b, "      <h3 class=\"acap-title\">%s</h3>\n", html.EscapeString(p.Title))
		if p.ImageURL != "" {
			fmt.Fprintf(&b, "      <img class=\"acap-img\" src=%q alt=%q />\n", p.ImageURL, html.EscapeString(p.Title))
		}
		if p.Brand != "" {
			fmt.Fprintf(&b, "      <div class=\"acap-brand\">%s</div>\n", html.EscapeString(p.Brand))
		} else {
			b.WriteString("      <div class=\"acap-brand\">—</div>\n")
		}

		if review, ok := reviews[p.ASIN]; ok {
			fmt.Fprintf(&b, "      <p class=\"acap-review\">%s</p>\n", html.EscapeString(review.Description))
			if len(review.Pros) > 0 {
				b.WriteString("      <ul class=\"acap-pros\">\n")
				for _, pro := range review.Pros {
					fmt.Fprintf(&b, "        <li>%s</li>\n", html.EscapeString(pro))
				}
				b.WriteString("      </ul>\n")
			}
			if len(review.Cons) > 0 {
				b.WriteString("      <ul class=\"acap-cons\">\n")
				for _, con := range review.Cons {
					fmt.Fprintf(&b, "        <li>%s</li>\n", html.EscapeString(con))
				}
				b.WriteString("      </ul>\n")
			}
		}

		if len(p.Features) > 0 {
			b.WriteString("      <ul class=\"acap-features\">\n")
			for _, f := range p.Features {
				fmt.Fprintf(&b, "        <li>%s</li>\n", html.EscapeString(f))
			}
			b.WriteString("      </ul>\n")
		}
		fmt.Fprintf(&b, "      <a class=\"acap-btn\" href=%q rel=\"nofollow sponsored noopener\" target=\"_blank\">Check price</a>\n", p.URL)
		b.WriteString("    </div>\n")
	}

	b.WriteString("  </div>\n")
	b.WriteString("  <p class=\"acap-note\"><em>Product prices and availability are accurate as of the date/time indicated and are subject to change.</em></p>\n")
	b.WriteString("</div>\n")
	return b.String()
}

// Guide renders the buying-guide section.
func Guide(guide core.BuyingGuide) string {
	var b strings.Builder
	b.WriteString("<h2>Buying Guide</h2>\n<div class=\"acap-buying-guide\">\n")
	fmt.Fprintf(&b, "  <h3>%s</h3>\n", html.EscapeString(guide.Title))
	for _, section := range guide.Sections {
		if section.Heading != "" {
			fmt.Fprintf(&b, "  <h4>%s</h4>\n", html.EscapeString(section.Heading))
		}
		if len(section.Bullets) > 0 {
			b.WriteString("  <ul>\n")
			for _, bullet := range section.Bullets {
				fmt.Fprintf(&b, "    <li>%s</li>\n", html.EscapeString(bullet))
			}
			b.WriteString("  </ul>\n")
		}
	}
	b.WriteString("</div>\n")
	return b.String()
}

// FAQs renders the FAQ section as collapsible details.
func FAQs(faqs []core.FAQ) string {
	var b strings.Builder
	b.WriteString("<h2>FAQs</h2>\n<div class=\"acap-faqs\">\n")
	for _, qa := range faqs {
		b.WriteString("  <details>\n")
		fmt.Fprintf(&b, "    <summary>%s</summary>\n", html.EscapeString(qa.Question))
		fmt.Fprintf(&b, "    <p>%s</p>\n", html.EscapeString(qa.Answer))
		b.WriteString("  </details>\n")
	}
	b.WriteString("</div>\n")
	return b.String()
}

// FullPost assembles the complete comparison article body.
func FullPost(keyword string, products []core.Product, content core.ArticleContent) string {
	var b strings.Builder
	b.WriteString(Intro(content.Intro))
	b.WriteString(EditorsChoice(products, content.Badges))
	b.WriteString(ProductCards(keyword, products, content.Badges, content.Reviews))
	b.WriteString(Guide(content.Guide))
	b.WriteString(FAQs(content.FAQs))
	return b.String()
}

// InfoArticle assembles an informational article body: intro, key
// takeaways, FAQs.
func InfoArticle(content core.ArticleContent) string {
	var b strings.Builder
	b.WriteString(Intro(content.Intro))
	if len(content.Takeaways) > 0 {
		b.WriteString("<h2>Key Takeaways</h2>\n<ul class=\"acap-takeaways\">\n")
		for _, t := range content.Takeaways {
			fmt.Fprintf(&b, "  <li>%s</li>\n", html.EscapeString(t))
		}
		b.WriteString("</ul>\n")
	}
	if len(content.FAQs) > 0 {
		b.WriteString(FAQs(content.FAQs))
	}
	return b.String()
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
