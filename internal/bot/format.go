package bot

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/raine/listing-draft-bot/internal/listing"
	"github.com/raine/listing-draft-bot/internal/pipeline"
)

// maxShownComparables limits how many comparables a draft message lists.
const maxShownComparables = 3

func formatDraft(d listing.ListingDraft) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "*%s*\n\n", escapeMarkdown(d.SuggestedTitle))
	fmt.Fprintf(&sb, "💰 %s\n", escapeMarkdown(d.SuggestedPriceRange))
	fmt.Fprintf(&sb, "📦 %s\n", escapeMarkdown(d.SuggestedCondition))
	if d.SuggestedCategory != "" {
		fmt.Fprintf(&sb, "🗂 %s\n", escapeMarkdown(d.SuggestedCategory))
	}
	fmt.Fprintf(&sb, "\n%s\n", escapeMarkdown(d.ItemDescription))

	if n := len(d.ExampleSoldListings); n > 0 {
		fmt.Fprintf(&sb, "\n*Comparables* (%s)\n", pluralize("item", "items", n))
		for i, c := range d.ExampleSoldListings {
			if i == maxShownComparables {
				break
			}
			fmt.Fprintf(&sb, "• %s - %s\n", escapeMarkdown(c.Title), escapeMarkdown(c.Price))
		}
	}

	if n := len(d.GroundingSources); n > 0 {
		fmt.Fprintf(&sb, "\n_Based on %s_\n", pluralize("source", "sources", n))
	}
	return strings.TrimSpace(sb.String())
}

func formatHistoryEntry(d listing.ListingDraft) string {
	return fmt.Sprintf("• %s *%s* - %s",
		d.GeneratedDate.Format("2006-01-02 15:04"),
		escapeMarkdown(d.SuggestedTitle),
		escapeMarkdown(d.SuggestedPriceRange))
}

func stageMessage(state pipeline.State) string {
	switch state {
	case pipeline.StateGrounding:
		return MsgStageGrounding
	case pipeline.StateRetrievingComparables:
		return MsgStageComparables
	case pipeline.StateSynthesizing:
		return MsgStageSynthesizing
	case pipeline.StateComplete:
		return MsgStageComplete
	}
	return ""
}

func draftKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(BtnRegenerate, "draft:regenerate"),
		),
	)
}
