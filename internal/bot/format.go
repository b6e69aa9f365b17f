package bot

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"keyword_bot/internal/model"
)

const (
	statusActive = "active"
	statusOff    = "off"
)

func status(active bool) string {
	if active {
		return statusActive
	}
	return statusOff
}

// FormatKeywordList formats a user's keywords with the chats they are pinned
// to and the number of linked negative keywords.
func FormatKeywordList(keywords []model.Keyword, pins map[int64][]model.Chat, negatives map[int64]int) string {
	if len(keywords) == 0 {
		return "You have no keywords yet. Use /add <keyword> to add one."
	}
	var b strings.Builder
	b.WriteString("Your keywords:\n")
	for _, k := range keywords {
		fmt.Fprintf(&b, "\n#%d %s [%s]\n", k.ID, k.Text, status(k.Active))
		chats := pins[k.ID]
		if len(chats) == 0 {
			b.WriteString("   not pinned\n")
		} else {
			titles := make([]string, 0, len(chats))
			for _, c := range chats {
				titles = append(titles, chatLabel(c))
			}
			fmt.Fprintf(&b, "   pinned to: %s\n", strings.Join(titles, ", "))
		}
		if n := negatives[k.ID]; n > 0 {
			fmt.Fprintf(&b, "   %d negative keywords\n", n)
		}
	}
	return b.String()
}

// FormatNegativeList formats a user's negative keywords.
func FormatNegativeList(negatives []model.NegativeKeyword) string {
	if len(negatives) == 0 {
		return "You have no negative keywords yet. Use /addneg <keyword> to add one."
	}
	var b strings.Builder
	b.WriteString("Your negative keywords:\n")
	for _, n := range negatives {
		fmt.Fprintf(&b, "  N%d: %s\n", n.ID, n.Text)
	}
	return b.String()
}

// FormatGroupList formats keyword groups with their members.
func FormatGroupList(groups []model.KeywordsGroup, members map[int64][]model.Keyword) string {
	if len(groups) == 0 {
		return "You have no groups yet. Use /group <name> to create one."
	}
	var b strings.Builder
	b.WriteString("Your groups:\n")
	for _, g := range groups {
		fmt.Fprintf(&b, "\nG%d %s [%s]\n", g.ID, g.Name, status(g.Active))
		ks := members[g.ID]
		if len(ks) == 0 {
			b.WriteString("   empty\n")
			continue
		}
		for _, k := range ks {
			fmt.Fprintf(&b, "   #%d %s\n", k.ID, k.Text)
		}
	}
	return b.String()
}

// FormatChatList formats the chats shared with the user.
func FormatChatList(chats []model.Chat) string {
	if len(chats) == 0 {
		return "No chats yet. Add the bot to a group you are a member of."
	}
	var b strings.Builder
	b.WriteString("Your chats (tap to mute or unmute):\n")
	for _, c := range chats {
		fmt.Fprintf(&b, "  C%d: %s\n", c.ID, chatLabel(c))
	}
	return b.String()
}

// FormatAddResult summarises a batch keyword insert.
func FormatAddResult(kind string, added []string, existing []string) string {
	var b strings.Builder
	if len(added) > 0 {
		fmt.Fprintf(&b, "Added %d %s:\n", len(added), kind)
		for _, a := range added {
			fmt.Fprintf(&b, "  %s\n", a)
		}
	}
	if len(existing) > 0 {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "Already present: %s\n", strings.Join(existing, ", "))
	}
	return b.String()
}

func chatsKeyboard(chats []model.Chat, active map[int64]bool) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(chats))
	for _, c := range chats {
		mark := "🔔"
		if !active[c.ID] {
			mark = "🔕"
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(
				fmt.Sprintf("%s %s", mark, chatLabel(c)),
				fmt.Sprintf("%s:%d", cbMute, c.ID),
			),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func chatLabel(c model.Chat) string {
	if c.Title != "" {
		return c.Title
	}
	return fmt.Sprintf("chat %d", c.ExternalID)
}
