package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"keyword_bot/internal/bulk"
	"keyword_bot/internal/model"
	"keyword_bot/internal/storage"
)

func (b *Bot) handleStart(ctx context.Context, from *tgbotapi.User) {
	name := strings.TrimSpace(from.FirstName + " " + from.LastName)
	u := &model.User{ID: from.ID, Name: name, Username: from.UserName}
	if err := b.store.UpsertUser(ctx, u); err != nil {
		b.log.Error("register user", "user_id", from.ID, "error", err)
		b.reply(from.ID, "Registration failed, try again later.")
		return
	}

	chats, err := b.store.ListChats(ctx)
	if err != nil {
		b.log.Error("list chats", "error", err)
	}
	for _, c := range chats {
		if !b.isMember(c.ExternalID, from.ID) {
			continue
		}
		if err := b.store.EnsureRelation(ctx, from.ID, c.ID); err != nil {
			b.log.Error("relate user", "chat_id", c.ExternalID, "user_id", from.ID, "error", err)
		}
	}

	b.reply(from.ID, `Welcome to Keyword Alert Bot!

Add the bot to your group chats and it will forward you every message that contains one of your keywords.

Quick start:
1. /add <keyword> - add a keyword (one per line for several)
2. /chats - see the chats you share with the bot
3. /pinall <chat_id> - watch all your keywords in a chat

Use /help for the full command reference.`)
}

func (b *Bot) handleHelp(userID int64) {
	b.reply(userID, `Keywords:
/add <keyword> - add keywords, one per line
/keys - list keywords
/rm <id> - delete a keyword
/pin <id> <chat_id> - watch a keyword in a chat
/unpin <id> <chat_id> - stop watching a keyword in a chat
/pinall <chat_id> - watch all keywords in a chat
/unpinall <chat_id> - stop watching all keywords in a chat

Negative keywords:
/addneg <keyword> - add negative keywords, one per line
/negkeys - list negative keywords
/rmneg <id> - delete a negative keyword
/link <neg_id> <id|all> - suppress matches of a keyword
/unlink <neg_id> <id> - remove a link
/linkall [id] - link all negative keywords to all (or one) keywords
/unlinkall <id> - remove all links of a keyword

Groups:
/group <name> - create a group
/groups - list groups
/groupadd <group_id> <id> - add a keyword to a group
/groupdel <group_id> <id> - remove a keyword from a group
/switch <group_id> - turn all keywords of a group on or off

Chats:
/chats - list chats and mute or unmute them

Keywords match case-insensitively anywhere in a message. Negative keywords are case-sensitive.`)
}

func (b *Bot) handleAdd(ctx context.Context, userID int64, args string) {
	lines := ParseLines(args)
	if len(lines) == 0 {
		b.reply(userID, "Usage: /add <keyword>\nPut several keywords on separate lines.")
		return
	}

	var added, existing []string
	for _, text := range lines {
		k := &model.Keyword{UserID: userID, Text: text, Active: true}
		err := b.store.CreateKeyword(ctx, k)
		switch {
		case errors.Is(err, storage.ErrAlreadyExists):
			existing = append(existing, text)
		case err != nil:
			b.reply(userID, fmt.Sprintf("Error: %v", err))
			return
		default:
			added = append(added, fmt.Sprintf("#%d %s", k.ID, k.Text))
		}
	}
	b.reply(userID, FormatAddResult("keywords", added, existing))
}

func (b *Bot) handleAddNegative(ctx context.Context, userID int64, args string) {
	lines := ParseLines(args)
	if len(lines) == 0 {
		b.reply(userID, "Usage: /addneg <keyword>\nPut several keywords on separate lines.")
		return
	}

	var added, existing []string
	for _, text := range lines {
		n := &model.NegativeKeyword{UserID: userID, Text: text}
		err := b.store.CreateNegativeKeyword(ctx, n)
		switch {
		case errors.Is(err, storage.ErrAlreadyExists):
			existing = append(existing, text)
		case err != nil:
			b.reply(userID, fmt.Sprintf("Error: %v", err))
			return
		default:
			added = append(added, fmt.Sprintf("N%d %s", n.ID, n.Text))
		}
	}
	b.reply(userID, FormatAddResult("negative keywords", added, existing))
}

func (b *Bot) handleKeys(ctx context.Context, userID int64) {
	keywords, err := b.store.ListKeywords(ctx, userID)
	if err != nil {
		b.reply(userID, fmt.Sprintf("Error: %v", err))
		return
	}

	pins := make(map[int64][]model.Chat)
	negatives := make(map[int64]int)
	for _, k := range keywords {
		if chats, err := b.store.ListPinnedChats(ctx, k.ID); err == nil {
			pins[k.ID] = chats
		}
		if ns, err := b.store.ListLinkedNegatives(ctx, k.ID); err == nil {
			negatives[k.ID] = len(ns)
		}
	}
	b.reply(userID, FormatKeywordList(keywords, pins, negatives))
}

func (b *Bot) handleNegativeKeys(ctx context.Context, userID int64) {
	negatives, err := b.store.ListNegativeKeywords(ctx, userID)
	if err != nil {
		b.reply(userID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(userID, FormatNegativeList(negatives))
}

func (b *Bot) handleRemove(ctx context.Context, userID int64, args string) {
	id, err := ParseIDArg(args)
	if err != nil {
		b.reply(userID, "Usage: /rm <id>")
		return
	}
	k, ok := b.ownKeyword(ctx, userID, id)
	if !ok {
		return
	}
	if err := b.store.DeleteKeyword(ctx, id); err != nil {
		b.reply(userID, fmt.Sprintf("Error deleting keyword: %v", err))
		return
	}
	b.reply(userID, fmt.Sprintf("Keyword #%d \"%s\" deleted.", id, k.Text))
}

func (b *Bot) handleRemoveNegative(ctx context.Context, userID int64, args string) {
	id, err := ParseIDArg(args)
	if err != nil {
		b.reply(userID, "Usage: /rmneg <id>")
		return
	}
	n, ok := b.ownNegative(ctx, userID, id)
	if !ok {
		return
	}
	if err := b.store.DeleteNegativeKeyword(ctx, id); err != nil {
		b.reply(userID, fmt.Sprintf("Error deleting negative keyword: %v", err))
		return
	}
	b.reply(userID, fmt.Sprintf("Negative keyword N%d \"%s\" deleted.", id, n.Text))
}

func (b *Bot) handlePin(ctx context.Context, userID int64, args string, pin bool) {
	usage := "Usage: /pin <id> <chat_id>"
	if !pin {
		usage = "Usage: /unpin <id> <chat_id>"
	}
	kwID, chatID, err := ParseIDPair(args)
	if err != nil {
		b.reply(userID, usage)
		return
	}
	k, ok := b.ownKeyword(ctx, userID, kwID)
	if !ok {
		return
	}
	chat, ok := b.userChat(ctx, userID, chatID)
	if !ok {
		return
	}

	if pin {
		err = b.store.PinKeyword(ctx, k.ID, chat.ID)
	} else {
		err = b.store.UnpinKeyword(ctx, k.ID, chat.ID)
	}
	if err != nil {
		b.reply(userID, fmt.Sprintf("Error: %v", err))
		return
	}
	if pin {
		b.reply(userID, fmt.Sprintf("Keyword #%d \"%s\" pinned to %s.", k.ID, k.Text, chatLabel(*chat)))
	} else {
		b.reply(userID, fmt.Sprintf("Keyword #%d \"%s\" unpinned from %s.", k.ID, k.Text, chatLabel(*chat)))
	}
}

func (b *Bot) handlePinAll(ctx context.Context, userID int64, args string, pin bool) {
	chatID, err := ParseIDArg(args)
	if err != nil {
		if pin {
			b.reply(userID, "Usage: /pinall <chat_id>")
		} else {
			b.reply(userID, "Usage: /unpinall <chat_id>")
		}
		return
	}
	chat, ok := b.userChat(ctx, userID, chatID)
	if !ok {
		return
	}

	var op bulk.Op = bulk.PinAllToChat{UserID: userID, ChatID: chat.ID}
	done := fmt.Sprintf("Pinning all your keywords to %s.", chatLabel(*chat))
	if !pin {
		op = bulk.UnpinAllFromChat{UserID: userID, ChatID: chat.ID}
		done = fmt.Sprintf("Unpinning all your keywords from %s.", chatLabel(*chat))
	}
	b.submitBulk(ctx, userID, op, done)
}

func (b *Bot) handleLink(ctx context.Context, userID int64, args string) {
	parsed, err := ParseLinkArgs(args)
	if err != nil {
		b.reply(userID, "Usage: /link <neg_id> <id|all>")
		return
	}
	n, ok := b.ownNegative(ctx, userID, parsed.NegativeID)
	if !ok {
		return
	}

	if parsed.All {
		b.submitBulk(ctx, userID, bulk.LinkNegativeToAll{UserID: userID, NegativeID: n.ID},
			fmt.Sprintf("Linking N%d \"%s\" to all your keywords.", n.ID, n.Text))
		return
	}

	k, ok := b.ownKeyword(ctx, userID, parsed.KeywordID)
	if !ok {
		return
	}
	if err := b.store.LinkNegative(ctx, n.ID, k.ID); err != nil {
		b.reply(userID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(userID, fmt.Sprintf("N%d \"%s\" now suppresses #%d \"%s\".", n.ID, n.Text, k.ID, k.Text))
}

func (b *Bot) handleUnlink(ctx context.Context, userID int64, args string) {
	negID, kwID, err := ParseIDPair(args)
	if err != nil {
		b.reply(userID, "Usage: /unlink <neg_id> <id>")
		return
	}
	n, ok := b.ownNegative(ctx, userID, negID)
	if !ok {
		return
	}
	k, ok := b.ownKeyword(ctx, userID, kwID)
	if !ok {
		return
	}
	if err := b.store.UnlinkNegative(ctx, n.ID, k.ID); err != nil {
		b.reply(userID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(userID, fmt.Sprintf("N%d \"%s\" unlinked from #%d \"%s\".", n.ID, n.Text, k.ID, k.Text))
}

func (b *Bot) handleLinkAll(ctx context.Context, userID int64, args string) {
	if strings.TrimSpace(args) == "" {
		b.submitBulk(ctx, userID, bulk.LinkAllNegativeToAll{UserID: userID},
			"Linking all your negative keywords to all your keywords.")
		return
	}
	id, err := ParseIDArg(args)
	if err != nil {
		b.reply(userID, "Usage: /linkall [id]")
		return
	}
	k, ok := b.ownKeyword(ctx, userID, id)
	if !ok {
		return
	}
	b.submitBulk(ctx, userID, bulk.LinkAllNegativeToKeyword{UserID: userID, KeywordID: k.ID},
		fmt.Sprintf("Linking all your negative keywords to #%d \"%s\".", k.ID, k.Text))
}

func (b *Bot) handleUnlinkAll(ctx context.Context, userID int64, args string) {
	id, err := ParseIDArg(args)
	if err != nil {
		b.reply(userID, "Usage: /unlinkall <id>")
		return
	}
	k, ok := b.ownKeyword(ctx, userID, id)
	if !ok {
		return
	}
	b.submitBulk(ctx, userID, bulk.UnlinkAllNegativeFromKeyword{KeywordID: k.ID},
		fmt.Sprintf("Removing all negative keywords from #%d \"%s\".", k.ID, k.Text))
}

func (b *Bot) handleGroupCreate(ctx context.Context, userID int64, args string) {
	name := strings.TrimSpace(args)
	if name == "" {
		b.reply(userID, "Usage: /group <name>")
		return
	}
	g := &model.KeywordsGroup{UserID: userID, Name: name, Active: true}
	if err := b.store.CreateGroup(ctx, g); err != nil {
		b.reply(userID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(userID, fmt.Sprintf("Group G%d \"%s\" created. Use /groupadd %d <id> to add keywords.", g.ID, g.Name, g.ID))
}

func (b *Bot) handleGroups(ctx context.Context, userID int64) {
	groups, err := b.store.ListGroups(ctx, userID)
	if err != nil {
		b.reply(userID, fmt.Sprintf("Error: %v", err))
		return
	}
	members := make(map[int64][]model.Keyword)
	for _, g := range groups {
		if ks, err := b.store.ListGroupMembers(ctx, g.ID); err == nil {
			members[g.ID] = ks
		}
	}
	b.reply(userID, FormatGroupList(groups, members))
}

func (b *Bot) handleGroupMember(ctx context.Context, userID int64, args string, add bool) {
	groupID, kwID, err := ParseIDPair(args)
	if err != nil {
		if add {
			b.reply(userID, "Usage: /groupadd <group_id> <id>")
		} else {
			b.reply(userID, "Usage: /groupdel <group_id> <id>")
		}
		return
	}
	g, ok := b.ownGroup(ctx, userID, groupID)
	if !ok {
		return
	}
	k, ok := b.ownKeyword(ctx, userID, kwID)
	if !ok {
		return
	}

	if add {
		err = b.store.AddGroupMember(ctx, g.ID, k.ID)
	} else {
		err = b.store.RemoveGroupMember(ctx, g.ID, k.ID)
	}
	if err != nil {
		b.reply(userID, fmt.Sprintf("Error: %v", err))
		return
	}
	if add {
		b.reply(userID, fmt.Sprintf("#%d \"%s\" added to G%d \"%s\".", k.ID, k.Text, g.ID, g.Name))
	} else {
		b.reply(userID, fmt.Sprintf("#%d \"%s\" removed from G%d \"%s\".", k.ID, k.Text, g.ID, g.Name))
	}
}

func (b *Bot) handleSwitch(ctx context.Context, userID int64, args string) {
	id, err := ParseIDArg(args)
	if err != nil {
		b.reply(userID, "Usage: /switch <group_id>")
		return
	}
	g, ok := b.ownGroup(ctx, userID, id)
	if !ok {
		return
	}

	active := !g.Active
	if _, err := b.bulk.SetGroupActive(ctx, g.ID, active); err != nil {
		b.log.Error("switch group", "group_id", g.ID, "error", err)
		b.reply(userID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(userID, fmt.Sprintf("Group G%d \"%s\" is being switched %s.", g.ID, g.Name, onOff(active)))
}

func (b *Bot) handleChats(ctx context.Context, userID int64) {
	chats, err := b.store.ListUserChats(ctx, userID)
	if err != nil {
		b.reply(userID, fmt.Sprintf("Error: %v", err))
		return
	}
	msg := tgbotapi.NewMessage(userID, FormatChatList(chats))
	if len(chats) > 0 {
		states, err := b.chatStates(ctx, userID, chats)
		if err != nil {
			b.reply(userID, fmt.Sprintf("Error: %v", err))
			return
		}
		msg.ReplyMarkup = chatsKeyboard(chats, states)
	}
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send chats", "user_id", userID, "error", err)
	}
}

func (b *Bot) chatStates(ctx context.Context, userID int64, chats []model.Chat) (map[int64]bool, error) {
	states := make(map[int64]bool, len(chats))
	for _, c := range chats {
		active, err := b.registry.GetActive(ctx, userID, c.ID)
		if err != nil {
			return nil, err
		}
		states[c.ID] = active
	}
	return states, nil
}

func (b *Bot) submitBulk(ctx context.Context, userID int64, op bulk.Op, accepted string) {
	if _, err := b.bulk.Submit(ctx, op); err != nil {
		b.log.Error("submit bulk operation", "op", op.Name(), "user_id", userID, "error", err)
		b.reply(userID, "The bot is busy, try again later.")
		return
	}
	b.reply(userID, accepted)
}

func (b *Bot) ownKeyword(ctx context.Context, userID, id int64) (*model.Keyword, bool) {
	k, err := b.store.GetKeyword(ctx, id)
	if err != nil || k.UserID != userID {
		b.reply(userID, fmt.Sprintf("Keyword #%d not found.", id))
		return nil, false
	}
	return k, true
}

func (b *Bot) ownNegative(ctx context.Context, userID, id int64) (*model.NegativeKeyword, bool) {
	n, err := b.store.GetNegativeKeyword(ctx, id)
	if err != nil || n.UserID != userID {
		b.reply(userID, fmt.Sprintf("Negative keyword N%d not found.", id))
		return nil, false
	}
	return n, true
}

func (b *Bot) ownGroup(ctx context.Context, userID, id int64) (*model.KeywordsGroup, bool) {
	g, err := b.store.GetGroup(ctx, id)
	if err != nil || g.UserID != userID {
		b.reply(userID, fmt.Sprintf("Group G%d not found.", id))
		return nil, false
	}
	return g, true
}

// userChat returns the chat if the user is related to it and the bot is present.
func (b *Bot) userChat(ctx context.Context, userID, chatID int64) (*model.Chat, bool) {
	chats, err := b.store.ListUserChats(ctx, userID)
	if err != nil {
		b.reply(userID, fmt.Sprintf("Error: %v", err))
		return nil, false
	}
	for i := range chats {
		if chats[i].ID == chatID {
			return &chats[i], true
		}
	}
	b.reply(userID, fmt.Sprintf("Chat C%d not found. Use /chats to list your chats.", chatID))
	return nil, false
}

func onOff(active bool) string {
	if active {
		return "on"
	}
	return "off"
}
