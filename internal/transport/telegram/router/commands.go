package router

import (
	"context"
	"strconv"

	"postbot/pkg/tgui"
)

type Command struct {
	Name        string
	Description string
	// PrivateOnly commands answer with a hint outside the private chat.
	PrivateOnly bool
	Handle      HandlerFunc
}

func (r *Router) registerCommands() {
	cmds := []Command{
		{Name: "start", Description: "start the bot", Handle: r.cmdStart},
		{Name: "channels", Description: "manage scheduled posts", PrivateOnly: true, Handle: r.cmdChannels},
		{Name: "cancel", Description: "cancel the current dialog", PrivateOnly: true, Handle: r.cmdCancel},
		{Name: "help", Description: "show this help message", Handle: r.cmdHelp},
		{Name: "about", Description: "learn about this bot", Handle: r.cmdAbout},
	}
	r.cmds = make(map[string]Command, len(cmds))
	r.order = r.order[:0]
	for _, c := range cmds {
		r.cmds[c.Name] = c
		r.order = append(r.order, c.Name)
	}
}

// Menu returns the command descriptions in display order, for the
// client-side command menu.
func (r *Router) Menu() (map[string]string, []string) {
	m := make(map[string]string, len(r.cmds))
	for name, c := range r.cmds {
		m[name] = c.Description
	}
	return m, append([]string(nil), r.order...)
}

func (r *Router) cmdStart(ctx context.Context, req *Request) error {
	name := "there"
	if m := req.Update.Message; m != nil && m.FromName != "" {
		name = m.FromName
	}
	b := tgui.New().
		Line("Hi " + name + "! I post scheduled announcements to your Telegram channels.").
		Blank().
		Line("Add me to a channel as an administrator, then open /channels here to schedule posts.")
	if _, err := b.Build().Send(ctx, r.ad, req.Chat); err != nil {
		return err
	}
	if m := req.Update.Message; m == nil || !m.IsPrivate {
		return nil
	}
	return r.cmdChannels(ctx, req)
}

func (r *Router) cmdChannels(ctx context.Context, req *Request) error {
	r.svc.CancelSession(req.FromID)
	page := 0
	if len(req.Args) > 0 {
		if n, err := strconv.Atoi(req.Args[0]); err == nil && n > 0 {
			page = n - 1
		}
	}
	return r.reply(ctx, req, r.channelsScreen(ctx, req.FromID, page))
}

func (r *Router) cmdCancel(ctx context.Context, req *Request) error {
	text := "Nothing to cancel."
	if r.svc.CancelSession(req.FromID) {
		text = "Cancelled. Open /channels to start again."
	}
	_, err := r.ad.SendText(ctx, req.Chat, text, nil)
	return err
}

func (r *Router) cmdHelp(ctx context.Context, req *Request) error {
	b := tgui.New().Title("", "Available commands")
	for _, name := range r.order {
		b.HTML(tgui.H("/"+name+" - ") + tgui.Esc(r.cmds[name].Description))
	}
	b.Blank().Line("Jobs repeat weekly at a fixed time (" + r.svc.Location().String() + ").")
	_, err := b.Build().Send(ctx, r.ad, req.Chat)
	return err
}

func (r *Router) cmdAbout(ctx context.Context, req *Request) error {
	_, err := tgui.New().
		Line("I am a scheduling bot for Telegram channels. Channel admins define a text or photo, a time of day and the weekdays it repeats on; I post it on time.").
		Build().Send(ctx, r.ad, req.Chat)
	return err
}

func (r *Router) unknownCommand(ctx context.Context, req *Request) error {
	_, err := r.ad.SendText(ctx, req.Chat, "Unknown command. Try /help", nil)
	return err
}

func (r *Router) privateOnly(ctx context.Context, req *Request) error {
	_, err := r.ad.SendText(ctx, req.Chat, "Open a private chat with me to manage scheduled posts.", nil)
	return err
}
