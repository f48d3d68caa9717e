package app

import (
	"fmt"

	"github.com/zulandar/marquee/internal/config"
	"github.com/zulandar/marquee/internal/relay"
	"github.com/zulandar/marquee/internal/relay/discord"
	"github.com/zulandar/marquee/internal/relay/slack"
	"github.com/zulandar/marquee/internal/relay/sms"
	"github.com/zulandar/marquee/internal/relay/telegram"
)

// buildAdapters creates one adapter per enabled platform. The SMS adapter is
// returned separately because its inbound webhook is mounted on the server.
func buildAdapters(p config.PlatformsConfig) ([]relay.Adapter, *sms.Adapter, error) {
	var (
		out []relay.Adapter
		txt *sms.Adapter
	)
	if p.SMS.Enabled {
		a, err := sms.New(sms.AdapterOpts{
			AccountSID: p.SMS.AccountSID,
			AuthToken:  p.SMS.AuthToken,
			FromNumber: p.SMS.FromNumber,
			BaseURL:    p.SMS.BaseURL,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("app: %w", err)
		}
		out = append(out, a)
		txt = a
	}
	if p.Discord.Enabled {
		a, err := discord.New(discord.AdapterOpts{BotToken: p.Discord.BotToken, ChannelID: p.Discord.ChannelID})
		if err != nil {
			return nil, nil, fmt.Errorf("app: %w", err)
		}
		out = append(out, a)
	}
	if p.Slack.Enabled {
		a, err := slack.New(slack.AdapterOpts{
			BotToken:  p.Slack.BotToken,
			AppToken:  p.Slack.AppToken,
			ChannelID: p.Slack.ChannelID,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("app: %w", err)
		}
		out = append(out, a)
	}
	if p.Telegram.Enabled {
		a, err := telegram.New(telegram.AdapterOpts{BotToken: p.Telegram.BotToken})
		if err != nil {
			return nil, nil, fmt.Errorf("app: %w", err)
		}
		out = append(out, a)
	}
	return out, txt, nil
}
