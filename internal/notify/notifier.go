// Jellysage - Personalized Discovery Libraries for Jellyfin and Emby
// Copyright 2026 Jellysage Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jellysage/jellysage

// Package notify delivers run lifecycle notifications (start, complete,
// fatal) to user-configured services. Delivery is strictly best-effort:
// a failed notification is logged and forgotten, never surfaced to the
// run itself.
package notify

import (
	"fmt"
	"io"
	stdlog "log"

	shoutrrr "github.com/nicholas-fedor/shoutrrr"
	"github.com/nicholas-fedor/shoutrrr/pkg/router"
	"github.com/nicholas-fedor/shoutrrr/pkg/types"

	"github.com/jellysage/jellysage/internal/logging"
)

// Notifier delivers a titled message to zero or more services.
type Notifier interface {
	Notify(title, message string)
}

// Noop discards every notification. Used when no service URLs are
// configured.
type Noop struct{}

func (Noop) Notify(string, string) {}

// Shoutrrr delivers notifications through service URLs (discord://,
// telegram://, gotify://, ...).
type Shoutrrr struct {
	sender *router.ServiceRouter
}

var _ Notifier = (*Shoutrrr)(nil)
var _ Notifier = Noop{}

// New builds a notifier from service URLs, returning Noop when the list
// is empty. Invalid URLs fail construction so misconfiguration is caught
// at startup, not at the first fatal worth reporting.
func New(urls []string) (Notifier, error) {
	if len(urls) == 0 {
		return Noop{}, nil
	}

	sender, err := shoutrrr.CreateSender(urls...)
	if err != nil {
		return nil, fmt.Errorf("invalid notification URL: %w", err)
	}
	// The router's own logger writes unstructured lines; failures are
	// reported through Notify's return values instead.
	sender.SetLogger(stdlog.New(io.Discard, "", 0))

	return &Shoutrrr{sender: sender}, nil
}

// Notify sends message to every configured service.
func (s *Shoutrrr) Notify(title, message string) {
	params := types.Params{}
	if title != "" {
		params.SetTitle(title)
	}
	for _, err := range s.sender.Send(message, &params) {
		if err != nil {
			logging.Warn().Err(err).Msg("Notification delivery failed")
		}
	}
}
