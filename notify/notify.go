/*
LICENSE
  Copyright (C) 2025 the Bona Studio project

  This is free software: you can redistribute it and/or modify it
  under the terms of the GNU General Public License as published by
  the Free Software Foundation, either version 3 of the License, or
  (at your option) any later version.

  It is distributed in the hope that it will be useful,
  but WITHOUT ANY WARRANTY; without even the implied warranty of
  MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
  GNU General Public License for more details.

  You should have received a copy of the GNU General Public License
  in gpl.txt. If not, see http://www.gnu.org/licenses/.
*/

// Package notify emails the operator when the daily publish pipeline
// misbehaves, using the MailJet API. Reader-facing delivery is push,
// not email; this package exists so a silently failing scrape or
// publish does not go unnoticed until someone checks the site.
package notify

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	mailjet "github.com/mailjet/mailjet-apiv3-go"
)

const (
	defaultSender    = "studio@bonalab.org"
	defaultRecipient = "ops@bonalab.org"
	defaultPeriod    = 6 * time.Hour
)

// Kind classifies a notification, e.g. "scrape", "publish" or "push".
type Kind string

// TimeStore throttles repeat notifications of the same kind.
type TimeStore interface {
	// Sendable returns true either if the period has elapsed since
	// a message with the given key was last sent, or if no such
	// message was ever sent.
	Sendable(ctx context.Context, period time.Duration, key string) (bool, error)
	// Sent records the time a message with the given key was sent.
	Sent(ctx context.Context, key string) error
}

// Notifier represents a notifier that uses the MailJet API to send email.
type Notifier struct {
	mutex      sync.Mutex    // Lock access.
	sender     string        // Sender email address.
	recipient  string        // Recipient email address.
	period     time.Duration // Minimum period between messages of one kind.
	store      TimeStore     // Notification store (optional).
	filters    []string      // Message filters (optional).
	publicKey  string        // Public key for accessing the MailJet API.
	privateKey string        // Private key for accessing the MailJet API.
}

// Init initializes a notifier with the supplied options. See
// WithSender, WithRecipient, WithPeriod, WithFilter, WithStore and
// WithSecrets for a description of the various options. Secrets are
// required to send actual emails using the MailJet API, but can be
// omitted during testing. It is permissible to re-initialize a
// Notifier with different options, however missing options will
// revert to their defaults.
func (n *Notifier) Init(options ...Option) error {
	n.mutex.Lock()
	defer n.mutex.Unlock()

	// Set default values.
	n.sender = defaultSender
	n.recipient = defaultRecipient
	n.period = defaultPeriod
	n.store = nil
	n.filters = nil
	n.publicKey = ""
	n.privateKey = ""

	// Apply options.
	for i, opt := range options {
		err := opt(n)
		if err != nil {
			return fmt.Errorf("could not apply option # %d, %v", i, err)
		}
	}

	return nil
}

// Send sends an email message, depending on what options are present.
// With filters, then all filters must match in order to send.
// With a store, then the message is sent only if a message of the
// same kind was not sent to the same recipient recently.
func (n *Notifier) Send(ctx context.Context, kind Kind, msg string) error {
	for _, f := range n.filters {
		if !strings.Contains(msg, f) {
			log.Printf("filter '%s' applied: not sending %s message to %s", f, kind, n.recipient)
			return nil
		}
	}

	key := string(kind) + "." + n.recipient
	if n.store != nil {
		sendable, err := n.store.Sendable(ctx, n.period, key)
		if err != nil {
			log.Printf("store.Sendable returned error: %v", err)
		}
		if !sendable {
			log.Printf("too soon to send %s a %s message", n.recipient, kind)
			return nil
		}
	}

	log.Printf("sending %s a %s message", n.recipient, kind)

	if n.publicKey != "" && n.privateKey != "" {
		clt := mailjet.NewMailjetClient(n.publicKey, n.privateKey)
		info := []mailjet.InfoMessagesV31{{
			From:     &mailjet.RecipientV31{Email: n.sender},
			To:       &mailjet.RecipientsV31{mailjet.RecipientV31{Email: n.recipient}},
			Subject:  strings.Title(string(kind)) + " notification",
			TextPart: msg,
		}}

		msgs := mailjet.MessagesV31{Info: info}
		_, err := clt.SendMailV31(&msgs)
		if err != nil {
			return fmt.Errorf("could not send mail: %w", err)
		}
	}

	if n.store != nil {
		err := n.store.Sent(ctx, key)
		if err != nil {
			log.Printf("store.Sent returned error: %v", err)
		}
	}

	return nil
}
