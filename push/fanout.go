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

package push

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync/atomic"

	webpush "github.com/SherClockHolmes/webpush-go"
	"golang.org/x/sync/errgroup"
)

const (
	payloadIcon   = "/bona/assets/icon-192.png"
	payloadURLFmt = "https://uconai.ddns.net/bona/?date=%s"
	defaultBody   = "오늘의 묵상이 도착했습니다."
	titleNormal   = "Good Morning Bona"
	titleTest     = "[TEST] Good Morning Bona"

	pushTTL = 12 * 60 * 60 // seconds
)

// Payload is the notification document consumed by the service
// worker.
type Payload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Icon  string `json:"icon"`
	URL   string `json:"url"`
}

// NewPayload builds the notification payload for a published date.
// An empty oneLine falls back to a generic body.
func NewPayload(isTest bool, oneLine, date string) Payload {
	title := titleNormal
	if isTest {
		title = titleTest
	}
	body := oneLine
	if body == "" {
		body = defaultBody
	}
	return Payload{
		Title: title,
		Body:  body,
		Icon:  payloadIcon,
		URL:   fmt.Sprintf(payloadURLFmt, date),
	}
}

// Sender delivers one payload to one subscription.
type Sender interface {
	Send(ctx context.Context, sub webpush.Subscription, payload []byte) error
}

// WebPushSender sends via the Web Push protocol with VAPID
// authentication.
type WebPushSender struct {
	Subject    string // mailto: or https: contact for the push service
	PublicKey  string
	PrivateKey string
}

// Send implements Sender.
func (w *WebPushSender) Send(ctx context.Context, sub webpush.Subscription, payload []byte) error {
	resp, err := webpush.SendNotificationWithContext(ctx, payload, &sub, &webpush.Options{
		Subscriber:      w.Subject,
		VAPIDPublicKey:  w.PublicKey,
		VAPIDPrivateKey: w.PrivateKey,
		TTL:             pushTTL,
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("push service returned status %d", resp.StatusCode)
	}
	return nil
}

// Fanout dispatches the payload to every subscription concurrently.
// Per-subscriber failures are logged and swallowed; one slow or dead
// endpoint never aborts its siblings. It returns how many sends
// succeeded out of how many were attempted.
func Fanout(ctx context.Context, sender Sender, subs []webpush.Subscription, p Payload) (sent, total int) {
	data, err := json.Marshal(p)
	if err != nil {
		log.Printf("push: could not marshal payload: %v", err)
		return 0, len(subs)
	}

	var ok atomic.Int64
	g, ctx := errgroup.WithContext(ctx)
	for _, sub := range subs {
		sub := sub
		g.Go(func() error {
			err := sender.Send(ctx, sub, data)
			if err != nil {
				log.Printf("push: send to %s failed: %v", sub.Endpoint, err)
				return nil
			}
			ok.Add(1)
			return nil
		})
	}
	g.Wait()
	return int(ok.Load()), len(subs)
}
