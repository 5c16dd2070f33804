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

package main

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/robfig/cron/v3"

	"github.com/bonalab/studio/draft"
	"github.com/bonalab/studio/push"
)

const (
	defaultTriggerAt = "07:00"

	// bakeWindowDays is how many future archives each daily fire
	// pre-bakes alongside today's card.
	bakeWindowDays = 7
)

// State records the last calendar date the scheduler fired on. It is
// in-memory only: a process restart resets it, which can double-fire
// if the restart lands inside the trigger minute.
type State struct {
	LastFired string
}

// dailyScheduler fires the publish-and-notify pipeline once per
// calendar day at a fixed KST wall-clock time.
type dailyScheduler struct {
	svc          *service
	mu           sync.Mutex
	state        *State
	hour, minute int
	cron         *cron.Cron
}

func newDailyScheduler(svc *service, triggerAt string) *dailyScheduler {
	h, m := parseTrigger(triggerAt)
	return &dailyScheduler{svc: svc, state: &State{}, hour: h, minute: m}
}

// parseTrigger parses an hh:mm trigger time, falling back to the
// default on malformed input.
func parseTrigger(s string) (hour, minute int) {
	hs, ms, found := strings.Cut(s, ":")
	if found {
		h, herr := strconv.Atoi(hs)
		m, merr := strconv.Atoi(ms)
		if herr == nil && merr == nil && h >= 0 && h <= 23 && m >= 0 && m <= 59 {
			return h, m
		}
	}
	log.Warnf("invalid trigger time %q, using %s", s, defaultTriggerAt)
	return 7, 0
}

// start begins minute-resolution polling for the process lifetime.
func (d *dailyScheduler) start() {
	c := cron.New(cron.WithLocation(draft.KST))
	c.AddFunc("* * * * *", func() { d.Tick(time.Now()) })
	c.Start()
	d.cron = c
	log.Infof("scheduler armed for %02d:%02d KST daily", d.hour, d.minute)
}

// Tick evaluates one poll instant. It fires at most once per
// calendar date no matter how many ticks land in the trigger minute,
// and a day with no draft still counts as fired.
func (d *dailyScheduler) Tick(now time.Time) {
	now = now.In(draft.KST)
	if now.Hour() != d.hour || now.Minute() != d.minute {
		return
	}
	today := now.Format("2006-01-02")

	d.mu.Lock()
	if d.state.LastFired == today {
		d.mu.Unlock()
		return
	}
	d.state.LastFired = today
	d.mu.Unlock()

	d.fire(today)
}

// fire runs the daily pipeline: fanout to all subscribers, then bake
// today plus the forward window.
func (d *dailyScheduler) fire(date string) {
	ctx := context.Background()

	rec, err := d.svc.drafts.Read(date)
	if errors.Is(err, draft.ErrNotFound) {
		log.Warnf("scheduler: no draft for %s, nothing published", date)
		d.svc.notifyOps(ctx, notifyPublish, "scheduler found no draft to publish for "+date)
		return
	}
	if err != nil {
		log.Errorf("scheduler: could not read draft for %s: %v", date, err)
		d.svc.notifyOps(ctx, notifyPublish, "scheduler could not read draft for "+date+": "+err.Error())
		return
	}

	subs, err := d.svc.subs.All()
	if err != nil {
		log.Errorf("scheduler: could not load subscriptions: %v", err)
		return
	}
	sent, total := push.Fanout(ctx, d.svc.sender, subs, push.NewPayload(false, rec.Content.OneLineMessage, date))
	log.Infof("scheduler: %s sent %d of %d notifications", date, sent, total)

	day, err := time.ParseInLocation("2006-01-02", date, draft.KST)
	if err != nil {
		return
	}
	to := day.AddDate(0, 0, bakeWindowDays).Format("2006-01-02")
	err = d.svc.baker.DeployRange(ctx, date, to)
	if err != nil {
		log.Errorf("scheduler: bake sweep failed: %v", err)
		d.svc.notifyOps(ctx, notifyPublish, "scheduler bake sweep failed: "+err.Error())
	}
}
