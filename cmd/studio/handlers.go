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
	"errors"
	"fmt"
	"strings"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/bonalab/studio/draft"
	"github.com/bonalab/studio/notify"
	"github.com/bonalab/studio/push"
	"github.com/bonalab/studio/shortlink"
)

// readerURLFmt is where short links send readers.
const readerURLFmt = "https://uconai.ddns.net/bona/?date=%s"

// Notification kinds for operator email.
const (
	notifyDraft   notify.Kind = "draft"
	notifyPublish notify.Kind = "publish"
)

func registerRoutes(app *fiber.App) {
	api := app.Group("/studio/api")
	api.Post("/draft", svc.createDraftHandler)
	api.Get("/post/:date", svc.getPostHandler)
	api.Get("/gospel/:date?", svc.gospelHandler)
	api.Post("/publish", svc.publishHandler)
	api.Post("/subscribe", svc.subscribeHandler)
	api.Post("/register-admin", svc.registerAdminHandler)
	api.Post("/deploy", svc.deployHandler)
	api.Post("/shortlink", svc.createShortLinkHandler)
	app.Get("/s/:id", svc.resolveShortLinkHandler)
	app.Get("/", svc.versionHandler)
}

func ok(c *fiber.Ctx, data interface{}) error {
	return c.JSON(fiber.Map{"success": true, "data": data})
}

func fail(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(fiber.Map{"success": false, "error": msg})
}

// versionHandler handles requests for the home page and is here just
// to test that the service is running. Clients do not use this
// endpoint.
func (svc *service) versionHandler(c *fiber.Ctx) error {
	c.WriteString(projectID + " " + version)
	return nil
}

// createDraftHandler runs the scrape-and-generate pipeline for a date
// and stores the resulting draft. An empty or absent date means
// today at KST.
func (svc *service) createDraftHandler(c *fiber.Ctx) error {
	var req struct {
		Date string `json:"date"`
	}
	c.BodyParser(&req) // An empty body means today.

	if req.Date != "" && !draft.ValidDate(req.Date) {
		return fail(c, fiber.StatusBadRequest, "invalid date: "+req.Date)
	}

	rec, err := svc.drafts.CreateDaily(c.Context(), req.Date, sourceFetcher{svc.extractor}, cardGenerator{svc.generator})
	if err != nil {
		svc.notifyOps(c.Context(), notifyDraft, fmt.Sprintf("could not save draft: %v", err))
		return fail(c, fiber.StatusInternalServerError, err.Error())
	}
	return ok(c, rec)
}

// getPostHandler returns the stored draft for a date. The literal
// date "today" resolves to the current date at KST.
func (svc *service) getPostHandler(c *fiber.Ctx) error {
	date := c.Params("date")
	if date == "today" {
		date = draft.Today()
	}
	if !draft.ValidDate(date) {
		return fail(c, fiber.StatusBadRequest, "invalid date: "+date)
	}

	rec, err := svc.drafts.Read(date)
	if errors.Is(err, draft.ErrNotFound) {
		return fail(c, fiber.StatusNotFound, "no post for "+date)
	}
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, err.Error())
	}
	return ok(c, rec)
}

// gospelHandler returns the extracted source fields for a date
// without generating or storing anything. Used by the editor to
// preview the scrape.
func (svc *service) gospelHandler(c *fiber.Ctx) error {
	date := c.Params("date")
	if date == "" {
		date = draft.Today()
	}
	if !draft.ValidDate(date) {
		return fail(c, fiber.StatusBadRequest, "invalid date: "+date)
	}
	return ok(c, svc.extractor.Fetch(c.Context(), date))
}

// publishHandler runs the publish pipeline for a date: optional
// content save from the editor, image localization, bake, and push
// fanout. The saveOnly query skips the fanout; the test query sends
// only to the registered admin device.
func (svc *service) publishHandler(c *fiber.Ctx) error {
	isTest := c.QueryBool("test")
	saveOnly := c.QueryBool("saveOnly")

	var req struct {
		Date    string         `json:"date"`
		Content *draft.Content `json:"content"`
	}
	c.BodyParser(&req)

	date := req.Date
	if date == "" {
		date = draft.Today()
	}
	if !draft.ValidDate(date) {
		return fail(c, fiber.StatusBadRequest, "invalid date: "+date)
	}

	rec, err := svc.drafts.Read(date)
	switch {
	case errors.Is(err, draft.ErrNotFound):
		if req.Content == nil {
			return fail(c, fiber.StatusNotFound, "no draft for "+date)
		}
		rec = &draft.Record{Date: date, Status: draft.StatusDraft}
	case err != nil:
		return fail(c, fiber.StatusInternalServerError, err.Error())
	}
	if req.Content != nil {
		rec.Content = *req.Content
	}

	// Mirror the generated image locally so published pages do not
	// depend on the generator host staying up.
	if u := rec.Content.GeneratedImageURL; strings.HasPrefix(u, "http") {
		rec.Content.GeneratedImageURL = svc.baker.LocalizeImage(c.Context(), u, date)
	}
	if !saveOnly {
		rec.Status = draft.StatusPublished
	}

	err = svc.drafts.Write(date, rec)
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, err.Error())
	}

	err = svc.baker.Bake(date)
	if err != nil {
		svc.notifyOps(c.Context(), notifyPublish, fmt.Sprintf("could not bake %s: %v", date, err))
		return fail(c, fiber.StatusInternalServerError, err.Error())
	}

	if saveOnly {
		return ok(c, fiber.Map{"date": date, "saved": true})
	}

	targets, err := svc.subs.Targets(isTest)
	if errors.Is(err, push.ErrNoAdmin) {
		// A missing admin device is a user-visible precondition
		// failure, not a server error.
		return fail(c, fiber.StatusOK, err.Error())
	}
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, err.Error())
	}

	sent, total := push.Fanout(c.Context(), svc.sender, targets, push.NewPayload(isTest, rec.Content.OneLineMessage, date))
	log.Infof("published %s: sent %d of %d notifications", date, sent, total)
	return ok(c, fiber.Map{"date": date, "sent": sent, "total": total})
}

// subscribeHandler stores a reader push subscription, ignoring
// duplicates by endpoint.
func (svc *service) subscribeHandler(c *fiber.Ctx) error {
	var sub webpush.Subscription
	err := c.BodyParser(&sub)
	if err != nil || sub.Endpoint == "" {
		return fail(c, fiber.StatusBadRequest, "invalid subscription")
	}

	added, err := svc.subs.Add(sub)
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, err.Error())
	}
	c.Status(fiber.StatusCreated)
	return ok(c, fiber.Map{"added": added})
}

// registerAdminHandler stores the administrator's device
// subscription, replacing any previous one. Test publishes go only
// to this device.
func (svc *service) registerAdminHandler(c *fiber.Ctx) error {
	var sub webpush.Subscription
	err := c.BodyParser(&sub)
	if err != nil || sub.Endpoint == "" {
		return fail(c, fiber.StatusBadRequest, "invalid subscription")
	}

	err = svc.subs.SetAdmin(sub)
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, err.Error())
	}
	return ok(c, fiber.Map{"registered": true})
}

// deployHandler bakes every date in an inclusive range, pre-baking
// future archives.
func (svc *service) deployHandler(c *fiber.Ctx) error {
	var req struct {
		From string `json:"from"`
		To   string `json:"to"`
	}
	err := c.BodyParser(&req)
	if err != nil {
		return fail(c, fiber.StatusBadRequest, "invalid request body")
	}

	err = svc.baker.DeployRange(c.Context(), req.From, req.To)
	if err != nil {
		return fail(c, fiber.StatusBadRequest, err.Error())
	}
	return ok(c, fiber.Map{"from": req.From, "to": req.To})
}

// createShortLinkHandler mints a share link for a date, optionally
// carrying a prayer override for the share preview.
func (svc *service) createShortLinkHandler(c *fiber.Ctx) error {
	var req struct {
		Date   string `json:"date"`
		Prayer string `json:"prayer"`
	}
	err := c.BodyParser(&req)
	if err != nil || !draft.ValidDate(req.Date) {
		return fail(c, fiber.StatusBadRequest, "invalid date")
	}

	id, err := svc.links.Create(req.Date, req.Prayer)
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, err.Error())
	}
	return ok(c, fiber.Map{"id": id, "url": "/s/" + id})
}

// resolveShortLinkHandler redirects a short link to the reader page
// for its date.
func (svc *service) resolveShortLinkHandler(c *fiber.Ctx) error {
	link, err := svc.links.Resolve(c.Params("id"))
	if errors.Is(err, shortlink.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).SendString("not found")
	}
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, err.Error())
	}
	return c.Redirect(fmt.Sprintf(readerURLFmt, link.Date), fiber.StatusFound)
}
