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

// Bona Studio is a web service that publishes a daily devotional
// card: it scrapes the daily gospel, generates a meditation and
// prayer, bakes the card into static pages, and notifies push
// subscribers once per day.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/bonalab/studio/bake"
	"github.com/bonalab/studio/draft"
	"github.com/bonalab/studio/genai"
	"github.com/bonalab/studio/notify"
	"github.com/bonalab/studio/push"
	"github.com/bonalab/studio/scrape"
	"github.com/bonalab/studio/secrets"
	"github.com/bonalab/studio/shortlink"
)

// Project constants.
const (
	projectID = "bonastudio"
	version   = "v0.1.0"
)

// opsNotifier emails the operator about pipeline failures.
// *notify.Notifier satisfies it.
type opsNotifier interface {
	Send(ctx context.Context, kind notify.Kind, msg string) error
}

// service defines the properties of our web service.
type service struct {
	setupMutex sync.Mutex
	drafts     *draft.Store
	subs       *push.Store
	links      *shortlink.Store
	baker      *bake.Baker
	extractor  *scrape.Extractor
	generator  *genai.Generator
	sender     push.Sender
	notifier   opsNotifier
	sched      *dailyScheduler
	debug      bool
	standalone bool
	dataDir    string
	siteDir    string
	liveDir    string
	triggerAt  string
}

// svc is an instance of our service.
var svc *service = &service{}

func main() {
	defaultPort := 8090
	v := os.Getenv("PORT")
	if v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			defaultPort = i
		}
	}

	var host string
	var port int
	flag.BoolVar(&svc.debug, "debug", false, "Run in debug mode.")
	flag.BoolVar(&svc.standalone, "standalone", false, "Run in standalone mode.")
	flag.StringVar(&host, "host", "localhost", "Host we run on in standalone mode")
	flag.IntVar(&port, "port", defaultPort, "Port we listen on in standalone mode")
	flag.StringVar(&svc.dataDir, "datadir", "data", "Draft and subscription store path")
	flag.StringVar(&svc.siteDir, "sitedir", "site", "Static site assets and card template path")
	flag.StringVar(&svc.liveDir, "livedir", "public/studio", "Live web-serving directory")
	flag.StringVar(&svc.triggerAt, "trigger", defaultTriggerAt, "Daily publish time (hh:mm at UTC+9)")
	flag.Parse()

	// Create app.
	app := fiber.New(fiber.Config{ReadBufferSize: 8192})

	// Perform one-time setup or bail.
	ctx := context.Background()
	svc.setup(ctx)

	// Recover from panics.
	app.Use(recover.New())

	// CORS middleware.
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
	}))

	// Set the logging level.
	if svc.debug {
		log.SetLevel(log.LevelDebug)
	} else if svc.standalone {
		log.SetLevel(log.LevelInfo)
	} else {
		log.SetLevel(log.LevelError)
	}

	// Add logging middleware to log requests if applicable.
	app.Use(func(ctx *fiber.Ctx) error {
		log.Info(ctx.Path())
		return ctx.Next()
	})

	// Register routes.
	registerRoutes(app)
	app.Static("/studio", svc.liveDir)

	svc.sched.start()

	// Start web server.
	listenOn := fmt.Sprintf(":%d", port)
	fmt.Printf("starting web server on %s:%d\n", host, port)
	log.Fatal(app.Listen(listenOn))
}

// setup executes per-instance one-time initialization. Any errors
// with the stores are considered fatal; missing secrets merely
// disable the features that need them.
func (svc *service) setup(ctx context.Context) {
	svc.setupMutex.Lock()
	defer svc.setupMutex.Unlock()

	if svc.drafts != nil {
		return
	}

	var err error
	svc.drafts, err = draft.NewStore(filepath.Join(svc.dataDir, "drafts"))
	if err != nil {
		log.Fatalf("could not set up draft store: %v", err)
	}
	svc.subs, err = push.NewStore(svc.dataDir)
	if err != nil {
		log.Fatalf("could not set up subscription store: %v", err)
	}
	svc.links, err = shortlink.NewStore(svc.dataDir)
	if err != nil {
		log.Fatalf("could not set up short link store: %v", err)
	}

	// Bakes are confined to the parent of the live directory, which
	// also hosts the staging directories.
	svc.baker = bake.New(svc.drafts, svc.siteDir, svc.liveDir, filepath.Dir(svc.liveDir))
	svc.extractor = scrape.New()

	sec, err := secrets.GetSecrets(projectID, nil)
	if err != nil {
		log.Warnf("could not get secrets, generation and push disabled: %v", err)
		sec = map[string]string{}
	}
	svc.generator = genai.New(sec["deepseekAPIKey"])
	svc.sender = &push.WebPushSender{
		Subject:    sec["vapidSubject"],
		PublicKey:  sec["vapidPublicKey"],
		PrivateKey: sec["vapidPrivateKey"],
	}

	opsEmail, opsPeriod := notify.GetOpsEnvVars()
	opts := []notify.Option{
		notify.WithRecipient(opsEmail),
		notify.WithPeriod(opsPeriod),
		notify.WithStore(notify.NewTimeStore(svc.dataDir)),
	}
	if sec["mailjetPublicKey"] != "" && sec["mailjetPrivateKey"] != "" {
		opts = append(opts, notify.WithSecrets(sec))
	}
	n := &notify.Notifier{}
	err = n.Init(opts...)
	if err != nil {
		log.Warnf("could not init notifier: %v", err)
	}
	svc.notifier = n

	svc.sched = newDailyScheduler(svc, svc.triggerAt)
	log.Info("set up stores and pipeline")
}

// notifyOps emails the operator about a pipeline failure. Delivery
// problems are logged; an unreachable mail service never compounds
// the failure being reported.
func (svc *service) notifyOps(ctx context.Context, kind notify.Kind, msg string) {
	err := svc.notifier.Send(ctx, kind, msg)
	if err != nil {
		log.Warnf("could not send %s notification: %v", kind, err)
	}
}

// sourceFetcher adapts the scrape extractor to the draft pipeline.
type sourceFetcher struct {
	ex *scrape.Extractor
}

func (f sourceFetcher) Fetch(ctx context.Context, date string) draft.SourceData {
	r := f.ex.Fetch(ctx, date)
	return draft.SourceData{Reference: r.Reference, Title: r.Title, Body: r.Body}
}

// cardGenerator adapts the genai generator to the draft pipeline.
type cardGenerator struct {
	gen *genai.Generator
}

func (g cardGenerator) GenerateText(ctx context.Context, source string) (draft.Generated, error) {
	c, err := g.gen.Generate(ctx, source)
	if err != nil {
		return draft.Generated{}, err
	}
	return draft.Generated{
		MeditationBody:     c.MeditationBody,
		PrayerLine:         c.PrayerLine,
		ImagePromptScenery: c.ImagePromptScenery,
	}, nil
}

func (g cardGenerator) GenerateImage(ctx context.Context, prompt string) (string, error) {
	return genai.ImageURL(prompt), nil
}
