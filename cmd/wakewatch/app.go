package main

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/banshee-data/wakewatch/internal/api"
	"github.com/banshee-data/wakewatch/internal/db"
	"github.com/banshee-data/wakewatch/internal/motion"
	"github.com/banshee-data/wakewatch/internal/sensor"
	"github.com/banshee-data/wakewatch/internal/session"
)

// app holds what outlives a single session.
type app struct {
	detector       motion.DetectorConfig
	source         sensor.Options
	recordProgress bool

	store   *db.DB
	tracker *session.Tracker
	hub     *api.Hub
}

// runSession acquires the source and runs one session to its end. Without a
// sensor the wake routine runs straight away, as if the sleeper were up.
func (a *app) runSession(ctx context.Context) (session.EndReason, error) {
	src, err := sensor.Open(ctx, a.source)
	if errors.Is(err, sensor.ErrNoSensor) {
		log.Printf("no sensor available (%v); starting wake routine now", err)
		p := session.Presenters(&logPresenter{}, a.hub.Presenter(""))
		p.OnConfirmed()
		return session.ReasonConfirmed, nil
	}
	if err != nil {
		return session.ReasonSourceLost, err
	}

	cfg := session.Config{
		Detector:       a.detector,
		Source:         src,
		SourceName:     string(a.source.Kind),
		RecordProgress: a.recordProgress,
	}
	if a.store != nil {
		cfg.Store = a.store
	}
	sess, err := session.New(cfg)
	if err != nil {
		_ = src.Close()
		return session.ReasonSourceLost, err
	}
	a.tracker.Set(sess)

	id := sess.ID().String()
	p := session.Presenters(&logPresenter{id: id}, a.hub.Presenter(id))

	var wg sync.WaitGroup
	var reason session.EndReason
	wg.Add(1)
	go func() {
		defer wg.Done()
		reason = session.Dispatch(ctx, sess.Signals(), p)
	}()

	runErr := sess.Run(ctx)
	wg.Wait()
	return reason, runErr
}

// logPresenter stands in for the alarm: it logs the volume each time it
// crosses a tenth.
type logPresenter struct {
	id     string
	logged bool
	step   int
}

func (p *logPresenter) OnProgress(v float64) {
	step := int(v * 10)
	if p.logged && step == p.step {
		return
	}
	p.logged, p.step = true, step
	log.Printf("session %s: progress %.2f, alarm volume %.2f", p.id, v, session.VolumeFor(v))
}

func (p *logPresenter) OnConfirmed() {
	log.Printf("session %s: wake-up confirmed, alarm off", p.id)
}

func (p *logPresenter) OnEnded(reason session.EndReason) {
	log.Printf("session %s: ended (%s)", p.id, reason)
}
