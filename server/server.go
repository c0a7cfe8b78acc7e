// Package server runs the proofreading service: it owns the review session,
// serializes all graph mutations through a single command loop, and exposes
// the HTTP API clients use to drive a review.
package server

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/blang/semver"
	"github.com/dustin/go-humanize"

	"github.com/janelia-flyem/proofread/brainmaps"
	"github.com/janelia-flyem/proofread/graph"
	"github.com/janelia-flyem/proofread/mutlog"
	"github.com/janelia-flyem/proofread/proofread"
	"github.com/janelia-flyem/proofread/session"
)

// Version is the semantic version of the proofread server.
var Version = semver.MustParse("0.1.0")

var startupTime = time.Now()

// Uptime returns a humanized duration since server start.
func Uptime() string {
	return humanize.Time(startupTime)
}

// GraphAPI is the remote agglomeration graph surface the server needs.
type GraphAPI interface {
	GetAggloID(ctx context.Context, sv uint64) (uint64, error)
	GetMembers(ctx context.Context, svs []uint64) (map[uint64][]uint64, error)
	GetEdges(ctx context.Context, svs []uint64) (brainmaps.EdgeResult, error)
	GetGraph(ctx context.Context, svs []uint64) (map[uint64]brainmaps.EdgeResult, error)
}

var (
	sessionStore *session.Store
	mutationLog  *mutlog.Log
)

// Serve opens the session store, resumes the latest session if one exists,
// and blocks serving HTTP requests.
func Serve() error {
	if err := loadAuthFile(); err != nil {
		return fmt.Errorf("can't load authorization file: %v", err)
	}

	if tc.Session.Path != "" {
		var err error
		sessionStore, err = session.OpenStore(tc.Session.Path)
		if err != nil {
			return fmt.Errorf("can't open session store: %v", err)
		}
	} else {
		proofread.Infof("No session store path configured.  Sessions won't persist.\n")
	}

	sess := resumeOrNewSession(sessionStore)
	if tc.Session.HistoryLength > 0 && tc.Session.HistoryLength != sess.History.MaxLength() {
		// Rebuild the history with the configured bound, keeping entries.
		history := graph.NewHistory(tc.Session.HistoryLength)
		history.Replace(sess.History.Actions())
		history.ClearDirty()
		sess.History = history
	}
	proofread.Infof("%s\n", sess.Summary())

	kafkaConfig := tc.Kafka
	if kafkaConfig.Topic == "" {
		kafkaConfig.Topic = "proofread-" + sess.UUID
	}
	if kafkaConfig.FailedLog == "" && tc.Session.Path != "" {
		kafkaConfig.FailedLog = filepath.Join(tc.Session.Path, "mutlog-failures.jsonl")
	}
	var err error
	mutationLog, err = mutlog.New(kafkaConfig)
	if err != nil {
		return fmt.Errorf("can't initialize mutation log: %v", err)
	}

	graphClient = brainmaps.NewClient(tc.BrainMaps)
	proofreader = NewProofreader(sess, sessionStore, mutationLog,
		time.Duration(tc.Session.AutosaveSec)*time.Second)

	addr := HTTPAddress()
	proofread.Infof("Web server listening at %s ...\n", addr)
	srv := &http.Server{
		Addr:        addr,
		Handler:     initRoutes(),
		ReadTimeout: 1 * time.Hour,
	}
	return srv.ListenAndServe()
}

// Shutdown flushes unsaved session state, the mutation log, and the log
// file.  Called on interrupt before process exit.
func Shutdown() {
	if proofreader != nil {
		proofreader.Stop()
	}
	if sessionStore != nil {
		sessionStore.Close()
	}
	mutationLog.Shutdown()
	proofread.Shutdown()
}

// resumeOrNewSession loads the most recent snapshot, degrading to a fresh
// session when the store is empty or the snapshot doesn't validate.
func resumeOrNewSession(store *session.Store) *session.Session {
	if store == nil {
		return session.New()
	}
	data, timestamp, found, err := store.Latest()
	if err != nil {
		proofread.Errorf("Can't read latest session snapshot, starting fresh: %v\n", err)
		return session.New()
	}
	if !found {
		proofread.Infof("No saved sessions found.  Starting a fresh session.\n")
		return session.New()
	}
	sess, err := session.Decode(data)
	if err != nil {
		proofread.Errorf("Saved session %s is unusable, starting fresh: %v\n", timestamp, err)
		return session.New()
	}
	proofread.Infof("Resumed session saved at %s\n", timestamp)
	return sess
}
