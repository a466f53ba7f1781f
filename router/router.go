// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package router

import (
	"net/http"

	"github.com/danielhkuo/elvox/election"
	"github.com/danielhkuo/elvox/events"
	"github.com/danielhkuo/elvox/handlers"
	"github.com/danielhkuo/elvox/middleware"
)

// Deps are the shared services every route is built from.
type Deps struct {
	Service  *election.Service
	Hub      *events.Hub
	Notifier *events.Notifier
	Sessions *middleware.Sessions
}

func NewRouter(d Deps) *http.ServeMux {
	mux := http.NewServeMux()

	electionHandler := handlers.NewElectionHandler(d.Service, d.Hub)
	candidateHandler := handlers.NewCandidateHandler(d.Service)
	votingHandler := handlers.NewVotingHandler(d.Service, d.Hub)
	deviceHandler := handlers.NewDeviceHandler(d.Service, d.Hub)
	resultsHandler := handlers.NewResultsHandler(d.Service)
	notificationHandler := handlers.NewNotificationHandler(d.Notifier)

	// session wraps a handler that needs a signed-in user.
	session := func(h http.HandlerFunc) http.HandlerFunc {
		return middleware.WithLogging(d.Sessions.RequireActor(h))
	}
	// terminal wraps a handler that needs an activated voting device.
	terminal := func(h http.HandlerFunc) http.HandlerFunc {
		return middleware.WithLogging(middleware.RequireDevice(d.Service, h))
	}

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Election administration
	mux.HandleFunc("GET /elections", session(electionHandler.ListElections))
	mux.HandleFunc("POST /elections", session(electionHandler.CreateElection))
	mux.HandleFunc("GET /elections/{id}", session(electionHandler.GetElection))
	mux.HandleFunc("PATCH /elections/{id}", session(electionHandler.UpdateElection))
	mux.HandleFunc("DELETE /elections/{id}", session(electionHandler.DeleteElection))
	mux.HandleFunc("PUT /elections/{id}/reserved-classes", session(electionHandler.SetReservedClasses))
	mux.HandleFunc("PUT /elections/{id}/auto-publish", session(electionHandler.SetAutoPublish))
	mux.HandleFunc("GET /elections/{id}/supervisors", session(electionHandler.ListSupervisors))
	mux.HandleFunc("POST /elections/{id}/supervisors", session(electionHandler.UpdateSupervisors))
	mux.HandleFunc("POST /elections/{id}/secret-key", session(electionHandler.GenerateSecretKey))
	mux.HandleFunc("GET /elections/{id}/logs", session(electionHandler.Logs))
	mux.HandleFunc("GET /elections/{id}/logs/stream", session(electionHandler.StreamLogs))
	mux.HandleFunc("POST /elections/{id}/results/publish", session(electionHandler.PublishResults))

	// Voting terminals (admin side)
	mux.HandleFunc("GET /elections/{id}/devices", session(deviceHandler.ListDevices))
	mux.HandleFunc("POST /elections/{id}/devices/{device}/revoke", session(deviceHandler.Revoke))

	// Nominations
	mux.HandleFunc("GET /elections/{id}/candidates", session(candidateHandler.ListCandidates))
	mux.HandleFunc("POST /elections/{id}/candidates", session(candidateHandler.Nominate))
	mux.HandleFunc("POST /candidates/{id}/withdraw", session(candidateHandler.Withdraw))
	mux.HandleFunc("PATCH /candidates/{id}/status", session(candidateHandler.Review))

	// Supervisor desk
	mux.HandleFunc("POST /elections/{id}/voters/verify", session(votingHandler.VerifyVoter))
	mux.HandleFunc("GET /elections/{id}/voters/stream", session(votingHandler.StreamVoters))

	// Results and tie-breaks
	mux.HandleFunc("GET /elections/{id}/results", session(resultsHandler.GetResults))
	mux.HandleFunc("GET /elections/{id}/classes/{class}/tie-break", session(resultsHandler.TieBreakStatus))
	mux.HandleFunc("POST /elections/{id}/classes/{class}/tie-break", session(resultsHandler.ResolveTieBreak))

	// Inbox
	mux.HandleFunc("GET /notifications", session(notificationHandler.Inbox))
	mux.HandleFunc("POST /notifications/read", session(notificationHandler.MarkRead))

	// Desktop voting terminal
	mux.HandleFunc("POST /desktop/elections/{id}/activate", middleware.WithLogging(deviceHandler.Activate))
	mux.HandleFunc("POST /desktop/elections/{id}/voters/authenticate", terminal(votingHandler.AuthenticateVoter))
	mux.HandleFunc("POST /desktop/elections/{id}/ballot", terminal(votingHandler.Ballot))
	mux.HandleFunc("POST /desktop/elections/{id}/vote", terminal(votingHandler.CastVote))
	mux.HandleFunc("GET /desktop/elections/{id}/revocations", terminal(deviceHandler.StreamRevocations))

	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("elvox API v1"))
	})

	return mux
}
