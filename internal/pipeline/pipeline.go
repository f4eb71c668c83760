// Package pipeline orchestrates answering one accumulated query: capture a
// photo, refresh location, call the agent, speak/display the answer, and
// fan the exchange out over the event bus and into chat history. Every step
// after the precondition check tolerates partial failure — a photo or
// location miss degrades the answer, it never aborts the turn.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/snarg/session-engine/internal/agent"
	"github.com/snarg/session-engine/internal/chathistory"
	"github.com/snarg/session-engine/internal/eventbus"
	"github.com/snarg/session-engine/internal/location"
	"github.com/snarg/session-engine/internal/metrics"
	"github.com/snarg/session-engine/internal/user"
)

// ChatTopic is the event bus topic the pipeline emits its lifecycle and
// message events on.
const ChatTopic = "chat"

// PhotoTopic is the event bus topic photo-capture metadata is announced on.
const PhotoTopic = "photo"

// AgentSenderID is the senderId used for the agent's half of a chat
// exchange; the wearer's own userId is used for the other half.
const AgentSenderID = "agent"

// DefaultDisplayDuration is how long a show-text-wall call asks the device
// to keep a response on screen.
const DefaultDisplayDuration = 10 * time.Second

// DefaultHardwareTimeout bounds any single blocking call out to the
// hardware session (photo capture, speak, display, play audio).
const DefaultHardwareTimeout = 8 * time.Second

// DefaultHistoryWindow bounds how far back conversationHistory reaches.
const DefaultHistoryWindow = 30 * time.Minute

// ChatEvent is the JSON shape broadcast on ChatTopic for processing,
// message, and idle events. Only the fields relevant to Type are populated.
type ChatEvent struct {
	Type        string    `json:"type"`
	SenderID    string    `json:"senderId,omitempty"`
	RecipientID string    `json:"recipientId,omitempty"`
	Content     string    `json:"content,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	Image       string    `json:"image,omitempty"`
}

// PhotoEvent is the JSON shape broadcast on PhotoTopic after a capture.
// Raw bytes are never included; callers fetch them via the latest-photo or
// photo/:requestId HTTP endpoints.
type PhotoEvent struct {
	RequestID string    `json:"requestId"`
	UserID    string    `json:"userId"`
	MimeType  string    `json:"mimeType"`
	Filename  string    `json:"filename"`
	Size      int       `json:"size"`
	Timestamp time.Time `json:"timestamp"`
}

// Pipeline answers accumulated queries for every user sharing its
// dependencies; it holds no per-user state of its own.
type Pipeline struct {
	bus   *eventbus.Bus
	agent agent.Provider
	log   zerolog.Logger

	displayDuration    time.Duration
	hardwareTimeout    time.Duration
	historyWindow      time.Duration
	processingSoundURL string
}

// Options configures a new Pipeline.
type Options struct {
	Bus   *eventbus.Bus
	Agent agent.Provider
	Log   zerolog.Logger

	DisplayDuration    time.Duration // defaults to DefaultDisplayDuration
	HardwareTimeout    time.Duration // defaults to DefaultHardwareTimeout
	HistoryWindow      time.Duration // defaults to DefaultHistoryWindow
	ProcessingSoundURL string        // empty disables the processing chime
}

// New constructs a Pipeline.
func New(opts Options) *Pipeline {
	dd := opts.DisplayDuration
	if dd <= 0 {
		dd = DefaultDisplayDuration
	}
	ht := opts.HardwareTimeout
	if ht <= 0 {
		ht = DefaultHardwareTimeout
	}
	hw := opts.HistoryWindow
	if hw <= 0 {
		hw = DefaultHistoryWindow
	}
	return &Pipeline{
		bus:                opts.Bus,
		agent:              opts.Agent,
		log:                opts.Log.With().Str("component", "pipeline").Logger(),
		displayDuration:    dd,
		hardwareTimeout:    ht,
		historyWindow:      hw,
		processingSoundURL: opts.ProcessingSoundURL,
	}
}

// Run answers one accumulated query for u. It is meant to be invoked from
// u's own serialized job queue (see user.Options.OnQueryReady), so it never
// needs to take a per-user lock itself.
func (p *Pipeline) Run(ctx context.Context, u *user.User, query, speakerID string) {
	log := p.log.With().Str("user_id", u.ID).Logger()

	sess := u.HardwareSession()
	if sess == nil {
		log.Warn().Msg("query pipeline invoked with no live hardware session, dropping")
		return
	}
	caps := sess.Capabilities()
	stores := u.Stores()
	now := time.Now()

	p.broadcastChat(u.ID, ChatEvent{Type: "processing", Timestamp: now})

	if caps.HasSpeaker && p.processingSoundURL != "" {
		go func() {
			pctx, cancel := context.WithTimeout(context.Background(), p.hardwareTimeout)
			defer cancel()
			if err := sess.PlayAudio(pctx, p.processingSoundURL); err != nil {
				log.Debug().Err(err).Msg("processing sound playback failed")
			}
		}()
	}

	var photoRef string
	var photos []agent.Photo
	if caps.HasCamera {
		pctx, cancel := context.WithTimeout(ctx, p.hardwareTimeout)
		photo, err := stores.Photos.Capture(pctx, u.ID, sess)
		cancel()
		if err != nil {
			log.Debug().Err(err).Msg("photo capture failed, proceeding without it")
		} else {
			photoRef = photo.RequestID
			p.bus.Broadcast(u.ID, PhotoTopic, PhotoEvent{
				RequestID: photo.RequestID,
				UserID:    u.ID,
				MimeType:  photo.MimeType,
				Filename:  photo.Filename,
				Size:      len(photo.Bytes),
				Timestamp: photo.CapturedAt,
			})
		}
		for _, ctxPhoto := range stores.Photos.ContextBytes(u.ID) {
			photos = append(photos, agent.Photo{Bytes: ctxPhoto.Bytes, MimeType: ctxPhoto.MimeType})
		}
	}

	// The user's half of this turn is broadcast now, before the (possibly
	// multi-second) agent call begins, so a subscriber that connects
	// mid-pipeline sees it as part of its pending-queue replay rather than
	// waiting for the whole turn to finish.
	userTurnTime := time.Now()
	p.broadcastChat(u.ID, ChatEvent{
		Type:        "message",
		SenderID:    u.ID,
		RecipientID: AgentSenderID,
		Content:     query,
		Timestamp:   userTurnTime,
		Image:       photoRef,
	})

	timezone := stores.Location.Timezone()
	locationStr := ""
	if location.NeedsLocation(query) {
		lctx, cancel := context.WithTimeout(ctx, p.hardwareTimeout)
		fix, ok := stores.Location.Resolve(lctx, sess, query)
		cancel()
		if !ok {
			log.Debug().Msg("no location fix available, proceeding without it")
		} else if fix.Geocoded != "" {
			locationStr = fix.Geocoded
		} else {
			locationStr = fmt.Sprintf("%.5f,%.5f", fix.Lat, fix.Lng)
		}
	}

	var notices []string
	for _, n := range stores.Notifications.Recent(u.ID, 5) {
		notices = append(notices, string(n.Payload))
	}

	var history []agent.HistoryTurn
	for _, t := range stores.ChatHistory.RecentTurns(u.ID, p.historyWindow) {
		history = append(history, agent.HistoryTurn{Role: t.Role, Content: t.Content})
	}

	metrics.QueriesTotal.Inc()
	metrics.AgentRequestsTotal.Inc()
	agentStart := time.Now()
	resp, err := p.agent.Generate(ctx, agent.Request{
		Query:       query,
		Photos:      photos,
		History:     history,
		Location:    locationStr,
		Notices:     notices,
		Timezone:    timezone,
		Now:         now,
		HasDisplay:  caps.HasDisplay,
		HasSpeakers: caps.HasSpeaker,
		HasCamera:   caps.HasCamera,
	})
	metrics.AgentRequestDuration.Observe(time.Since(agentStart).Seconds())
	if err != nil {
		metrics.AgentErrorsTotal.Inc()
		log.Warn().Err(err).Msg("agent generate failed, using apology")
		resp = agent.Response{Text: agent.ApologyResponse}
	}

	spoken := resp.Text
	if caps.HasSpeaker && !caps.HasDisplay {
		spoken = formatForSpeech(spoken)
	}

	if caps.HasDisplay {
		octx, cancel := context.WithTimeout(ctx, p.hardwareTimeout)
		if err := sess.ShowText(octx, spoken, p.displayDuration); err != nil {
			log.Debug().Err(err).Msg("show text failed")
		}
		cancel()
	}
	if caps.HasSpeaker {
		octx, cancel := context.WithTimeout(ctx, p.hardwareTimeout)
		if err := sess.Speak(octx, spoken); err != nil {
			log.Debug().Err(err).Msg("speak failed")
		}
		cancel()
	}

	agentTurnTime := time.Now()
	p.broadcastChat(u.ID, ChatEvent{
		Type:        "message",
		SenderID:    AgentSenderID,
		RecipientID: u.ID,
		Content:     spoken,
		Timestamp:   agentTurnTime,
	})

	stores.ChatHistory.AddTurn(u.ID, chathistory.Turn{
		Role:      "user",
		Content:   query,
		PhotoRef:  photoRef,
		CreatedAt: userTurnTime,
	})
	stores.ChatHistory.AddTurn(u.ID, chathistory.Turn{
		Role:      "assistant",
		Content:   spoken,
		CreatedAt: agentTurnTime,
	})

	p.broadcastChat(u.ID, ChatEvent{Type: "idle", Timestamp: time.Now()})
}

func (p *Pipeline) broadcastChat(userID string, ev ChatEvent) {
	if p.bus == nil {
		return
	}
	p.bus.Broadcast(userID, ChatTopic, ev)
}
