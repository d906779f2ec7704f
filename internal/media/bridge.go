// Package media is the carrier-facing media adapter: one
// github.com/pion/webrtc/v3 peer connection per Call Session,
// established from the carrier's SDP offer, with a control data
// channel the Orchestrator's commands are rendered onto (§4.1
// "Outputs"). Speech codec and audio-pipeline internals are out of
// scope (spec §1 Non-goals) — this package wires WebRTC session
// negotiation at the interface boundary the teacher's
// internal/adapters/webrtc.Client used for the model side, adapted
// here to the carrier side.
package media

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/pion/webrtc/v3"
	"github.com/xpload/voicecore-ai-sub002/internal/apierr"
	"github.com/xpload/voicecore-ai-sub002/internal/config"
	"github.com/xpload/voicecore-ai-sub002/internal/domain"
	"github.com/xpload/voicecore-ai-sub002/pkg/logger"
	"github.com/xpload/voicecore-ai-sub002/pkg/twilio"
	"go.uber.org/zap"
)

// controlCommand is the JSON envelope sent over the control data
// channel for every session.Carrier command.
type controlCommand struct {
	Command string `json:"command"`
	Target  string `json:"target,omitempty"` // agent endpoint or voicemail box id
}

type peer struct {
	pc      *webrtc.PeerConnection
	control *webrtc.DataChannel
}

// Bridge implements session.Carrier (internal/core/session.Carrier)
// over one WebRTC peer connection per session. It is the concrete
// adapter the wiring layer (internal/services/call, cmd/server)
// passes to session.Open.
type Bridge struct {
	cfg   *config.MediaConfig
	turn  *twilio.TwilioTokenService // optional: nil when Twilio TURN is not configured

	mu    sync.RWMutex
	peers map[string]*peer
}

func NewBridge(cfg *config.MediaConfig) *Bridge {
	return &Bridge{cfg: cfg, peers: map[string]*peer{}}
}

// WithTURN attaches a Twilio Network Traversal Service token source;
// every subsequent Answer negotiation includes its dynamic TURN
// credentials alongside the static STUN server list.
func (b *Bridge) WithTURN(turn *twilio.TwilioTokenService) *Bridge {
	b.turn = turn
	return b
}

func (b *Bridge) iceServers() []webrtc.ICEServer {
	servers := make([]webrtc.ICEServer, 0, len(b.cfg.STUNServers))
	for _, url := range b.cfg.STUNServers {
		servers = append(servers, webrtc.ICEServer{URLs: []string{url}})
	}
	if b.turn != nil && b.turn.IsEnabled() {
		for _, cred := range b.turn.GetTURNCredentials() {
			servers = append(servers, webrtc.ICEServer{
				URLs:       cred.URLs,
				Username:   cred.Username,
				Credential: cred.Credential,
			})
		}
	}
	return servers
}

// Answer negotiates a new peer connection for sessionID from the
// carrier's SDP offer, returning the SDP answer to send back. Callers
// (the carrier webhook handler, §6) invoke this once per inbound call
// before driving the session through internal/services/call.
func (b *Bridge) Answer(ctx context.Context, sessionID, offerSDP string) (answerSDP string, err error) {
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{ICEServers: b.iceServers()})
	if err != nil {
		return "", apierr.Wrap(apierr.InternalInvariant, "create peer connection", err)
	}

	p := &peer{pc: pc}
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		logger.Base().Info("media bridge connection state change",
			zap.String("session_id", sessionID), zap.String("state", state.String()))
		if state == webrtc.PeerConnectionStateFailed || state == webrtc.PeerConnectionStateClosed {
			b.Close(sessionID)
		}
	})

	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		if dc.Label() == b.cfg.ControlChannel {
			p.control = dc
		}
	})

	if err := pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offerSDP}); err != nil {
		return "", apierr.Wrap(apierr.InternalInvariant, "set remote description", err)
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		return "", apierr.Wrap(apierr.InternalInvariant, "create answer", err)
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		return "", apierr.Wrap(apierr.InternalInvariant, "set local description", err)
	}

	b.mu.Lock()
	b.peers[sessionID] = p
	b.mu.Unlock()

	return answer.SDP, nil
}

// Close tears down and forgets a session's peer connection.
func (b *Bridge) Close(sessionID string) {
	b.mu.Lock()
	p, ok := b.peers[sessionID]
	delete(b.peers, sessionID)
	b.mu.Unlock()

	if ok {
		if err := p.pc.Close(); err != nil {
			logger.Base().Error("failed to close peer connection", zap.String("session_id", sessionID), zap.Error(err))
		}
	}
}

// Play renders an ai_turn utterance as a control command; actual
// audio synthesis/playback is the AI provider's concern (spec §1).
func (b *Bridge) Play(ctx context.Context, sessionID, utterance string) error {
	return b.send(sessionID, controlCommand{Command: "play", Target: utterance})
}

// Bridge patches the connected endpoint through to an agent's SIP/WebRTC
// target.
func (b *Bridge) Bridge(ctx context.Context, sessionID, agentEndpoint string) error {
	return b.send(sessionID, controlCommand{Command: "bridge", Target: agentEndpoint})
}

// Record starts voicemail capture against a department's voicemail box
// and returns the recording's metadata so the Orchestrator can attach
// it to the session's terminal audit event (§4.1, "MODULE EXPANSIONS"
// voicemail supplement). DurationS is left zero here — the bridge only
// knows a start time; the Orchestrator fills it in once the session
// terminates and the recording's actual length is known.
func (b *Bridge) Record(ctx context.Context, sessionID, voicemailBoxID string) (*domain.VoicemailRecord, error) {
	if err := b.send(sessionID, controlCommand{Command: "record", Target: voicemailBoxID}); err != nil {
		return nil, err
	}
	return &domain.VoicemailRecord{
		BoxID:      voicemailBoxID,
		StorageURI: fmt.Sprintf("voicemail://%s/%s", voicemailBoxID, sessionID),
		RecordedAt: time.Now(),
	}, nil
}

func (b *Bridge) send(sessionID string, cmd controlCommand) error {
	b.mu.RLock()
	p, ok := b.peers[sessionID]
	b.mu.RUnlock()
	if !ok {
		return apierr.New(apierr.NotFound, "no media session: "+sessionID)
	}
	if p.control == nil || p.control.ReadyState() != webrtc.DataChannelStateOpen {
		return apierr.New(apierr.Conflict, "control channel not open for session: "+sessionID)
	}

	payload, err := json.Marshal(cmd)
	if err != nil {
		return apierr.Wrap(apierr.InternalInvariant, "marshal control command", err)
	}
	if err := p.control.Send(payload); err != nil {
		return apierr.Wrap(apierr.InternalInvariant, "send control command", err)
	}
	return nil
}
