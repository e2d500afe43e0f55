package session

import (
	"golang.org/x/exp/slog"

	"github.com/cdptech/cdpclient/internal/cdperrors"
	"github.com/cdptech/cdpclient/internal/pending"
	"github.com/cdptech/cdpclient/internal/wire"
)

// dispatchFrame decodes one enveloped frame and routes it by message type
// (spec.md §4.4 "Dispatch in READY"). Never blocks: any embedder
// interaction it triggers (re-auth's credential prompt) happens in a
// spawned goroutine.
func (s *Session) dispatchFrame(logger *slog.Logger, frame []byte) {
	env, err := wire.DecodeEnvelope(frame)
	if err != nil {
		logger.Warn("failed to decode envelope", "error", err)
		return
	}

	switch env.MessageType {
	case wire.MsgStructureResponse:
		s.handleStructureResponse(logger, env)
	case wire.MsgGetterResponse:
		s.handleGetterResponse(logger, env)
	case wire.MsgStructureChangeResp:
		s.handleStructureChange(logger, env)
	case wire.MsgCurrentTimeResponse:
		s.handleCurrentTimeResponse(logger, env)
	case wire.MsgReAuthResponse:
		s.handleReAuthResponse(logger, env)
	case wire.MsgRemoteError:
		s.handleRemoteError(logger, env)
	default:
		logger.Debug("ignoring unhandled message type", "type", env.MessageType)
	}
}

func (s *Session) handleStructureResponse(logger *slog.Logger, env wire.Envelope) {
	var resp wire.StructureResponse
	if err := wire.DecodeBody(env, &resp); err != nil {
		logger.Warn("malformed structure response", "error", err)
		return
	}
	var path *string
	if resp.NodeID != 0 {
		n := s.tree.FindByID(resp.NodeID)
		if n == nil {
			logger.Debug("structure response for unknown node id", "node_id", resp.NodeID)
			return
		}
		p := n.Path()
		path = &p
	}
	s.pending.Resolve(path, resp.Children)
	s.metrics.SetPendingCount(s.pending.Len())
}

func (s *Session) handleGetterResponse(logger *slog.Logger, env wire.Envelope) {
	var resp wire.GetterResponse
	if err := wire.DecodeBody(env, &resp); err != nil {
		logger.Warn("malformed getter response", "error", err)
		return
	}
	for _, v := range resp.Values {
		if err := s.tree.ApplyValue(v); err != nil {
			logger.Debug("value for unknown node", "node_id", v.NodeID, "error", err)
		}
	}
}

func (s *Session) handleStructureChange(logger *slog.Logger, env wire.Envelope) {
	var resp wire.StructureChangeResponse
	if err := wire.DecodeBody(env, &resp); err != nil {
		logger.Warn("malformed structure change response", "error", err)
		return
	}
	for _, id := range resp.NodeIDs {
		s.tree.RefreshNode(id)
	}
}

func (s *Session) handleCurrentTimeResponse(logger *slog.Logger, env wire.Envelope) {
	var resp wire.CurrentTimeResponse
	if err := wire.DecodeBody(env, &resp); err != nil {
		logger.Warn("malformed current-time response", "error", err)
		return
	}
	s.mu.Lock()
	f := s.timeReqFuture
	s.timeReqFuture = nil
	s.mu.Unlock()
	if f != nil {
		f.Resolve(pending.Outcome{Value: resp})
	}
}

func (s *Session) handleReAuthResponse(logger *slog.Logger, env wire.Envelope) {
	var result wire.AuthResult
	if err := wire.DecodeBody(env, &result); err != nil {
		logger.Warn("malformed re-auth response", "error", err)
		return
	}
	s.mu.Lock()
	f := s.reauthRespFuture
	s.reauthRespFuture = nil
	s.mu.Unlock()
	if f != nil {
		f.Resolve(pending.Outcome{Value: result})
	}
}

func (s *Session) handleRemoteError(logger *slog.Logger, env wire.Envelope) {
	var remoteErr wire.RemoteError
	if err := wire.DecodeBody(env, &remoteErr); err != nil {
		logger.Warn("malformed remote error", "error", err)
		return
	}

	switch remoteErr.Code {
	case wire.ErrAuthResponseExpired:
		s.mu.Lock()
		already := s.pendingReauth
		if !already {
			s.pendingReauth = true
		}
		s.mu.Unlock()
		if already {
			logger.Debug("ignoring AUTH_RESPONSE_EXPIRED, re-auth already in progress")
			return
		}
		logger.Warn("auth response expired, re-authenticating")
		go s.runReauthFlow(logger, remoteErr.Challenge)

	case wire.ErrInvalidRequest:
		logger.Warn("server reported invalid request", "message", remoteErr.Message)
		err := &cdperrors.InvalidRequestError{Msg: remoteErr.Message}
		s.pending.Clear(err)
		s.metrics.SetPendingCount(0)
		s.rejectInFlightTimeFutures(err)

	case wire.ErrUnsupportedContainerType:
		logger.Warn("server reported unsupported container type", "message", remoteErr.Message)
		err := &cdperrors.CommunicationError{Msg: remoteErr.Message}
		s.pending.Clear(err)
		s.metrics.SetPendingCount(0)
		s.rejectInFlightTimeFutures(err)

	default:
		logger.Warn("unrecognized remote error", "code", remoteErr.Code, "message", remoteErr.Message)
	}
}
