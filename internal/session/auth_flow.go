package session

import (
	"context"
	"encoding/json"

	"golang.org/x/exp/slog"

	"github.com/cdptech/cdpclient/internal/cdperrors"
	"github.com/cdptech/cdpclient/internal/pending"
	"github.com/cdptech/cdpclient/internal/wire"
)

// authenticate drives AWAITING_CREDENTIALS/AUTHENTICATING (spec.md §4.4):
// prompt the embedder, send a bare AuthRequest, await the bare
// AuthResponse, and loop back to re-prompt (carrying the prior result so
// the embedder can react to NEW_PASSWORD_REQUIRED etc.) until GRANTED or
// GRANTED_PASSWORD_WILL_EXPIRE_SOON, or the embedder rejects.
func (s *Session) authenticate(ctx context.Context, recv <-chan []byte, errCh <-chan error, closeCh <-chan struct{}, challenge []byte) error {
	var prior *wire.AuthResult
	for {
		s.setState(StateAwaitingCredentials)
		creds, err := s.requestCredentials(ctx, prior, errCh, closeCh)
		if err != nil {
			return err
		}
		if creds == nil {
			return &cdperrors.ConnectionError{Msg: "credentials rejected"}
		}
		s.mu.Lock()
		s.credentials = creds
		s.mu.Unlock()

		authReq, err := buildAuthRequest(challenge, creds)
		if err != nil {
			return err
		}
		frame, err := wire.EncodeBare(authReq)
		if err != nil {
			return err
		}
		s.setState(StateAuthenticating)
		if err := s.send(frame); err != nil {
			return err
		}

		respFrame, err := s.awaitFrame(ctx, recv, errCh, closeCh)
		if err != nil {
			return err
		}
		result, err := decodeAuthResult(respFrame)
		if err != nil {
			return &cdperrors.CommunicationError{Msg: "malformed auth response"}
		}
		if result.Code == wire.AuthGranted || result.Code == wire.AuthGrantedPasswordExpiresSoon {
			return nil
		}
		prior = &result
	}
}

func decodeAuthResult(frame []byte) (wire.AuthResult, error) {
	var r wire.AuthResult
	err := json.Unmarshal(frame, &r)
	return r, err
}

func (s *Session) requestCredentials(ctx context.Context, prior *wire.AuthResult, errCh <-chan error, closeCh <-chan struct{}) (map[string]string, error) {
	req := newCredentialsRequest(prior)
	s.listener.OnCredentialsRequested(req)
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case err := <-errCh:
		return nil, &cdperrors.ConnectionError{Msg: "transport error", Cause: err}
	case <-closeCh:
		return nil, &cdperrors.ConnectionError{Msg: "transport closed"}
	case res := <-req.result:
		if res.rejected {
			return nil, nil
		}
		return res.creds, nil
	}
}

// runReauthFlow handles RemoteError{AUTH_RESPONSE_EXPIRED} (spec.md
// §4.4): prompt for fresh credentials, send a ReAuthRequest, and await
// its ReAuthResponse via the single in-flight reauthRespFuture that
// dispatchFrame resolves. Runs in its own goroutine so it never blocks
// the dispatch loop; loops on any non-granted result until the embedder
// gives up.
func (s *Session) runReauthFlow(logger *slog.Logger, challenge []byte) {
	defer func() {
		s.mu.Lock()
		s.pendingReauth = false
		s.mu.Unlock()
	}()

	var prior *wire.AuthResult
	for {
		req := newCredentialsRequest(prior)
		s.listener.OnCredentialsRequested(req)
		res := <-req.result
		if res.rejected {
			logger.Warn("re-authentication rejected by embedder")
			return
		}

		authReq, err := buildAuthRequest(challenge, res.creds)
		if err != nil {
			logger.Warn("re-authentication credentials invalid", "error", err)
			return
		}

		f := pending.NewFuture()
		s.mu.Lock()
		s.reauthRespFuture = f
		s.mu.Unlock()

		frame, err := wire.Encode(wire.MsgReAuthRequest, authReq)
		if err != nil {
			logger.Error("failed to encode re-auth request", "error", err)
			return
		}
		if err := s.send(frame); err != nil {
			logger.Warn("failed to send re-auth request", "error", err)
			return
		}

		outcome := f.Recv()
		if outcome.Err != nil {
			logger.Warn("re-authentication failed", "error", outcome.Err)
			return
		}
		result := outcome.Value.(wire.AuthResult)
		if result.Code == wire.AuthGranted || result.Code == wire.AuthGrantedPasswordExpiresSoon {
			logger.Info("re-authentication granted")
			return
		}
		prior = &result
	}
}
