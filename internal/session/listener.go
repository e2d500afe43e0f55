package session

import "github.com/cdptech/cdpclient/internal/wire"

// Listener is the embedder callback interface spec.md §6 names: the
// application decides whether to accept a connecting server's identity
// and supplies credentials when challenged.
type Listener interface {
	OnApplicationAcceptanceRequested(req *AcceptanceRequest)
	OnCredentialsRequested(req *CredentialsRequest)
}

// AcceptanceRequest carries the connecting server's identification.
// Exactly one of Accept/Reject must be called, from any goroutine.
type AcceptanceRequest struct {
	Host                  string
	Port                  int
	SystemName            string
	ApplicationName       string
	CDPVersion            string
	SystemUseNotification string

	result chan bool
}

func newAcceptanceRequest(host string, port int, h wire.Hello) *AcceptanceRequest {
	return &AcceptanceRequest{
		Host:                  host,
		Port:                  port,
		SystemName:            h.SystemName,
		ApplicationName:       h.ApplicationName,
		CDPVersion:            h.CDPVersion(),
		SystemUseNotification: h.SystemUseNotification,
		result:                make(chan bool, 1),
	}
}

func (r *AcceptanceRequest) Accept() { r.result <- true }
func (r *AcceptanceRequest) Reject() { r.result <- false }

// CredentialsRequest asks the embedder for credentials, optionally
// carrying the result of a prior attempt (UserAuthResult). Accept or
// Reject must be called exactly once, from any goroutine.
type CredentialsRequest struct {
	authCode                            wire.AuthResultCode
	authText                             string
	additionalChallengeResponseRequired []string

	result chan credentialsResult
}

type credentialsResult struct {
	creds    map[string]string
	rejected bool
}

func newCredentialsRequest(prior *wire.AuthResult) *CredentialsRequest {
	r := &CredentialsRequest{result: make(chan credentialsResult, 1)}
	if prior != nil {
		r.authCode = prior.Code
		r.authText = prior.Text
		r.additionalChallengeResponseRequired = prior.AdditionalChallengeResponseRequired
	}
	return r
}

// UserAuthResult exposes the outcome of the previous authentication
// attempt, if any (zero-value AuthCredentialsRequired on the first ask).
func (r *CredentialsRequest) UserAuthResult() (code wire.AuthResultCode, text string, additionalChallengeResponseRequired []string) {
	return r.authCode, r.authText, r.additionalChallengeResponseRequired
}

func (r *CredentialsRequest) Accept(creds map[string]string) {
	r.result <- credentialsResult{creds: creds}
}

func (r *CredentialsRequest) Reject() {
	r.result <- credentialsResult{rejected: true}
}
