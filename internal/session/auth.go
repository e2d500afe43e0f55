package session

import (
	"crypto/sha256"
	"strings"

	"github.com/cdptech/cdpclient/internal/cdperrors"
	"github.com/cdptech/cdpclient/internal/wire"
)

// hashPassword computes SHA256(challenge || ':' || SHA256(lower(user_id)
// || ':' || password)), both digests raw binary (spec.md §6). The
// challenge is never passed through a text codec (spec.md §9): it arrives
// and stays as opaque bytes end to end.
func hashPassword(challenge []byte, userID, password string) []byte {
	inner := sha256.New()
	inner.Write([]byte(strings.ToLower(userID)))
	inner.Write([]byte(":"))
	inner.Write([]byte(password))
	innerSum := inner.Sum(nil)

	outer := sha256.New()
	outer.Write(challenge)
	outer.Write([]byte(":"))
	outer.Write(innerSum)
	return outer.Sum(nil)
}

// buildAuthRequest composes the AuthRequest body. user_id on the wire is
// NOT lower-cased; only the copy fed into the hash is (spec.md §6).
func buildAuthRequest(challenge []byte, creds map[string]string) (wire.AuthRequest, error) {
	userID, ok := creds["Username"]
	if !ok {
		return wire.AuthRequest{}, &cdperrors.UnknownError{Msg: "credentials missing \"Username\""}
	}
	password, ok := creds["Password"]
	if !ok {
		return wire.AuthRequest{}, &cdperrors.UnknownError{Msg: "credentials missing \"Password\""}
	}

	response := hashPassword(challenge, userID, password)
	return wire.AuthRequest{
		UserID: userID,
		ChallengeResponse: []wire.ChallengeResponse{
			{Type: "PasswordHash", Response: response},
		},
	}, nil
}
