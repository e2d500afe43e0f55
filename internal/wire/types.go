// Package wire implements the concrete message codec consumed by Session.
// The upstream protocol's real wire format is a generated protobuf codec
// that spec.md explicitly treats as an external collaborator; this package
// is a JSON-encoded stand-in with the same message shapes, so the rest of
// the client has a runnable Codec to drive.
package wire

import "fmt"

// NodeKind enumerates the tree position kinds (spec.md §3).
type NodeKind int

const (
	KindUndefined NodeKind = iota
	KindSystem
	KindApplication
	KindComponent
	KindObject
	KindMessage
	KindBaseObject
	KindProperty
	KindSetting
	KindEnum
	KindOperator
	KindNode
	KindUserType
)

// ValueType enumerates the scalar wire types carried by a Variant.
type ValueType int

const (
	ValueUndefined ValueType = iota
	ValueDouble
	ValueFloat
	ValueInt64
	ValueUint64
	ValueInt
	ValueUint
	ValueShort
	ValueUshort
	ValueChar
	ValueUchar
	ValueBool
	ValueString
)

// NodeFlags is a bitset. READ_ONLY and LEAF are named by spec.md §3;
// IsLocal is an internal addition (SPEC_FULL.md §12.2) used only during
// root selection to find the "local" application among the system's
// children, and is never exposed past that point.
type NodeFlags uint32

const (
	FlagReadOnly NodeFlags = 1 << iota
	FlagLeaf
	FlagIsLocal
)

func (f NodeFlags) ReadOnly() bool { return f&FlagReadOnly != 0 }
func (f NodeFlags) Leaf() bool     { return f&FlagLeaf != 0 }
func (f NodeFlags) IsLocal() bool  { return f&FlagIsLocal != 0 }

// NodeInfo is the metadata for one tree position as carried in a
// StructureResponse.
type NodeInfo struct {
	ID        uint32    `json:"id"`
	Name      string    `json:"name"`
	Kind      NodeKind  `json:"kind"`
	ValueType ValueType `json:"value_type"`
	Flags     NodeFlags `json:"flags"`
}

// GetterSampleFrequency is the unexplained protocol-prescribed "fs" field
// on every GetterRequest. spec.md §9 treats it as a fixed hint, not a
// tunable.
const GetterSampleFrequency = 5

// AuthResultCode enumerates the wire auth outcomes (spec.md §6).
type AuthResultCode int

const (
	AuthCredentialsRequired        AuthResultCode = 0
	AuthGranted                    AuthResultCode = 1
	AuthGrantedPasswordExpiresSoon AuthResultCode = 2
	AuthNewPasswordRequired        AuthResultCode = 10
	AuthInvalidChallengeResponse   AuthResultCode = 11
	AuthAdditionalResponseRequired AuthResultCode = 12
	AuthTemporarilyBlocked         AuthResultCode = 13
	AuthReauthenticationRequired   AuthResultCode = 14
)

// RemoteErrorCode enumerates the wire error codes (spec.md §6).
type RemoteErrorCode string

const (
	ErrInvalidRequest            RemoteErrorCode = "INVALID_REQUEST"
	ErrUnsupportedContainerType  RemoteErrorCode = "UNSUPPORTED_CONTAINER_TYPE"
	ErrAuthResponseExpired       RemoteErrorCode = "AUTH_RESPONSE_EXPIRED"
)

// MessageType tags an Envelope body (spec.md §6).
type MessageType string

const (
	MsgStructureRequest       MessageType = "StructureRequest"
	MsgStructureResponse      MessageType = "StructureResponse"
	MsgGetterRequest          MessageType = "GetterRequest"
	MsgGetterResponse         MessageType = "GetterResponse"
	MsgSetterRequest          MessageType = "SetterRequest"
	MsgStructureChangeResp    MessageType = "StructureChangeResponse"
	MsgCurrentTimeRequest     MessageType = "CurrentTimeRequest"
	MsgCurrentTimeResponse    MessageType = "CurrentTimeResponse"
	MsgReAuthRequest          MessageType = "ReAuthRequest"
	MsgReAuthResponse         MessageType = "ReAuthResponse"
	MsgRemoteError            MessageType = "RemoteError"
)

// Hello is the server's bare opening frame.
type Hello struct {
	CompatVersion         int    `json:"compat_version"`
	SystemName            string `json:"system_name"`
	ApplicationName       string `json:"application_name"`
	VersionMajor          int    `json:"version_major"`
	VersionMinor          int    `json:"version_minor"`
	VersionPatch          int    `json:"version_patch"`
	Challenge             []byte `json:"challenge,omitempty"`
	SystemUseNotification string `json:"system_use_notification,omitempty"`
}

// CDPVersion renders the "{major}.{minor}.{patch}" version string spec.md
// §4.4 requires the session to capture from Hello.
func (h Hello) CDPVersion() string {
	return fmt.Sprintf("%d.%d.%d", h.VersionMajor, h.VersionMinor, h.VersionPatch)
}

// ChallengeResponse is one entry of an AuthRequest's response list.
type ChallengeResponse struct {
	Type     string `json:"type"`
	Response []byte `json:"response"`
}

// AuthRequest is a bare client frame sent during the auth handshake, and
// also the body of a ReAuthRequest envelope.
type AuthRequest struct {
	UserID            string              `json:"user_id"`
	ChallengeResponse []ChallengeResponse `json:"challenge_response"`
}

// AuthResult is the shared shape of AuthResponse and ReAuthResponse bodies.
type AuthResult struct {
	Code                                AuthResultCode `json:"code"`
	Text                                string         `json:"text,omitempty"`
	AdditionalChallengeResponseRequired []string       `json:"additional_challenge_response_required,omitempty"`
}

// StructureRequest asks for the subtree rooted at each listed node id. An
// empty NodeIDs means "root/system".
type StructureRequest struct {
	NodeIDs []uint32 `json:"node_ids"`
}

// StructureResponse delivers the (possibly root/system) subtree. NodeID is
// 0 for the root/system response.
type StructureResponse struct {
	NodeID   uint32     `json:"node_id"`
	Children []NodeInfo `json:"children"`
}

// GetterRequest subscribes (stop=false) or unsubscribes (stop=true) to
// value updates for one node.
type GetterRequest struct {
	NodeID uint32 `json:"node_id"`
	FS     int    `json:"fs"`
	Stop   bool   `json:"stop"`
}

// GetterResponse carries one or more value samples.
type GetterResponse struct {
	Values []Variant `json:"values"`
}

// SetterRequest is a fire-and-forget value write.
type SetterRequest struct {
	Value Variant `json:"value"`
}

// StructureChangeResponse lists nodes whose structure changed and must be
// re-fetched.
type StructureChangeResponse struct {
	NodeIDs []uint32 `json:"node_ids"`
}

// CurrentTimeRequest has no body.
type CurrentTimeRequest struct{}

// CurrentTimeResponse carries the server's wall clock at send time.
type CurrentTimeResponse struct {
	ServerTimeNS int64 `json:"server_time_ns"`
}

// RemoteError is the server's error envelope. Challenge is populated only
// for AUTH_RESPONSE_EXPIRED.
type RemoteError struct {
	Code      RemoteErrorCode `json:"code"`
	Message   string          `json:"message"`
	Challenge []byte          `json:"challenge,omitempty"`
}
