package signal

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dkeye/Fanhub/internal/adapters/rtc"
	"github.com/dkeye/Fanhub/internal/domain"
	"github.com/pion/webrtc/v4"
)

// Error codes sent to clients.
const (
	errBadPayload        = "bad_payload"
	errAlreadyBound      = "already_bound"
	errForbidden         = "forbidden"
	errNotJoined         = "not_joined"
	errRateLimited       = "rate_limited"
	errSelfCall          = "self_call"
	errBusy              = "busy"
	errUnknownCall       = "unknown_call"
	errInvalidTransition = "invalid_transition"
	errInternal          = "internal"
)

const maxMessageLen = 16 << 10

var (
	ErrBadPayload = errors.New("bad payload")
	errMissingID  = fmt.Errorf("%w: missing or invalid id", ErrBadPayload)
)

type payload interface {
	Validate() error
}

// decode unmarshals data into p and validates it.
func decode(data []byte, p payload) error {
	if err := json.Unmarshal(data, p); err != nil {
		return fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	return p.Validate()
}

type joinUserPayload struct {
	UserID domain.UserID `json:"userId"`
}

func (p *joinUserPayload) Validate() error {
	if !p.UserID.Valid() {
		return errMissingID
	}
	return nil
}

type groupPayload struct {
	ChatID domain.ChatID `json:"chatId"`
}

func (p *groupPayload) Validate() error {
	if !p.ChatID.Valid() {
		return errMissingID
	}
	return nil
}

func validateText(msg string) error {
	if strings.TrimSpace(msg) == "" {
		return fmt.Errorf("%w: empty message", ErrBadPayload)
	}
	if len(msg) > maxMessageLen {
		return fmt.Errorf("%w: message too long", ErrBadPayload)
	}
	return nil
}

type privateMessagePayload struct {
	ToUserID  domain.UserID `json:"toUserId"`
	Message   string        `json:"message"`
	Timestamp int64         `json:"timestamp"`
}

func (p *privateMessagePayload) Validate() error {
	if !p.ToUserID.Valid() {
		return errMissingID
	}
	return validateText(p.Message)
}

type groupMessagePayload struct {
	ChatID    domain.ChatID `json:"chatId"`
	Message   string        `json:"message"`
	Timestamp int64         `json:"timestamp"`
}

func (p *groupMessagePayload) Validate() error {
	if !p.ChatID.Valid() {
		return errMissingID
	}
	return validateText(p.Message)
}

type startCallPayload struct {
	ToUserID domain.UserID   `json:"toUserId"`
	Kind     domain.CallKind `json:"kind"`
}

// Validate defaults a missing kind to audio.
func (p *startCallPayload) Validate() error {
	if !p.ToUserID.Valid() {
		return errMissingID
	}
	if p.Kind == "" {
		p.Kind = domain.CallAudio
	}
	if !p.Kind.Valid() {
		return fmt.Errorf("%w: unknown call kind %q", ErrBadPayload, p.Kind)
	}
	return nil
}

type callActionPayload struct {
	CallID domain.CallID `json:"callId"`
}

func (p *callActionPayload) Validate() error {
	if !p.CallID.Valid() {
		return errMissingID
	}
	return nil
}

// relayTarget is shared by every call scoped relay payload.
type relayTarget struct {
	CallID   domain.CallID `json:"callId"`
	ToUserID domain.UserID `json:"toUserId"`
}

func (p *relayTarget) validate() error {
	if !p.CallID.Valid() || !p.ToUserID.Valid() {
		return errMissingID
	}
	return nil
}

type offerPayload struct {
	relayTarget
	Offer webrtc.SessionDescription `json:"offer"`
}

func (p *offerPayload) Validate() error {
	if err := p.relayTarget.validate(); err != nil {
		return err
	}
	if err := rtc.ValidateOffer(p.Offer); err != nil {
		return fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	return nil
}

type answerPayload struct {
	relayTarget
	Answer webrtc.SessionDescription `json:"answer"`
}

func (p *answerPayload) Validate() error {
	if err := p.relayTarget.validate(); err != nil {
		return err
	}
	if err := rtc.ValidateAnswer(p.Answer); err != nil {
		return fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	return nil
}

type candidatePayload struct {
	relayTarget
	Candidate webrtc.ICECandidateInit `json:"candidate"`
}

func (p *candidatePayload) Validate() error {
	if err := p.relayTarget.validate(); err != nil {
		return err
	}
	if err := rtc.ValidateCandidate(p.Candidate); err != nil {
		return fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	return nil
}

type cameraStatePayload struct {
	relayTarget
	CameraEnabled *bool `json:"cameraEnabled"`
}

func (p *cameraStatePayload) Validate() error {
	if err := p.relayTarget.validate(); err != nil {
		return err
	}
	if p.CameraEnabled == nil {
		return fmt.Errorf("%w: cameraEnabled is required", ErrBadPayload)
	}
	return nil
}
