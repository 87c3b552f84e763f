package rtc

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pion/webrtc/v4"
)

var (
	ErrEmptySDP     = errors.New("empty sdp")
	ErrSDPType      = errors.New("unexpected sdp type")
	ErrBadCandidate = errors.New("malformed ice candidate")
)

// ValidateOffer checks that desc is a parseable offer.
func ValidateOffer(desc webrtc.SessionDescription) error {
	if desc.Type != webrtc.SDPTypeOffer {
		return ErrSDPType
	}
	return validateSDP(desc)
}

// ValidateAnswer accepts final and provisional answers.
func ValidateAnswer(desc webrtc.SessionDescription) error {
	if desc.Type != webrtc.SDPTypeAnswer && desc.Type != webrtc.SDPTypePranswer {
		return ErrSDPType
	}
	return validateSDP(desc)
}

func validateSDP(desc webrtc.SessionDescription) error {
	if strings.TrimSpace(desc.SDP) == "" {
		return ErrEmptySDP
	}
	if _, err := desc.Unmarshal(); err != nil {
		return fmt.Errorf("parse sdp: %w", err)
	}
	return nil
}

// ValidateCandidate accepts an empty candidate, which marks end of candidates.
func ValidateCandidate(ci webrtc.ICECandidateInit) error {
	if ci.Candidate == "" {
		return nil
	}
	if !strings.HasPrefix(ci.Candidate, "candidate:") {
		return ErrBadCandidate
	}
	return nil
}
