package rtc

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dkeye/Fanhub/internal/config"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

var ErrBadICEURL = errors.New("ice server url must use stun, turn or turns scheme")

func DefaultICEServers() []webrtc.ICEServer {
	return []webrtc.ICEServer{
		{
			URLs: []string{"stun:stun.l.google.com:19302"},
		},
	}
}

// ICEServers converts configured servers, falling back to the public STUN
// server when none are configured.
func ICEServers(list []config.ICEServer) ([]webrtc.ICEServer, error) {
	if len(list) == 0 {
		return DefaultICEServers(), nil
	}
	out := make([]webrtc.ICEServer, 0, len(list))
	for i, s := range list {
		if len(s.URLs) == 0 {
			return nil, fmt.Errorf("ice server %d: no urls", i)
		}
		for _, u := range s.URLs {
			if !strings.HasPrefix(u, "stun:") && !strings.HasPrefix(u, "turn:") && !strings.HasPrefix(u, "turns:") {
				return nil, fmt.Errorf("ice server %d %q: %w", i, u, ErrBadICEURL)
			}
		}
		srv := webrtc.ICEServer{URLs: s.URLs}
		if s.Username != "" {
			srv.Username = s.Username
			srv.Credential = s.Credential
		}
		out = append(out, srv)
	}
	return out, nil
}

// CheckConfiguration lets pion validate the servers by building and closing a
// throwaway peer connection.
func CheckConfiguration(servers []webrtc.ICEServer) error {
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{ICEServers: servers})
	if err != nil {
		return fmt.Errorf("ice configuration: %w", err)
	}
	if err := pc.Close(); err != nil {
		log.Warn().Err(err).Str("module", "webrtc").Msg("close probe peer connection")
	}
	log.Info().Str("module", "webrtc").Int("servers", len(servers)).Msg("ice configuration ok")
	return nil
}
