package signal

import "github.com/dkeye/Fanhub/internal/domain"

func (ctl *SignalWSController) handlePing(
	conn *WsSignalConn,
) {
	resp := struct {
		Type string `json:"type"`
	}{
		Type: domain.EventPong,
	}
	ctl.sendJSON(conn, resp)
}
