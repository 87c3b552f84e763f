// Package domain contains entity without logic, just meta-data
package domain

import (
	"bytes"
	"fmt"
	"strconv"
)

type (
	UserID int64
	ChatID int64
)

func (id UserID) Valid() bool { return id > 0 }
func (id ChatID) Valid() bool { return id > 0 }

func (id UserID) String() string { return strconv.FormatInt(int64(id), 10) }
func (id ChatID) String() string { return strconv.FormatInt(int64(id), 10) }

// Browsers send ids either as numbers or as strings taken from storage,
// so both forms decode.
func (id *UserID) UnmarshalJSON(b []byte) error {
	v, err := parseID(b)
	if err != nil {
		return fmt.Errorf("user id: %w", err)
	}
	*id = UserID(v)
	return nil
}

func (id *ChatID) UnmarshalJSON(b []byte) error {
	v, err := parseID(b)
	if err != nil {
		return fmt.Errorf("chat id: %w", err)
	}
	*id = ChatID(v)
	return nil
}

func parseID(b []byte) (int64, error) {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return 0, nil
	}
	if len(b) >= 2 && b[0] == '"' && b[len(b)-1] == '"' {
		b = b[1 : len(b)-1]
	}
	return strconv.ParseInt(string(b), 10, 64)
}
