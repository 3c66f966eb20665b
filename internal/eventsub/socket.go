package eventsub

import (
	"context"

	"github.com/gorilla/websocket"
)

// Socket is one push-subscription websocket connection.
type Socket interface {
	ReadFrame() (Frame, error)
	Close() error
}

// Dialer opens a Socket against a websocket URL.
type Dialer interface {
	Dial(ctx context.Context, url string) (Socket, error)
}

// WSDialer dials with gorilla/websocket.
type WSDialer struct{}

func (WSDialer) Dial(ctx context.Context, url string) (Socket, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return &wsSocket{conn: conn}, nil
}

type wsSocket struct {
	conn *websocket.Conn
}

func (s *wsSocket) ReadFrame() (Frame, error) {
	var f Frame
	if err := s.conn.ReadJSON(&f); err != nil {
		return Frame{}, err
	}
	return f, nil
}

func (s *wsSocket) Close() error {
	return s.conn.Close()
}
