// README: NATS subscriber for device fixes.
package ingest

import (
	"context"
	"log"

	"github.com/nats-io/nats.go"
)

const DefaultNATSSubject = "fleet.fixes"

type NATSSubscriber struct {
	conn    *nats.Conn
	pool    *Pool
	subject string
	sub     *nats.Subscription
}

func NewNATSSubscriber(conn *nats.Conn, pool *Pool, subject string) *NATSSubscriber {
	if subject == "" {
		subject = DefaultNATSSubject
	}
	return &NATSSubscriber{conn: conn, pool: pool, subject: subject}
}

func (s *NATSSubscriber) Start() error {
	sub, err := s.conn.Subscribe(s.subject, s.handleMessage)
	if err != nil {
		return err
	}
	s.sub = sub
	return nil
}

func (s *NATSSubscriber) Stop() error {
	if s.sub == nil {
		return nil
	}
	return s.sub.Unsubscribe()
}

func (s *NATSSubscriber) handleMessage(m *nats.Msg) {
	cmd, err := decodeFix(m.Data, "")
	if err != nil {
		s.pool.reject()
		log.Printf("nats: invalid fix on %s: %v", m.Subject, err)
		return
	}
	if err := s.pool.Submit(context.Background(), cmd); err != nil {
		log.Printf("nats: submit fix for %s: %v", cmd.AssetID, err)
	}
}
