package tcpserver

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/campusgate/gatekeeper/internal/gateway/service"
	"github.com/campusgate/gatekeeper/internal/gateway/store"
	"github.com/campusgate/gatekeeper/internal/gateway/types"
)

// maxDeviceLine bounds a single inbound message; template payloads are the
// largest thing a reader sends.
const maxDeviceLine = 1 << 20

// session is one device connection. It implements service.DeviceConn so
// the registry can push control messages down the same socket; the write
// mutex serializes those pushes against response tokens.
type session struct {
	srv  *Server
	conn net.Conn

	writeMu sync.Mutex

	// deviceID is set once the device has announced itself with
	// DEVICE_INFO; empty until then.
	deviceID string
}

func newSession(srv *Server, conn net.Conn) *session {
	return &session{srv: srv, conn: conn}
}

// SendControl writes a gateway-originated JSON message to the device.
func (s *session) SendControl(msg any) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err = s.conn.Write(append(raw, '\n'))
	return err
}

func (s *session) writeToken(tok types.Token) {
	s.writeLine(string(tok))
}

func (s *session) writeLine(line string) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := s.conn.Write([]byte(line + "\n")); err != nil {
		s.srv.logger.Debug("device write failed",
			zap.String("remote", s.conn.RemoteAddr().String()), zap.Error(err))
	}
}

// serve runs the read loop until the connection drops. Messages are
// newline-delimited JSON; a line that fails to parse answers ERROR and the
// connection stays open so the device can retry.
func (s *session) serve(ctx context.Context) {
	remote := s.conn.RemoteAddr().String()
	s.srv.logger.Info("device connected", zap.String("remote", remote))

	defer func() {
		s.conn.Close()
		if s.deviceID != "" {
			s.srv.registry.Remove(context.WithoutCancel(ctx), s.deviceID, s)
		}
		s.srv.logger.Info("device disconnected",
			zap.String("remote", remote), zap.String("device_id", s.deviceID))
	}()

	scanner := bufio.NewScanner(s.conn)
	scanner.Buffer(make([]byte, 0, 4096), maxDeviceLine)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var msg types.DeviceMessage
		if err := json.Unmarshal(line, &msg); err != nil {
			s.srv.logger.Warn("device message parse failed",
				zap.String("remote", remote), zap.Error(err))
			s.writeToken(types.TokenError)
			continue
		}

		s.handle(ctx, msg)

		if ctx.Err() != nil {
			return
		}
	}

	// EOF surfaces as a nil scan error; anything else is either our own
	// teardown closing the socket or a genuinely broken link.
	if err := scanner.Err(); err != nil && !errors.Is(err, net.ErrClosed) {
		s.srv.logger.Debug("device read ended",
			zap.String("remote", remote), zap.Error(err))
	}
}

// handle dispatches one message and writes exactly one response token.
func (s *session) handle(ctx context.Context, msg types.DeviceMessage) {
	deviceID := msg.DeviceID
	if deviceID == "" {
		deviceID = s.deviceID
	}

	switch msg.Type {
	case types.MsgDeviceInfo:
		rec, err := s.srv.registry.Register(ctx, msg.DeviceID, msg.Location, s)
		if err != nil {
			s.srv.logger.Warn("device registration failed",
				zap.String("device_id", msg.DeviceID), zap.Error(err))
			s.writeToken(types.TokenError)
			return
		}
		s.deviceID = rec.DeviceID
		s.writeToken(types.TokenOK)

	case types.MsgHeartbeat:
		if err := s.srv.registry.Touch(ctx, deviceID); err != nil {
			s.writeToken(types.TokenError)
			return
		}
		s.writeToken(types.TokenOK)

	case types.MsgAccess:
		tok, err := s.srv.access.Decide(ctx, service.AccessRequest{
			CardID:     msg.CardID,
			DeviceID:   deviceID,
			Match:      msg.Authorized,
			Accuracy:   msg.Accuracy,
			Timestamp:  msg.Timestamp,
			RemoteAddr: s.conn.RemoteAddr().String(),
		})
		if err != nil {
			s.srv.logger.Error("access decision failed",
				zap.String("card_id", msg.CardID), zap.Error(err))
			s.writeToken(types.TokenError)
			return
		}
		s.writeToken(tok)

	case types.MsgRegistration:
		_, err := s.srv.enrollment.Intake(ctx, service.IntakeRequest{
			CardID:        msg.CardID,
			DeviceID:      deviceID,
			TemplateData:  msg.TemplateData,
			FingerprintID: msg.FingerID,
			Timestamp:     msg.Timestamp,
		})
		switch {
		case err == nil:
			s.writeToken(types.TokenOK)
		case errors.Is(err, store.ErrDuplicatePending):
			s.writeToken(types.TokenDuplicate)
		default:
			s.srv.logger.Error("registration intake failed",
				zap.String("card_id", msg.CardID), zap.Error(err))
			s.writeToken(types.TokenError)
		}

	case types.MsgNextFingerID:
		id, err := s.srv.enrollment.NextFingerprintID(ctx)
		if err != nil {
			s.srv.logger.Error("fingerprint id allocation failed", zap.Error(err))
			s.writeToken(types.TokenError)
			return
		}
		s.writeLine(strconv.FormatInt(id, 10))

	default:
		s.writeToken(types.TokenInvalidCommand)
	}
}
