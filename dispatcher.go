package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"

	"golang.org/x/time/rate"

	"relaychat/server/internal/frame"
	"relaychat/server/internal/media"
)

// handleConnection owns one TCP connection end-to-end: it reads frames
// sequentially, dispatches each to the matching handler, and writes the
// response frame before reading the next one (spec.md §4.7, §5 — "no
// request from a given connection is processed until the previous one has
// produced its response"). Grounded on client.go's handleClient/
// processControl read-loop-then-switch shape, generalized from WebTransport
// control streams to the length-prefixed AEAD frame codec.
func handleConnection(ctx context.Context, conn net.Conn, deps *Deps) {
	defer conn.Close()

	codec := frame.New(conn, deps.AEAD)
	sess := NewSession(codec)
	limiter := rate.NewLimiter(deps.RateLimit, deps.RateBurst)

	defer func() {
		username := sess.getUsername()
		if username != "" {
			deps.Presence.Unbind(username, sess)
			notifyFriendsChanged(deps, username, "")
		}
		for _, id := range sess.uploadRequestIDs() {
			if removed, ok := deps.Uploads.Get(id); ok {
				deps.Uploads.Remove(id)
				media.RemoveAbandoned(removed.FilePath)
			}
		}
	}()

	for {
		payload, err := codec.ReadFrame()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, frame.ErrShortRead) {
				if !errors.Is(err, io.EOF) {
					slog.Debug("connection closed", "remote", conn.RemoteAddr(), "err", err)
				}
				return
			}
			// A declared-length or decryption failure is a malformed
			// request, not a broken connection (spec.md §4.1/§7,
			// SPEC_FULL.md §9 Q2): report it and keep reading.
			writeFrame(sess, Response{Status: StatusError, Message: "invalid request format"})
			continue
		}

		var req Request
		if err := json.Unmarshal(payload, &req); err != nil {
			writeFrame(sess, Response{Status: StatusError, Message: "invalid request format"})
			continue
		}

		if !limiter.Allow() {
			writeFrame(sess, Response{Type: req.Type, RequestID: req.RequestID, Status: StatusError, Message: "rate limit exceeded"})
			continue
		}

		resp, terminate := dispatch(ctx, deps, sess, req)
		if resp != nil {
			if err := writeFrame(sess, *resp); err != nil {
				slog.Debug("write frame failed, dropping connection", "remote", conn.RemoteAddr(), "err", err)
				return
			}
		}
		if terminate {
			return
		}
	}
}

func writeFrame(sess *Session, resp Response) error {
	data, err := json.Marshal(resp)
	if err != nil {
		slog.Error("marshal response", "err", err)
		return err
	}
	return sess.WriteFrame(data)
}

// dispatch routes one decoded request to its handler and returns the
// response to write (nil suppresses a response, used nowhere currently but
// kept for handler symmetry) and whether the connection loop should
// terminate after writing it.
func dispatch(ctx context.Context, deps *Deps, sess *Session, req Request) (*Response, bool) {
	switch req.Type {
	case TypeAuthenticate:
		return handleAuthenticate(deps, sess, req), false
	case TypeSendMessage:
		return handleSendMessage(deps, sess, req), false
	case TypeSendMedia:
		return handleSendMedia(ctx, deps, sess, req), false
	case TypeDownloadMedia:
		return handleDownloadMedia(deps, req), false
	case TypeGetChatHistoryPaginated:
		return handleGetChatHistoryPaginated(deps, req), false
	case TypeAddFriend:
		return handleAddFriend(deps, sess, req), false
	case TypeUpdateRemarks:
		return handleUpdateRemarks(deps, sess, req), false
	case TypeUpdateSign:
		return handleUpdateSign(deps, sess, req), false
	case TypeUpdateName:
		return handleUpdateName(deps, sess, req), false
	case TypeUploadAvatar:
		return handleUploadAvatar(deps, sess, req), false
	case TypeGetUserInfo:
		return handleGetUserInfo(deps, req), false
	case TypeDeleteMessages:
		return handleDeleteMessages(deps, sess, req), false
	case TypeUserRegister:
		return handleUserRegister(deps, req), false
	case TypeExit:
		return &Response{Type: TypeExit, RequestID: req.RequestID, Status: StatusSuccess}, true
	default:
		return &Response{
			Type:      req.Type,
			RequestID: req.RequestID,
			Status:    StatusError,
			Message:   "unknown type",
		}, false
	}
}
