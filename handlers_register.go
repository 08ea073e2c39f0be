package main

import (
	"encoding/base64"
	"errors"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/alexedwards/argon2id"

	"relaychat/server/internal/captcha"
	"relaychat/server/store"
)

// handleUserRegister dispatches a user_register request to the captcha
// state machine step its step field names (spec.md §4.10, C10).
func handleUserRegister(deps *Deps, req Request) *Response {
	switch req.Step {
	case 1:
		return handleRegisterStep1(deps, req)
	case 2:
		return handleRegisterStep2(deps, req)
	case 3:
		return handleRegisterStep3(deps, req)
	case 4:
		return handleRegisterStep4(deps, req)
	default:
		return &Response{Type: TypeUserRegister, RequestID: req.RequestID, Status: StatusError, Message: "unknown step"}
	}
}

func handleRegisterStep1(deps *Deps, req Request) *Response {
	result, err := deps.Captcha.Register1(deps.Store.UserExists)
	if err != nil {
		slog.Error("register step 1", "err", err)
		return &Response{Type: TypeUserRegister, RequestID: req.RequestID, Status: StatusError, Message: "internal error"}
	}
	return &Response{
		Type: TypeUserRegister, RequestID: req.RequestID, Status: StatusSuccess,
		SessionID: result.SessionID, Username: result.Username,
		CaptchaImage: base64.StdEncoding.EncodeToString(result.CaptchaImage),
	}
}

func handleRegisterStep2(deps *Deps, req Request) *Response {
	result, err := deps.Captcha.Register2(req.SessionID, req.CaptchaInput)
	if err != nil {
		return registerErrorResponse(req, err)
	}
	if !result.Success {
		return &Response{
			Type: TypeUserRegister, RequestID: req.RequestID, Status: StatusFail, Message: "captcha mismatch",
			SessionID: req.SessionID, CaptchaImage: base64.StdEncoding.EncodeToString(result.CaptchaImage),
		}
	}
	return &Response{Type: TypeUserRegister, RequestID: req.RequestID, Status: StatusSuccess, SessionID: req.SessionID}
}

func handleRegisterStep3(deps *Deps, req Request) *Response {
	username, err := deps.Captcha.RequireVerified(req.SessionID)
	if err != nil {
		return registerErrorResponse(req, err)
	}

	if err := captcha.ValidatePasswordPolicy(req.Password); err != nil {
		return &Response{Type: TypeUserRegister, RequestID: req.RequestID, Status: StatusFail, Message: err.Error()}
	}

	// Avatar size is validated before any user/password work so an
	// oversized upload rejects the whole step instead of silently
	// registering an avatar-less account (spec.md §4.10; register.py's
	// register_3 rejects before the users-row insert). The session stays
	// Verified so the client can retry with a smaller avatar.
	var avatarData []byte
	if req.AvatarData != "" {
		avatarData, err = base64.StdEncoding.DecodeString(req.AvatarData)
		if err != nil {
			return &Response{Type: TypeUserRegister, RequestID: req.RequestID, Status: StatusFail, Message: "invalid avatar data"}
		}
		if int64(len(avatarData)) > MaxAvatarBytes {
			return &Response{Type: TypeUserRegister, RequestID: req.RequestID, Status: StatusFail, Message: "avatar too large"}
		}
	}

	hash, err := argon2id.CreateHash(req.Password, argon2id.DefaultParams)
	if err != nil {
		slog.Error("register step 3: hash password", "err", err)
		return &Response{Type: TypeUserRegister, RequestID: req.RequestID, Status: StatusError, Message: "internal error"}
	}

	if err := deps.Store.CreateUser(username, hash); err != nil {
		if errors.Is(err, store.ErrUserExists) {
			return &Response{Type: TypeUserRegister, RequestID: req.RequestID, Status: StatusFail, Message: "用户已存在"}
		}
		slog.Error("register step 3: create user", "err", err)
		return &Response{Type: TypeUserRegister, RequestID: req.RequestID, Status: StatusError, Message: "internal error"}
	}

	if req.Nickname != "" {
		if err := deps.Store.UpdateNickname(username, req.Nickname); err != nil {
			slog.Error("register step 3: update nickname", "err", err)
		}
	}
	if req.Signature != "" {
		if err := deps.Store.UpdateSignature(username, req.Signature); err != nil {
			slog.Error("register step 3: update signature", "err", err)
		}
	}
	if avatarData != nil {
		if path, err := deps.Media.SaveAvatar(username, time.Now(), avatarData); err != nil {
			slog.Error("register step 3: save avatar", "err", err)
		} else if err := deps.Store.UpdateAvatar(username, filepath.Base(path), path); err != nil {
			slog.Error("register step 3: persist avatar", "err", err)
		}
	}

	deps.Captcha.Complete(req.SessionID)
	return &Response{Type: TypeUserRegister, RequestID: req.RequestID, Status: StatusSuccess, Username: username}
}

func handleRegisterStep4(deps *Deps, req Request) *Response {
	img, err := deps.Captcha.Register4(req.SessionID)
	if err != nil {
		return registerErrorResponse(req, err)
	}
	return &Response{
		Type: TypeUserRegister, RequestID: req.RequestID, Status: StatusSuccess,
		SessionID: req.SessionID, CaptchaImage: base64.StdEncoding.EncodeToString(img),
	}
}

func registerErrorResponse(req Request, err error) *Response {
	if errors.Is(err, captcha.ErrNotFound) {
		return &Response{Type: TypeUserRegister, RequestID: req.RequestID, Status: StatusFail, Message: "registration session expired"}
	}
	if errors.Is(err, captcha.ErrWrongState) {
		return &Response{Type: TypeUserRegister, RequestID: req.RequestID, Status: StatusFail, Message: "registration step out of order"}
	}
	slog.Error("register", "err", err)
	return &Response{Type: TypeUserRegister, RequestID: req.RequestID, Status: StatusError, Message: "internal error"}
}
