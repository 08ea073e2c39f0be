package main

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/alexedwards/argon2id"

	"relaychat/server/internal/presence"
	"relaychat/server/store"
)

// requireAuth returns the session's bound username, or a fail response if
// the connection has not authenticated yet.
func requireAuth(sess *Session, reqType, requestID string) (string, *Response) {
	username := sess.getUsername()
	if username == "" {
		return "", &Response{Type: reqType, RequestID: requestID, Status: StatusFail, Message: "未登录"}
	}
	return username, nil
}

// push marshals resp and delivers it through the presence table, logging
// (never propagating) marshal failures — push failures themselves are
// already swallowed inside presence.Push (spec.md §4.4).
func push(deps *Deps, username string, resp Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		slog.Error("marshal push", "type", resp.Type, "err", err)
		return
	}
	deps.Presence.Push(username, data)
}

// buildFriendView projects peer's current profile and online state as seen
// by recipient, using recipient's owner-local remark for peer.
func buildFriendView(deps *Deps, recipient, peer string) (FriendView, bool) {
	edges, err := deps.Store.ListFriends(recipient)
	if err != nil {
		slog.Error("list friends for projection", "recipient", recipient, "err", err)
		return FriendView{}, false
	}
	var remark string
	found := false
	for _, e := range edges {
		if e.Friend == peer {
			remark = e.Remark
			found = true
			break
		}
	}
	if !found {
		return FriendView{}, false
	}
	u, err := deps.Store.GetUser(peer)
	if err != nil {
		return FriendView{}, false
	}
	return FriendView{
		Username:  peer,
		Remark:    remark,
		Nickname:  u.Nickname,
		Signature: u.Signature,
		AvatarID:  u.AvatarID,
		Online:    deps.Presence.IsOnline(peer),
	}, true
}

// buildFriendList projects username's entire friend list.
func buildFriendList(deps *Deps, username string) []FriendView {
	edges, err := deps.Store.ListFriends(username)
	if err != nil {
		slog.Error("list friends", "username", username, "err", err)
		return nil
	}
	views := make([]FriendView, 0, len(edges))
	for _, e := range edges {
		u, err := deps.Store.GetUser(e.Friend)
		if err != nil {
			continue
		}
		views = append(views, FriendView{
			Username:  e.Friend,
			Remark:    e.Remark,
			Nickname:  u.Nickname,
			Signature: u.Signature,
			AvatarID:  u.AvatarID,
			Online:    deps.Presence.IsOnline(e.Friend),
		})
	}
	return views
}

// notifyFriendsChanged is spec.md §4.4's fan-out helper: the affected set is
// friends(username) ∪ {username}; if changedPeer is set, only that peer's
// projection is pushed to each online recipient, otherwise each recipient
// gets its own full friend list refreshed.
func notifyFriendsChanged(deps *Deps, username, changedPeer string) {
	edges, err := deps.Store.ListFriends(username)
	if err != nil {
		slog.Error("notify friends changed: list friends", "username", username, "err", err)
		return
	}

	recipients := make(map[string]struct{}, len(edges)+1)
	recipients[username] = struct{}{}
	for _, e := range edges {
		recipients[e.Friend] = struct{}{}
	}

	for recipient := range recipients {
		if !deps.Presence.IsOnline(recipient) {
			continue
		}
		if changedPeer != "" {
			view, ok := buildFriendView(deps, recipient, changedPeer)
			if !ok {
				continue
			}
			push(deps, recipient, Response{Type: TypeFriendUpdate, Friends: []FriendView{view}})
			continue
		}
		push(deps, recipient, Response{Type: TypeFriendUpdate, Friends: buildFriendList(deps, recipient)})
	}
}

// pushFriendUpdateBetween delivers each side of a newly-created friend
// edge a scoped projection of the other (spec.md §4.9 add_friend).
func pushFriendUpdateBetween(deps *Deps, a, b string) {
	if v, ok := buildFriendView(deps, a, b); ok {
		push(deps, a, Response{Type: TypeFriendUpdate, Friends: []FriendView{v}})
	}
	if v, ok := buildFriendView(deps, b, a); ok {
		push(deps, b, Response{Type: TypeFriendUpdate, Friends: []FriendView{v}})
	}
}

func handleAuthenticate(deps *Deps, sess *Session, req Request) *Response {
	user, err := deps.Store.GetUser(req.Username)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return &Response{Type: TypeAuthenticate, RequestID: req.RequestID, Status: StatusFail, Message: "账号或密码错误"}
		}
		slog.Error("authenticate: get user", "err", err)
		return &Response{Type: TypeAuthenticate, RequestID: req.RequestID, Status: StatusError, Message: "internal error"}
	}

	match, err := argon2id.ComparePasswordAndHash(req.Password, user.Password)
	if err != nil {
		slog.Error("authenticate: compare hash", "err", err)
		return &Response{Type: TypeAuthenticate, RequestID: req.RequestID, Status: StatusError, Message: "internal error"}
	}
	if !match {
		return &Response{Type: TypeAuthenticate, RequestID: req.RequestID, Status: StatusFail, Message: "账号或密码错误"}
	}

	if err := deps.Presence.Bind(req.Username, sess); err != nil {
		if errors.Is(err, presence.ErrAlreadyBound) {
			return &Response{Type: TypeAuthenticate, RequestID: req.RequestID, Status: StatusFail, Message: "该账号已登录"}
		}
		slog.Error("authenticate: bind", "err", err)
		return &Response{Type: TypeAuthenticate, RequestID: req.RequestID, Status: StatusError, Message: "internal error"}
	}
	sess.setUsername(req.Username)

	push(deps, req.Username, Response{Type: TypeFriendListUpdate, Friends: buildFriendList(deps, req.Username)})
	notifyFriendsChanged(deps, req.Username, req.Username)

	return &Response{Type: TypeAuthenticate, RequestID: req.RequestID, Status: StatusSuccess}
}

func handleAddFriend(deps *Deps, sess *Session, req Request) *Response {
	caller, failResp := requireAuth(sess, TypeAddFriend, req.RequestID)
	if failResp != nil {
		return failResp
	}
	if req.Friend == caller {
		return &Response{Type: TypeAddFriend, RequestID: req.RequestID, Status: StatusFail, Message: "不能添加自己为好友"}
	}

	exists, err := deps.Store.UserExists(req.Friend)
	if err != nil {
		slog.Error("add_friend: user exists", "err", err)
		return &Response{Type: TypeAddFriend, RequestID: req.RequestID, Status: StatusError, Message: "internal error"}
	}
	if !exists {
		return &Response{Type: TypeAddFriend, RequestID: req.RequestID, Status: StatusFail, Message: "用户不存在"}
	}

	if err := deps.Store.AddFriendPair(caller, req.Friend); err != nil {
		if errors.Is(err, store.ErrAlreadyFriends) {
			return &Response{Type: TypeAddFriend, RequestID: req.RequestID, Status: StatusFail, Message: "already friend"}
		}
		slog.Error("add_friend: add pair", "err", err)
		return &Response{Type: TypeAddFriend, RequestID: req.RequestID, Status: StatusError, Message: "internal error"}
	}

	pushFriendUpdateBetween(deps, caller, req.Friend)
	return &Response{Type: TypeAddFriend, RequestID: req.RequestID, Status: StatusSuccess}
}

func handleUpdateRemarks(deps *Deps, sess *Session, req Request) *Response {
	caller, failResp := requireAuth(sess, TypeUpdateRemarks, req.RequestID)
	if failResp != nil {
		return failResp
	}
	if err := deps.Store.UpdateRemark(caller, req.Friend, req.Remark); err != nil {
		if errors.Is(err, store.ErrNotFriends) {
			return &Response{Type: TypeUpdateRemarks, RequestID: req.RequestID, Status: StatusFail, Message: "not friend"}
		}
		slog.Error("update_remarks", "err", err)
		return &Response{Type: TypeUpdateRemarks, RequestID: req.RequestID, Status: StatusError, Message: "internal error"}
	}
	return &Response{Type: TypeUpdateRemarks, RequestID: req.RequestID, Status: StatusSuccess}
}

func handleUpdateSign(deps *Deps, sess *Session, req Request) *Response {
	caller, failResp := requireAuth(sess, TypeUpdateSign, req.RequestID)
	if failResp != nil {
		return failResp
	}
	if err := deps.Store.UpdateSignature(caller, req.Signature); err != nil {
		slog.Error("update_sign", "err", err)
		return &Response{Type: TypeUpdateSign, RequestID: req.RequestID, Status: StatusError, Message: "internal error"}
	}
	notifyFriendsChanged(deps, caller, caller)
	return &Response{Type: TypeUpdateSign, RequestID: req.RequestID, Status: StatusSuccess}
}

func handleUpdateName(deps *Deps, sess *Session, req Request) *Response {
	caller, failResp := requireAuth(sess, TypeUpdateName, req.RequestID)
	if failResp != nil {
		return failResp
	}
	if err := deps.Store.UpdateNickname(caller, req.Name); err != nil {
		slog.Error("update_name", "err", err)
		return &Response{Type: TypeUpdateName, RequestID: req.RequestID, Status: StatusError, Message: "internal error"}
	}
	notifyFriendsChanged(deps, caller, caller)
	return &Response{Type: TypeUpdateName, RequestID: req.RequestID, Status: StatusSuccess}
}

func handleUploadAvatar(deps *Deps, sess *Session, req Request) *Response {
	caller, failResp := requireAuth(sess, TypeUploadAvatar, req.RequestID)
	if failResp != nil {
		return failResp
	}

	data, err := base64.StdEncoding.DecodeString(req.AvatarData)
	if err != nil {
		return &Response{Type: TypeUploadAvatar, RequestID: req.RequestID, Status: StatusError, Message: "invalid avatar data"}
	}
	if int64(len(data)) > MaxAvatarBytes {
		return &Response{Type: TypeUploadAvatar, RequestID: req.RequestID, Status: StatusFail, Message: "avatar too large"}
	}

	path, err := deps.Media.SaveAvatar(caller, time.Now(), data)
	if err != nil {
		slog.Error("upload_avatar: save", "err", err)
		return &Response{Type: TypeUploadAvatar, RequestID: req.RequestID, Status: StatusError, Message: "internal error"}
	}
	avatarID := filepath.Base(path)

	if err := deps.Store.UpdateAvatar(caller, avatarID, path); err != nil {
		slog.Error("upload_avatar: persist", "err", err)
		return &Response{Type: TypeUploadAvatar, RequestID: req.RequestID, Status: StatusError, Message: "internal error"}
	}

	notifyFriendsChanged(deps, caller, caller)
	return &Response{Type: TypeUploadAvatar, RequestID: req.RequestID, Status: StatusSuccess, AvatarID: avatarID}
}

func handleGetUserInfo(deps *Deps, req Request) *Response {
	u, err := deps.Store.GetUser(req.Username)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return &Response{Type: TypeGetUserInfo, RequestID: req.RequestID, Status: StatusError, Message: "user not found"}
		}
		slog.Error("get_user_info", "err", err)
		return &Response{Type: TypeGetUserInfo, RequestID: req.RequestID, Status: StatusError, Message: "internal error"}
	}
	return &Response{
		Type:      TypeGetUserInfo,
		RequestID: req.RequestID,
		Status:    StatusSuccess,
		Username:  u.Username,
		AvatarID:  u.AvatarID,
		Nickname:  u.Nickname,
		Signature: u.Signature,
	}
}
