package main

import (
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"relaychat/server/internal/media"
	"relaychat/server/internal/uploads"
	"relaychat/server/store"
)

func mediaKindFor(fileType string) media.Kind {
	switch fileType {
	case AttachmentImage:
		return media.KindImage
	case AttachmentVideo:
		return media.KindVideo
	default:
		return media.KindFile
	}
}

// replyPreviewContent renders the "content" half of a reply_preview
// snapshot per spec.md §4.8: text as-is, or
// "[{attachment_type}]: {original_file_name}" for media.
func replyPreviewContent(m store.Message) string {
	if m.AttachmentType == "" {
		return m.Text
	}
	return fmt.Sprintf("[%s]: %s", m.AttachmentType, m.OriginalFileName)
}

// buildReplyPreview looks up the referenced message and serializes the
// {sender, content} snapshot spec.md §4.8/S3 describes, falling back to
// "消息不可用" when the reference no longer resolves.
func buildReplyPreview(deps *Deps, replyTo int64) string {
	m, err := deps.Store.GetMessage(replyTo)
	var payload ReplyPreviewPayload
	if err != nil {
		payload = ReplyPreviewPayload{Content: "消息不可用"}
	} else {
		payload = ReplyPreviewPayload{Sender: m.Sender, Content: replyPreviewContent(m)}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal reply preview", "err", err)
		return ""
	}
	return string(data)
}

// conversationContent renders the conversation-summary content string
// spec.md §8 names: `"[文件]"|"[图片]"|"[视频]"|<text>|""`.
func conversationContent(m store.Message) string {
	switch m.AttachmentType {
	case AttachmentFile:
		return "[文件]"
	case AttachmentImage:
		return "[图片]"
	case AttachmentVideo:
		return "[视频]"
	default:
		return m.Text
	}
}

func handleSendMessage(deps *Deps, sess *Session, req Request) *Response {
	caller, failResp := requireAuth(sess, TypeSendMessage, req.RequestID)
	if failResp != nil {
		return failResp
	}
	if req.To == "" {
		return &Response{Type: TypeSendMessage, RequestID: req.RequestID, Status: StatusError, Message: "missing recipient"}
	}

	var replyTo sql.NullInt64
	var replyPreview string
	if req.ReplyTo != nil {
		replyTo = sql.NullInt64{Int64: *req.ReplyTo, Valid: true}
		replyPreview = buildReplyPreview(deps, *req.ReplyTo)
	}

	writeTime := time.Now().Format(store.TimeLayout)
	id, err := deps.Store.InsertMessage(store.Message{
		Sender:       caller,
		Receiver:     req.To,
		Text:         req.MessageText,
		WriteTime:    writeTime,
		ReplyTo:      replyTo,
		ReplyPreview: replyPreview,
	})
	if err != nil {
		slog.Error("send_message: insert", "err", err)
		return &Response{Type: TypeSendMessage, RequestID: req.RequestID, Status: StatusError, Message: "internal error"}
	}

	pair := store.CanonicalPair(caller, req.To)
	if err := deps.Store.UpsertHead(pair, id, writeTime); err != nil {
		slog.Error("send_message: upsert head", "err", err)
	}
	deps.ConvIndex.Update(pair, id, writeTime)

	push(deps, req.To, Response{
		Type: TypeNewMessage, From: caller, To: req.To, MessageText: req.MessageText,
		WriteTime: writeTime, RowID: id, ReplyPreview: replyPreview,
	})

	return &Response{
		Type: TypeSendMessage, RequestID: req.RequestID, Status: StatusSuccess,
		RowID: id, WriteTime: writeTime, ReplyPreview: replyPreview,
	}
}

func handleSendMedia(ctx context.Context, deps *Deps, sess *Session, req Request) *Response {
	caller, failResp := requireAuth(sess, TypeSendMedia, req.RequestID)
	if failResp != nil {
		return failResp
	}

	existing, tracked := deps.Uploads.Get(req.RequestID)

	if !tracked {
		if req.FileData == "" {
			return &Response{Type: TypeSendMedia, RequestID: req.RequestID, Status: StatusError, Message: "unknown upload session"}
		}
		kind := mediaKindFor(req.FileType)
		unique := media.UniqueName(time.Now(), req.FileName)
		path := deps.Media.PathFor(kind, unique)

		data, err := base64.StdEncoding.DecodeString(req.FileData)
		if err != nil {
			return &Response{Type: TypeSendMedia, RequestID: req.RequestID, Status: StatusError, Message: "invalid chunk encoding"}
		}
		if err := media.AppendChunk(path, data); err != nil {
			slog.Error("send_media: write first chunk", "err", err)
			return &Response{Type: TypeSendMedia, RequestID: req.RequestID, Status: StatusError, Message: "internal error"}
		}

		if err := deps.Uploads.Start(uploads.Session{
			RequestID: req.RequestID, Sender: caller, Receiver: req.To,
			FilePath: path, UniqueFileName: unique, OriginalFileName: req.FileName,
			Kind: req.FileType, ExpectedTotalSize: req.TotalSize, ReceivedSize: int64(len(data)),
		}); err != nil {
			slog.Error("send_media: start tracking", "err", err)
			return &Response{Type: TypeSendMedia, RequestID: req.RequestID, Status: StatusError, Message: "internal error"}
		}
		sess.trackUpload(req.RequestID)
		return &Response{Type: TypeSendMedia, RequestID: req.RequestID, Status: StatusSuccess, Message: "分块接收中"}
	}

	if req.FileData != "" {
		data, err := base64.StdEncoding.DecodeString(req.FileData)
		if err != nil {
			return &Response{Type: TypeSendMedia, RequestID: req.RequestID, Status: StatusError, Message: "invalid chunk encoding"}
		}
		if err := media.AppendChunk(existing.FilePath, data); err != nil {
			slog.Error("send_media: append chunk", "err", err)
			return &Response{Type: TypeSendMedia, RequestID: req.RequestID, Status: StatusError, Message: "internal error"}
		}
		if err := deps.Uploads.AppendReceived(req.RequestID, int64(len(data))); err != nil {
			slog.Error("send_media: record chunk", "err", err)
		}
		return &Response{Type: TypeSendMedia, RequestID: req.RequestID, Status: StatusSuccess, Message: "分块接收中"}
	}

	// Empty file_data: the terminator chunk. Extract thumbnail/duration,
	// insert the message row, push, and respond.
	var thumbPath, thumbDataB64 string
	var duration float64

	switch existing.Kind {
	case AttachmentImage:
		thumbPath = deps.Media.ImageThumbnailPath(existing.UniqueFileName)
		if err := deps.Thumbnailer.Thumbnail(existing.FilePath, thumbPath); err != nil {
			slog.Warn("send_media: thumbnail failed", "err", err)
			thumbPath = ""
		} else if b, err := os.ReadFile(thumbPath); err == nil {
			thumbDataB64 = base64.StdEncoding.EncodeToString(b)
		}
	case AttachmentVideo:
		thumbPath = deps.Media.VideoThumbnailPath(existing.UniqueFileName)
		if err := deps.VideoProbe.FirstFrame(ctx, existing.FilePath, thumbPath); err != nil {
			slog.Warn("send_media: first frame failed", "err", err)
			thumbPath = ""
		} else if b, err := os.ReadFile(thumbPath); err == nil {
			thumbDataB64 = base64.StdEncoding.EncodeToString(b)
		}
		if d, err := deps.VideoProbe.Duration(ctx, existing.FilePath); err == nil {
			duration = d
		} else {
			slog.Warn("send_media: duration failed", "err", err)
		}
	}

	writeTime := time.Now().Format(store.TimeLayout)
	id, err := deps.Store.InsertMessage(store.Message{
		Sender: caller, Receiver: existing.Receiver, WriteTime: writeTime,
		AttachmentType: existing.Kind, AttachmentPath: existing.FilePath,
		OriginalFileName: existing.OriginalFileName, ThumbnailPath: thumbPath,
		FileSize: existing.ReceivedSize, Duration: duration, FileID: existing.UniqueFileName,
	})
	if err != nil {
		slog.Error("send_media: insert", "err", err)
		return &Response{Type: TypeSendMedia, RequestID: req.RequestID, Status: StatusError, Message: "internal error"}
	}

	pair := store.CanonicalPair(caller, existing.Receiver)
	if err := deps.Store.UpsertHead(pair, id, writeTime); err != nil {
		slog.Error("send_media: upsert head", "err", err)
	}
	deps.ConvIndex.Update(pair, id, writeTime)

	deps.Uploads.Remove(req.RequestID)
	sess.untrackUpload(req.RequestID)

	push(deps, existing.Receiver, Response{
		Type: TypeNewMedia, From: caller, To: existing.Receiver, RowID: id,
		FileID: existing.UniqueFileName, FileType: existing.Kind, FileName: existing.OriginalFileName,
		WriteTime: writeTime, FileSize: existing.ReceivedSize, Duration: duration, ThumbnailData: thumbDataB64,
	})

	return &Response{
		Type: TypeSendMedia, RequestID: req.RequestID, Status: StatusSuccess, RowID: id,
		FileID: existing.UniqueFileName, WriteTime: writeTime, FileSize: existing.ReceivedSize,
		Duration: duration, ThumbnailData: thumbDataB64,
	}
}

func handleDownloadMedia(deps *Deps, req Request) *Response {
	var path string

	switch req.DownloadType {
	case DownloadAvatar:
		u, err := deps.Store.GetUserByAvatarID(req.FileID)
		if err != nil {
			return &Response{Type: TypeDownloadMedia, RequestID: req.RequestID, Status: StatusError, Message: "file not found"}
		}
		path = u.AvatarPath
	case DownloadImage, DownloadVideo, DownloadFile:
		m, err := deps.Store.GetMessageByFileID(req.FileID, req.DownloadType)
		if err != nil {
			return &Response{Type: TypeDownloadMedia, RequestID: req.RequestID, Status: StatusError, Message: "file not found"}
		}
		path = m.AttachmentPath
	case DownloadThumbnail:
		m, err := deps.Store.GetMessageByFileIDAny(req.FileID)
		if err != nil {
			return &Response{Type: TypeDownloadMedia, RequestID: req.RequestID, Status: StatusError, Message: "file not found"}
		}
		if m.ThumbnailPath == "" {
			return &Response{Type: TypeDownloadMedia, RequestID: req.RequestID, Status: StatusError, Message: "no thumbnail available"}
		}
		path = m.ThumbnailPath
	default:
		return &Response{Type: TypeDownloadMedia, RequestID: req.RequestID, Status: StatusError, Message: "unknown download_type"}
	}

	data, fileSize, isComplete, err := media.ReadWindow(path, req.Offset)
	if err != nil {
		slog.Error("download_media: read window", "err", err)
		return &Response{Type: TypeDownloadMedia, RequestID: req.RequestID, Status: StatusError, Message: "internal error"}
	}

	return &Response{
		Type: TypeDownloadMedia, RequestID: req.RequestID, Status: StatusSuccess,
		FileSize: fileSize, Offset: req.Offset, IsComplete: isComplete,
		FileData: base64.StdEncoding.EncodeToString(data),
	}
}

func handleGetChatHistoryPaginated(deps *Deps, req Request) *Response {
	page := req.Page
	if page < 1 {
		page = 1
	}
	pageSize := req.PageSize
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}

	msgs, err := deps.Store.GetMessagesPaginated(req.Username, req.Friend, page, pageSize)
	if err != nil {
		slog.Error("get_chat_history_paginated", "err", err)
		return &Response{Type: TypeChatHistory, RequestID: req.RequestID, Status: StatusError, Message: "internal error"}
	}

	views := make([]MessageView, 0, len(msgs))
	for _, m := range msgs {
		var replyTo *int64
		if m.ReplyTo.Valid {
			v := m.ReplyTo.Int64
			replyTo = &v
		}
		views = append(views, MessageView{
			RowID: m.ID, Sender: m.Sender, Receiver: m.Receiver, Message: m.Text,
			WriteTime: m.WriteTime, AttachmentType: m.AttachmentType,
			OriginalFileName: m.OriginalFileName, FileSize: m.FileSize, Duration: m.Duration,
			FileID: m.FileID, ReplyTo: replyTo, ReplyPreview: m.ReplyPreview,
		})
	}

	return &Response{Type: TypeChatHistory, RequestID: req.RequestID, Status: StatusSuccess, Messages: views}
}

func handleDeleteMessages(deps *Deps, sess *Session, req Request) *Response {
	caller, failResp := requireAuth(sess, TypeMessagesDeleted, req.RequestID)
	if failResp != nil {
		return failResp
	}
	if len(req.RowIDs) == 0 {
		return &Response{Type: TypeMessagesDeleted, RequestID: req.RequestID, Status: StatusError, Message: "no ids supplied"}
	}

	pairs, err := deps.Store.DeleteMessages(caller, req.RowIDs)
	if err != nil {
		if errors.Is(err, store.ErrMessageNotFound) || errors.Is(err, store.ErrNoPermission) {
			return &Response{Type: TypeMessagesDeleted, RequestID: req.RequestID, Status: StatusError, Message: "no permission / not found"}
		}
		slog.Error("delete_messages", "err", err)
		return &Response{Type: TypeMessagesDeleted, RequestID: req.RequestID, Status: StatusError, Message: "internal error"}
	}

	var lastConversation, lastWriteTime string
	for _, pair := range pairs {
		var conversation, writeTime string

		latest, ok, err := deps.Store.LatestMessage(pair.A, pair.B)
		if err != nil {
			slog.Error("delete_messages: recompute head", "err", err)
			continue
		}
		if ok {
			if err := deps.Store.UpsertHead(pair, latest.ID, latest.WriteTime); err != nil {
				slog.Error("delete_messages: upsert head", "err", err)
			}
			deps.ConvIndex.Update(pair, latest.ID, latest.WriteTime)
			conversation = conversationContent(latest)
			writeTime = latest.WriteTime
		} else {
			now := time.Now().Format(store.TimeLayout)
			if err := deps.Store.NullHead(pair, now); err != nil {
				slog.Error("delete_messages: null head", "err", err)
			}
			deps.ConvIndex.Null(pair, now)
			writeTime = now
		}

		var peer string
		switch caller {
		case pair.A:
			peer = pair.B
		case pair.B:
			peer = pair.A
		}
		if peer != "" && deps.Presence.IsOnline(peer) {
			push(deps, peer, Response{
				Type: TypeDeletedMessages, DeletedRowIDs: req.RowIDs,
				Conversation: conversation, WriteTime: writeTime,
			})
		}

		lastConversation, lastWriteTime = conversation, writeTime
	}

	return &Response{
		Type: TypeMessagesDeleted, RequestID: req.RequestID, Status: StatusSuccess,
		DeletedRowIDs: req.RowIDs, Conversation: lastConversation, WriteTime: lastWriteTime,
	}
}
