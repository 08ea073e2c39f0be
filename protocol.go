package main

// Message types for the TCP session-gateway protocol (spec.md §4.7, §6).
// Requests carry type + request_id; responses echo both. Pushes carry type
// only. One flat struct per direction, all payload fields tagged
// omitempty, follows the teacher's internal/protocol/message.go idiom of a
// single tagged-variant envelope rather than per-type structs.
const (
	TypeAuthenticate            = "authenticate"
	TypeSendMessage             = "send_message"
	TypeSendMedia               = "send_media"
	TypeDownloadMedia           = "download_media"
	TypeGetChatHistoryPaginated = "get_chat_history_paginated"
	TypeAddFriend               = "add_friend"
	TypeUpdateRemarks           = "Update_Remarks"
	TypeUploadAvatar            = "upload_avatar"
	TypeUpdateSign              = "update_sign"
	TypeUpdateName              = "update_name"
	TypeGetUserInfo             = "get_user_info"
	TypeDeleteMessages          = "delete_messages"
	TypeUserRegister            = "user_register"
	TypeExit                    = "exit"

	TypeChatHistory     = "chat_history"
	TypeMessagesDeleted = "messages_deleted"

	// push types (server → client, unsolicited)
	TypeFriendListUpdate = "friend_list_update"
	TypeFriendUpdate     = "friend_update"
	TypeNewMessage       = "new_message"
	TypeNewMedia         = "new_media"
	TypeDeletedMessages  = "deleted_messages"
)

// Status values for the response envelope (spec.md §6).
const (
	StatusSuccess = "success"
	StatusFail    = "fail"
	StatusError   = "error"
)

// Attachment kinds (spec.md §3, §4.3).
const (
	AttachmentFile  = "file"
	AttachmentImage = "image"
	AttachmentVideo = "video"
)

// Download kinds (spec.md §4.8).
const (
	DownloadAvatar    = "avatar"
	DownloadImage     = "image"
	DownloadVideo     = "video"
	DownloadFile      = "file"
	DownloadThumbnail = "thumbnail"
)

// Request is the full set of fields any request `type` may carry. Unused
// fields are simply absent from the wire JSON thanks to omitempty.
type Request struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id"`

	// authenticate, get_user_info
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`

	// send_message
	From        string `json:"from,omitempty"`
	To          string `json:"to,omitempty"`
	MessageText string `json:"message,omitempty"`
	ReplyTo     *int64 `json:"reply_to,omitempty"`

	// send_media / download_media
	FileData     string `json:"file_data,omitempty"`
	TotalSize    int64  `json:"total_size,omitempty"`
	FileType     string `json:"file_type,omitempty"`
	FileName     string `json:"file_name,omitempty"`
	FileID       string `json:"file_id,omitempty"`
	DownloadType string `json:"download_type,omitempty"`
	Offset       int64  `json:"offset,omitempty"`

	// get_chat_history_paginated, add_friend, update_remarks
	Friend   string `json:"friend,omitempty"`
	Page     int    `json:"page,omitempty"`
	PageSize int    `json:"page_size,omitempty"`
	Remark   string `json:"remark,omitempty"`

	// update_sign / update_name / upload_avatar
	Signature  string `json:"signature,omitempty"`
	Name       string `json:"name,omitempty"`
	AvatarData string `json:"avatar_data,omitempty"`

	// delete_messages
	RowIDs []int64 `json:"rowids,omitempty"`

	// user_register subtypes 1-4
	Step         int    `json:"step,omitempty"`
	SessionID    string `json:"session_id,omitempty"`
	CaptchaInput string `json:"captcha_input,omitempty"`
	Nickname     string `json:"nickname,omitempty"`
}

// Response is the full set of fields any response `type` (or push) may
// carry. Pushes leave RequestID empty.
type Response struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id,omitempty"`
	Status    string `json:"status,omitempty"`
	Message   string `json:"message,omitempty"`

	// send_message / send_media success
	RowID         int64   `json:"rowid,omitempty"`
	ReplyPreview  string  `json:"reply_preview,omitempty"`
	WriteTime     string  `json:"write_time,omitempty"`
	FileID        string  `json:"file_id,omitempty"`
	FileSize      int64   `json:"file_size,omitempty"`
	Duration      float64 `json:"duration,omitempty"`
	ThumbnailData string  `json:"thumbnail_data,omitempty"`

	// send_message/send_media envelope fields, also used on new_message/new_media pushes
	From        string `json:"from,omitempty"`
	To          string `json:"to,omitempty"`
	MessageText string `json:"message,omitempty"`
	FileType    string `json:"file_type,omitempty"`
	FileName    string `json:"file_name,omitempty"`

	// download_media
	Offset     int64  `json:"offset,omitempty"`
	IsComplete bool   `json:"is_complete,omitempty"`
	FileData   string `json:"file_data,omitempty"`

	// get_chat_history_paginated
	Messages []MessageView `json:"messages,omitempty"`

	// friend_list_update / friend_update pushes
	Friends []FriendView `json:"friends,omitempty"`

	// get_user_info
	Username  string `json:"username,omitempty"`
	AvatarID  string `json:"avatar_id,omitempty"`
	Nickname  string `json:"nickname,omitempty"`
	Signature string `json:"signature,omitempty"`

	// delete_messages / deleted_messages push
	DeletedRowIDs []int64 `json:"deleted_rowids,omitempty"`
	Conversation  string  `json:"conversation,omitempty"`

	// user_register
	SessionID    string `json:"session_id,omitempty"`
	CaptchaImage string `json:"captcha_image,omitempty"`
}

// FriendView is one entry in a friend_list_update/friend_update push: the
// recipient's own remark for that friend plus that friend's current
// profile projection and online state.
type FriendView struct {
	Username  string `json:"username"`
	Remark    string `json:"remark,omitempty"`
	Nickname  string `json:"nickname,omitempty"`
	Signature string `json:"signature,omitempty"`
	AvatarID  string `json:"avatar_id,omitempty"`
	Online    bool   `json:"online"`
}

// MessageView is one entry in get_chat_history_paginated's response.
type MessageView struct {
	RowID            int64   `json:"rowid"`
	Sender           string  `json:"sender"`
	Receiver         string  `json:"receiver"`
	Message          string  `json:"message"`
	WriteTime        string  `json:"write_time"`
	AttachmentType   string  `json:"attachment_type,omitempty"`
	OriginalFileName string  `json:"original_file_name,omitempty"`
	FileSize         int64   `json:"file_size,omitempty"`
	Duration         float64 `json:"duration,omitempty"`
	FileID           string  `json:"file_id,omitempty"`
	ReplyTo          *int64  `json:"reply_to,omitempty"`
	ReplyPreview     string  `json:"reply_preview,omitempty"`
}

// ReplyPreviewPayload is the embedded JSON object a message's
// reply_preview field deserializes to (spec.md §4.8/S3): the referenced
// message's sender and rendered content at send time.
type ReplyPreviewPayload struct {
	Sender  string `json:"sender"`
	Content string `json:"content"`
}
