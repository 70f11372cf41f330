package chat

import "errors"

var (
	// ErrChatNotFound means the chat id resolves to no local chat row.
	ErrChatNotFound = errors.New("chat not found")
	// ErrMessageNotFound means the message id resolves to no local row.
	ErrMessageNotFound = errors.New("message not found")
	// ErrNotMember means the acting user is not a member of the chat.
	ErrNotMember = errors.New("not a member of this chat")
	// ErrNotAdmin means the operation needs the admin or owner role.
	ErrNotAdmin = errors.New("requires chat admin")
	// ErrNotOwner means only the message author may perform the operation.
	ErrNotOwner = errors.New("not the message author")
	// ErrNotRetryable means retry was requested for a message that is not
	// in the failed state.
	ErrNotRetryable = errors.New("message is not in a failed state")
	// ErrEmptyBody rejects blank message content.
	ErrEmptyBody = errors.New("message body is empty")
)
