// Package errors provides structured, code-carrying errors for graffiti-chat.
package errors

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Message errors
	CodeMessageEmpty      Code = "MESSAGE_EMPTY"
	CodeRecipientRequired Code = "RECIPIENT_REQUIRED"
	CodeChannelEmpty      Code = "CHANNEL_EMPTY"
	CodeObjectInvalid     Code = "OBJECT_INVALID"

	// Profile errors
	CodeProfileNameEmpty Code = "PROFILE_NAME_EMPTY"
	CodeProfileNotOwned  Code = "PROFILE_NOT_OWNED"

	// Naming errors
	CodeUsernameInvalid Code = "USERNAME_INVALID"
	CodeUsernameTaken   Code = "USERNAME_TAKEN"

	// Storage errors
	CodeNotFound      Code = "NOT_FOUND"
	CodeAlreadyExists Code = "ALREADY_EXISTS"
	CodeNotOwner      Code = "NOT_OWNER"

	// Transport errors
	CodeUnavailable Code = "UNAVAILABLE"
	CodeClosed      Code = "CLOSED"
)

// Category groups codes by how a caller is expected to react.
type Category int

const (
	// CategoryInternal is an unexpected failure.
	CategoryInternal Category = iota
	// CategoryValidation means the input was refused locally; nothing was written.
	CategoryValidation
	// CategoryNotFound is an explicit negative result, not a failure.
	CategoryNotFound
	// CategoryConflict means a uniqueness or ownership rule rejected the write.
	CategoryConflict
	// CategoryTransport means the remote collaborator could not be reached.
	CategoryTransport
)

// Category maps a code to its reaction category.
func (c Code) Category() Category {
	switch c {
	case CodeMessageEmpty,
		CodeRecipientRequired,
		CodeChannelEmpty,
		CodeObjectInvalid,
		CodeProfileNameEmpty,
		CodeProfileNotOwned,
		CodeUsernameInvalid:
		return CategoryValidation

	case CodeNotFound:
		return CategoryNotFound

	case CodeUsernameTaken,
		CodeAlreadyExists,
		CodeNotOwner:
		return CategoryConflict

	case CodeUnavailable,
		CodeClosed:
		return CategoryTransport

	default:
		return CategoryInternal
	}
}

// WireCode maps a code to the error code carried in transport error frames.
func (c Code) WireCode() string {
	switch c.Category() {
	case CategoryValidation:
		return "INVALID_ARGUMENT"
	case CategoryNotFound:
		return "NOT_FOUND"
	case CategoryConflict:
		if c == CodeNotOwner || c == CodeProfileNotOwned {
			return "PERMISSION_DENIED"
		}
		return "ALREADY_EXISTS"
	case CategoryTransport:
		return "UNAVAILABLE"
	default:
		return "INTERNAL"
	}
}
