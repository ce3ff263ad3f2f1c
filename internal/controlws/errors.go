package controlws

import "errors"

var (
	// ErrIncompleteCommand signals the accumulated buffer looks like a
	// prefix of a known command but is not yet complete; the caller
	// should keep buffering (spec.md §4.4 fragment reassembly).
	ErrIncompleteCommand = errors.New("controlws: incomplete command")

	// ErrUnknownCommand is a terminal parse failure: the verb is not one
	// of the four defined commands.
	ErrUnknownCommand = errors.New("controlws: unknown command")

	// ErrInvalidDigits is returned when CALL's number, at least 3
	// characters long, contains anything other than ASCII 0-9. A number
	// shorter than 3 characters yields ErrIncompleteCommand instead.
	ErrInvalidDigits = errors.New("controlws: invalid call digits")

	// ErrUploadTooLarge is the BufferOverflow error kind from spec.md §7:
	// a WAV_UPLOAD payload exceeds 1 MiB.
	ErrUploadTooLarge = errors.New("controlws: upload exceeds 1MiB limit")
)
