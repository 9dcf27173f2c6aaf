package controller

import "errors"

var (
	ErrParseRequest = errors.New("failed to parse request")

	ErrSessionNotFound    = errors.New("session not found")
	ErrGetSessions        = errors.New("failed to get chat sessions")
	ErrDeleteSession      = errors.New("failed to delete a chat session")
	ErrGetSessionMessages = errors.New("failed to get session messages")
	ErrUpdateSessionTitle = errors.New("failed to update session title")

	ErrCallAgent       = errors.New("error while calling agent")
	ErrUpgradeProtocol = errors.New("failed to upgrade to websocket")

	ErrSearchDocuments = errors.New("failed to search documents")
	ErrQuotaExceeded   = errors.New("document search limit reached for this session")
	ErrGetPreSignedURL = errors.New("failed to get presigned url")
	ErrInvalidKey      = errors.New("invalid document key")

	ErrArtifactNotFound = errors.New("artifact not found")
	ErrGetArtifact      = errors.New("failed to get artifact")
)
