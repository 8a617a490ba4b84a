package domain

import "errors"

var (
	ErrChannelNotFound  = errors.New("channel not found")
	ErrMediaNotFound    = errors.New("media not found")
	ErrUnknownMediaKind = errors.New("unknown media kind")
)
