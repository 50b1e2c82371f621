package room

import "errors"

var (
	ErrRoomNotFound    = errors.New("room not found")
	ErrRoomFull        = errors.New("room is full")
	ErrInvalidPassword = errors.New("invalid password")
	ErrRaceInProgress  = errors.New("race already in progress")
	ErrInvalidInput    = errors.New("invalid input")
	ErrNotInRoom       = errors.New("participant is not in a room")
	ErrNotConnected    = errors.New("participant is not connected")
)
