// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"strings"

	"github.com/postfiatorg/postfiat-wallet/pkg/errors"
)

// Status is the lifecycle state of a task.
type Status int

// Task statuses, in lifecycle order.
const (
	StatusInvalid Status = iota
	StatusRequested
	StatusProposed
	StatusAccepted
	StatusRefused
	StatusCompleted
	StatusChallenged
	StatusResponded
	StatusRewarded
)

var statusNames = [...]string{
	StatusInvalid:    "invalid",
	StatusRequested:  "requested",
	StatusProposed:   "proposed",
	StatusAccepted:   "accepted",
	StatusRefused:    "refused",
	StatusCompleted:  "completed",
	StatusChallenged: "challenged",
	StatusResponded:  "responded",
	StatusRewarded:   "rewarded",
}

// AllStatuses returns every status in lifecycle order.
func AllStatuses() []Status {
	out := make([]Status, len(statusNames))
	for i := range statusNames {
		out[i] = Status(i)
	}
	return out
}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return "unknown"
	}
	return statusNames[s]
}

// MarshalText encodes the status as its lowercase name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a status name.
func (s *Status) UnmarshalText(text []byte) error {
	parsed, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseStatus parses a status name, case-insensitively.
func ParseStatus(name string) (Status, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range statusNames {
		if n == name {
			return Status(i), nil
		}
	}
	return StatusInvalid, errors.NewInvalidArgumentError("unknown task status: "+name, nil)
}

// InitRiteStatus is the state of an account's initiation rite.
type InitRiteStatus string

// Initiation rite states.
const (
	InitRiteUnstarted InitRiteStatus = "UNSTARTED"
	InitRitePending   InitRiteStatus = "PENDING"
	InitRiteComplete  InitRiteStatus = "COMPLETE"
	InitRiteRejected  InitRiteStatus = "REJECTED"
)
