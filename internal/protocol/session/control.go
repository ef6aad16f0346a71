package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/danmuck/codetango/internal/snapshot"
)

const (
	StatusSuccess = "success"
	StatusFailure = "failure"

	MessageMatch  = "Variables match"
	MessageDiffer = "Variables differ"
)

var (
	ErrInvalidIdentify   = errors.New("session: invalid identify")
	ErrInvalidSubmission = errors.New("session: invalid barrier submission")
	ErrInvalidVerdict    = errors.New("session: invalid verdict")
)

// Identify is the participant->coordinator session-start payload.
type Identify struct {
	ProgramID string `json:"program_id"`
}

func (m Identify) Validate() error {
	if strings.TrimSpace(m.ProgramID) == "" {
		return fmt.Errorf("%w: missing program_id", ErrInvalidIdentify)
	}
	return nil
}

// Submission carries one participant's snapshot at one barrier.
type Submission struct {
	BarrierID string             `json:"barrier_id"`
	Variables *snapshot.Snapshot `json:"variables"`
}

func (m Submission) Validate() error {
	if strings.TrimSpace(m.BarrierID) == "" {
		return fmt.Errorf("%w: missing barrier_id", ErrInvalidSubmission)
	}
	if m.Variables == nil {
		return fmt.Errorf("%w: missing variables", ErrInvalidSubmission)
	}
	return nil
}

// Verdict is the coordinator->participant release message.
type Verdict struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (v Verdict) Validate() error {
	if v.Status != StatusSuccess && v.Status != StatusFailure {
		return fmt.Errorf("%w: status %q", ErrInvalidVerdict, v.Status)
	}
	return nil
}

func (v Verdict) Success() bool {
	return v.Status == StatusSuccess
}

func SuccessVerdict(message string) Verdict {
	return Verdict{Status: StatusSuccess, Message: message}
}

func FailureVerdict(message string) Verdict {
	return Verdict{Status: StatusFailure, Message: message}
}

func DecodeIdentify(raw json.RawMessage) (Identify, error) {
	var m Identify
	if err := json.Unmarshal(raw, &m); err != nil {
		return Identify{}, fmt.Errorf("%w: %v", ErrInvalidIdentify, err)
	}
	if err := m.Validate(); err != nil {
		return Identify{}, err
	}
	return m, nil
}

func DecodeSubmission(raw json.RawMessage) (Submission, error) {
	var m Submission
	if err := json.Unmarshal(raw, &m); err != nil {
		return Submission{}, fmt.Errorf("%w: %v", ErrInvalidSubmission, err)
	}
	if err := m.Validate(); err != nil {
		return Submission{}, err
	}
	return m, nil
}

func DecodeVerdict(raw json.RawMessage) (Verdict, error) {
	var v Verdict
	if err := json.Unmarshal(raw, &v); err != nil {
		return Verdict{}, fmt.Errorf("%w: %v", ErrInvalidVerdict, err)
	}
	if err := v.Validate(); err != nil {
		return Verdict{}, err
	}
	return v, nil
}
