package sandbox

import (
	"fmt"
)

// MessageType tags messages crossing the isolation boundary.
type MessageType string

const (
	MsgExecute   MessageType = "execute"
	MsgTerminate MessageType = "terminate"
	MsgResult    MessageType = "result"
)

// Inbound is a host-to-context message. Every field is plain data.
type Inbound struct {
	Type MessageType `json:"type"`
	ID   string      `json:"id"`

	// Execute fields.
	Source              string                 `json:"source,omitempty"`
	DeadlineMs          int64                  `json:"deadline_ms,omitempty"`
	InitialBindings     map[string]interface{} `json:"initial_bindings,omitempty"`
	IncludeCapabilities bool                   `json:"include_capabilities,omitempty"`
	Namespace           string                 `json:"namespace,omitempty"`

	// Terminate fields.
	Reason TerminateReason `json:"reason,omitempty"`
}

// Outbound is a context-to-host message.
type Outbound struct {
	Type    MessageType `json:"type"`
	Outcome Outcome     `json:"outcome"`
}

// Validate checks structural invariants before a message is dispatched.
func (m Inbound) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("message id cannot be empty")
	}

	switch m.Type {
	case MsgExecute:
		if m.Source == "" {
			return ErrEmptySource
		}
		if m.DeadlineMs <= 0 {
			return fmt.Errorf("deadline must be positive, got %d", m.DeadlineMs)
		}
		if _, err := SanitizeBindings(m.InitialBindings); err != nil {
			return err
		}
		return nil
	case MsgTerminate:
		if !m.Reason.Valid() {
			return fmt.Errorf("unknown terminate reason %q", m.Reason)
		}
		return nil
	default:
		return fmt.Errorf("unknown inbound message type %q", m.Type)
	}
}
