// File: internal/schemas/outcome.go
package schemas

import "time"

// Reason classifies why a target attempt ended without a submitted form.
type Reason string

const (
	ReasonNavigationTimeout   Reason = "navigation_timeout"
	ReasonNavigationError     Reason = "navigation_error"
	ReasonNetworkError        Reason = "network_error"
	ReasonNoEmailInputFound   Reason = "no_email_input_found"
	ReasonNoSubmitButtonFound Reason = "no_submit_button_found"
	ReasonFormSubmissionError Reason = "form_submission_error"
	ReasonSessionError        Reason = "session_error"
	ReasonProcessingError     Reason = "processing_error"
	ReasonFatalError          Reason = "fatal_error"
	ReasonCaptchaDetected     Reason = "captcha_detected"
)

// Retryable reports whether the reason is eligible for another attempt under
// the retry budget. Terminal reasons (no input found, CAPTCHA) are not worth
// re-navigating for; the page will not change.
func (r Reason) Retryable() bool {
	switch r {
	case ReasonNavigationTimeout,
		ReasonNavigationError,
		ReasonNetworkError,
		ReasonFormSubmissionError,
		ReasonSessionError,
		ReasonProcessingError,
		ReasonFatalError:
		return true
	}
	return false
}

// Method identifies the interaction tactic that produced a submitted form.
type Method string

const (
	MethodDirectClick    Method = "direct_click"
	MethodScriptInjected Method = "script_injected"
	MethodKeystrokeTyped Method = "keystroke_typed"
	MethodEnterKey       Method = "enter_key"
)

// SubmissionOutcome is the terminal result of one attempt against one target.
type SubmissionOutcome struct {
	Target      string        `json:"target"`
	Success     bool          `json:"success"`
	Method      Method        `json:"method,omitempty"`
	Reason      Reason        `json:"reason,omitempty"`
	Unconfirmed bool          `json:"unconfirmed,omitempty"`
	Attempt     int           `json:"attempt"`
	Elapsed     time.Duration `json:"-"`
}

// Failure builds a classified failure outcome.
func Failure(target string, attempt int, reason Reason, elapsed time.Duration) SubmissionOutcome {
	return SubmissionOutcome{
		Target:  target,
		Attempt: attempt,
		Reason:  reason,
		Elapsed: elapsed,
	}
}
