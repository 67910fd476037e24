// Package twiml renders turn outcomes into the telephony gateway's
// XML control-response dialect.
package twiml

import (
	"encoding/xml"
	"fmt"
	"net/http"
)

// Default spoken texts.
const (
	GreetingText    = "Welcome! Please describe your needs. Record your message after the beep."
	ConfirmedText   = "Thank you! Your order has been confirmed. Goodbye!"
	ContinuePreText = "Here is my response."
	ApologyText     = "Sorry, something went wrong while processing your call. Goodbye!"
)

// OutcomeKind discriminates TurnOutcome variants.
type OutcomeKind string

const (
	OutcomeContinue  OutcomeKind = "continue"
	OutcomeConfirmed OutcomeKind = "confirmed"
	OutcomeFailed    OutcomeKind = "failed"
)

// TurnOutcome is the result of processing one callback event. Exactly one
// variant applies per turn.
type TurnOutcome struct {
	Kind OutcomeKind

	// Continue
	SpokenText string
	AudioURL   string

	// Confirmed
	ClosingText string

	// Failed
	Reason string
}

// ContinueOutcome asks the caller for another utterance after playing the
// synthesized reply.
func ContinueOutcome(spokenText, audioURL string) TurnOutcome {
	return TurnOutcome{Kind: OutcomeContinue, SpokenText: spokenText, AudioURL: audioURL}
}

// ConfirmedOutcome closes the conversation with the given farewell.
func ConfirmedOutcome(closingText string) TurnOutcome {
	return TurnOutcome{Kind: OutcomeConfirmed, ClosingText: closingText}
}

// FailedOutcome records a dropped turn; it still renders a well-formed
// instruction so the caller hears a coherent close instead of silence.
func FailedOutcome(reason string) TurnOutcome {
	return TurnOutcome{Kind: OutcomeFailed, Reason: reason}
}

// InstructionKind discriminates Instruction variants.
type InstructionKind string

const (
	InstructionSayRecord InstructionKind = "say_record"
	InstructionSayHangup InstructionKind = "say_hangup"
	InstructionError     InstructionKind = "error"
)

// Instruction is the single next action returned to the gateway for one
// callback. Every callback response resolves to exactly one Instruction.
type Instruction struct {
	Kind InstructionKind

	Say              string
	Voice            string
	PlayURL          string
	RecordAction     string
	MaxLengthSeconds int
	PlayBeep         bool

	// Error responses only.
	StatusCode int
	Message    string
}

// Builder maps turn outcomes onto instructions. It is pure: a malformed
// outcome is a programming error, not a runtime condition.
type Builder struct {
	Voice               string
	RecordAction        string
	MaxRecordingSeconds int
}

// Greeting is the instruction for the first turn of a call.
func (b Builder) Greeting() Instruction {
	return Instruction{
		Kind:             InstructionSayRecord,
		Say:              GreetingText,
		Voice:            b.Voice,
		RecordAction:     b.RecordAction,
		MaxLengthSeconds: b.MaxRecordingSeconds,
		PlayBeep:         true,
	}
}

// FromOutcome maps a TurnOutcome to its TelephonyInstruction.
func (b Builder) FromOutcome(o TurnOutcome) Instruction {
	switch o.Kind {
	case OutcomeContinue:
		return Instruction{
			Kind:             InstructionSayRecord,
			Say:              ContinuePreText,
			Voice:            b.Voice,
			PlayURL:          o.AudioURL,
			RecordAction:     b.RecordAction,
			MaxLengthSeconds: b.MaxRecordingSeconds,
			PlayBeep:         true,
		}
	case OutcomeConfirmed:
		say := o.ClosingText
		if say == "" {
			say = ConfirmedText
		}
		return Instruction{
			Kind:  InstructionSayHangup,
			Say:   say,
			Voice: b.Voice,
		}
	default:
		return Instruction{
			Kind:  InstructionSayHangup,
			Say:   ApologyText,
			Voice: b.Voice,
		}
	}
}

// InvalidRequest is the instruction for a callback missing required fields.
func InvalidRequest(message string) Instruction {
	return Instruction{
		Kind:       InstructionError,
		StatusCode: http.StatusBadRequest,
		Message:    message,
	}
}

type sayVerb struct {
	XMLName xml.Name `xml:"Say"`
	Voice   string   `xml:"voice,attr,omitempty"`
	Text    string   `xml:",chardata"`
}

type playVerb struct {
	XMLName xml.Name `xml:"Play"`
	URL     string   `xml:",chardata"`
}

type recordVerb struct {
	XMLName   xml.Name `xml:"Record"`
	Action    string   `xml:"action,attr"`
	MaxLength int      `xml:"maxLength,attr"`
	PlayBeep  bool     `xml:"playBeep,attr"`
}

type hangupVerb struct {
	XMLName xml.Name `xml:"Hangup"`
}

type voiceResponse struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []any
}

// RenderXML produces the wire-format document for a non-error instruction.
func (i Instruction) RenderXML() ([]byte, error) {
	var verbs []any
	switch i.Kind {
	case InstructionSayRecord:
		verbs = append(verbs, sayVerb{Voice: i.Voice, Text: i.Say})
		if i.PlayURL != "" {
			verbs = append(verbs, playVerb{URL: i.PlayURL})
		}
		verbs = append(verbs, recordVerb{
			Action:    i.RecordAction,
			MaxLength: i.MaxLengthSeconds,
			PlayBeep:  i.PlayBeep,
		})
	case InstructionSayHangup:
		verbs = append(verbs, sayVerb{Voice: i.Voice, Text: i.Say}, hangupVerb{})
	default:
		return nil, fmt.Errorf("instruction kind %q has no XML form", i.Kind)
	}

	body, err := xml.Marshal(voiceResponse{Verbs: verbs})
	if err != nil {
		return nil, fmt.Errorf("marshal response: %w", err)
	}
	return append([]byte(xml.Header), body...), nil
}

// Write sends the instruction as an HTTP response: XML for call-control
// instructions, plain text for error instructions.
func (i Instruction) Write(w http.ResponseWriter) error {
	if i.Kind == InstructionError {
		status := i.StatusCode
		if status == 0 {
			status = http.StatusBadRequest
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(status)
		_, err := fmt.Fprintln(w, i.Message)
		return err
	}

	body, err := i.RenderXML()
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, err = w.Write(body)
	return err
}
