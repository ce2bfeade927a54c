package wizard

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/prohmpiriya/botfleet/internal/bot"
	"github.com/prohmpiriya/botfleet/internal/domain"
)

const (
	// CancelToken typed by the user resets any wizard to READY
	CancelToken = "/cancel"
	// CancelData is the callback data of the cancel button
	CancelData = "wz:!cancel"
	// ChoicePrefix marks callback data belonging to the wizard
	ChoicePrefix = "wz:"

	CancelledReply = "Cancelled. Nothing was changed."
)

var (
	// ErrUnknownStage is returned when a session sits in a stage no flow owns
	ErrUnknownStage = errors.New("unknown wizard stage")
	// ErrNotInWizard is returned by Handle for idle sessions
	ErrNotInWizard = errors.New("session is not in a wizard")
	// ErrUnknownFlow is returned by Begin for unregistered flow names
	ErrUnknownFlow = errors.New("unknown wizard flow")
)

// Validator normalizes input or returns the corrective message as error
type Validator func(input string) (string, error)

// CompleteFunc commits the collected values and returns the reply
type CompleteFunc func(ctx context.Context, sess *domain.Session, values map[string]string) (string, error)

// Step collects one field
type Step struct {
	Stage    domain.Stage
	Field    string
	Prompt   string
	Choices  []string
	Validate Validator
}

// Flow is a linear chain of steps ending in READY
type Flow struct {
	Name      string
	Steps     []Step
	Complete  CompleteFunc
	DoneReply string
}

// Prompt is a message asking for the next input
type Prompt struct {
	Text     string
	Keyboard *bot.Keyboard
}

// Result is the outcome of exactly one transition
type Result struct {
	Prompt
	Stage     domain.Stage
	Committed map[string]string
	Invalid   bool
	Cancelled bool
}

type stepRef struct {
	flow  *Flow
	index int
}

// Engine drives the flows registered for one bot
type Engine struct {
	flows map[string]*Flow
	steps map[domain.Stage]stepRef
}

// NewEngine builds the stage table. Each stage may belong to one step only.
func NewEngine(flows ...*Flow) (*Engine, error) {
	e := &Engine{
		flows: make(map[string]*Flow, len(flows)),
		steps: make(map[domain.Stage]stepRef),
	}
	for _, f := range flows {
		if f.Name == "" || len(f.Steps) == 0 {
			return nil, fmt.Errorf("flow %q must have a name and at least one step", f.Name)
		}
		if _, dup := e.flows[f.Name]; dup {
			return nil, fmt.Errorf("duplicate flow %q", f.Name)
		}
		for i, s := range f.Steps {
			if s.Stage.Idle() || !s.Stage.Valid() {
				return nil, fmt.Errorf("flow %q step %d: stage %q cannot be a wizard stage", f.Name, i, s.Stage)
			}
			if s.Field == "" {
				return nil, fmt.Errorf("flow %q step %d: field is required", f.Name, i)
			}
			if prev, dup := e.steps[s.Stage]; dup {
				return nil, fmt.Errorf("stage %s used by both %q and %q", s.Stage, prev.flow.Name, f.Name)
			}
			e.steps[s.Stage] = stepRef{flow: f, index: i}
		}
		e.flows[f.Name] = f
	}
	return e, nil
}

// MustEngine is NewEngine that panics on a malformed table
func MustEngine(flows ...*Flow) *Engine {
	e, err := NewEngine(flows...)
	if err != nil {
		panic(err)
	}
	return e
}

// Owns reports whether stage belongs to one of the engine's flows
func (e *Engine) Owns(stage domain.Stage) bool {
	_, ok := e.steps[stage]
	return ok
}

// Begin moves the session to the first step of flow. Preset values are carried to Complete.
func (e *Engine) Begin(sess *domain.Session, flowName string, preset map[string]string) (Prompt, error) {
	f, ok := e.flows[flowName]
	if !ok {
		return Prompt{}, fmt.Errorf("%w: %s", ErrUnknownFlow, flowName)
	}
	sess.ClearTemp()
	for k, v := range preset {
		sess.Temp[k] = v
	}
	first := f.Steps[0]
	sess.Stage = first.Stage
	return first.prompt(), nil
}

// Abort discards partial values and returns to READY
func (e *Engine) Abort(sess *domain.Session) {
	sess.ClearTemp()
	sess.Stage = domain.StageReady
}

// Handle applies one input to the session's current step
func (e *Engine) Handle(ctx context.Context, sess *domain.Session, input string) (Result, error) {
	ref, ok := e.steps[sess.Stage]
	if !ok {
		if sess.Stage.Idle() {
			return Result{}, ErrNotInWizard
		}
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownStage, sess.Stage)
	}

	input = strings.TrimSpace(input)
	if input == CancelToken || input == CancelData {
		e.Abort(sess)
		return Result{Prompt: Prompt{Text: CancelledReply}, Stage: domain.StageReady, Cancelled: true}, nil
	}

	step := ref.flow.Steps[ref.index]
	value, err := step.check(strings.TrimPrefix(input, ChoicePrefix))
	if err != nil {
		return Result{
			Prompt:  Prompt{Text: err.Error(), Keyboard: step.keyboard()},
			Stage:   sess.Stage,
			Invalid: true,
		}, nil
	}
	sess.Temp[step.Field] = value

	if ref.index+1 < len(ref.flow.Steps) {
		next := ref.flow.Steps[ref.index+1]
		sess.Stage = next.Stage
		return Result{Prompt: next.prompt(), Stage: next.Stage}, nil
	}

	values := make(map[string]string, len(sess.Temp))
	for k, v := range sess.Temp {
		values[k] = v
	}
	sess.ClearTemp()
	sess.Stage = domain.StageReady

	reply := ref.flow.DoneReply
	if ref.flow.Complete != nil {
		text, err := ref.flow.Complete(ctx, sess, values)
		if err != nil {
			return Result{Prompt: Prompt{Text: text}, Stage: domain.StageReady}, fmt.Errorf("flow %s: %w", ref.flow.Name, err)
		}
		if text != "" {
			reply = text
		}
	}
	if reply == "" {
		reply = "Done."
	}
	return Result{Prompt: Prompt{Text: reply}, Stage: domain.StageReady, Committed: values}, nil
}

func (s Step) check(input string) (string, error) {
	if len(s.Choices) > 0 {
		for _, c := range s.Choices {
			if strings.EqualFold(c, input) {
				input = c
				break
			}
		}
		if !containsExact(s.Choices, input) {
			return "", fmt.Errorf("Please choose one of: %s", strings.Join(s.Choices, ", "))
		}
	}
	if s.Validate != nil {
		return s.Validate(input)
	}
	if input == "" {
		return "", errors.New("Please send a value, or /cancel to stop.")
	}
	return input, nil
}

func (s Step) prompt() Prompt {
	return Prompt{Text: s.Prompt, Keyboard: s.keyboard()}
}

func (s Step) keyboard() *bot.Keyboard {
	kb := &bot.Keyboard{}
	for _, c := range s.Choices {
		kb.Rows = append(kb.Rows, bot.Row(bot.Button{Text: c, Data: ChoicePrefix + c}))
	}
	kb.Rows = append(kb.Rows, bot.Row(bot.Button{Text: "Cancel", Data: CancelData}))
	return kb
}

func containsExact(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
