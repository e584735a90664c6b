// Package dispatch implements the command registry and dispatcher
// (spec.md §4.6, C6): name-keyed handler registration, a statement
// parser with quote-aware tokenization and trailing-JSON-fragment
// extraction, and the uniform Response envelope every handler call
// returns.
package dispatch

import (
	"strings"
	"time"

	"github.com/dominikletica/aaviondb/internal/aerr"
	"github.com/dominikletica/aaviondb/internal/codec"
	"github.com/dominikletica/aaviondb/internal/eventbus"
)

// Handler executes one registered command.
type Handler func(params map[string]any) (any, error)

// Meta describes a registered command for introspection/help text.
type Meta struct {
	Summary string
	Usage   string
}

// Response is the envelope every dispatch call returns (spec.md §6.2).
type Response struct {
	Status  string         `json:"status"` // ok | error
	Action  string         `json:"action"`
	Message string         `json:"message"`
	Data    any            `json:"data,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`
}

type registration struct {
	handler Handler
	meta    Meta
}

// ParserHandler rewrites a ParserContext before dispatch; verb is the
// leading token it is keyed to, or "" to match any verb.
type ParserHandler func(ctx *ParserContext)

type parserRegistration struct {
	verb     string
	priority int
	handler  ParserHandler
}

// ParserContext is the mutable state a parser handler may rewrite.
type ParserContext struct {
	Action     string
	Tokens     []string
	Parameters map[string]any
	Payload    any
}

// Dispatcher owns the command registry, parser handler chain, and
// dispatch/event-emission wiring.
type Dispatcher struct {
	commands map[string]registration
	parsers  []parserRegistration
	bus      *eventbus.Bus
	now      func() time.Time
}

// New constructs a Dispatcher.
func New(bus *eventbus.Bus) *Dispatcher {
	if bus == nil {
		bus = eventbus.New(nil)
	}
	return &Dispatcher{commands: map[string]registration{}, bus: bus, now: time.Now}
}

// Register adds a named handler. Names are lowercased; a duplicate
// register fails with CommandException.
func (d *Dispatcher) Register(name string, handler Handler, meta Meta) error {
	name = strings.ToLower(name)
	if _, exists := d.commands[name]; exists {
		return aerr.New(aerr.KindCommandException, "command %q already registered", name)
	}
	d.commands[name] = registration{handler: handler, meta: meta}
	return nil
}

// RegisterParserHandler adds a parser-rewrite hook keyed to verb ("" =
// any verb), ordered ascending by priority.
func (d *Dispatcher) RegisterParserHandler(verb string, priority int, handler ParserHandler) {
	d.parsers = append(d.parsers, parserRegistration{verb: strings.ToLower(verb), priority: priority, handler: handler})
	sortParsers(d.parsers)
}

func sortParsers(regs []parserRegistration) {
	for i := 1; i < len(regs); i++ {
		for j := i; j > 0 && regs[j].priority < regs[j-1].priority; j-- {
			regs[j], regs[j-1] = regs[j-1], regs[j]
		}
	}
}

// Dispatch calls the named handler, wrapping it with a timer, panic
// recovery, and command.executed/command.failed event emission.
func (d *Dispatcher) Dispatch(name string, params map[string]any) (resp Response) {
	name = strings.ToLower(name)
	start := d.now()
	defer func() {
		if r := recover(); r != nil {
			resp = Response{
				Status:  "error",
				Action:  name,
				Message: "handler panicked",
				Meta:    map[string]any{"exception": map[string]any{"message": panicMessage(r), "type": "panic"}},
			}
			d.emitOutcome(name, resp, start)
		}
	}()

	reg, ok := d.commands[name]
	if !ok {
		resp = Response{Status: "error", Action: name, Message: "unknown command " + name}
		d.emitOutcome(name, resp, start)
		return resp
	}

	data, err := reg.handler(params)
	if err != nil {
		resp = errorResponse(name, err)
		d.emitOutcome(name, resp, start)
		return resp
	}
	resp = Response{Status: "ok", Action: name, Message: "ok", Data: data}
	d.emitOutcome(name, resp, start)
	return resp
}

func (d *Dispatcher) emitOutcome(action string, resp Response, start time.Time) {
	durationMs := d.now().Sub(start).Milliseconds()
	event := "command.executed"
	if resp.Status == "error" {
		event = "command.failed"
	}
	d.bus.Emit(event, map[string]any{"action": action, "status": resp.Status, "duration_ms": durationMs})
}

func errorResponse(action string, err error) Response {
	kind := aerr.KindOf(err)
	resp := Response{Status: "error", Action: action, Message: err.Error()}
	if kind == "" {
		resp.Meta = map[string]any{"exception": map[string]any{"message": err.Error(), "type": "error"}}
		return resp
	}
	resp.Meta = map[string]any{"kind": string(kind)}
	if kind == aerr.KindHandlerException {
		resp.Meta["exception"] = map[string]any{"message": err.Error(), "type": string(kind)}
	}
	return resp
}

func panicMessage(r any) string {
	if err, ok := r.(error); ok {
		return err.Error()
	}
	if s, ok := r.(string); ok {
		return s
	}
	return "panic"
}

// Parse tokenizes a statement, extracts a trailing JSON fragment as
// payload, parses --flags/bareword assignments, and runs every
// matching parser handler (by verb, ascending priority) before
// returning the final (action, params).
func (d *Dispatcher) Parse(statement string) (string, map[string]any) {
	tokens, payload := tokenizeAndExtractPayload(statement)
	action := ""
	if len(tokens) > 0 {
		action = strings.ToLower(tokens[0])
		tokens = tokens[1:]
	}
	params := map[string]any{}
	var positional []string
	for _, tok := range tokens {
		if strings.HasPrefix(tok, "--") {
			parseFlag(tok[2:], params)
			continue
		}
		if eq := strings.Index(tok, "="); eq > 0 {
			params[tok[:eq]] = tok[eq+1:]
			continue
		}
		positional = append(positional, tok)
	}
	if payload != nil {
		params["payload"] = payload
	}
	if len(positional) > 0 {
		params["args"] = positional
	}

	ctx := &ParserContext{Action: action, Tokens: positional, Parameters: params, Payload: payload}
	for _, reg := range d.parsers {
		if reg.verb != "" && reg.verb != ctx.Action {
			continue
		}
		reg.handler(ctx)
	}
	return ctx.Action, ctx.Parameters
}

func parseFlag(flag string, params map[string]any) {
	if eq := strings.Index(flag, "="); eq >= 0 {
		params[flag[:eq]] = flag[eq+1:]
		return
	}
	params[flag] = true
}

// tokenizeAndExtractPayload performs quote-aware word splitting
// (double/single quotes kept as single tokens; \", \\, \' escapes) and
// peels off a trailing {…}/[…] JSON fragment as payload.
func tokenizeAndExtractPayload(statement string) ([]string, any) {
	trimmed := strings.TrimSpace(statement)
	var payload any
	if idx := findTrailingJSON(trimmed); idx >= 0 {
		fragment := trimmed[idx:]
		if decoded, err := codec.Decode([]byte(fragment)); err == nil {
			payload = decoded
			trimmed = strings.TrimSpace(trimmed[:idx])
		}
	}
	return tokenize(trimmed), payload
}

func findTrailingJSON(s string) int {
	s = strings.TrimRight(s, " \t")
	if s == "" {
		return -1
	}
	last := s[len(s)-1]
	if last != '}' && last != ']' {
		return -1
	}
	open, close := byte('{'), byte('}')
	if last == ']' {
		open, close = '[', ']'
	}
	depth := 0
	inStr := false
	var quote byte
	for i := len(s) - 1; i >= 0; i-- {
		c := s[i]
		if inStr {
			if c == quote && (i == 0 || s[i-1] != '\\') {
				inStr = false
			}
			continue
		}
		switch c {
		case close:
			depth++
		case open:
			depth--
			if depth == 0 {
				return i
			}
		case '"', '\'':
			inStr = true
			quote = c
		}
	}
	return -1
}

func tokenize(s string) []string {
	var tokens []string
	var cur strings.Builder
	inToken := false
	var quote byte
	inQuote := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inQuote {
			if c == '\\' && i+1 < len(s) && (s[i+1] == quote || s[i+1] == '\\') {
				cur.WriteByte(s[i+1])
				i++
				continue
			}
			if c == quote {
				inQuote = false
				continue
			}
			cur.WriteByte(c)
			continue
		}
		switch {
		case c == '"' || c == '\'':
			inQuote = true
			quote = c
			inToken = true
		case c == ' ' || c == '\t':
			if inToken {
				tokens = append(tokens, cur.String())
				cur.Reset()
				inToken = false
			}
		default:
			cur.WriteByte(c)
			inToken = true
		}
	}
	if inToken {
		tokens = append(tokens, cur.String())
	}
	return tokens
}
