package dispatch

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dominikletica/aaviondb/internal/aerr"
	"github.com/dominikletica/aaviondb/internal/eventbus"
)

func TestRegisterDuplicateFails(t *testing.T) {
	d := New(nil)
	require.NoError(t, d.Register("ping", func(map[string]any) (any, error) { return "pong", nil }, Meta{}))
	err := d.Register("PING", func(map[string]any) (any, error) { return nil, nil }, Meta{})
	require.Error(t, err)
}

func TestDispatchSuccess(t *testing.T) {
	d := New(nil)
	d.Register("ping", func(map[string]any) (any, error) { return "pong", nil }, Meta{})
	resp := d.Dispatch("ping", nil)
	require.Equal(t, "ok", resp.Status)
	require.Equal(t, "pong", resp.Data)
}

func TestDispatchUnknownCommand(t *testing.T) {
	d := New(nil)
	resp := d.Dispatch("nope", nil)
	require.Equal(t, "error", resp.Status)
}

func TestDispatchHandlerError(t *testing.T) {
	d := New(nil)
	d.Register("fail", func(map[string]any) (any, error) {
		return nil, aerr.New(aerr.KindNotFound, "missing")
	}, Meta{})
	resp := d.Dispatch("fail", nil)
	require.Equal(t, "error", resp.Status)
	require.Equal(t, "NotFound", resp.Meta["kind"])
}

func TestDispatchRecoversPanic(t *testing.T) {
	d := New(nil)
	d.Register("boom", func(map[string]any) (any, error) { panic(errors.New("kaboom")) }, Meta{})
	resp := d.Dispatch("boom", nil)
	require.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Meta["exception"])
}

func TestDispatchEmitsEvents(t *testing.T) {
	bus := eventbus.New(nil)
	var events []string
	bus.Subscribe("command.*", func(ev eventbus.Event) {
		events = append(events, ev.Name)
	})
	d := New(bus)
	d.Register("ping", func(map[string]any) (any, error) { return "pong", nil }, Meta{})
	d.Dispatch("ping", nil)
	require.Contains(t, events, "command.executed")
}

func TestParseTokenizesQuotedStrings(t *testing.T) {
	d := New(nil)
	action, params := d.Parse(`entity save demo "hero name" key=value`)
	require.Equal(t, "entity", action)
	require.Equal(t, []string{"save", "demo", "hero name"}, params["args"])
	require.Equal(t, "value", params["key"])
}

func TestParseExtractsTrailingJSON(t *testing.T) {
	d := New(nil)
	action, params := d.Parse(`entity save demo hero {"name":"Aria"}`)
	require.Equal(t, "entity", action)
	payload, ok := params["payload"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "Aria", payload["name"])
}

func TestParseFlags(t *testing.T) {
	d := New(nil)
	_, params := d.Parse(`export --format=json --save`)
	require.Equal(t, "json", params["format"])
	require.Equal(t, true, params["save"])
}

func TestParserHandlerRewritesAction(t *testing.T) {
	d := New(nil)
	d.RegisterParserHandler("", 0, func(ctx *ParserContext) {
		if ctx.Action == "alias" {
			ctx.Action = "ping"
		}
	})
	action, _ := d.Parse("alias")
	require.Equal(t, "ping", action)
}
