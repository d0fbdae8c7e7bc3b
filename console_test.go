package main

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"claj/server/internal/config"
	"claj/server/internal/relay"
)

func newTestConsole(t *testing.T) (*console, *bytes.Buffer, chan struct{}) {
	t.Helper()
	loop := relay.NewLoop()
	go loop.Run()
	t.Cleanup(loop.Stop)

	cfg := config.New()
	rel := relay.New(cfg, loop, protocolVersion, relay.Hooks{})
	quit := make(chan struct{}, 1)
	c := newConsole(rel, cfg, new(slog.LevelVar), quit)
	c.out = &bytes.Buffer{}
	return c, c.out.(*bytes.Buffer), quit
}

func TestConsoleStatusAndRooms(t *testing.T) {
	c, out, _ := newTestConsole(t)

	if !c.execute("status") {
		t.Fatal("status must not exit the console")
	}
	if !strings.Contains(out.String(), "0 rooms") {
		t.Fatalf("unexpected status output: %q", out.String())
	}

	out.Reset()
	c.execute("rooms")
	if !strings.Contains(out.String(), "no open rooms") {
		t.Fatalf("unexpected rooms output: %q", out.String())
	}
}

func TestConsoleSetUpdatesConfig(t *testing.T) {
	c, out, _ := newTestConsole(t)

	c.execute("set spamLimit 450")
	if c.cfg.SpamLimit() != 450 {
		t.Fatalf("spamLimit = %d, want 450", c.cfg.SpamLimit())
	}

	out.Reset()
	c.execute("set bogus 1")
	if !strings.Contains(out.String(), "error") {
		t.Fatalf("bad key must report an error, got %q", out.String())
	}
}

func TestConsoleLimit(t *testing.T) {
	c, out, _ := newTestConsole(t)

	c.execute("limit joinLimit")
	if !strings.Contains(out.String(), "joinLimit = 10") {
		t.Fatalf("unexpected limit output: %q", out.String())
	}

	out.Reset()
	c.execute("limit joinLimit 25")
	if c.cfg.JoinLimit() != 25 {
		t.Fatalf("joinLimit = %d, want 25", c.cfg.JoinLimit())
	}
	if !strings.Contains(out.String(), "joinLimit = 25") {
		t.Fatalf("set did not echo the new value: %q", out.String())
	}

	out.Reset()
	c.execute("limit warnClosing")
	if !strings.Contains(out.String(), "unknown limit") {
		t.Fatalf("flags are not limits, got %q", out.String())
	}
}

func TestConsoleBlacklist(t *testing.T) {
	c, out, _ := newTestConsole(t)

	c.execute("blacklist add 203.0.113.4")
	if !c.cfg.IsBlacklisted("203.0.113.4") {
		t.Fatal("address not blacklisted")
	}
	c.execute("blacklist remove 203.0.113.4")
	if c.cfg.IsBlacklisted("203.0.113.4") {
		t.Fatal("address still blacklisted")
	}

	out.Reset()
	c.execute("blacklist-type add cheat")
	if !c.cfg.IsTypeBlacklisted("cheat") {
		t.Fatal("type not blacklisted")
	}
	c.execute("blacklist-type add toolongtype")
	if c.cfg.IsTypeBlacklisted("toolongtype") {
		t.Fatal("invalid type must be rejected")
	}
}

func TestConsoleRefresh(t *testing.T) {
	c, out, _ := newTestConsole(t)

	c.execute("refresh")
	if !strings.Contains(out.String(), "room lists invalidated") {
		t.Fatalf("unexpected refresh output: %q", out.String())
	}

	out.Reset()
	c.execute("refresh nosuch")
	if !strings.Contains(out.String(), "no cached list") {
		t.Fatalf("refresh of an unknown type must say so, got %q", out.String())
	}
}

func TestConsoleDebugToggle(t *testing.T) {
	c, _, _ := newTestConsole(t)

	c.execute("debug on")
	if c.level.Level() != slog.LevelDebug {
		t.Fatal("debug on did not lower the level")
	}
	c.execute("debug off")
	if c.level.Level() != slog.LevelInfo {
		t.Fatal("debug off did not restore the level")
	}
}

func TestConsoleSuggestsClosestCommand(t *testing.T) {
	c, out, _ := newTestConsole(t)

	c.execute("staus")
	if !strings.Contains(out.String(), `did you mean "status"`) {
		t.Fatalf("no suggestion in %q", out.String())
	}

	out.Reset()
	c.execute("xyzzy")
	if !strings.Contains(out.String(), "try help") {
		t.Fatalf("far-off typo should point at help, got %q", out.String())
	}
}

func TestConsoleExit(t *testing.T) {
	c, _, quit := newTestConsole(t)

	if c.execute("exit") {
		t.Fatal("exit must stop the console")
	}
	select {
	case <-quit:
	default:
		t.Fatal("exit did not signal shutdown")
	}
}

func TestLevenshtein(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"rooms", "rooms", 0},
		{"staus", "status", 1},
		{"cloze", "close", 1},
		{"abc", "xyz", 3},
	}
	for _, tc := range cases {
		if got := levenshtein(tc.a, tc.b); got != tc.want {
			t.Errorf("levenshtein(%q, %q) = %d, want %d", tc.a, tc.b, got, tc.want)
		}
	}
}
