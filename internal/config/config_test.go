package config

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"claj/server/internal/store"
)

func TestSetParsesAndApplies(t *testing.T) {
	c := New()

	if err := c.Set(KeySpamLimit, "500"); err != nil {
		t.Fatalf("set spamLimit: %v", err)
	}
	if c.SpamLimit() != 500 {
		t.Fatalf("spamLimit = %d", c.SpamLimit())
	}

	if err := c.Set(KeyStateTimeout, "2500"); err != nil {
		t.Fatalf("set stateTimeout: %v", err)
	}
	if c.StateTimeout() != 2500*time.Millisecond {
		t.Fatalf("stateTimeout = %v", c.StateTimeout())
	}

	if err := c.Set(KeyCloseWait, "7"); err != nil {
		t.Fatalf("set closeWait: %v", err)
	}
	if c.CloseWait() != 7*time.Second {
		t.Fatalf("closeWait = %v", c.CloseWait())
	}

	if err := c.Set(KeyWarnClosing, "false"); err != nil {
		t.Fatalf("set warnClosing: %v", err)
	}
	if c.WarnClosing() {
		t.Fatal("warnClosing should be false")
	}

	if err := c.Set("bogus", "1"); !errors.Is(err, ErrUnknownKey) {
		t.Fatalf("expected ErrUnknownKey, got %v", err)
	}
	if err := c.Set(KeySpamLimit, "-3"); err == nil {
		t.Fatal("negative limits must be rejected")
	}
}

func TestBlacklists(t *testing.T) {
	c := New()

	if !c.BlacklistAddress("10.0.0.1") {
		t.Fatal("first ban must report new")
	}
	if c.BlacklistAddress("10.0.0.1") {
		t.Fatal("second ban must report existing")
	}
	if !c.IsBlacklisted("10.0.0.1") || c.IsBlacklisted("10.0.0.2") {
		t.Fatal("blacklist lookup wrong")
	}
	if !c.UnblacklistAddress("10.0.0.1") || c.UnblacklistAddress("10.0.0.1") {
		t.Fatal("unban bookkeeping wrong")
	}

	c.BlacklistType("cheatmod")
	if !c.IsTypeBlacklisted("cheatmod") || c.IsTypeBlacklisted("T") {
		t.Fatal("type blacklist lookup wrong")
	}
}

func TestPersistenceRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.db")
	st, err := store.Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}

	c, err := Load(st)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := c.Set(KeyJoinLimit, "42"); err != nil {
		t.Fatalf("set: %v", err)
	}
	c.BlacklistAddress("192.0.2.7")
	c.BlacklistType("cheatmod")
	if err := st.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	st2, err := store.Open(path)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer st2.Close()
	c2, err := Load(st2)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if c2.JoinLimit() != 42 {
		t.Fatalf("joinLimit not persisted: %d", c2.JoinLimit())
	}
	if !c2.IsBlacklisted("192.0.2.7") {
		t.Fatal("address blacklist not persisted")
	}
	if !c2.IsTypeBlacklisted("cheatmod") {
		t.Fatal("type blacklist not persisted")
	}
	// Untouched settings keep their defaults.
	if c2.SpamLimit() != New().SpamLimit() {
		t.Fatalf("default spamLimit changed: %d", c2.SpamLimit())
	}
}
