// Package config holds the relay's runtime-mutable settings: numeric
// limits, feature flags and the two blacklists. Mutations are persisted
// through the settings store when one is attached, so operator changes
// survive restarts even though rooms do not.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"claj/server/internal/packet"
	"claj/server/internal/store"
)

// Numeric limit and flag names accepted by Set. Durations are expressed
// in the unit of their wire meaning (milliseconds, except closeWait in
// seconds).
const (
	KeySpamLimit      = "spamLimit"      // packets per 3 s; 0 disables
	KeyJoinLimit      = "joinLimit"      // joins per minute; 0 disables
	KeyInfoLimit      = "infoLimit"      // info requests per 3 s
	KeyListLimit      = "listLimit"      // list requests per 3 s
	KeyStateTimeout   = "stateTimeout"   // ms a state request may stay in flight
	KeyStateLifetime  = "stateLifetime"  // ms before a room state is outdated
	KeyListTimeout    = "listTimeout"    // ms a list refresh may take
	KeyListLifetime   = "listLifetime"   // ms before a cached list is outdated
	KeyCloseWait      = "closeWait"      // s of shutdown grace
	KeyWarnClosing    = "warnClosing"
	KeyAcceptNoType   = "acceptNoType"
	KeyWarnDeprecated = "warnDeprecated"

	keyBlacklist      = "blacklist"
	keyBlacklistTypes = "blacklistedTypes"
)

// ErrUnknownKey is returned by Set for a name that is not a setting.
var ErrUnknownKey = errors.New("unknown setting")

type values struct {
	spamLimit      int
	joinLimit      int
	infoLimit      int
	listLimit      int
	stateTimeout   time.Duration
	stateLifetime  time.Duration
	listTimeout    time.Duration
	listLifetime   time.Duration
	closeWait      time.Duration
	warnClosing    bool
	acceptNoType   bool
	warnDeprecated bool
}

func defaults() values {
	return values{
		spamLimit:      300,
		joinLimit:      10,
		infoLimit:      10,
		listLimit:      10,
		stateTimeout:   5 * time.Second,
		stateLifetime:  30 * time.Second,
		listTimeout:    5 * time.Second,
		listLifetime:   10 * time.Second,
		closeWait:      5 * time.Second,
		warnClosing:    true,
		acceptNoType:   true,
		warnDeprecated: true,
	}
}

// Config is safe for concurrent use.
type Config struct {
	mu sync.RWMutex
	v  values

	blacklist map[string]struct{}
	types     map[packet.GameType]struct{}

	st *store.Store
}

// New returns a config with defaults and no persistence.
func New() *Config {
	return &Config{
		v:         defaults(),
		blacklist: make(map[string]struct{}),
		types:     make(map[packet.GameType]struct{}),
	}
}

// Load builds a config from the settings store and keeps writing changes
// back to it.
func Load(st *store.Store) (*Config, error) {
	c := New()
	c.st = st

	all, err := st.GetAllSettings()
	if err != nil {
		return nil, err
	}
	for key, raw := range all {
		switch key {
		case keyBlacklist:
			var addrs []string
			if err := json.Unmarshal([]byte(raw), &addrs); err == nil {
				for _, a := range addrs {
					c.blacklist[a] = struct{}{}
				}
			}
		case keyBlacklistTypes:
			var labels []string
			if err := json.Unmarshal([]byte(raw), &labels); err == nil {
				for _, l := range labels {
					c.types[packet.GameType(l)] = struct{}{}
				}
			}
		default:
			if err := c.apply(key, raw); err != nil {
				slog.Warn("ignoring bad stored setting", "key", key, "value", raw, "err", err)
			}
		}
	}
	return c, nil
}

// apply parses and sets one named value; caller holds no lock yet.
func (c *Config) apply(key, raw string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch key {
	case KeyWarnClosing, KeyAcceptNoType, KeyWarnDeprecated:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return err
		}
		switch key {
		case KeyWarnClosing:
			c.v.warnClosing = b
		case KeyAcceptNoType:
			c.v.acceptNoType = b
		case KeyWarnDeprecated:
			c.v.warnDeprecated = b
		}
	default:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return err
		}
		if n < 0 {
			return fmt.Errorf("negative value %d", n)
		}
		switch key {
		case KeySpamLimit:
			c.v.spamLimit = int(n)
		case KeyJoinLimit:
			c.v.joinLimit = int(n)
		case KeyInfoLimit:
			c.v.infoLimit = int(n)
		case KeyListLimit:
			c.v.listLimit = int(n)
		case KeyStateTimeout:
			c.v.stateTimeout = time.Duration(n) * time.Millisecond
		case KeyStateLifetime:
			c.v.stateLifetime = time.Duration(n) * time.Millisecond
		case KeyListTimeout:
			c.v.listTimeout = time.Duration(n) * time.Millisecond
		case KeyListLifetime:
			c.v.listLifetime = time.Duration(n) * time.Millisecond
		case KeyCloseWait:
			c.v.closeWait = time.Duration(n) * time.Second
		default:
			return ErrUnknownKey
		}
	}
	return nil
}

// Set parses, applies and persists one named setting.
func (c *Config) Set(key, raw string) error {
	if err := c.apply(key, raw); err != nil {
		return err
	}
	c.persist(key, raw)
	return nil
}

func (c *Config) persist(key, raw string) {
	if c.st == nil {
		return
	}
	if err := c.st.SetSetting(key, raw); err != nil {
		slog.Error("persist setting failed", "key", key, "err", err)
	}
}

func (c *Config) persistList(key string, list []string) {
	if c.st == nil {
		return
	}
	sort.Strings(list)
	raw, _ := json.Marshal(list)
	if err := c.st.SetSetting(key, string(raw)); err != nil {
		slog.Error("persist setting failed", "key", key, "err", err)
	}
}

func (c *Config) SpamLimit() int { c.mu.RLock(); defer c.mu.RUnlock(); return c.v.spamLimit }
func (c *Config) JoinLimit() int { c.mu.RLock(); defer c.mu.RUnlock(); return c.v.joinLimit }
func (c *Config) InfoLimit() int { c.mu.RLock(); defer c.mu.RUnlock(); return c.v.infoLimit }
func (c *Config) ListLimit() int { c.mu.RLock(); defer c.mu.RUnlock(); return c.v.listLimit }

func (c *Config) StateTimeout() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.v.stateTimeout
}

func (c *Config) StateLifetime() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.v.stateLifetime
}

func (c *Config) ListTimeout() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.v.listTimeout
}

func (c *Config) ListLifetime() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.v.listLifetime
}

func (c *Config) CloseWait() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.v.closeWait
}

func (c *Config) WarnClosing() bool    { c.mu.RLock(); defer c.mu.RUnlock(); return c.v.warnClosing }
func (c *Config) AcceptNoType() bool   { c.mu.RLock(); defer c.mu.RUnlock(); return c.v.acceptNoType }
func (c *Config) WarnDeprecated() bool { c.mu.RLock(); defer c.mu.RUnlock(); return c.v.warnDeprecated }

// IsBlacklisted reports whether a remote address is banned.
func (c *Config) IsBlacklisted(addr string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.blacklist[addr]
	return ok
}

// BlacklistAddress bans an address; reports whether it was new.
func (c *Config) BlacklistAddress(addr string) bool {
	c.mu.Lock()
	_, exists := c.blacklist[addr]
	c.blacklist[addr] = struct{}{}
	list := addressesLocked(c.blacklist)
	c.mu.Unlock()
	c.persistList(keyBlacklist, list)
	return !exists
}

// UnblacklistAddress lifts a ban; reports whether it existed.
func (c *Config) UnblacklistAddress(addr string) bool {
	c.mu.Lock()
	_, exists := c.blacklist[addr]
	delete(c.blacklist, addr)
	list := addressesLocked(c.blacklist)
	c.mu.Unlock()
	c.persistList(keyBlacklist, list)
	return exists
}

// BlacklistedAddresses returns a sorted snapshot of banned addresses.
func (c *Config) BlacklistedAddresses() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := addressesLocked(c.blacklist)
	sort.Strings(out)
	return out
}

// IsTypeBlacklisted reports whether a game type label is banned.
func (c *Config) IsTypeBlacklisted(t packet.GameType) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.types[t]
	return ok
}

// BlacklistType bans a game type label; reports whether it was new.
func (c *Config) BlacklistType(t packet.GameType) bool {
	c.mu.Lock()
	_, exists := c.types[t]
	c.types[t] = struct{}{}
	list := typesLocked(c.types)
	c.mu.Unlock()
	c.persistList(keyBlacklistTypes, list)
	return !exists
}

// UnblacklistType lifts a type ban; reports whether it existed.
func (c *Config) UnblacklistType(t packet.GameType) bool {
	c.mu.Lock()
	_, exists := c.types[t]
	delete(c.types, t)
	list := typesLocked(c.types)
	c.mu.Unlock()
	c.persistList(keyBlacklistTypes, list)
	return exists
}

// BlacklistedTypes returns a sorted snapshot of banned type labels.
func (c *Config) BlacklistedTypes() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := typesLocked(c.types)
	sort.Strings(out)
	return out
}

// Snapshot is the full settings view used by the console and admin API.
type Snapshot struct {
	SpamLimit        int      `json:"spamLimit"`
	JoinLimit        int      `json:"joinLimit"`
	InfoLimit        int      `json:"infoLimit"`
	ListLimit        int      `json:"listLimit"`
	StateTimeoutMS   int64    `json:"stateTimeout"`
	StateLifetimeMS  int64    `json:"stateLifetime"`
	ListTimeoutMS    int64    `json:"listTimeout"`
	ListLifetimeMS   int64    `json:"listLifetime"`
	CloseWaitS       int64    `json:"closeWait"`
	WarnClosing      bool     `json:"warnClosing"`
	AcceptNoType     bool     `json:"acceptNoType"`
	WarnDeprecated   bool     `json:"warnDeprecated"`
	Blacklist        []string `json:"blacklist"`
	BlacklistedTypes []string `json:"blacklistedTypes"`
}

// Snapshot returns a copy of every setting.
func (c *Config) Snapshot() Snapshot {
	c.mu.RLock()
	v := c.v
	addrs := addressesLocked(c.blacklist)
	labels := typesLocked(c.types)
	c.mu.RUnlock()
	sort.Strings(addrs)
	sort.Strings(labels)
	return Snapshot{
		SpamLimit:        v.spamLimit,
		JoinLimit:        v.joinLimit,
		InfoLimit:        v.infoLimit,
		ListLimit:        v.listLimit,
		StateTimeoutMS:   v.stateTimeout.Milliseconds(),
		StateLifetimeMS:  v.stateLifetime.Milliseconds(),
		ListTimeoutMS:    v.listTimeout.Milliseconds(),
		ListLifetimeMS:   v.listLifetime.Milliseconds(),
		CloseWaitS:       int64(v.closeWait / time.Second),
		WarnClosing:      v.warnClosing,
		AcceptNoType:     v.acceptNoType,
		WarnDeprecated:   v.warnDeprecated,
		Blacklist:        addrs,
		BlacklistedTypes: labels,
	}
}

func addressesLocked(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for a := range set {
		out = append(out, a)
	}
	return out
}

func typesLocked(set map[packet.GameType]struct{}) []string {
	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, string(t))
	}
	return out
}
