package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"claj/server/internal/config"
	"claj/server/internal/packet"
	"claj/server/internal/relay"
)

// console is the interactive operator shell on stdin.
type console struct {
	rel   *relay.Relay
	cfg   *config.Config
	level *slog.LevelVar
	quit  chan<- struct{}
	out   io.Writer
}

func newConsole(rel *relay.Relay, cfg *config.Config, level *slog.LevelVar, quit chan<- struct{}) *console {
	return &console{rel: rel, cfg: cfg, level: level, quit: quit}
}

var consoleCommands = []string{
	"help", "version", "status", "rooms", "close", "say",
	"settings", "set", "limit", "blacklist", "blacklist-type",
	"refresh", "debug", "exit",
}

func (c *console) run(in io.Reader, out io.Writer) {
	c.out = out
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		if !c.execute(sc.Text()) {
			return
		}
	}
}

// execute runs one console line; returns false when the relay should
// shut down.
func (c *console) execute(line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return true
	}
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "help":
		c.printf("commands: %s\n", strings.Join(consoleCommands, ", "))
	case "version":
		c.printf("claj relay %s (protocol %d)\n", Version, c.rel.Version())
	case "status":
		st := c.rel.Status()
		c.printf("uptime %s, %d connections, %d rooms, %d clients, %d game types\n",
			st.Uptime.Round(1e9), st.Connections, st.Rooms, st.Clients, st.GameTypes)
	case "rooms":
		rooms := c.rel.RoomSummaries()
		if len(rooms) == 0 {
			c.printf("no open rooms\n")
			break
		}
		for _, r := range rooms {
			c.printf("  %s type=%q clients=%d public=%v protected=%v up=%d down=%d\n",
				r.SID, r.Type, r.Clients, r.Public, r.Protected, r.PacketsToHost, r.PacketsToClient)
		}
	case "close":
		if len(args) != 1 {
			c.printf("usage: close <room>\n")
			break
		}
		if err := c.rel.CloseRoom(args[0]); err != nil {
			c.printf("error: %v\n", err)
			break
		}
		c.printf("room %s closed\n", args[0])
	case "say":
		if len(args) == 0 {
			c.printf("usage: say <text>\n")
			break
		}
		n := c.rel.Broadcast(strings.Join(args, " "))
		c.printf("sent to %d rooms\n", n)
	case "settings":
		out, _ := json.MarshalIndent(c.cfg.Snapshot(), "", "  ")
		c.printf("%s\n", out)
	case "set":
		if len(args) != 2 {
			c.printf("usage: set <key> <value>\n")
			break
		}
		if err := c.cfg.Set(args[0], args[1]); err != nil {
			c.printf("error: %v\n", err)
			break
		}
		c.printf("%s = %s\n", args[0], args[1])
	case "limit":
		c.limit(args)
	case "blacklist":
		c.blacklist(args)
	case "blacklist-type":
		c.blacklistType(args)
	case "refresh":
		switch len(args) {
		case 0:
			c.rel.RefreshLists()
			c.printf("room lists invalidated\n")
		case 1:
			if c.rel.RefreshList(args[0]) {
				c.printf("list for %s invalidated\n", args[0])
			} else {
				c.printf("no cached list for %q\n", args[0])
			}
		default:
			c.printf("usage: refresh [room|type]\n")
		}
	case "debug":
		c.debug(args)
	case "exit":
		c.quit <- struct{}{}
		return false
	default:
		if hint := closestCommand(cmd); hint != "" {
			c.printf("unknown command %q, did you mean %q?\n", cmd, hint)
		} else {
			c.printf("unknown command %q, try help\n", cmd)
		}
	}
	return true
}

// limit shows or sets one numeric limit without dumping the whole
// settings blob.
func (c *console) limit(args []string) {
	if len(args) == 0 || len(args) > 2 {
		c.printf("usage: limit <name> [value]\n")
		return
	}
	name := args[0]
	if len(args) == 2 {
		if err := c.cfg.Set(name, args[1]); err != nil {
			c.printf("error: %v\n", err)
			return
		}
	}
	snap := c.cfg.Snapshot()
	limits := map[string]int64{
		config.KeySpamLimit:     int64(snap.SpamLimit),
		config.KeyJoinLimit:     int64(snap.JoinLimit),
		config.KeyInfoLimit:     int64(snap.InfoLimit),
		config.KeyListLimit:     int64(snap.ListLimit),
		config.KeyStateTimeout:  snap.StateTimeoutMS,
		config.KeyStateLifetime: snap.StateLifetimeMS,
		config.KeyListTimeout:   snap.ListTimeoutMS,
		config.KeyListLifetime:  snap.ListLifetimeMS,
		config.KeyCloseWait:     snap.CloseWaitS,
	}
	v, ok := limits[name]
	if !ok {
		c.printf("unknown limit %q\n", name)
		return
	}
	c.printf("%s = %d\n", name, v)
}

func (c *console) blacklist(args []string) {
	switch {
	case len(args) == 0 || args[0] == "list":
		c.printf("blacklisted addresses: %v\n", c.cfg.BlacklistedAddresses())
	case args[0] == "add" && len(args) == 2:
		if c.cfg.BlacklistAddress(args[1]) {
			c.printf("%s blacklisted\n", args[1])
		} else {
			c.printf("%s was already blacklisted\n", args[1])
		}
	case args[0] == "remove" && len(args) == 2:
		if c.cfg.UnblacklistAddress(args[1]) {
			c.printf("%s unblacklisted\n", args[1])
		} else {
			c.printf("%s was not blacklisted\n", args[1])
		}
	default:
		c.printf("usage: blacklist [list|add <address>|remove <address>]\n")
	}
}

func (c *console) blacklistType(args []string) {
	switch {
	case len(args) == 0 || args[0] == "list":
		c.printf("blacklisted types: %v\n", c.cfg.BlacklistedTypes())
	case args[0] == "add" && len(args) == 2:
		t := packet.GameType(args[1])
		if !t.Valid() || t == "" {
			c.printf("invalid game type %q\n", args[1])
			break
		}
		c.cfg.BlacklistType(t)
		c.printf("type %s blacklisted\n", t)
	case args[0] == "remove" && len(args) == 2:
		c.cfg.UnblacklistType(packet.GameType(args[1]))
		c.printf("type %s unblacklisted\n", args[1])
	default:
		c.printf("usage: blacklist-type [list|add <type>|remove <type>]\n")
	}
}

func (c *console) debug(args []string) {
	switch {
	case len(args) == 1 && args[0] == "on":
		c.level.Set(slog.LevelDebug)
		c.printf("debug logging on\n")
	case len(args) == 1 && args[0] == "off":
		c.level.Set(slog.LevelInfo)
		c.printf("debug logging off\n")
	default:
		c.printf("usage: debug [on|off]\n")
	}
}

func (c *console) printf(format string, args ...any) {
	fmt.Fprintf(c.out, format, args...)
}

// closestCommand suggests the nearest known command for a typo, or ""
// when nothing is close enough.
func closestCommand(cmd string) string {
	best, bestDist := "", 3
	for _, known := range consoleCommands {
		if d := levenshtein(cmd, known); d < bestDist {
			best, bestDist = known, d
		}
	}
	return best
}

func levenshtein(a, b string) int {
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		cur[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}
