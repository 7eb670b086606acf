package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/eiannone/keyboard"
	"checknostr/engine/actors"
	"checknostr/engine/codec"
	"checknostr/messaging/checker"
)

// cliListener is a cheap and nasty way to drive the checker. It listens for
// keypresses and executes commands.
func cliListener(c *checker.Checker) {
	fmt.Println(`COMMANDS:
i: set event id (hex/note/nevent)
a: set author key (hex/npub/nprofile)
r: add a relay
R: remove a relay by number
g: query now
f: full re-query (discards collected results)
t: toggle auto query
p: publish the fetched event to a relay by number
s: show relay states, event and profile
d: decode a NIP-19 identifier
x: encode a raw hex to its NIP-19 candidates
c: engine config
q: quit`)
	for {
		r, k, err := keyboard.GetSingleKey()
		if err != nil {
			panic(err)
		}
		str := string(r)
		switch str {
		default:
			if k == 13 {
				fmt.Println("\n-----------------------------------")
				break
			}
			if r == 0 {
				break
			}
			fmt.Println("Key " + str + " is not bound to any command. See main.cliListener for more details.")
		case "i":
			if err := c.SetTarget(prompt("event id")); err != nil {
				fmt.Println("invalid event id:", err)
			}
		case "a":
			if err := c.SetAuthor(prompt("author key")); err != nil {
				fmt.Println("invalid author key:", err)
			}
		case "r":
			c.AddRelay(prompt("relay address"))
		case "R":
			if addr, ok := relayByNumber(c); ok {
				c.RemoveRelay(addr)
			}
		case "g":
			c.Query()
		case "f":
			c.Requery()
		case "t":
			fmt.Println("auto query:", c.ToggleAutoQuery())
		case "p":
			if addr, ok := relayByNumber(c); ok {
				if err := c.PublishTo(addr); err != nil {
					fmt.Println("publish rejected:", err)
				}
			}
		case "s":
			printStates(c)
		case "d":
			printDecoded(prompt("NIP-19 identifier"))
		case "x":
			printCandidates(prompt("raw hex"))
		case "c":
			fmt.Println("CURRENT CONFIG")
			for key, v := range actors.MakeOrGetConfig().AllSettings() {
				fmt.Printf("\nKey: %s; Value: %v\n", key, v)
			}
		case "q":
			close(actors.GetTerminateChan())
			return
		}
	}
}

func prompt(label string) string {
	fmt.Printf("%s> ", label)
	sc := bufio.NewScanner(os.Stdin)
	if sc.Scan() {
		return strings.TrimSpace(sc.Text())
	}
	return ""
}

func relayByNumber(c *checker.Checker) (string, bool) {
	states := c.Relays()
	if len(states) == 0 {
		fmt.Println("no relays registered")
		return "", false
	}
	for i, st := range states {
		fmt.Printf("%d: %s\n", i, st.URL)
	}
	n, err := strconv.Atoi(prompt("relay number"))
	if err != nil || n < 0 || n >= len(states) {
		fmt.Println("no such relay")
		return "", false
	}
	return states[n].URL, true
}

func printStates(c *checker.Checker) {
	id, idErr := c.Target()
	if len(idErr) > 0 {
		fmt.Println("event id error:", idErr)
	} else if len(id) > 0 {
		fmt.Println("event id:", id)
	}
	author, authorErr := c.Author()
	if len(authorErr) > 0 {
		fmt.Println("author key error:", authorErr)
	} else if len(author) > 0 {
		fmt.Println("author:", author)
	}
	for _, st := range c.Relays() {
		has := "unknown"
		if st.HasEvent != nil {
			if *st.HasEvent {
				has = "yes"
			} else {
				has = "no"
			}
		}
		fmt.Printf("%s [%s] has event: %s", st.URL, st.Status, has)
		if len(st.Err) > 0 {
			fmt.Printf(" error: %s", st.Err)
		}
		if len(st.Publish) > 0 {
			fmt.Printf(" publish: %s", st.Publish)
			if len(st.PublishErr) > 0 {
				fmt.Printf(" (%s)", st.PublishErr)
			}
		}
		fmt.Println()
	}
	if ev := c.Canonical(); ev != nil {
		raw, err := json.MarshalIndent(ev, "", "  ")
		if err == nil {
			fmt.Printf("\nEVENT\n%s\n", raw)
		}
	}
	if p, ok := c.CurrentProfile(); ok {
		fmt.Printf("\nPROFILE: %s\n", p.BestName())
		if len(p.About) > 0 {
			fmt.Println(p.About)
		}
		if len(p.Nip05) > 0 {
			fmt.Printf("nip05: %s\n", p.Nip05)
		}
		if len(p.Website) > 0 {
			fmt.Printf("website: %s\n", p.Website)
		}
		if endpoint, ok := actors.LightningEndpoint(p); ok {
			fmt.Printf("lightning: %s\n", endpoint)
		}
	}
}

func printDecoded(input string) {
	d, err := codec.Decode(input)
	if err != nil {
		fmt.Println("decode error:", err)
		return
	}
	fmt.Printf("type: %s\nhex: %s\n", d.Type, d.Hex)
	switch {
	case d.Event != nil:
		if len(d.Event.Author) > 0 {
			fmt.Println("author:", d.Event.Author)
		}
		for _, r := range d.Event.Relays {
			fmt.Println("relay hint:", r)
		}
	case d.Profile != nil:
		for _, r := range d.Profile.Relays {
			fmt.Println("relay hint:", r)
		}
	case d.Entity != nil:
		fmt.Printf("kind: %d identifier: %s\n", d.Entity.Kind, d.Entity.Identifier)
	}
}

func printCandidates(input string) {
	cands, err := codec.EncodeCandidates(input)
	if err != nil {
		fmt.Println("encode error:", err)
		return
	}
	for _, cand := range cands {
		fmt.Printf("%s\n%s\n\n", cand.Label, cand.Value)
	}
}
