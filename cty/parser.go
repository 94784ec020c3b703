// Package cty loads the CTY prefix database (cty.plist) so emitted spots can
// be tagged with the continent of the spotted station.
//
// Lookups are exact-callsign first, then longest prefix over a read-only trie
// built once at load time. The database is immutable after load and safe for
// concurrent readers.
package cty

import (
	"fmt"
	"io"
	"os"
	"strings"

	"howett.net/plist"
)

// PrefixInfo describes the metadata stored for each CTY entry.
type PrefixInfo struct {
	Country       string  `plist:"Country"`
	Prefix        string  `plist:"Prefix"`
	ADIF          int     `plist:"ADIF"`
	CQZone        int     `plist:"CQZone"`
	ITUZone       int     `plist:"ITUZone"`
	Continent     string  `plist:"Continent"`
	Latitude      float64 `plist:"Latitude"`
	Longitude     float64 `plist:"Longitude"`
	GMTOffset     float64 `plist:"GMTOffset"`
	ExactCallsign bool    `plist:"ExactCallsign"`
}

// Database holds the decoded plist entries and the prefix trie.
type Database struct {
	data map[string]PrefixInfo
	trie prefixTrie
}

// prefixTrie walks the callsign bytes from the root and remembers the last
// terminal node seen; that key is the longest matching prefix.
type prefixTrie struct {
	nodes []trieNode
}

type trieNode struct {
	next        map[byte]int
	terminalKey string
}

func buildTrie(keys []string) prefixTrie {
	tr := prefixTrie{nodes: []trieNode{{next: make(map[byte]int)}}}
	for _, key := range keys {
		if key == "" {
			continue
		}
		state := 0
		for i := 0; i < len(key); i++ {
			next := tr.nodes[state].next
			if next == nil {
				next = make(map[byte]int)
				tr.nodes[state].next = next
			}
			child, ok := next[key[i]]
			if !ok {
				child = len(tr.nodes)
				tr.nodes = append(tr.nodes, trieNode{})
				next[key[i]] = child
			}
			state = child
		}
		tr.nodes[state].terminalKey = key
	}
	return tr
}

func (tr *prefixTrie) longest(cs string) (string, bool) {
	if len(tr.nodes) == 0 || cs == "" {
		return "", false
	}
	state := 0
	best := ""
	for i := 0; i < len(cs); i++ {
		child, ok := tr.nodes[state].next[cs[i]]
		if !ok {
			break
		}
		state = child
		if k := tr.nodes[state].terminalKey; k != "" {
			best = k
		}
	}
	return best, best != ""
}

// LoadDatabase loads cty.plist from disk.
func LoadDatabase(path string) (*Database, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open cty plist: %w", err)
	}
	defer f.Close()
	return LoadDatabaseFromReader(f)
}

// LoadDatabaseFromReader decodes CTY data from r. Keys are upper-cased and
// trimmed; entries flagged ExactCallsign only match whole callsigns.
func LoadDatabaseFromReader(r io.ReadSeeker) (*Database, error) {
	var raw map[string]PrefixInfo
	if err := plist.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode plist: %w", err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("decode plist: no entries")
	}
	data := make(map[string]PrefixInfo, len(raw))
	var prefixes []string
	for k, v := range raw {
		norm := strings.ToUpper(strings.TrimSpace(k))
		if norm == "" {
			continue
		}
		data[norm] = v
		if !v.ExactCallsign {
			prefixes = append(prefixes, norm)
		}
	}
	return &Database{data: data, trie: buildTrie(prefixes)}, nil
}

// Len reports the number of entries loaded.
func (db *Database) Len() int {
	if db == nil {
		return 0
	}
	return len(db.data)
}

var portableSuffixes = []string{"/QRP", "/MM", "/AM", "/P", "/M"}

// normalizeCallsign upper-cases the call and strips portable/mobile suffixes
// that never change the entity.
func normalizeCallsign(call string) string {
	cs := strings.ToUpper(strings.TrimSpace(call))
	for {
		stripped := false
		for _, suf := range portableSuffixes {
			if len(cs) > len(suf) && strings.HasSuffix(cs, suf) {
				cs = cs[:len(cs)-len(suf)]
				stripped = true
				break
			}
		}
		if !stripped {
			return cs
		}
	}
}

// Lookup resolves a callsign to its CTY entry.
func (db *Database) Lookup(call string) (*PrefixInfo, bool) {
	if db == nil {
		return nil, false
	}
	cs := normalizeCallsign(call)
	if cs == "" {
		return nil, false
	}
	if info, ok := db.data[cs]; ok {
		return &info, true
	}
	key, ok := db.trie.longest(cs)
	if !ok {
		return nil, false
	}
	info := db.data[key]
	return &info, true
}

// Continent returns the two-letter continent for call, or "" when unknown.
func (db *Database) Continent(call string) string {
	info, ok := db.Lookup(call)
	if !ok {
		return ""
	}
	return info.Continent
}
