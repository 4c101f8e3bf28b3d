package geo

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"sort"
	"strings"
	"sync/atomic"
)

// CIDRTable is a sorted, binary-searchable set of cloud-provider IPv4
// prefixes. Each load produces a fresh immutable snapshot; readers fetch
// the current snapshot through an atomic.Pointer and never block a
// concurrent refresh. Membership is a byte-level range comparison against
// the sorted prefix list.
type CIDRTable struct {
	ptr atomic.Pointer[cidrSnapshot]
}

type cidrEntry struct {
	network  net.IPNet
	provider string
}

type cidrSnapshot struct {
	entries []cidrEntry // sorted by entries[i].network.IP ascending
}

// NewCIDRTable returns an empty table; call Load or Replace before use.
func NewCIDRTable() *CIDRTable {
	t := &CIDRTable{}
	t.ptr.Store(&cidrSnapshot{})
	return t
}

// Lookup returns the cloud provider label for ip, and whether it matched
// any loaded range.
func (t *CIDRTable) Lookup(ip net.IP) (provider string, ok bool) {
	snap := t.ptr.Load()
	if snap == nil || len(snap.entries) == 0 {
		return "", false
	}
	v4 := ip.To4()
	if v4 == nil {
		v4 = ip
	}
	// Binary search for the last entry whose network start <= ip.
	entries := snap.entries
	i := sort.Search(len(entries), func(i int) bool {
		return bytesCompare(entries[i].network.IP, v4) > 0
	})
	for j := i - 1; j >= 0; j-- {
		if entries[j].network.Contains(v4) {
			return entries[j].provider, true
		}
	}
	return "", false
}

func bytesCompare(a, b net.IP) int {
	a4, b4 := a.To4(), b.To4()
	if a4 != nil && b4 != nil {
		return strings.Compare(string(a4), string(b4))
	}
	return strings.Compare(string(a), string(b))
}

// Load replaces the table's contents from a "provider,cidr" CSV-style file
// (one per line, '#' comments allowed), publishing the new snapshot with a
// single atomic store.
func (t *CIDRTable) Load(path string) (count int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	var entries []cidrEntry
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, ",", 2)
		if len(parts) != 2 {
			continue
		}
		provider := strings.TrimSpace(parts[0])
		_, ipnet, perr := net.ParseCIDR(strings.TrimSpace(parts[1]))
		if perr != nil {
			continue
		}
		entries = append(entries, cidrEntry{network: *ipnet, provider: provider})
	}
	if err = sc.Err(); err != nil {
		return 0, err
	}
	sort.Slice(entries, func(i, j int) bool {
		return bytesCompare(entries[i].network.IP, entries[j].network.IP) < 0
	})
	t.ptr.Store(&cidrSnapshot{entries: entries})
	return len(entries), nil
}

// Size reports the number of loaded ranges, used by the health probe.
func (t *CIDRTable) Size() int {
	snap := t.ptr.Load()
	if snap == nil {
		return 0
	}
	return len(snap.entries)
}

func (e cidrEntry) String() string {
	return fmt.Sprintf("%s=%s", e.provider, e.network.String())
}
