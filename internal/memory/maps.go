package memory

import (
	"bufio"
	"io"
	"path/filepath"
	"strconv"
	"strings"
)

// mapping is one line of a /proc/<pid>/maps listing.
type mapping struct {
	start  Address
	end    Address
	offset uint64
	path   string
}

// parseMaps reads a /proc/<pid>/maps style listing.
func parseMaps(r io.Reader) ([]mapping, error) {
	var out []mapping
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 5 {
			continue
		}
		lo, hi, ok := strings.Cut(fields[0], "-")
		if !ok {
			continue
		}
		start, err := strconv.ParseUint(lo, 16, 64)
		if err != nil {
			continue
		}
		end, err := strconv.ParseUint(hi, 16, 64)
		if err != nil {
			continue
		}
		off, _ := strconv.ParseUint(fields[2], 16, 64)

		m := mapping{start: Address(start), end: Address(end), offset: off}
		if len(fields) >= 6 {
			m.path = strings.Join(fields[5:], " ")
		}
		out = append(out, m)
	}
	return out, sc.Err()
}

// moduleBaseFromMaps returns the lowest mapping address whose file name
// matches name case-insensitively.
func moduleBaseFromMaps(maps []mapping, name string) (Address, bool) {
	var (
		base  Address
		found bool
	)
	for _, m := range maps {
		if m.path == "" || !strings.EqualFold(filepath.Base(m.path), name) {
			continue
		}
		if !found || m.start < base {
			base = m.start
			found = true
		}
	}
	return base, found
}
