package savegame

import (
	"bufio"
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Properties is the small key/value block written before the world so a
// loader can size things without parsing the whole game.
type Properties struct {
	MapWidth  int
	MapHeight int
	Version   int
	// Checksum is the hex blake3 digest of the world document. Saves
	// without one are loaded unchecked.
	Checksum string
	Extra    map[string]string
}

const (
	propMapWidth  = "map.width"
	propMapHeight = "map.height"
	propVersion   = "version"
	propChecksum  = "checksum"
)

func (p Properties) encode() []byte {
	kv := map[string]string{
		propMapWidth:  strconv.Itoa(p.MapWidth),
		propMapHeight: strconv.Itoa(p.MapHeight),
		propVersion:   strconv.Itoa(p.Version),
	}
	if p.Checksum != "" {
		kv[propChecksum] = p.Checksum
	}
	for k, v := range p.Extra {
		kv[k] = v
	}
	keys := make([]string, 0, len(kv))
	for k := range kv {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var buf bytes.Buffer
	for _, k := range keys {
		fmt.Fprintf(&buf, "%s=%s\n", k, kv[k])
	}
	return buf.Bytes()
}

func parseProperties(data []byte) (Properties, error) {
	p := Properties{Extra: make(map[string]string)}
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			return p, fmt.Errorf("%w: property line %q", ErrCorrupt, line)
		}
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		var err error
		switch k {
		case propMapWidth:
			p.MapWidth, err = strconv.Atoi(v)
		case propMapHeight:
			p.MapHeight, err = strconv.Atoi(v)
		case propVersion:
			p.Version, err = strconv.Atoi(v)
		case propChecksum:
			p.Checksum = v
		default:
			p.Extra[k] = v
		}
		if err != nil {
			return p, fmt.Errorf("%w: property %s: %v", ErrCorrupt, k, err)
		}
	}
	return p, sc.Err()
}
