package savegame

import (
	"archive/tar"
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/pierrec/lz4/v4"
)

// Entry names, in the order they are written.
const (
	EntryThumbnail     = "thumbnail.png"
	EntryClientOptions = "client-options.json"
	EntryProperties    = "savegame.properties"
	EntryDocument      = "savegame.json"
	EntryAI            = "ai.json"
)

const maxEntrySize = 256 << 20

var archiveEpoch = time.Unix(0, 0).UTC()

type entry struct {
	name string
	data []byte
}

func writeArchive(w io.Writer, entries []entry) error {
	zw := lz4.NewWriter(w)
	tw := tar.NewWriter(zw)
	for _, e := range entries {
		hdr := &tar.Header{
			Typeflag: tar.TypeReg,
			Name:     e.name,
			Mode:     0o644,
			Size:     int64(len(e.data)),
			ModTime:  archiveEpoch,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return fmt.Errorf("writing %s header: %w", e.name, err)
		}
		if _, err := tw.Write(e.data); err != nil {
			return fmt.Errorf("writing %s: %w", e.name, err)
		}
	}
	if err := tw.Close(); err != nil {
		return fmt.Errorf("closing archive: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("closing compressor: %w", err)
	}
	return nil
}

// errStop ends a scan early once the wanted entry has been read.
var errStop = errors.New("stop")

// scanArchive calls fn for each entry in order until fn returns errStop or
// the archive ends. Entries after the one that stopped the scan are never
// decompressed.
func scanArchive(r io.Reader, fn func(name string, data []byte) error) error {
	tr := tar.NewReader(lz4.NewReader(r))
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		if hdr.Size > maxEntrySize {
			return fmt.Errorf("%w: entry %s is %d bytes", ErrCorrupt, hdr.Name, hdr.Size)
		}
		var buf bytes.Buffer
		if _, err := io.Copy(&buf, tr); err != nil {
			return fmt.Errorf("%w: reading %s: %v", ErrCorrupt, hdr.Name, err)
		}
		if err := fn(hdr.Name, buf.Bytes()); err != nil {
			if errors.Is(err, errStop) {
				return nil
			}
			return err
		}
	}
}

func readEntries(r io.Reader) (map[string][]byte, error) {
	out := make(map[string][]byte)
	err := scanArchive(r, func(name string, data []byte) error {
		out[name] = data
		return nil
	})
	return out, err
}
