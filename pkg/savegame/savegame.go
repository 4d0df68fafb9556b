// Package savegame reads and writes game archives: an lz4-compressed tar
// holding an optional thumbnail, the client options, a properties block,
// the world document and the AI state, in that order.
package savegame

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"lukechampine.com/blake3"

	"github.com/freeeve/freecol/server/pkg/world"
)

const (
	// MinimumVersion is the oldest document version that can be loaded.
	MinimumVersion = 9
	// CurrentVersion is the version written by Save.
	CurrentVersion = 12
)

var (
	ErrIncompatibleVersion = errors.New("incompatible savegame version")
	ErrCorrupt             = errors.New("corrupt savegame")
	ErrNoThumbnail         = errors.New("savegame has no thumbnail")
)

// VersionError reports a document version outside the supported range.
type VersionError struct {
	Version int
}

func (e *VersionError) Error() string {
	return fmt.Sprintf("savegame version %d not in supported range %d..%d", e.Version, MinimumVersion, CurrentVersion)
}

func (e *VersionError) Is(target error) bool {
	return target == ErrIncompatibleVersion
}

// Metadata travels with a save but is not part of the world.
type Metadata struct {
	Owner         string
	Public        bool
	SinglePlayer  bool
	Thumbnail     []byte
	ClientOptions json.RawMessage
}

// ServerObject is one entry of the server-object roster.
type ServerObject struct {
	ID   string           `json:"id"`
	Type world.ServerKind `json:"type"`
}

// Document is the root of savegame.json.
type Document struct {
	Owner         string         `json:"owner"`
	Public        bool           `json:"public"`
	SinglePlayer  bool           `json:"singleplayer"`
	Version       int            `json:"version"`
	RandomState   string         `json:"randomState"`
	ActiveUnit    string         `json:"activeUnit,omitempty"`
	ServerObjects []ServerObject `json:"serverObjects,omitempty"`
	Game          world.Snapshot `json:"game"`
}

// Game is the result of a successful load.
type Game struct {
	World   *world.World
	Meta    Metadata
	AIState json.RawMessage
	// Version is the document version found in the file, before upgrade.
	Version    int
	Properties Properties
	// Edited is set when the document no longer matches the checksum
	// written with it. Such a save still loads if it restores cleanly.
	Edited bool
}

// Capture copies everything needed to save w. The document shares no
// memory with the world, so it may be written after the world moves on.
func Capture(w *world.World, meta Metadata) *Document {
	roster := w.ServerObjects()
	doc := &Document{
		Owner:        meta.Owner,
		Public:       meta.Public,
		SinglePlayer: meta.SinglePlayer,
		Version:      CurrentVersion,
		RandomState:  w.Random().State(),
		ActiveUnit:   w.ActiveUnit,
		Game:         *w.Snapshot(),
	}
	for _, id := range world.SortedIDs(roster) {
		doc.ServerObjects = append(doc.ServerObjects, ServerObject{ID: id, Type: roster[id]})
	}
	return doc
}

// Save writes w as an archive.
func Save(out io.Writer, w *world.World, meta Metadata, aiState []byte) error {
	return Write(out, Capture(w, meta), meta, aiState)
}

// Write encodes a captured document as an archive.
func Write(out io.Writer, doc *Document, meta Metadata, aiState []byte) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding savegame document: %w", err)
	}
	props := Properties{Version: doc.Version, Checksum: checksum(body)}
	if doc.Game.Map != nil {
		props.MapWidth = doc.Game.Map.Width
		props.MapHeight = doc.Game.Map.Height
	}
	clientOptions := meta.ClientOptions
	if len(clientOptions) == 0 {
		clientOptions = json.RawMessage(`{}`)
	}
	if len(aiState) == 0 {
		aiState = []byte(`{}`)
	}

	var entries []entry
	if len(meta.Thumbnail) > 0 {
		entries = append(entries, entry{EntryThumbnail, meta.Thumbnail})
	}
	entries = append(entries,
		entry{EntryClientOptions, clientOptions},
		entry{EntryProperties, props.encode()},
		entry{EntryDocument, body},
		entry{EntryAI, aiState},
	)
	return writeArchive(out, entries)
}

// SaveFile saves to path, replacing any existing file only once the new
// archive is complete.
func SaveFile(path string, w *world.World, meta Metadata, aiState []byte) error {
	return WriteFile(path, Capture(w, meta), meta, aiState)
}

// WriteFile writes a captured document to path through a temporary file.
func WriteFile(path string, doc *Document, meta Metadata, aiState []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating save dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".save-*")
	if err != nil {
		return fmt.Errorf("creating temp save: %w", err)
	}
	defer os.Remove(tmp.Name())
	if err := Write(tmp, doc, meta, aiState); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing save: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing save: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("renaming save: %w", err)
	}
	return nil
}

// Load reads a whole archive. It either returns a complete world or an
// error; nothing is partially restored.
func Load(r io.Reader) (*Game, error) {
	entries, err := readEntries(r)
	if err != nil {
		return nil, err
	}
	body, ok := entries[EntryDocument]
	if !ok {
		return nil, fmt.Errorf("%w: missing %s", ErrCorrupt, EntryDocument)
	}
	propData, ok := entries[EntryProperties]
	if !ok {
		return nil, fmt.Errorf("%w: missing %s", ErrCorrupt, EntryProperties)
	}
	props, err := parseProperties(propData)
	if err != nil {
		return nil, err
	}
	if props.Version != 0 && (props.Version < MinimumVersion || props.Version > CurrentVersion) {
		return nil, &VersionError{Version: props.Version}
	}
	edited := props.Checksum != "" && props.Checksum != checksum(body)

	version, err := peekVersion(body)
	if err != nil {
		return nil, err
	}
	if version < MinimumVersion || version > CurrentVersion {
		return nil, &VersionError{Version: version}
	}

	var doc Document
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if err := Upgrade(&doc); err != nil {
		return nil, err
	}
	w, err := Restore(&doc)
	if err != nil {
		return nil, err
	}
	if edited {
		log.Warn().Str("game", w.GameID).Int("version", version).Msg("Savegame checksum mismatch, document was edited after saving")
	}
	return &Game{
		World: w,
		Meta: Metadata{
			Owner:         doc.Owner,
			Public:        doc.Public,
			SinglePlayer:  doc.SinglePlayer,
			Thumbnail:     entries[EntryThumbnail],
			ClientOptions: entries[EntryClientOptions],
		},
		AIState:    entries[EntryAI],
		Version:    version,
		Properties: props,
		Edited:     edited,
	}, nil
}

// LoadFile loads an archive from disk.
func LoadFile(path string) (*Game, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(f)
}

// Restore builds a world from an upgraded document.
func Restore(doc *Document) (*world.World, error) {
	if doc.Version != CurrentVersion {
		return nil, &VersionError{Version: doc.Version}
	}
	w, err := world.FromSnapshot(&doc.Game)
	if err != nil {
		return nil, fmt.Errorf("restoring world: %w", err)
	}
	rng, err := world.RestoreRandom(doc.RandomState)
	if err != nil {
		return nil, err
	}
	w.SetRandom(rng)
	roster := make(map[string]world.ServerKind, len(doc.ServerObjects))
	for _, so := range doc.ServerObjects {
		roster[so.ID] = so.Type
	}
	w.SetServerObjects(roster)
	if doc.ActiveUnit != "" {
		if _, err := world.Resolve[*world.Unit](w, doc.ActiveUnit); err == nil {
			w.ActiveUnit = doc.ActiveUnit
		}
	}
	return w, nil
}

// ReadProperties reads only as far as the properties entry.
func ReadProperties(r io.Reader) (Properties, error) {
	var (
		props Properties
		found bool
	)
	err := scanArchive(r, func(name string, data []byte) error {
		if name != EntryProperties {
			return nil
		}
		var err error
		props, err = parseProperties(data)
		found = true
		if err != nil {
			return err
		}
		return errStop
	})
	if err != nil {
		return Properties{}, err
	}
	if !found {
		return Properties{}, fmt.Errorf("%w: missing %s", ErrCorrupt, EntryProperties)
	}
	return props, nil
}

// ReadThumbnail reads only the first entry, which holds the thumbnail when
// one was saved.
func ReadThumbnail(r io.Reader) ([]byte, error) {
	var thumb []byte
	err := scanArchive(r, func(name string, data []byte) error {
		if name == EntryThumbnail {
			thumb = data
		}
		return errStop
	})
	if err != nil {
		return nil, err
	}
	if thumb == nil {
		return nil, ErrNoThumbnail
	}
	return thumb, nil
}

// peekVersion reads top-level keys until it finds the version, skipping
// the values in between without decoding them.
func peekVersion(body []byte) (int, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
		return 0, fmt.Errorf("%w: document is not an object", ErrCorrupt)
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		if key, _ := tok.(string); key == "version" {
			var v int
			if err := dec.Decode(&v); err != nil {
				return 0, fmt.Errorf("%w: version: %v", ErrCorrupt, err)
			}
			return v, nil
		}
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
	}
	return 0, fmt.Errorf("%w: document has no version", ErrCorrupt)
}

func checksum(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}
