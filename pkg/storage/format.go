package storage

import (
	"encoding/binary"
	"io"

	"github.com/m-mizutani/goerr/v2"

	"github.com/foreverif/laf/pkg/indexing"
)

const (
	// Magic bytes to identify our file format
	MagicBytes = "LAFM"
	// Current version
	FormatVersion = 1
	// File extension of a persisted database
	FileExtension = ".lafdb"

	// FlagUncompressed marks a payload stored without lz4 compression
	FlagUncompressed uint8 = 1 << 0
)

// FileHeader represents the header of our storage file
type FileHeader struct {
	Magic    [4]byte // "LAFM"
	Version  uint8   // Format version
	Flags    uint8   // FlagUncompressed or 0
	Reserved [2]byte // Reserved for future use
}

// WriteHeader writes the file header to the given writer
func WriteHeader(w io.Writer, flags uint8) error {
	header := FileHeader{
		Magic:   [4]byte{'L', 'A', 'F', 'M'},
		Version: FormatVersion,
		Flags:   flags,
	}
	return binary.Write(w, binary.LittleEndian, header)
}

// ReadHeader reads and validates the file header
func ReadHeader(r io.Reader) (*FileHeader, error) {
	var header FileHeader
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return nil, goerr.Wrap(err, "failed to read header")
	}
	if string(header.Magic[:]) != MagicBytes {
		return nil, goerr.New("invalid file format", goerr.V("expected", MagicBytes), goerr.V("got", string(header.Magic[:])))
	}
	if header.Version != FormatVersion {
		return nil, goerr.New("unsupported file version", goerr.V("version", header.Version))
	}
	return &header, nil
}

// StorageData represents the actual data structure we store
type StorageData struct {
	Name        string                                       `msgpack:"name"`
	Collections map[string]map[string]map[string]interface{} `msgpack:"collections"`
	Indexes     map[string][]indexing.Definition             `msgpack:"indexes,omitempty"`
}

// NewStorageData creates a new empty storage data structure
func NewStorageData(name string) *StorageData {
	return &StorageData{
		Name:        name,
		Collections: make(map[string]map[string]map[string]interface{}),
		Indexes:     make(map[string][]indexing.Definition),
	}
}
