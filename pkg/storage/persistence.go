package storage

import (
	"bytes"
	"encoding/binary"
	"io"
	"os"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/pierrec/lz4/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/foreverif/laf/pkg/domain"
)

// SaveToFile writes the whole database to filename
func (e *Engine) SaveToFile(filename string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	storageData := NewStorageData(e.name)
	for collName, collection := range e.collections {
		docs := make(map[string]map[string]interface{}, len(collection.Documents))
		for docID, doc := range collection.Documents {
			docs[docID] = map[string]interface{}(doc)
		}
		storageData.Collections[collName] = docs
	}
	storageData.Indexes = e.indexEngine.ExportIndexes()

	msgpackData, err := msgpack.Marshal(storageData)
	if err != nil {
		return goerr.Wrap(err, "failed to encode MessagePack", goerr.V("db", e.name))
	}
	compressedData := make([]byte, lz4.CompressBlockBound(len(msgpackData)))
	var hashTable [1 << 16]int
	n, err := lz4.CompressBlock(msgpackData, compressedData, hashTable[:])
	if err != nil {
		return goerr.Wrap(err, "failed to compress data", goerr.V("db", e.name))
	}
	flags := uint8(0)
	if n == 0 {
		// lz4 reports incompressible input with n == 0
		compressedData, flags = msgpackData, FlagUncompressed
	} else {
		compressedData = compressedData[:n]
	}

	tmp := filename + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return goerr.Wrap(err, "failed to create file", goerr.V("file", tmp))
	}
	if err := writeStorageFile(file, flags, uint32(len(msgpackData)), compressedData); err != nil {
		file.Close()
		os.Remove(tmp)
		return err
	}
	if err := file.Close(); err != nil {
		os.Remove(tmp)
		return goerr.Wrap(err, "failed to close file", goerr.V("file", tmp))
	}
	if err := os.Rename(tmp, filename); err != nil {
		return goerr.Wrap(err, "failed to replace file", goerr.V("file", filename))
	}

	e.markClean()
	return nil
}

func writeStorageFile(w io.Writer, flags uint8, rawLen uint32, payload []byte) error {
	if err := WriteHeader(w, flags); err != nil {
		return goerr.Wrap(err, "failed to write header")
	}
	if err := binary.Write(w, binary.LittleEndian, rawLen); err != nil {
		return goerr.Wrap(err, "failed to write length")
	}
	if _, err := w.Write(payload); err != nil {
		return goerr.Wrap(err, "failed to write compressed data")
	}
	return nil
}

// LoadFromFile reads a database previously written by SaveToFile
func LoadFromFile(filename string) (*Engine, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open file", goerr.V("file", filename))
	}
	r := bytes.NewReader(data)
	header, err := ReadHeader(r)
	if err != nil {
		return nil, goerr.Wrap(err, "invalid file header", goerr.V("file", filename))
	}
	var rawLen uint32
	if err := binary.Read(r, binary.LittleEndian, &rawLen); err != nil {
		return nil, goerr.Wrap(err, "failed to read length", goerr.V("file", filename))
	}
	payload, err := io.ReadAll(r)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read compressed data", goerr.V("file", filename))
	}

	decompressedData := payload
	if header.Flags&FlagUncompressed == 0 {
		decompressedData = make([]byte, rawLen)
		n, err := lz4.UncompressBlock(payload, decompressedData)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to decompress data", goerr.V("file", filename))
		}
		decompressedData = decompressedData[:n]
	}

	var storageData StorageData
	if err := msgpack.Unmarshal(decompressedData, &storageData); err != nil {
		return nil, goerr.Wrap(err, "failed to decode MessagePack", goerr.V("file", filename))
	}

	engine := NewEngine(storageData.Name)
	now := time.Now()
	for collName, docs := range storageData.Collections {
		collection := domain.NewCollection(collName)
		for docID, doc := range docs {
			collection.Documents[docID] = Document(doc)
		}
		engine.collections[collName] = collection
		engine.info[collName] = &CollectionInfo{
			Name:          collName,
			DocumentCount: int64(len(docs)),
			State:         CollectionStateLoaded,
			LastModified:  now,
		}
	}
	if err := engine.indexEngine.ImportIndexes(storageData.Indexes, engine.collections); err != nil {
		return nil, goerr.Wrap(err, "failed to rebuild indexes", goerr.V("file", filename))
	}
	for collName := range storageData.Indexes {
		if _, ok := engine.collections[collName]; !ok {
			engine.collections[collName] = domain.NewCollection(collName)
			engine.info[collName] = &CollectionInfo{Name: collName, State: CollectionStateLoaded, LastModified: now}
		}
	}
	return engine, nil
}
