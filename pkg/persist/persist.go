// Package persist provides atomic, codec-based file persistence for state types.
package persist

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Default indentation for pretty-printed JSON.
const defaultIndent = "  "

// tmpSuffix is appended to the target filename while a write is in flight.
const tmpSuffix = ".tmp"

// ErrNotFound is returned by Load* helpers when the target file does not exist.
var ErrNotFound = errors.New("state file not found")

// Codec defines how state is serialized and deserialized.
type Codec interface {
	// Encode writes the state to the writer.
	Encode(w io.Writer, state any) error
	// Decode reads the state from the reader.
	Decode(r io.Reader, state any) error
}

// JSONCodec implements Codec using JSON encoding with optional indentation.
type JSONCodec struct {
	// Indent specifies the indentation string. Empty string means compact JSON.
	Indent string
}

// NewJSONCodec creates a JSON codec with pretty-printing (2-space indent).
func NewJSONCodec() *JSONCodec {
	return &JSONCodec{Indent: defaultIndent}
}

// Encode implements Codec.Encode using JSON encoding.
func (c *JSONCodec) Encode(w io.Writer, state any) error {
	encoder := json.NewEncoder(w)
	if c.Indent != "" {
		encoder.SetIndent("", c.Indent)
	}

	err := encoder.Encode(state)
	if err != nil {
		return fmt.Errorf("json encode: %w", err)
	}

	return nil
}

// Decode implements Codec.Decode using JSON decoding.
func (c *JSONCodec) Decode(r io.Reader, state any) error {
	decoder := json.NewDecoder(r)

	err := decoder.Decode(state)
	if err != nil {
		return fmt.Errorf("json decode: %w", err)
	}

	return nil
}

// WriteAtomic writes the output of fn to path via a temp file and rename,
// so a crash mid-write never leaves a torn file at path.
func WriteAtomic(path string, fn func(w io.Writer) error) error {
	dir := filepath.Dir(path)

	err := os.MkdirAll(dir, 0o755)
	if err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	tmp := path + tmpSuffix

	file, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}

	writeErr := fn(file)

	closeErr := file.Close()
	if writeErr != nil {
		_ = os.Remove(tmp)
		return writeErr
	}

	if closeErr != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("close temp state file: %w", closeErr)
	}

	err = os.Rename(tmp, path)
	if err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace state file: %w", err)
	}

	return nil
}

// SaveState atomically saves state to path using the given codec.
func SaveState(path string, codec Codec, state any) error {
	return WriteAtomic(path, func(w io.Writer) error {
		encodeErr := codec.Encode(w, state)
		if encodeErr != nil {
			return fmt.Errorf("encode state: %w", encodeErr)
		}

		return nil
	})
}

// LoadState loads state from path using the given codec.
// The state parameter must be a pointer to the target struct.
// Returns ErrNotFound when the file does not exist.
func LoadState(path string, codec Codec, state any) error {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}

		return fmt.Errorf("open state file: %w", err)
	}
	defer file.Close()

	err = codec.Decode(file, state)
	if err != nil {
		return fmt.Errorf("decode state: %w", err)
	}

	return nil
}

// SaveJSON atomically saves state as pretty-printed JSON.
func SaveJSON(path string, state any) error {
	return SaveState(path, NewJSONCodec(), state)
}

// LoadJSON loads JSON state from path into the given pointer.
func LoadJSON(path string, state any) error {
	return LoadState(path, NewJSONCodec(), state)
}
