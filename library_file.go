// library_file.go - Library persistence: magic, version, gzip-compressed body

package main

import (
	"bufio"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// SaveLibraryFile writes data to path. Fragments are written in instruction
// order so identical libraries produce identical files.
func SaveLibraryFile(data *LibraryData, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if err := writeLibrary(w, data); err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return f.Close()
}

func writeLibrary(w io.Writer, data *LibraryData) error {
	// Magic
	if _, err := io.WriteString(w, LIBRARY_MAGIC); err != nil {
		return err
	}

	// Version
	if err := binary.Write(w, binary.LittleEndian, uint32(LIBRARY_FORMAT_VERSION)); err != nil {
		return err
	}

	gz := gzip.NewWriter(w)
	le := binary.LittleEndian

	// Config subset
	cfg := data.Config
	for _, v := range []any{uint32(cfg.SampleRate), cfg.ChangeRate, cfg.A4Frequency, int32(cfg.A4Pitch), cfg.Gamma} {
		if err := binary.Write(gz, le, v); err != nil {
			return fmt.Errorf("writing library config: %w", err)
		}
	}

	// Fragments
	if err := binary.Write(gz, le, uint32(len(data.Fragments))); err != nil {
		return err
	}
	for _, t := range ChannelTypes {
		for _, frag := range data.Entries(t) {
			enc := encodeInstruction(frag.Instruction)
			if _, err := gz.Write(enc[:]); err != nil {
				return fmt.Errorf("writing instruction: %w", err)
			}
			if err := binary.Write(gz, le, frag.Frequency); err != nil {
				return err
			}
			if err := writeFloat32s(gz, frag.Sample); err != nil {
				return fmt.Errorf("writing sample for %s: %w", frag.Instruction, err)
			}
			if err := writeFloat32s(gz, frag.Feature); err != nil {
				return fmt.Errorf("writing feature for %s: %w", frag.Instruction, err)
			}
		}
	}

	if err := gz.Close(); err != nil {
		return fmt.Errorf("closing gzip: %w", err)
	}
	return nil
}

// LoadLibraryFile reads a library written by SaveLibraryFile. The key is
// recomputed from the stored config.
func LoadLibraryFile(path string) (*LibraryData, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	data, err := readLibrary(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("reading library %s: %w", path, err)
	}
	return data, nil
}

func readLibrary(r io.Reader) (*LibraryData, error) {
	// Magic
	magic := make([]byte, len(LIBRARY_MAGIC))
	if _, err := io.ReadFull(r, magic); err != nil {
		return nil, fmt.Errorf("reading magic: %w", err)
	}
	if string(magic) != LIBRARY_MAGIC {
		return nil, fmt.Errorf("invalid library magic: %q", string(magic))
	}

	// Version
	var version uint32
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return nil, fmt.Errorf("reading version: %w", err)
	}
	if version != LIBRARY_FORMAT_VERSION {
		return nil, &VersionError{Kind: "library", Expected: LIBRARY_FORMAT_VERSION, Actual: version}
	}

	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("opening gzip reader: %w", err)
	}
	defer gz.Close()
	le := binary.LittleEndian

	// Config subset
	var (
		sampleRate uint32
		a4Pitch    int32
		cfg        LibraryConfig
	)
	for _, v := range []any{&sampleRate, &cfg.ChangeRate, &cfg.A4Frequency, &a4Pitch, &cfg.Gamma} {
		if err := binary.Read(gz, le, v); err != nil {
			return nil, fmt.Errorf("reading library config: %w", err)
		}
	}
	cfg.SampleRate = int(sampleRate)
	cfg.A4Pitch = int(a4Pitch)

	// Fragments
	var count uint32
	if err := binary.Read(gz, le, &count); err != nil {
		return nil, fmt.Errorf("reading fragment count: %w", err)
	}
	if count > FILE_MAX_FRAGMENT_LEN {
		return nil, fmt.Errorf("fragment count %d too large", count)
	}
	frags := make(map[Instruction]*LibraryFragment, count)
	for i := uint32(0); i < count; i++ {
		var enc [instructionEncodedSize]byte
		if _, err := io.ReadFull(gz, enc[:]); err != nil {
			return nil, fmt.Errorf("reading instruction: %w", err)
		}
		instr, err := decodeInstruction(enc)
		if err != nil {
			return nil, err
		}
		frag := &LibraryFragment{Instruction: instr}
		if err := binary.Read(gz, le, &frag.Frequency); err != nil {
			return nil, fmt.Errorf("reading frequency: %w", err)
		}
		if frag.Sample, err = readFloat32s(gz); err != nil {
			return nil, fmt.Errorf("reading sample for %s: %w", instr, err)
		}
		if frag.Feature, err = readFloat32s(gz); err != nil {
			return nil, fmt.Errorf("reading feature for %s: %w", instr, err)
		}
		frags[instr] = frag
	}

	return NewLibraryData(CreateKey(cfg), cfg, frags), nil
}

func writeFloat32s(w io.Writer, v []float32) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(v))); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, v)
}

func readFloat32s(r io.Reader) ([]float32, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	if n > FILE_MAX_ARRAY_LEN {
		return nil, fmt.Errorf("array length %d too large", n)
	}
	v := make([]float32, n)
	if err := binary.Read(r, binary.LittleEndian, v); err != nil {
		return nil, err
	}
	return v, nil
}

func writeFloat64s(w io.Writer, v []float64) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(v))); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, v)
}

func readFloat64s(r io.Reader) ([]float64, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	if n > FILE_MAX_ARRAY_LEN {
		return nil, fmt.Errorf("array length %d too large", n)
	}
	v := make([]float64, n)
	if err := binary.Read(r, binary.LittleEndian, v); err != nil {
		return nil, err
	}
	return v, nil
}
