package octree

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"io"
	"math"
)

const (
	magic         = "UFO"
	formatVersion = uint8(1)
)

// header is the fixed-size, byte-exact prefix of every serialized map:
// magic + version, leaf_size, depth_levels, a compression flag and
// reserved padding, per spec.md §4.7 item 1.
type header struct {
	Version     uint8
	LeafSize    float64
	DepthLevels uint8
	Compressed  bool
	_pad        [2]byte
}

func writeHeader(w io.Writer, h header) error {
	if _, err := w.Write([]byte(magic)); err != nil {
		return wrapError(IoError, err, "write magic")
	}
	buf := make([]byte, 0, 13)
	buf = append(buf, h.Version)
	var leafSizeBits [8]byte
	binary.LittleEndian.PutUint64(leafSizeBits[:], math.Float64bits(h.LeafSize))
	buf = append(buf, leafSizeBits[:]...)
	buf = append(buf, h.DepthLevels)
	if h.Compressed {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	buf = append(buf, h._pad[:]...)
	if _, err := w.Write(buf); err != nil {
		return wrapError(IoError, err, "write header")
	}
	return nil
}

func readHeader(r io.Reader) (header, error) {
	var m [3]byte
	if _, err := io.ReadFull(r, m[:]); err != nil {
		return header{}, wrapError(IoError, err, "read magic")
	}
	if string(m[:]) != magic {
		return header{}, newError(FormatError, "bad magic %q", m[:])
	}
	buf := make([]byte, 13)
	if _, err := io.ReadFull(r, buf); err != nil {
		return header{}, wrapError(IoError, err, "read header")
	}
	h := header{
		Version:     buf[0],
		LeafSize:    math.Float64frombits(binary.LittleEndian.Uint64(buf[1:9])),
		DepthLevels: buf[9],
		Compressed:  buf[10] != 0,
	}
	if h.Version != formatVersion {
		return header{}, newError(FormatError, "unsupported format version %d", h.Version)
	}
	return h, nil
}

// Write serializes m per spec.md §4.7: header, tree-structure prefix,
// payload count, payload region. When compress is true the payload region
// is wrapped in a gzip stream prefixed by its uncompressed size; the
// header, structure prefix and payload count are always written plain so
// a reader can validate and size-check before touching the (possibly
// large) compressed region.
func (m *Map[T]) Write(w io.Writer, compress bool) (err error) {
	defer func() {
		if err != nil {
			m.cfg.Logger.Errorf("octree: write failed: %v", err)
		}
	}()

	if err := writeHeader(w, header{
		Version:     formatVersion,
		LeafSize:    m.cfg.LeafSize,
		DepthLevels: m.cfg.DepthLevels,
		Compressed:  compress,
	}); err != nil {
		return err
	}

	var structBuf, payloadBuf bytes.Buffer
	count := 0

	if err := m.rootPayload.Serialize(&payloadBuf); err != nil {
		return wrapError(IoError, err, "serialize root payload")
	}
	count++

	if m.rootChild != nil {
		structBuf.WriteByte(1)
		if err := m.writeBlock(&structBuf, &payloadBuf, &count, m.rootChild, m.rootDepth-1); err != nil {
			return err
		}
	} else {
		structBuf.WriteByte(0)
	}

	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(structBuf.Len()))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return wrapError(IoError, err, "write structure length")
	}
	if _, err := w.Write(structBuf.Bytes()); err != nil {
		return wrapError(IoError, err, "write structure")
	}

	var countBuf [8]byte
	binary.LittleEndian.PutUint64(countBuf[:], uint64(count))
	if _, err := w.Write(countBuf[:]); err != nil {
		return wrapError(IoError, err, "write payload count")
	}

	if !compress {
		if _, err := w.Write(payloadBuf.Bytes()); err != nil {
			return wrapError(IoError, err, "write payload")
		}
		return nil
	}

	var sizeBuf [8]byte
	binary.LittleEndian.PutUint64(sizeBuf[:], uint64(payloadBuf.Len()))
	if _, err := w.Write(sizeBuf[:]); err != nil {
		return wrapError(IoError, err, "write uncompressed size")
	}
	gz := gzip.NewWriter(w)
	if _, err := gz.Write(payloadBuf.Bytes()); err != nil {
		return wrapError(IoError, err, "write compressed payload")
	}
	if err := gz.Close(); err != nil {
		return wrapError(IoError, err, "close compressed payload")
	}
	return nil
}

// writeBlock appends b's structure bitfields to structBuf and its slots'
// (and materialised leaf-layer children's) payload records to
// payloadBuf, in pre-order, per spec.md §4.7 item 2: two bitfields for an
// inner block (valid_return, valid_inner), one for a leaf-layer entry.
// This writer always marks every visited slot returned — the format
// itself supports omitting slots that exactly match their parent's
// inherited value (readBlock implements that side), but this
// implementation always writes the full aggregate for simplicity and to
// keep every round trip exact rather than approximate.
func (m *Map[T]) writeBlock(structBuf, payloadBuf *bytes.Buffer, count *int, b *innerBlock[T], depth uint8) error {
	structBuf.WriteByte(0xff)
	for i := 0; i < 8; i++ {
		if err := b.payload[i].Serialize(payloadBuf); err != nil {
			return wrapError(IoError, err, "serialize payload")
		}
		*count++
	}

	structBuf.WriteByte(^b.leaf)
	for i := uint8(0); i < 8; i++ {
		if b.isLeaf(i) {
			continue
		}
		if depth-1 == 0 {
			leaf := b.kids[i].leaf
			structBuf.WriteByte(0xff)
			for j := 0; j < 8; j++ {
				if err := leaf.payload[j].Serialize(payloadBuf); err != nil {
					return wrapError(IoError, err, "serialize leaf payload")
				}
				*count++
			}
			continue
		}
		if err := m.writeBlock(structBuf, payloadBuf, count, b.kids[i].inner, depth-1); err != nil {
			return err
		}
	}
	return nil
}

// Read replaces m's contents with the map serialized by Write. It fails
// with FormatError if the file's leaf_size/depth_levels don't match m's
// own configuration: this reader loads into an already-constructed Map
// rather than reconfiguring one, so the two must agree up front.
func (m *Map[T]) Read(r io.Reader) (err error) {
	defer func() {
		if err != nil {
			m.cfg.Logger.Errorf("octree: read failed: %v", err)
		}
	}()

	h, err := readHeader(r)
	if err != nil {
		return err
	}
	if h.LeafSize != m.cfg.LeafSize || h.DepthLevels != m.cfg.DepthLevels {
		return newError(FormatError, "file leaf_size/depth_levels (%v/%d) do not match map (%v/%d)",
			h.LeafSize, h.DepthLevels, m.cfg.LeafSize, m.cfg.DepthLevels)
	}

	var lenBuf [8]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return wrapError(IoError, err, "read structure length")
	}
	structLen := binary.LittleEndian.Uint64(lenBuf[:])
	structBytes := make([]byte, structLen)
	if _, err := io.ReadFull(r, structBytes); err != nil {
		return wrapError(IoError, err, "read structure")
	}
	sr := bytes.NewReader(structBytes)

	var countBuf [8]byte
	if _, err := io.ReadFull(r, countBuf[:]); err != nil {
		return wrapError(IoError, err, "read payload count")
	}
	wantCount := binary.LittleEndian.Uint64(countBuf[:])

	var pr io.Reader = r
	if h.Compressed {
		var sizeBuf [8]byte
		if _, err := io.ReadFull(r, sizeBuf[:]); err != nil {
			return wrapError(IoError, err, "read uncompressed size")
		}
		gz, err := gzip.NewReader(r)
		if err != nil {
			return wrapError(FormatError, err, "open compressed payload")
		}
		defer gz.Close()
		pr = gz
	}

	m.Clear(false)

	rootHasChild, err := sr.ReadByte()
	if err != nil {
		return wrapError(FormatError, err, "read root marker")
	}
	rootPayload, err := m.decode(pr)
	if err != nil {
		return wrapError(IoError, err, "decode root payload")
	}
	m.rootPayload = rootPayload
	got := uint64(1)

	if rootHasChild != 0 {
		child, n, err := m.readBlock(sr, pr, m.rootDepth-1, m.rootPayload)
		if err != nil {
			return err
		}
		m.rootChild = child
		got += n
	}

	if got != wantCount {
		return newError(FormatError, "payload count mismatch: header says %d, structure yielded %d", wantCount, got)
	}
	return nil
}

func (m *Map[T]) readBlock(sr *bytes.Reader, pr io.Reader, depth uint8, parentPayload T) (*innerBlock[T], uint64, error) {
	validReturn, err := sr.ReadByte()
	if err != nil {
		return nil, 0, wrapError(FormatError, err, "read valid_return")
	}
	validInner, err := sr.ReadByte()
	if err != nil {
		return nil, 0, wrapError(FormatError, err, "read valid_inner")
	}

	b := m.alloc.allocInner()
	var zero T
	var count uint64
	for i := uint8(0); i < 8; i++ {
		if validReturn&(1<<i) != 0 {
			v, err := m.decode(pr)
			if err != nil {
				return nil, 0, wrapError(IoError, err, "decode payload")
			}
			b.payload[i] = v
			count++
		} else {
			b.payload[i] = zero.Fill(parentPayload)
		}
	}

	for i := uint8(0); i < 8; i++ {
		if validInner&(1<<i) == 0 {
			continue
		}
		b.clearLeaf(i)
		if depth-1 == 0 {
			leafValidReturn, err := sr.ReadByte()
			if err != nil {
				return nil, 0, wrapError(FormatError, err, "read leaf valid_return")
			}
			leaf := m.alloc.allocLeaf()
			for j := uint8(0); j < 8; j++ {
				if leafValidReturn&(1<<j) != 0 {
					v, err := m.decode(pr)
					if err != nil {
						return nil, 0, wrapError(IoError, err, "decode leaf payload")
					}
					leaf.payload[j] = v
					count++
				} else {
					leaf.payload[j] = zero.Fill(b.payload[i])
				}
			}
			b.kids[i] = child[T]{leaf: leaf}
			continue
		}
		kid, n, err := m.readBlock(sr, pr, depth-1, b.payload[i])
		if err != nil {
			return nil, 0, err
		}
		b.kids[i] = child[T]{inner: kid}
		count += n
	}

	return b, count, nil
}
