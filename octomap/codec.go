package octomap

import (
	"bytes"
	"encoding/binary"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
)

// Map type identifiers carried in a message envelope.
const (
	TreeID        = "OcTree"
	TextureTreeID = "TextureOcTree"
)

// ErrDecode is the base error for payloads that do not parse or declare an
// unsupported map type. Wrapped errors carry detail; match with errors.Is.
var ErrDecode = errors.New("malformed octomap payload")

// Message is one serialized map update: a type identifier, the leaf
// resolution, the payload bytes, and the spatial reference frame the map is
// expressed in. Data may optionally be zstd compressed.
type Message struct {
	ID         string    `json:"id"`
	Resolution float64   `json:"resolution"`
	Frame      string    `json:"frame"`
	Stamp      time.Time `json:"stamp"`
	Compressed bool      `json:"compressed"`
	Data       []byte    `json:"data,omitempty"`
}

// The payload is a depth-first node stream, little endian. Each node is a
// float32 log-odds value, six (float32 value, uint32 observations) face
// accumulator pairs for textured trees, then a uint8 child bitmask; children
// follow in octant order for set bits. An empty payload is an empty tree.

// Decode deserializes a message into a tree. The returned tree is exclusively
// owned by the caller and is meant to be discarded after one processing pass.
func Decode(msg *Message) (*Tree, error) {
	var textured bool
	switch msg.ID {
	case TreeID:
	case TextureTreeID:
		textured = true
	default:
		return nil, errors.Wrapf(ErrDecode, "unsupported map type %q", msg.ID)
	}
	if msg.Resolution <= 0 {
		return nil, errors.Wrapf(ErrDecode, "non-positive resolution %f", msg.Resolution)
	}

	data := msg.Data
	if msg.Compressed {
		zr, err := zstd.NewReader(nil)
		if err != nil {
			return nil, errors.Wrap(err, "initializing zstd")
		}
		defer zr.Close()
		var err2 error
		data, err2 = zr.DecodeAll(data, nil)
		if err2 != nil {
			return nil, errors.Wrapf(ErrDecode, "decompressing payload: %s", err2)
		}
	}

	tree, err := NewTree(msg.ID, msg.Resolution)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return tree, nil
	}

	dec := &payloadDecoder{r: bytes.NewReader(data), tree: tree, textured: textured}
	if err := dec.readNode(VoxelKey{}); err != nil {
		return nil, err
	}
	if dec.r.Len() != 0 {
		return nil, errors.Wrapf(ErrDecode, "%d trailing bytes after root subtree", dec.r.Len())
	}
	return tree, nil
}

type payloadDecoder struct {
	r        *bytes.Reader
	tree     *Tree
	textured bool
}

func (d *payloadDecoder) readNode(key VoxelKey) error {
	var logOdds float32
	if err := binary.Read(d.r, binary.LittleEndian, &logOdds); err != nil {
		return errors.Wrapf(ErrDecode, "truncated node at depth %d", key.Depth)
	}
	node := &Node{logOdds: float64(logOdds)}
	if d.textured {
		node.faces = &[NumFaces]FaceStat{}
		for i := range node.faces {
			var value float32
			var obs uint32
			if err := binary.Read(d.r, binary.LittleEndian, &value); err != nil {
				return errors.Wrapf(ErrDecode, "truncated face stats at depth %d", key.Depth)
			}
			if err := binary.Read(d.r, binary.LittleEndian, &obs); err != nil {
				return errors.Wrapf(ErrDecode, "truncated face stats at depth %d", key.Depth)
			}
			node.faces[i] = FaceStat{Value: float64(value), Observations: obs}
		}
	}
	mask, err := d.r.ReadByte()
	if err != nil {
		return errors.Wrapf(ErrDecode, "truncated child mask at depth %d", key.Depth)
	}
	if mask != 0 && key.Depth == MaxTreeDepth {
		return errors.Wrapf(ErrDecode, "node at max depth %d declares children", MaxTreeDepth)
	}

	node.leaf = mask == 0
	d.tree.nodes[key] = node
	if node.leaf {
		d.tree.growBounds(key)
		return nil
	}
	for i := 0; i < 8; i++ {
		if mask&(1<<i) == 0 {
			continue
		}
		if err := d.readNode(key.Child(i)); err != nil {
			return err
		}
	}
	return nil
}

// Marshal serializes a tree into a message envelope for the given reference
// frame, optionally zstd compressing the payload.
func Marshal(t *Tree, frame string, stamp time.Time, compress bool) (*Message, error) {
	var buf bytes.Buffer
	textured := t.id == TextureTreeID
	if root, ok := t.nodes[VoxelKey{}]; ok {
		if err := writeNode(&buf, t, VoxelKey{}, root, textured); err != nil {
			return nil, err
		}
	}
	data := buf.Bytes()
	if compress {
		zw, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, errors.Wrap(err, "initializing zstd")
		}
		data = zw.EncodeAll(data, nil)
		if err := zw.Close(); err != nil {
			return nil, err
		}
	}
	return &Message{
		ID:         t.id,
		Resolution: t.resolution,
		Frame:      frame,
		Stamp:      stamp,
		Compressed: compress,
		Data:       data,
	}, nil
}

func writeNode(buf *bytes.Buffer, t *Tree, key VoxelKey, n *Node, textured bool) error {
	if err := binary.Write(buf, binary.LittleEndian, float32(n.logOdds)); err != nil {
		return err
	}
	if textured {
		for i := Face(0); i < NumFaces; i++ {
			fs := n.FaceStat(i)
			if err := binary.Write(buf, binary.LittleEndian, float32(fs.Value)); err != nil {
				return err
			}
			if err := binary.Write(buf, binary.LittleEndian, fs.Observations); err != nil {
				return err
			}
		}
	}
	var mask uint8
	if !n.leaf {
		for i := 0; i < 8; i++ {
			if _, ok := t.nodes[key.Child(i)]; ok {
				mask |= 1 << i
			}
		}
	}
	if err := buf.WriteByte(mask); err != nil {
		return err
	}
	for i := 0; i < 8; i++ {
		if mask&(1<<i) == 0 {
			continue
		}
		child := key.Child(i)
		if err := writeNode(buf, t, child, t.nodes[child], textured); err != nil {
			return err
		}
	}
	return nil
}
