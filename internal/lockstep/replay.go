package lockstep

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	"lukechampine.com/blake3"

	"frontier/internal/config"
	"frontier/internal/sim"
	"frontier/internal/sim/grid"
)

// Replay files (.rep). Little-endian throughout:
//
//	u8   version
//	i32  lcg seed
//	u32  map width
//	u32  map height
//	i8[w*h] terrain noise bytes
//	for each of MaxPlayers slots:
//	    u8      active
//	    u8[36]  name
//	    u32     team
//	    i32     recolor id
//	repeated until EOF:
//	    u8      player id
//	    u32     batch length
//	    u8[len] batch bytes
//
// The body is append-only: one record per (player, turn) in execution order.
// Re-running the simulation over the log reproduces the live match's
// checksum sequence exactly.

// ReplayVersion is the current file format version. Unknown versions are
// rejected outright; there is no partial parse.
const ReplayVersion uint8 = 1

// ErrReplayVersion is returned for files written by a different format.
var ErrReplayVersion = errors.New("unsupported replay version")

// ReplayRecord is one turn batch from one player.
type ReplayRecord struct {
	Player uint8
	Batch  []byte
}

// ReplayData is a fully parsed replay file.
type ReplayData struct {
	Version int
	Seed    int32
	Noise   grid.Noise
	Players [config.MaxPlayers]sim.Player
	Records []ReplayRecord
}

// MatchID derives a short stable identifier from the replay header; the
// event log and debug API tag everything with it.
func MatchID(seed int32, noise grid.Noise) string {
	h := blake3.New(8, nil)
	var header [12]byte
	binary.LittleEndian.PutUint32(header[0:], uint32(seed))
	binary.LittleEndian.PutUint32(header[4:], noise.Width)
	binary.LittleEndian.PutUint32(header[8:], noise.Height)
	h.Write(header[:])
	h.Write(noise.Map8())
	return fmt.Sprintf("%x", h.Sum(nil))
}

// ReplayWriter appends a live match to disk.
type ReplayWriter struct {
	file *os.File
	w    *bufio.Writer
}

// NewReplayWriter creates the file and writes the header.
func NewReplayWriter(path string, seed int32, noise grid.Noise, players [config.MaxPlayers]sim.Player) (*ReplayWriter, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrap(err, "create replay file")
	}
	w := bufio.NewWriter(file)

	w.WriteByte(ReplayVersion)
	writeU32(w, uint32(seed))
	writeU32(w, noise.Width)
	writeU32(w, noise.Height)
	for _, b := range noise.Map {
		w.WriteByte(byte(b))
	}
	for player := 0; player < config.MaxPlayers; player++ {
		p := players[player]
		if p.Active {
			w.WriteByte(1)
		} else {
			w.WriteByte(0)
		}
		var name [config.PlayerNameSize]byte
		copy(name[:], p.Name)
		w.Write(name[:])
		writeU32(w, p.Team)
		writeU32(w, uint32(p.RecolorID))
	}
	if err := w.Flush(); err != nil {
		file.Close()
		return nil, errors.Wrap(err, "write replay header")
	}

	return &ReplayWriter{file: file, w: w}, nil
}

// WriteTurn appends one player's batch for a turn. A nil batch records an
// empty turn.
func (r *ReplayWriter) WriteTurn(player uint8, batch []byte) error {
	r.w.WriteByte(player)
	writeU32(r.w, uint32(len(batch)))
	if len(batch) > 0 {
		r.w.Write(batch)
	}
	return nil
}

// Close flushes and closes the file.
func (r *ReplayWriter) Close() error {
	if err := r.w.Flush(); err != nil {
		r.file.Close()
		return errors.Wrap(err, "flush replay")
	}
	return r.file.Close()
}

// ReadReplay parses a replay file. Any structural problem aborts the whole
// load; a half-applied replay is worse than none.
func ReadReplay(path string) (*ReplayData, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open replay file")
	}
	defer file.Close()
	return parseReplay(bufio.NewReader(file))
}

func parseReplay(r *bufio.Reader) (*ReplayData, error) {
	version, err := r.ReadByte()
	if err != nil {
		return nil, errors.Wrap(err, "read replay version")
	}
	if version != ReplayVersion {
		return nil, errors.Wrapf(ErrReplayVersion, "version %d", version)
	}

	data := &ReplayData{Version: int(version)}

	seed, err := readU32(r)
	if err != nil {
		return nil, errors.Wrap(err, "read seed")
	}
	data.Seed = int32(seed)

	if data.Noise.Width, err = readU32(r); err != nil {
		return nil, errors.Wrap(err, "read map width")
	}
	if data.Noise.Height, err = readU32(r); err != nil {
		return nil, errors.Wrap(err, "read map height")
	}
	tileCount := int(data.Noise.Width) * int(data.Noise.Height)
	if tileCount <= 0 || tileCount > 1<<20 {
		return nil, errors.Errorf("implausible map size %dx%d", data.Noise.Width, data.Noise.Height)
	}
	tiles := make([]byte, tileCount)
	if _, err = io.ReadFull(r, tiles); err != nil {
		return nil, errors.Wrap(err, "read terrain")
	}
	data.Noise.Map = make([]int8, tileCount)
	for i, b := range tiles {
		data.Noise.Map[i] = int8(b)
	}

	for player := 0; player < config.MaxPlayers; player++ {
		active, err := r.ReadByte()
		if err != nil {
			return nil, errors.Wrapf(err, "read player %d", player)
		}
		var name [config.PlayerNameSize]byte
		if _, err = io.ReadFull(r, name[:]); err != nil {
			return nil, errors.Wrapf(err, "read player %d name", player)
		}
		team, err := readU32(r)
		if err != nil {
			return nil, errors.Wrapf(err, "read player %d team", player)
		}
		recolor, err := readU32(r)
		if err != nil {
			return nil, errors.Wrapf(err, "read player %d recolor", player)
		}
		data.Players[player] = sim.Player{
			Active:    active != 0,
			Name:      trimName(name[:]),
			Team:      team,
			RecolorID: int32(recolor),
		}
	}

	for {
		player, err := r.ReadByte()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "read record player")
		}
		length, err := readU32(r)
		if err != nil {
			return nil, errors.Wrap(err, "read record length")
		}
		if length > config.InputBufferSize {
			return nil, errors.Errorf("record length %d over input buffer size", length)
		}
		batch := make([]byte, length)
		if _, err = io.ReadFull(r, batch); err != nil {
			return nil, errors.Wrap(err, "read record batch")
		}
		data.Records = append(data.Records, ReplayRecord{Player: player, Batch: batch})
	}

	return data, nil
}

// Run re-executes a replay from scratch and returns the checksum after each
// turn. Byte-identical state means the sequence matches the live match's.
func (d *ReplayData) Run() ([]uint32, error) {
	simulation := sim.New(d.Seed, d.Noise, d.Players)

	// Rebuild per-player batch FIFOs in record order.
	var fifos [config.MaxPlayers][][]byte
	for _, record := range d.Records {
		if record.Player >= config.MaxPlayers {
			return nil, errors.Errorf("record for invalid player %d", record.Player)
		}
		fifos[record.Player] = append(fifos[record.Player], record.Batch)
	}

	var checksums []uint32
	for {
		drained := true
		for player := 0; player < config.MaxPlayers; player++ {
			if !d.Players[player].Active {
				continue
			}
			var raw []byte
			if len(fifos[player]) > 0 {
				raw = fifos[player][0]
				fifos[player] = fifos[player][1:]
				drained = false
			}
			inputs, err := sim.DeserializeBatch(raw)
			if err != nil {
				return nil, errors.Wrapf(err, "player %d batch", player)
			}
			simulation.ApplyBatch(uint8(player), inputs)
		}
		if drained {
			break
		}
		for tick := 0; tick < config.TicksPerTurn; tick++ {
			simulation.Step()
			simulation.DrainEvents()
		}
		checksums = append(checksums, simulation.Checksum())
	}

	return checksums, nil
}

func trimName(name []byte) string {
	for i, b := range name {
		if b == 0 {
			return string(name[:i])
		}
	}
	return string(name)
}

func writeU32(w *bufio.Writer, v uint32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	w.Write(buf[:])
}

func readU32(r *bufio.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}
