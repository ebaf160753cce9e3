// Package flash implements the end-to-end flashing pipeline: an online
// check, page-aligned erase, chunked write, config commit and CRC verify,
// all driven through an executor.Executor against a fleet of destinations.
package flash

import (
	"fmt"
	"hash/crc32"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/cvra/can-bootloader-go/bootcmd"
	"github.com/cvra/can-bootloader-go/datagram"
	"github.com/cvra/can-bootloader-go/executor"
)

// DefaultChunkSize is the write chunk size. It equals the 2048-byte default
// page size, so with a page-aligned base address and a page size that is a
// multiple of it a single Write command never straddles a page boundary.
const DefaultChunkSize = 2048

// Pipeline flashes one binary to a fleet of destinations over an executor.
type Pipeline struct {
	Exec        *executor.Executor
	ChunkSize   int
	PageSize    uint32
	DeviceClass string
	Log         *logrus.Logger

	// VerifyMaxTicks bounds how many transport timeout ticks Verify
	// tolerates while draining CRCRegion replies. Verify never retries the
	// command itself (a missing reply is a verification failure, not
	// resolicited), but an isolated timeout tick while other destinations'
	// answers are still in flight must not end the drain early. Zero, the
	// default, means unlimited: Verify keeps pulling until every
	// destination has answered, relying on the transport's own configured
	// receive timeout (and, if the caller wants a hard ceiling, a
	// non-zero value here) to bound how long that takes.
	VerifyMaxTicks int
}

// New builds a Pipeline with the package default chunk size.
func New(exec *executor.Executor, pageSize uint32, deviceClass string) *Pipeline {
	return &Pipeline{
		Exec:        exec,
		ChunkSize:   DefaultChunkSize,
		PageSize:    pageSize,
		DeviceClass: deviceClass,
		Log:         logrus.StandardLogger(),
	}
}

// CheckOnline pings every destination and returns ErrBoardsOffline listing
// those that failed to answer within one timeout window.
func (p *Pipeline) CheckOnline(destinations []uint8) error {
	cmd, err := bootcmd.EncodePing()
	if err != nil {
		return err
	}
	if err := p.Exec.Write(cmd, destinations); err != nil {
		return err
	}

	online := make(map[uint8]struct{})
	stream := datagram.NewStream(p.Exec.Transport(), datagram.NewReassembler())
	for {
		tick, err := stream.Next()
		if err != nil {
			return fmt.Errorf("flash: online check: %w", err)
		}
		if tick.Timeout {
			break
		}
		online[tick.Received.Source] = struct{}{}
		if len(online) >= len(destinations) {
			break
		}
	}

	var offline []uint8
	for _, d := range destinations {
		if _, ok := online[d]; !ok {
			offline = append(offline, d)
		}
	}
	if len(offline) > 0 {
		sort.Slice(offline, func(i, j int) bool { return offline[i] < offline[j] })
		p.Log.Errorf("flash: boards offline: %v", offline)
		return fmt.Errorf("%w: %v", ErrBoardsOffline, offline)
	}
	return nil
}

// Erase drives a page-aligned erase pass over binary of length size,
// starting at base address addr, across all of destinations.
func (p *Pipeline) Erase(addr uint32, size uint32, destinations []uint8) error {
	for offset := uint32(0); offset < size; offset += p.PageSize {
		cmd, err := bootcmd.EncodeErase(addr+offset, p.DeviceClass)
		if err != nil {
			return err
		}
		answers, err := p.Exec.WriteRetry(cmd, destinations)
		if err != nil {
			return fmt.Errorf("flash: erase at offset %d: %w", offset, err)
		}
		if failed := failedBoards(answers); len(failed) > 0 {
			p.Log.Errorf("Boards %s failed during page erase, aborting...", joinBoards(failed))
			return fmt.Errorf("%w: boards %v", ErrEraseFailed, failed)
		}
	}
	return nil
}

// Write splits binary into ChunkSize chunks and ships each with Write,
// requiring all destinations to acknowledge before moving to the next.
func (p *Pipeline) Write(addr uint32, binary []byte, destinations []uint8) error {
	for offset := 0; offset < len(binary); offset += p.ChunkSize {
		end := offset + p.ChunkSize
		if end > len(binary) {
			end = len(binary)
		}
		chunk := binary[offset:end]
		cmd, err := bootcmd.EncodeWrite(addr+uint32(offset), p.DeviceClass, chunk)
		if err != nil {
			return err
		}
		answers, err := p.Exec.WriteRetry(cmd, destinations)
		if err != nil {
			return fmt.Errorf("flash: write at offset %d: %w", offset, err)
		}
		if failed := failedBoards(answers); len(failed) > 0 {
			p.Log.Errorf("Boards %s failed during page write, aborting...", joinBoards(failed))
			return fmt.Errorf("%w: boards %v", ErrWriteFailed, failed)
		}
	}
	return nil
}

// CommitConfig records the flashed application's size and CRC in each
// destination's persisted config.
func (p *Pipeline) CommitConfig(binary []byte, destinations []uint8) error {
	crc := crc32.ChecksumIEEE(binary)
	cfg := map[string]any{
		bootcmd.ConfigKeyApplicationSize: uint32(len(binary)),
		bootcmd.ConfigKeyApplicationCRC:  crc,
	}
	update, err := bootcmd.EncodeUpdateConfig(cfg)
	if err != nil {
		return err
	}
	if _, err := p.Exec.WriteRetry(update, destinations); err != nil {
		return fmt.Errorf("flash: update config: %w", err)
	}

	save, err := bootcmd.EncodeSaveConfig()
	if err != nil {
		return err
	}
	if _, err := p.Exec.WriteRetry(save, destinations); err != nil {
		return fmt.Errorf("flash: save config: %w", err)
	}
	return nil
}

// Verify broadcasts a CRCRegion request (single attempt, no retry) and
// returns the set of destinations whose reported CRC matches binary's, and
// the set that did not (either mismatched or never answered).
func (p *Pipeline) Verify(addr uint32, binary []byte, destinations []uint8) (matched, failed []uint8, err error) {
	expected := crc32.ChecksumIEEE(binary)
	cmd, err := bootcmd.EncodeCRCRegion(addr, uint32(len(binary)))
	if err != nil {
		return nil, nil, err
	}
	if err := p.Exec.Write(cmd, destinations); err != nil {
		return nil, nil, err
	}

	answered := make(map[uint8]bool)
	stream := datagram.NewStream(p.Exec.Transport(), datagram.NewReassembler())
	ticks := 0
	for len(answered) < len(destinations) {
		tick, terr := stream.Next()
		if terr != nil {
			return nil, nil, fmt.Errorf("flash: verify: %w", terr)
		}
		if tick.Timeout {
			// No retry on verify: a timeout tick alone does not end the
			// drain, it just means nothing arrived in that window. Keep
			// pulling for the remaining destinations' answers, unless the
			// caller set a tick ceiling.
			ticks++
			if p.VerifyMaxTicks > 0 && ticks >= p.VerifyMaxTicks {
				break
			}
			continue
		}
		got, derr := bootcmd.DecodeUint32(tick.Received.Data)
		if derr != nil {
			return nil, nil, derr
		}
		answered[tick.Received.Source] = got == expected
	}

	for _, d := range destinations {
		if answered[d] {
			matched = append(matched, d)
		} else {
			failed = append(failed, d)
		}
	}
	if len(failed) > 0 {
		sort.Slice(failed, func(i, j int) bool { return failed[i] < failed[j] })
		return matched, failed, fmt.Errorf("%w: boards %v", ErrVerificationFailed, failed)
	}
	return matched, failed, nil
}

// Run sends JumpToMain to destinations without waiting for a reply.
func (p *Pipeline) Run(destinations []uint8) error {
	cmd, err := bootcmd.EncodeJumpToMain()
	if err != nil {
		return err
	}
	return p.Exec.Write(cmd, destinations)
}

// Flash runs the full pipeline: online check, erase, write, config commit
// and verify, in that order, stopping at the first failure. If run is
// true, JumpToMain is sent once verification succeeds.
func (p *Pipeline) Flash(addr uint32, binary []byte, destinations []uint8, run bool) error {
	if err := p.CheckOnline(destinations); err != nil {
		return err
	}
	if err := p.Erase(addr, uint32(len(binary)), destinations); err != nil {
		return err
	}
	if err := p.Write(addr, binary, destinations); err != nil {
		return err
	}
	if err := p.CommitConfig(binary, destinations); err != nil {
		return err
	}
	if _, _, err := p.Verify(addr, binary, destinations); err != nil {
		return err
	}
	if run {
		return p.Run(destinations)
	}
	return nil
}

func failedBoards(answers map[uint8][]byte) []uint8 {
	var failed []uint8
	for node, raw := range answers {
		ok, err := bootcmd.DecodeBool(raw)
		if err != nil || !ok {
			failed = append(failed, node)
		}
	}
	sort.Slice(failed, func(i, j int) bool { return failed[i] < failed[j] })
	return failed
}

func joinBoards(boards []uint8) string {
	out := ""
	for i, b := range boards {
		if i > 0 {
			out += ", "
		}
		out += fmt.Sprintf("%d", b)
	}
	return out
}
