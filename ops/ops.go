// Package ops implements the fleet operator helpers built on top of
// executor.Executor: a ping sweep, node id change, and config read/write.
package ops

import (
	"fmt"
	"sort"

	"github.com/cvra/can-bootloader-go/bootcmd"
	"github.com/cvra/can-bootloader-go/datagram"
	"github.com/cvra/can-bootloader-go/executor"
)

// MaxNodeID is the highest node id reachable by a broadcast sweep; node ids
// run 1..MaxNodeID.
const MaxNodeID = 127

// PingScan broadcasts Ping to every node id in 1..MaxNodeID and returns the
// sorted set of ids that replied before the first timeout tick.
func PingScan(exec *executor.Executor) ([]uint8, error) {
	destinations := make([]uint8, 0, MaxNodeID)
	for id := uint8(1); id <= MaxNodeID; id++ {
		destinations = append(destinations, id)
	}

	cmd, err := bootcmd.EncodePing()
	if err != nil {
		return nil, err
	}
	if err := exec.Write(cmd, destinations); err != nil {
		return nil, err
	}

	var online []uint8
	stream := datagram.NewStream(exec.Transport(), datagram.NewReassembler())
	for {
		tick, err := stream.Next()
		if err != nil {
			return nil, fmt.Errorf("ops: ping scan: %w", err)
		}
		if tick.Timeout {
			break
		}
		online = append(online, tick.Received.Source)
	}
	sort.Slice(online, func(i, j int) bool { return online[i] < online[j] })
	return online, nil
}

// ChangeID moves a node from oldID to newID: UpdateConfig{ID: newID} is
// sent (with retry) to [oldID], then SaveConfig (with retry) to [newID],
// since the node answers the save request under its new identity.
func ChangeID(exec *executor.Executor, oldID, newID uint8) error {
	update, err := bootcmd.EncodeUpdateConfig(map[string]any{bootcmd.ConfigKeyNodeID: newID})
	if err != nil {
		return err
	}
	if _, err := exec.WriteRetry(update, []uint8{oldID}); err != nil {
		return fmt.Errorf("ops: change id: update config: %w", err)
	}

	save, err := bootcmd.EncodeSaveConfig()
	if err != nil {
		return err
	}
	if _, err := exec.WriteRetry(save, []uint8{newID}); err != nil {
		return fmt.Errorf("ops: change id: save config: %w", err)
	}
	return nil
}

// ReadConfig broadcasts ReadConfig to destinations and decodes each
// destination's answer as a config map.
func ReadConfig(exec *executor.Executor, destinations []uint8) (map[uint8]map[string]any, error) {
	cmd, err := bootcmd.EncodeReadConfig()
	if err != nil {
		return nil, err
	}
	answers, err := exec.WriteRetry(cmd, destinations)
	if err != nil {
		return nil, fmt.Errorf("ops: read config: %w", err)
	}

	configs := make(map[uint8]map[string]any, len(answers))
	for node, raw := range answers {
		cfg, err := bootcmd.DecodeConfig(raw)
		if err != nil {
			return nil, fmt.Errorf("ops: decode config from node %d: %w", node, err)
		}
		configs[node] = cfg
	}
	return configs, nil
}

// WriteConfig sends an UpdateConfig (with retry) followed by a SaveConfig
// (with retry) to destinations. It refuses any config map containing the
// ID key before touching the bus: node id changes only ever happen through
// ChangeID, which addresses the old and new id explicitly.
func WriteConfig(exec *executor.Executor, config map[string]any, destinations []uint8) error {
	if _, hasID := config[bootcmd.ConfigKeyNodeID]; hasID {
		return ErrConfigRefusesNodeID
	}

	update, err := bootcmd.EncodeUpdateConfig(config)
	if err != nil {
		return err
	}
	if _, err := exec.WriteRetry(update, destinations); err != nil {
		return fmt.Errorf("ops: write config: update: %w", err)
	}

	save, err := bootcmd.EncodeSaveConfig()
	if err != nil {
		return err
	}
	if _, err := exec.WriteRetry(save, destinations); err != nil {
		return fmt.Errorf("ops: write config: save: %w", err)
	}
	return nil
}
