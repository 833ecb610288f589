package util

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// LoadABI reads a plain ABI JSON array from path and parses it.
func LoadABI(path string) (abi.ABI, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return abi.ABI{}, fmt.Errorf("failed to read ABI file %s: %w", path, err)
	}
	parsed, err := abi.JSON(strings.NewReader(string(data)))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("failed to parse ABI file %s: %w", path, err)
	}
	return parsed, nil
}

// hardhatArtifact is the subset of a Hardhat compilation artifact this
// loader cares about.
type hardhatArtifact struct {
	ABI json.RawMessage `json:"abi"`
}

// LoadABIFromHardhatArtifact reads a Hardhat artifact JSON file (which
// wraps the ABI array under an "abi" key alongside bytecode and metadata)
// and extracts just the ABI.
func LoadABIFromHardhatArtifact(path string) (abi.ABI, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return abi.ABI{}, fmt.Errorf("failed to read artifact file %s: %w", path, err)
	}

	var artifact hardhatArtifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return abi.ABI{}, fmt.Errorf("failed to parse artifact file %s: %w", path, err)
	}

	parsed, err := abi.JSON(strings.NewReader(string(artifact.ABI)))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("failed to parse ABI from artifact %s: %w", path, err)
	}
	return parsed, nil
}

// Hex2Bytes decodes a hex string, tolerating an optional "0x"/"0X" prefix.
func Hex2Bytes(s string) []byte {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil
	}
	return b
}
