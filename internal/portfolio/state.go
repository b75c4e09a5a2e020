package portfolio

import (
	"encoding/json"
	"os"

	"KabuSentinel/internal/model"
)

// LoadSnapshot reads the last valuation summary from a JSON file. Returns nil
// if the file doesn't exist.
func LoadSnapshot(filePath string) (*model.Snapshot, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var snap model.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// SaveSnapshot writes the valuation summary to a JSON file.
func SaveSnapshot(filePath string, snap *model.Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filePath, data, 0644)
}
