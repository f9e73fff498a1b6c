package portfolio

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"time"

	"SignalSentinel/internal/model"
)

type holdingsFile struct {
	Assets    []model.Asset `json:"assets"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// LoadHoldings reads positions from a JSON file. found is false when the file doesn't exist.
func LoadHoldings(filePath string) (assets []model.Asset, found bool, err error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	var f holdingsFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, false, err
	}
	return f.Assets, true, nil
}

// SaveHoldings writes positions, sorted by ticker, to a JSON file.
func SaveHoldings(filePath string, assets []model.Asset) error {
	sorted := append([]model.Asset(nil), assets...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Ticker < sorted[j].Ticker })

	data, err := json.MarshalIndent(holdingsFile{Assets: sorted, UpdatedAt: time.Now()}, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(filePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(filePath, data, 0644)
}
