package pipeline

import (
	"encoding/json"
	"fmt"

	"github.com/lumenvr/go-lumen/internal/log"
)

// FoveationSettings are the foveated-decoding parameters negotiated
// in the session settings.
type FoveationSettings struct {
	CenterSizeX  float32 `json:"center_size_x"`
	CenterSizeY  float32 `json:"center_size_y"`
	CenterShiftX float32 `json:"center_shift_x"`
	CenterShiftY float32 `json:"center_shift_y"`
	EdgeRatioX   float32 `json:"edge_ratio_x"`
	EdgeRatioY   float32 `json:"edge_ratio_y"`
}

// ParseFoveation extracts the foveated-decoding switch from a session
// settings document. The value is either the string "Disabled" or an
// object keyed by "Enabled" holding the parameters.
//
// A nil result with nil error means foveation is off. Only a
// malformed document or a mistyped foveation section produce an
// error; absent keys are tolerated.
func ParseFoveation(doc []byte) (*FoveationSettings, error) {
	var settings struct {
		Video struct {
			FoveatedEncoding json.RawMessage `json:"foveated_encoding"`
		} `json:"video"`
	}
	if err := json.Unmarshal(doc, &settings); err != nil {
		return nil, fmt.Errorf("pipeline: malformed settings document: %w", err)
	}

	raw := settings.Video.FoveatedEncoding
	if len(raw) == 0 {
		log.Debug("settings carry no foveation section")
		return nil, nil
	}

	// String sentinel form.
	if raw[0] == '"' {
		var mode string
		if err := json.Unmarshal(raw, &mode); err != nil {
			return nil, fmt.Errorf("pipeline: foveation mode: %w", err)
		}
		if mode != "Disabled" {
			log.Warn("unknown foveation mode treated as disabled", "mode", mode)
		}
		return nil, nil
	}

	var union struct {
		Enabled *FoveationSettings `json:"Enabled"`
	}
	if err := json.Unmarshal(raw, &union); err != nil {
		return nil, fmt.Errorf("pipeline: foveation settings: %w", err)
	}
	return union.Enabled, nil
}
