package config

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sarchlab/radarctl/stage"
)

type modeBlob struct {
	Mode   string             `json:"mode"`
	Params stage.StaticParams `json:"params"`
}

// EncodeMode produces the configuration blob that asks the compute core to
// switch to a mode.
func EncodeMode(mode string, params stage.StaticParams) ([]byte, error) {
	if mode == "" {
		return nil, errors.New("mode must not be empty")
	}

	return json.Marshal(modeBlob{Mode: mode, Params: params})
}

// DecodeMode reads a blob produced by EncodeMode.
func DecodeMode(blob []byte) (string, stage.StaticParams, error) {
	var b modeBlob

	err := json.Unmarshal(blob, &b)
	if err != nil {
		return "", stage.StaticParams{}, fmt.Errorf("config blob: %w", err)
	}

	if b.Mode == "" {
		return "", stage.StaticParams{}, errors.New("config blob: no mode")
	}

	return b.Mode, b.Params, nil
}
