// Package assets carries data files shipped with the binary.
package assets

import _ "embed"

// CalibrationYAML is the default marker calibration table.
//
//go:embed calibration.yaml
var CalibrationYAML []byte
